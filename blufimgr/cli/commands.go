/**
 * Licensed to the Apache Software Foundation (ASF) under one
 * or more contributor license agreements.  See the NOTICE file
 * distributed with this work for additional information
 * regarding copyright ownership.  The ASF licenses this file
 * to you under the Apache License, Version 2.0 (the
 * "License"); you may not use this file except in compliance
 * with the License.  You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing,
 * software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
 * KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations
 * under the License.
 */

package cli

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"mynewt.apache.org/newt/util"

	"github.com/blufimgr/blufimgr/blufimgr/bmutil"
	"github.com/blufimgr/blufimgr/bmxact/bmxutil"
)

var BlufimgrLogLevel log.Level

func Commands() *cobra.Command {
	logLevelStr := ""
	bmCmd := &cobra.Command{
		Use:   bmutil.ToolInfo.ExeName,
		Short: bmutil.ToolInfo.ShortName + " provisions WiFi credentials over BLE",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			var err error
			BlufimgrLogLevel, err = log.ParseLevel(logLevelStr)
			if err != nil {
				bmUsage(nil, util.ChildNewtError(err))
			}

			err = util.Init(BlufimgrLogLevel, "", util.VERBOSITY_DEFAULT)
			if err != nil {
				bmUsage(nil, err)
			}
			bmxutil.SetLogLevel(BlufimgrLogLevel)

			OSSpecificInit()
		},
		Run: func(cmd *cobra.Command, args []string) {
			cmd.HelpFunc()(cmd, args)
		},
	}

	bmCmd.PersistentFlags().StringVarP(&bmutil.ConnProfile, "conn", "c", "",
		"connection profile to use")

	bmCmd.PersistentFlags().Float64VarP(&bmutil.Timeout, "timeout", "t", 0,
		"overall command timeout in seconds (partial seconds allowed); "+
			"0 uses the command's default")

	bmCmd.PersistentFlags().StringVarP(&logLevelStr, "loglevel", "l", "info",
		"log level to use")

	bmCmd.PersistentFlags().StringVar(&bmutil.DeviceName, "name",
		"", "name of target BLE device; overrides profile setting")

	bmCmd.PersistentFlags().BoolVar(&bmutil.AutoSelect, "auto-select", false,
		"connect to the first device matching the name prefix")

	bmCmd.PersistentFlags().StringVar(&bmutil.ConnString, "connstring", "",
		"Connection key-value pairs to use instead of using the profile's "+
			"connstring")

	bmCmd.PersistentFlags().StringVar(&bmutil.ConnExtra, "connextra", "",
		"Additional key-value pair to append to the connstring")

	bmCmd.PersistentFlags().IntVarP(&bmutil.HciIdx, "hci", "i",
		0, "HCI index for the controller on Linux machine")

	versCmd := &cobra.Command{
		Use:     "version",
		Short:   "Display the " + bmutil.ToolInfo.ShortName + " version number",
		Example: "  " + bmutil.ToolInfo.ExeName + " version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s %s\n",
				bmutil.ToolInfo.LongName,
				bmutil.ToolInfo.VersionString)
		},
	}
	bmCmd.AddCommand(versCmd)

	bmCmd.AddCommand(scanCmd())
	bmCmd.AddCommand(provisionCmd())
	bmCmd.AddCommand(wifiScanCmd())
	bmCmd.AddCommand(interactiveCmd())
	bmCmd.AddCommand(connProfileCmd())

	return bmCmd
}
