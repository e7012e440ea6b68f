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
	"strings"

	"github.com/spf13/cobra"

	"mynewt.apache.org/newt/util"

	"github.com/blufimgr/blufimgr/blufimgr/bmutil"
	"github.com/blufimgr/blufimgr/blufimgr/config"
)

var connShowVerbose bool

func connProfileAddCmd(cmd *cobra.Command, args []string) {
	cpm := config.GlobalConnProfileMgr()

	// Connection Profile name required
	if len(args) == 0 {
		bmUsage(cmd, util.NewNewtError("Need connection profile name"))
	}

	name := args[0]
	cp := config.NewConnProfile()
	cp.Name = name
	cp.Type = config.CONN_TYPE_BLE

	for _, vdef := range args[1:] {
		s := strings.SplitN(vdef, "=", 2)
		if len(s) != 2 {
			bmUsage(cmd, util.NewNewtError("Expected varname=value: "+vdef))
		}

		switch s[0] {
		case "type":
			var err error
			cp.Type, err = config.ConnTypeFromString(s[1])
			if err != nil {
				bmUsage(cmd, err)
			}
		case "connstring":
			cp.ConnString = s[1]
		default:
			bmUsage(cmd, util.NewNewtError("Unknown variable "+s[0]))
		}
	}

	if err := cpm.AddConnProfile(cp); err != nil {
		bmUsage(cmd, err)
	}

	fmt.Printf("Connection profile %s successfully added\n", name)
}

func connProfileShowCmd(cmd *cobra.Command, args []string) {
	cpm := config.GlobalConnProfileMgr()

	name := ""
	if len(args) > 0 {
		name = args[0]
	}

	cpList, err := cpm.GetConnProfileList()
	if err != nil {
		bmUsage(cmd, err)
	}

	found := false
	for _, cp := range cpList {
		if name != "" && cp.Name != name {
			continue
		}

		if !found {
			found = true
			fmt.Printf("Connection profiles: \n")
		}
		fmt.Printf("  %s: type=%s, connstring='%s'\n",
			cp.Name, config.ConnTypeToString(cp.Type), cp.ConnString)

		if connShowVerbose {
			bc, err := config.ParseBleConnString(cp.ConnString)
			if err != nil {
				fmt.Printf("    (invalid: %s)\n", err.Error())
				continue
			}
			fmt.Print(fieldsString(*bc))
		}
	}

	if !found {
		if name == "" {
			fmt.Printf("No connection profiles found!\n")
		} else {
			fmt.Printf("No connection profiles found matching %s\n", name)
		}
	}
}

func connProfileDelCmd(cmd *cobra.Command, args []string) {
	cpm := config.GlobalConnProfileMgr()

	// Connection Profile name required
	if len(args) == 0 {
		bmUsage(cmd, util.NewNewtError("Need connection profile name"))
	}

	name := args[0]
	if err := cpm.DeleteConnProfile(name); err != nil {
		bmUsage(cmd, err)
	}

	fmt.Printf("Connection profile %s successfully deleted.\n", name)
}

func connProfileCmd() *cobra.Command {
	cpCmd := &cobra.Command{
		Use:   "conn",
		Short: "Manage " + bmutil.ToolInfo.ShortName + " connection profiles",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.HelpFunc()(cmd, args)
		},
	}

	addHelpText := "Add a connection profile.  Recognized variables are " +
		"type (ble) and connstring.\nConnstring keys: ctlr_name, peer_id, " +
		"peer_name, name_prefix, auto_select,\nconn_timeout, gatt_timeout, " +
		"negotiate_timeout, wifi_scan_timeout,\nconfigure_timeout, mtu."

	addCmd := &cobra.Command{
		Use:   "add <conn_profile> <varname=value ...> ",
		Short: "Add a " + bmutil.ToolInfo.ShortName + " connection profile",
		Long:  addHelpText,
		Example: "  " + bmutil.ToolInfo.ExeName +
			" conn add lab connstring=peer_name=BLUFI_DEVICE,conn_timeout=5",
		Run: connProfileAddCmd,
	}
	cpCmd.AddCommand(addCmd)

	deleCmd := &cobra.Command{
		Use:   "delete <conn_profile>",
		Short: "Delete a " + bmutil.ToolInfo.ShortName + " connection profile",
		Run:   connProfileDelCmd,
	}
	cpCmd.AddCommand(deleCmd)

	connShowHelpText := "Show information for the conn_profile connection "
	connShowHelpText += "profile or for all\nconnection profiles "
	connShowHelpText += "if conn_profile is not specified.\n"

	showCmd := &cobra.Command{
		Use:   "show [conn_profile]",
		Short: "Show " + bmutil.ToolInfo.ShortName + " connection profiles",
		Long:  connShowHelpText,
		Run:   connProfileShowCmd,
	}
	showCmd.Flags().BoolVarP(&connShowVerbose, "verbose", "v", false,
		"show parsed connstring settings")
	cpCmd.AddCommand(showCmd)

	return cpCmd
}
