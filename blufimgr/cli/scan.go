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
	"time"

	"github.com/spf13/cobra"

	"mynewt.apache.org/newt/util"

	"github.com/blufimgr/blufimgr/blufimgr/bmutil"
	"github.com/blufimgr/blufimgr/bmxact/bmxutil"
	"github.com/blufimgr/blufimgr/bmxact/prov"
)

var scanDuration float64
var jsonOutput bool

type scanSesn interface {
	Snapshot() prov.Snapshot
	StopScan() error
}

// Ends the scan unless the session has already left the scanning state,
// e.g. because a device was auto-selected.
func finishScan(s scanSesn) (prov.Snapshot, error) {
	snap := s.Snapshot()

	switch snap.State {
	case prov.SESN_STATE_ERROR:
		return snap, snap.LastError

	case prov.SESN_STATE_SCANNING:
		err := s.StopScan()
		if err != nil && !bmxutil.IsInvalidState(err) {
			return snap, err
		}
	}

	return snap, nil
}

func scanRunCmd(cmd *cobra.Command, args []string) {
	if scanDuration <= 0 {
		bmUsage(cmd, util.NewNewtError("scan duration must be positive"))
	}

	s, err := getPoweredSesn()
	if err != nil {
		bmUsage(nil, err)
	}

	sub := logNotifications(s)
	defer sub.Cancel()

	if err := s.StartScan(); err != nil {
		bmUsage(nil, util.ChildNewtError(err))
	}

	time.Sleep(time.Duration(scanDuration * float64(time.Second)))

	snap, err := finishScan(s)
	if err != nil {
		bmUsage(nil, util.ChildNewtError(err))
	}

	if jsonOutput {
		js, err := devicesJson(snap.Devices)
		if err != nil {
			bmUsage(nil, err)
		}
		fmt.Println(js)
		return
	}

	fmt.Print(devicesString(snap.Devices))
}

func scanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan for BluFi peripherals",
		Example: "  " + bmutil.ToolInfo.ExeName + " scan --duration 3\n" +
			"  " + bmutil.ToolInfo.ExeName + " scan --json",
		Run: scanRunCmd,
	}

	cmd.Flags().Float64VarP(&scanDuration, "duration", "d", 5.0,
		"how long to scan, in seconds")
	cmd.Flags().BoolVar(&jsonOutput, "json", false,
		"print results as JSON")

	return cmd
}
