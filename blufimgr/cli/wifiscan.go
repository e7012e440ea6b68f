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

	"github.com/spf13/cobra"

	"mynewt.apache.org/newt/util"

	"github.com/blufimgr/blufimgr/blufimgr/bmutil"
	"github.com/blufimgr/blufimgr/bmxact/prov"
)

func wifiScanRunCmd(cmd *cobra.Command, args []string) {
	s, err := getPoweredSesn()
	if err != nil {
		bmUsage(nil, err)
	}

	sub := logNotifications(s)
	defer sub.Cancel()

	ctx, cancel := cmdContext(PROVISION_TIMEOUT)
	defer cancel()

	if _, err := connectPeer(ctx, s); err != nil {
		bmUsage(nil, err)
	}

	if err := s.ScanRemoteWifi(); err != nil {
		bmUsage(nil, util.ChildNewtError(err))
	}

	snap, err := awaitState(ctx, s, prov.SESN_STATE_READY)
	if err != nil {
		bmUsage(nil, err)
	}

	if jsonOutput {
		js, err := wifiNetworksJson(prov.SortWifiNetworks(snap.WifiResults))
		if err != nil {
			bmUsage(nil, err)
		}
		fmt.Println(js)
		return
	}

	fmt.Printf("Networks seen by %s:\n", snap.Target.String())
	fmt.Print(wifiNetworksString(snap.WifiResults))
}

func wifiScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wifiscan",
		Short: "List the WiFi networks visible to a BluFi peripheral",
		Example: "  " + bmutil.ToolInfo.ExeName +
			" --name BLUFI_DEVICE wifiscan --json",
		Run: wifiScanRunCmd,
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false,
		"print results as JSON")

	return cmd
}
