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
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/cheggaaa/pb.v1"

	"mynewt.apache.org/newt/util"

	"github.com/blufimgr/blufimgr/blufimgr/bmutil"
	"github.com/blufimgr/blufimgr/blufimgr/config"
	"github.com/blufimgr/blufimgr/bmxact/bmxutil"
	"github.com/blufimgr/blufimgr/bmxact/prov"
)

const PROVISION_TIMEOUT = 60 * time.Second

// Scans for the configured peer and waits until security has been
// negotiated with it.  Matching is done here rather than by the session's
// auto-select so that a peer name or id is honoured even when auto-select is
// disabled.
func connectPeer(ctx context.Context, s *prov.ProvSesn) (prov.Snapshot, error) {
	bc, err := getBleConfig()
	if err != nil {
		return prov.Snapshot{}, err
	}
	cfg := config.BuildSesnCfg(bc)

	if cfg.PeerId == "" && cfg.PeerName == "" && !cfg.AutoSelect {
		return prov.Snapshot{}, util.NewNewtError(
			"no peer specified; use --name, a peer_id/peer_name connstring " +
				"or --auto-select")
	}

	sub := s.Subscribe(func(n prov.Notification) {
		if n.Type != prov.NOTIF_DEVICE_FOUND || !cfg.Matches(n.Device) {
			return
		}

		log.Debugf("Selecting %s", n.Device.String())
		err := s.SelectDevice(n.Device.Id)
		if err != nil && !bmxutil.IsBusy(err) && !bmxutil.IsInvalidState(err) {
			log.Debugf("Select failed: %s", err.Error())
		}
	})
	defer sub.Cancel()

	if err := s.StartScan(); err != nil {
		return prov.Snapshot{}, util.ChildNewtError(err)
	}

	return awaitState(ctx, s, prov.SESN_STATE_READY)
}

func provisionRunCmd(cmd *cobra.Command, args []string) {
	if len(args) < 1 || len(args) > 2 {
		bmUsage(cmd, util.NewNewtError("Need SSID and optional password"))
	}

	ssid := args[0]
	password := ""
	if len(args) > 1 {
		password = args[1]
	}

	params := prov.ConfigureParams{
		OpMode:      prov.OP_MODE_STA,
		StaSsid:     ssid,
		StaPassword: password,
	}
	if err := params.Validate(); err != nil {
		bmUsage(cmd, util.ChildNewtError(err))
	}

	s, err := getPoweredSesn()
	if err != nil {
		bmUsage(nil, err)
	}

	bar := pb.New(int(prov.SESN_STATE_CONFIGURED))
	bar.ShowCounters = false
	bar.ShowTimeLeft = false
	bar.Prefix(fmt.Sprintf("%-18s", s.State().String()))
	bar.Start()

	sub := s.Subscribe(func(n prov.Notification) {
		if n.Type == prov.NOTIF_STATE_CHANGED &&
			n.State != prov.SESN_STATE_ERROR {

			bar.Prefix(fmt.Sprintf("%-18s", n.State.String()))
			bar.Set(int(n.State))
		}
	})
	defer sub.Cancel()

	ctx, cancel := cmdContext(PROVISION_TIMEOUT)
	defer cancel()

	snap, err := connectPeer(ctx, s)
	if err != nil {
		bar.Finish()
		bmUsage(nil, err)
	}

	if err := s.ConfigureWifi(ssid, password); err != nil {
		bar.Finish()
		bmUsage(nil, util.ChildNewtError(err))
	}

	if _, err := awaitState(ctx, s, prov.SESN_STATE_CONFIGURED); err != nil {
		bar.Finish()
		bmUsage(nil, err)
	}

	bar.Set(int(prov.SESN_STATE_CONFIGURED))
	bar.Finish()

	fmt.Printf("Provisioned %s with network \"%s\"\n",
		snap.Target.String(), ssid)
}

func provisionCmd() *cobra.Command {
	help := "Scan for a BluFi peripheral, negotiate security with it and " +
		"commit the specified\nWiFi station credentials.  The peripheral " +
		"is chosen with --name, a profile's\npeer_id/peer_name, or " +
		"--auto-select."

	return &cobra.Command{
		Use:   "provision <ssid> [password]",
		Short: "Send WiFi credentials to a BluFi peripheral",
		Long:  help,
		Example: "  " + bmutil.ToolInfo.ExeName +
			" --name BLUFI_DEVICE provision home-network hunter22",
		Run: provisionRunCmd,
	}
}
