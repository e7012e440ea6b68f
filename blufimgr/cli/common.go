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
	"os"
	"sort"
	"strings"
	"time"

	"github.com/fatih/structs"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/ugorji/go/codec"

	"mynewt.apache.org/newt/util"

	"github.com/blufimgr/blufimgr/blufimgr/bll"
	"github.com/blufimgr/blufimgr/blufimgr/bmutil"
	"github.com/blufimgr/blufimgr/blufimgr/config"
	"github.com/blufimgr/blufimgr/bmxact/blufi"
	"github.com/blufimgr/blufimgr/bmxact/prov"
)

// How long to wait for the host controller to report its power state.
const POWER_ON_TIMEOUT = 5 * time.Second

var globalSesn *prov.ProvSesn

var onExit func()

func SetOnExit(fn func()) {
	onExit = fn
}

func bmUsage(cmd *cobra.Command, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err.Error())
	}

	if cmd != nil {
		fmt.Printf("\n")
		fmt.Printf("%s - ", cmd.Name())
		cmd.Help()
	}

	if onExit != nil {
		onExit()
	}
	os.Exit(1)
}

// Determines the connstring to use.  An explicit --connstring takes
// precedence over the selected profile; --connextra is appended to either.
func resolveConnString() (string, error) {
	cs := bmutil.ConnString
	if cs == "" && bmutil.ConnProfile != "" {
		cp, err := config.GlobalConnProfileMgr().GetConnProfile(
			bmutil.ConnProfile)
		if err != nil {
			return "", err
		}
		if cp.Type != config.CONN_TYPE_BLE {
			return "", util.FmtNewtError("Unsupported connection type: %s",
				config.ConnTypeToString(cp.Type))
		}
		cs = cp.ConnString
	}

	if bmutil.ConnExtra != "" {
		if strings.TrimSpace(cs) != "" {
			cs += ","
		}
		cs += bmutil.ConnExtra
	}

	return cs, nil
}

func getBleConfig() (*config.BleConfig, error) {
	cs, err := resolveConnString()
	if err != nil {
		return nil, err
	}

	return config.ParseBleConnString(cs)
}

func GetSesn() (*prov.ProvSesn, error) {
	if globalSesn != nil {
		return globalSesn, nil
	}

	bc, err := getBleConfig()
	if err != nil {
		return nil, err
	}

	adapter := bll.NewBllAdapter(config.BuildAdapterCfg(bc))
	s := prov.NewProvSesn(config.BuildSesnCfg(bc), adapter, blufi.NewEngine)
	if err := s.Start(); err != nil {
		return nil, util.ChildNewtError(err)
	}

	globalSesn = s

	return globalSesn, nil
}

func GetSesnIfOpen() (*prov.ProvSesn, error) {
	if globalSesn == nil {
		return nil, fmt.Errorf("sesn not initialized")
	}

	return globalSesn, nil
}

// Opens the session and waits for the controller to come up.
func getPoweredSesn() (*prov.ProvSesn, error) {
	s, err := GetSesn()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), POWER_ON_TIMEOUT)
	defer cancel()

	snap, err := s.Await(ctx, func(snap prov.Snapshot) bool {
		return snap.State != prov.SESN_STATE_POWERED_OFF
	})
	if err != nil {
		return nil, util.FmtNewtError("BLE controller not powered on")
	}
	if snap.State == prov.SESN_STATE_ERROR {
		return nil, util.ChildNewtError(snap.LastError)
	}

	return s, nil
}

// Returns a context bounded by --timeout, or by dflt if the flag is unset.
func cmdContext(dflt time.Duration) (context.Context, context.CancelFunc) {
	d := bmutil.TimeoutDuration()
	if d <= 0 {
		d = dflt
	}

	return context.WithTimeout(context.Background(), d)
}

// Waits for the session to reach one of the specified states.  Reaching the
// error state instead yields the session's error.
func awaitState(ctx context.Context, s *prov.ProvSesn,
	states ...prov.SesnState) (prov.Snapshot, error) {

	snap, err := s.Await(ctx, func(snap prov.Snapshot) bool {
		if snap.State == prov.SESN_STATE_ERROR {
			return true
		}
		for _, st := range states {
			if snap.State == st {
				return true
			}
		}
		return false
	})
	if err != nil {
		return snap, util.FmtNewtError("timed out in state %s",
			snap.State.String())
	}

	if snap.State == prov.SESN_STATE_ERROR {
		return snap, util.ChildNewtError(snap.LastError)
	}

	return snap, nil
}

// Prints session notifications as they arrive.
func logNotifications(s *prov.ProvSesn) *prov.Subscription {
	return s.Subscribe(func(n prov.Notification) {
		switch n.Type {
		case prov.NOTIF_STATE_CHANGED:
			log.Debugf("state: %s -> %s", n.PrevState, n.State)
		case prov.NOTIF_DEVICE_FOUND:
			log.Debugf("device found: %s", n.Device.String())
		case prov.NOTIF_ERROR:
			log.Debugf("session error: %s", n.Err.Error())
		}
	})
}

/*****************************************************************************
 * $output                                                                   *
 *****************************************************************************/

type deviceJson struct {
	Id   string `codec:"id"`
	Name string `codec:"name"`
	Rssi int    `codec:"rssi"`
}

type wifiJson struct {
	Ssid string `codec:"ssid"`
	Rssi int    `codec:"rssi"`
}

func encodeJson(v interface{}) (string, error) {
	h := new(codec.JsonHandle)
	h.Indent = 4

	var b []byte
	if err := codec.NewEncoderBytes(&b, h).Encode(v); err != nil {
		return "", util.ChildNewtError(err)
	}

	return string(b), nil
}

func devicesJson(devs []prov.DeviceRecord) (string, error) {
	out := make([]map[string]interface{}, 0, len(devs))
	for _, d := range devs {
		s := structs.New(deviceJson{Id: d.Id, Name: d.Name, Rssi: d.Rssi})
		s.TagName = "codec"
		out = append(out, s.Map())
	}

	return encodeJson(out)
}

func wifiNetworksJson(nets []prov.WifiNetwork) (string, error) {
	out := make([]map[string]interface{}, 0, len(nets))
	for _, n := range nets {
		s := structs.New(wifiJson{Ssid: n.Ssid, Rssi: int(n.Rssi)})
		s.TagName = "codec"
		out = append(out, s.Map())
	}

	return encodeJson(out)
}

func devicesString(devs []prov.DeviceRecord) string {
	if len(devs) == 0 {
		return "No devices found\n"
	}

	s := ""
	for i, d := range devs {
		name := d.Name
		if name == "" {
			name = "(unnamed)"
		}
		s += fmt.Sprintf("%3d: %-24s %-32s %4d dBm\n", i, d.Id, name, d.Rssi)
	}

	return s
}

func wifiNetworksString(nets []prov.WifiNetwork) string {
	if len(nets) == 0 {
		return "No networks found\n"
	}

	s := ""
	for _, n := range prov.SortWifiNetworks(nets) {
		ssid := n.Ssid
		if ssid == "" {
			ssid = "(hidden)"
		}
		s += fmt.Sprintf("    %-32s %4d dBm\n", ssid, n.Rssi)
	}

	return s
}

// Renders a struct one field per line, sorted by field name.
func fieldsString(v interface{}) string {
	m := structs.Map(v)

	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)

	s := ""
	for _, k := range names {
		s += fmt.Sprintf("    %s: %v\n", k, m[k])
	}

	return s
}

func snapshotString(snap prov.Snapshot) string {
	type sesnInfo struct {
		State     string
		Target    string
		Devices   int
		Networks  int
		LastError string
	}

	info := sesnInfo{
		State:    snap.State.String(),
		Devices:  len(snap.Devices),
		Networks: len(snap.WifiResults),
	}
	if snap.Target != nil {
		info.Target = snap.Target.String()
	}
	if snap.LastError != nil {
		info.LastError = snap.LastError.Error()
	}

	return fieldsString(info)
}
