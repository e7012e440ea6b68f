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

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"

	"mynewt.apache.org/newt/util"

	"github.com/blufimgr/blufimgr/blufimgr/bll"
	"github.com/blufimgr/blufimgr/blufimgr/bmutil"
	"github.com/blufimgr/blufimgr/bmxact/prov"
)

type BleConfig struct {
	CtlrName   string
	PeerId     string
	PeerName   string
	NamePrefix string
	AutoSelect bool

	// Timeouts, in seconds.  Zero selects the session default.
	ConnTimeout      float64
	GattTimeout      float64
	NegotiateTimeout float64
	WifiScanTimeout  float64
	ConfigureTimeout float64

	// Preferred ATT MTU; zero leaves the controller default.
	Mtu int

	HciIdx int
}

func NewBleConfig() *BleConfig {
	return &BleConfig{
		ConnTimeout: bmutil.Timeout,
	}
}

func einvalBleConnString(f string, args ...interface{}) error {
	suffix := fmt.Sprintf(f, args...)
	return util.FmtNewtError("Invalid BLE connstring; %s", suffix)
}

func parseSeconds(k string, v string) (float64, error) {
	secs, err := cast.ToFloat64E(v)
	if err != nil || secs < 0 {
		return 0, einvalBleConnString("Invalid %s: %s", k, v)
	}

	return secs, nil
}

func ParseBleConnString(cs string) (*BleConfig, error) {
	bc := NewBleConfig()

	if strings.TrimSpace(cs) == "" {
		bc.HciIdx = bmutil.HciIdx
		return bc, nil
	}

	parts := strings.Split(cs, ",")
	for _, p := range parts {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			return nil, einvalBleConnString("expected comma-separated "+
				"key=value pairs; no '=' in: %s", p)
		}

		k := strings.TrimSpace(kv[0])
		v := strings.TrimSpace(kv[1])

		var err error
		switch k {
		case "ctlr_name":
			bc.CtlrName = v
		case "peer_id":
			bc.PeerId = v
		case "peer_name":
			bc.PeerName = v
		case "name_prefix":
			bc.NamePrefix = v
		case "auto_select":
			bc.AutoSelect, err = cast.ToBoolE(v)
			if err != nil {
				return nil, einvalBleConnString("Invalid auto_select: %s", v)
			}
		case "conn_timeout":
			bc.ConnTimeout, err = parseSeconds(k, v)
		case "gatt_timeout":
			bc.GattTimeout, err = parseSeconds(k, v)
		case "negotiate_timeout":
			bc.NegotiateTimeout, err = parseSeconds(k, v)
		case "wifi_scan_timeout":
			bc.WifiScanTimeout, err = parseSeconds(k, v)
		case "configure_timeout":
			bc.ConfigureTimeout, err = parseSeconds(k, v)
		case "mtu":
			bc.Mtu, err = cast.ToIntE(v)
			if err != nil || bc.Mtu < 0 {
				return nil, einvalBleConnString("Invalid mtu: %s", v)
			}

		default:
			return nil, einvalBleConnString("Unrecognized key: %s", k)
		}

		if err != nil {
			return nil, err
		}
	}

	bc.HciIdx = bmutil.HciIdx

	return bc, nil
}

func secsToDuration(secs float64, dflt time.Duration) time.Duration {
	if secs <= 0 {
		return dflt
	}
	return time.Duration(secs * float64(time.Second))
}

// Builds a session configuration from a parsed connstring.  Command line
// flags take precedence over the connstring.
func BuildSesnCfg(bc *BleConfig) prov.SesnCfg {
	if bmutil.DeviceName != "" {
		bc.PeerName = bmutil.DeviceName
	}

	sc := prov.NewSesnCfg()

	sc.PeerId = bc.PeerId
	sc.PeerName = bc.PeerName
	if bc.NamePrefix != "" {
		sc.NamePrefix = bc.NamePrefix
	}
	sc.AutoSelect = bc.AutoSelect || bmutil.AutoSelect

	sc.ConnTimeout = secsToDuration(bc.ConnTimeout, sc.ConnTimeout)
	sc.GattTimeout = secsToDuration(bc.GattTimeout, sc.GattTimeout)
	sc.NegotiateTimeout = secsToDuration(bc.NegotiateTimeout,
		sc.NegotiateTimeout)
	sc.WifiScanTimeout = secsToDuration(bc.WifiScanTimeout,
		sc.WifiScanTimeout)
	sc.ConfigureTimeout = secsToDuration(bc.ConfigureTimeout,
		sc.ConfigureTimeout)

	return sc
}

func BuildAdapterCfg(bc *BleConfig) bll.AdapterCfg {
	cfg := bll.NewAdapterCfg()
	if bc.CtlrName != "" {
		cfg.CtlrName = bc.CtlrName
	}
	if bc.Mtu != 0 {
		cfg.PreferredMtu = bc.Mtu
	}
	cfg.HciIdx = bc.HciIdx

	return cfg
}
