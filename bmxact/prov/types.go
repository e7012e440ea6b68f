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

package prov

import (
	"fmt"
	"sort"
)

// A peripheral seen during the current scan batch.  Identity is Id alone;
// names may repeat and the signal strength fluctuates.
type DeviceRecord struct {
	Id   string
	Name string
	Rssi int
}

func (d DeviceRecord) String() string {
	return fmt.Sprintf("id=%s name=%q rssi=%d", d.Id, d.Name, d.Rssi)
}

// A network reported by the peripheral's remote WiFi scan.  Duplicate SSIDs
// are legitimate (multiple BSSIDs or channels) and are never merged.
type WifiNetwork struct {
	Ssid string
	Rssi int8
}

func (w WifiNetwork) String() string {
	return fmt.Sprintf("ssid=%q rssi=%d", w.Ssid, w.Rssi)
}

// Returns a copy of nets ordered by descending signal strength.  Networks
// with equal strength keep their arrival order.
func SortWifiNetworks(nets []WifiNetwork) []WifiNetwork {
	sorted := make([]WifiNetwork, len(nets))
	copy(sorted, nets)

	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Rssi > sorted[j].Rssi
	})

	return sorted
}

type OpMode int

const (
	OP_MODE_NULL OpMode = iota
	OP_MODE_STA
	OP_MODE_SOFTAP
	OP_MODE_STA_SOFTAP
)

var opModeNameMap = map[OpMode]string{
	OP_MODE_NULL:       "null",
	OP_MODE_STA:        "sta",
	OP_MODE_SOFTAP:     "softap",
	OP_MODE_STA_SOFTAP: "sta_softap",
}

func (m OpMode) String() string {
	if name, ok := opModeNameMap[m]; ok {
		return name
	}
	return fmt.Sprintf("OpMode(%d)", int(m))
}

func OpModeFromString(s string) (OpMode, error) {
	for k, v := range opModeNameMap {
		if s == v {
			return k, nil
		}
	}

	return OP_MODE_NULL, fmt.Errorf("Invalid op mode: %s", s)
}

type ConfigureParams struct {
	OpMode      OpMode
	StaSsid     string
	StaPassword string
}

const WIFI_SSID_MAX_LEN = 32
const WIFI_PASSWORD_MAX_LEN = 64

func (p *ConfigureParams) Validate() error {
	if p.OpMode != OP_MODE_STA && p.OpMode != OP_MODE_STA_SOFTAP {
		return fmt.Errorf("unsupported op mode: %s", p.OpMode)
	}
	if len(p.StaSsid) == 0 || len(p.StaSsid) > WIFI_SSID_MAX_LEN {
		return fmt.Errorf("invalid SSID length: %d", len(p.StaSsid))
	}
	if len(p.StaPassword) > WIFI_PASSWORD_MAX_LEN {
		return fmt.Errorf("invalid password length: %d", len(p.StaPassword))
	}

	return nil
}
