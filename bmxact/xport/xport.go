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

package xport

import (
	"fmt"

	"github.com/blufimgr/blufimgr/bmxact/bledefs"
)

type PowerState int

const (
	POWER_STATE_UNKNOWN PowerState = iota
	POWER_STATE_ON
	POWER_STATE_OFF
	POWER_STATE_UNSUPPORTED
	POWER_STATE_UNAUTHORIZED
	POWER_STATE_RESETTING
)

var powerStateNameMap = map[PowerState]string{
	POWER_STATE_UNKNOWN:      "unknown",
	POWER_STATE_ON:           "on",
	POWER_STATE_OFF:          "off",
	POWER_STATE_UNSUPPORTED:  "unsupported",
	POWER_STATE_UNAUTHORIZED: "unauthorized",
	POWER_STATE_RESETTING:    "resetting",
}

func (s PowerState) String() string {
	if name, ok := powerStateNameMap[s]; ok {
		return name
	}
	return fmt.Sprintf("PowerState(%d)", int(s))
}

// A single advertisement seen during a scan.
type AdvReport struct {
	Id   string
	Name string
	Rssi int
}

// A characteristic discovered within the provisioning service.  The handle is
// opaque to everything except the adapter that produced it.
type Chr struct {
	Uuid   bledefs.BleUuid
	Handle uint16
}

type PowerHandler interface {
	OnPowerChanged(state PowerState)
}

// Receives the results of a single scan batch.
type ScanHandler interface {
	OnDeviceDiscovered(rpt AdvReport)

	// The scan ended on its own; no further reports follow.
	OnScanFailed(err error)
}

// Receives every callback belonging to a single connection attempt.
type ConnHandler interface {
	OnConnected(id string)
	OnConnectFailed(id string, err error)

	// err is nil if the disconnect was requested via Adapter.Disconnect.
	OnDisconnected(id string, err error)

	OnChrsDiscovered(id string, chrs []Chr, err error)
	OnSubscribed(id string, handle uint16, err error)
	OnNotify(id string, handle uint16, data []byte)
}

// Core-facing interface to the host BLE adapter.  Apart from Write, every
// method is fire-and-forget: it returns an error only if the request could
// not be issued, and the outcome is delivered later to the handler that was
// supplied with the scan or connect request.
type Adapter interface {
	// Begins delivering power state changes to the specified handler.  The
	// current state is reported shortly after Start returns.
	Start(h PowerHandler) error
	Stop() error

	Scan(h ScanHandler) error
	StopScan() error

	Connect(id string, h ConnHandler) error
	Disconnect(id string) error

	// Discovers the characteristics of the specified service.
	DiscoverChrs(id string, svcUuid bledefs.BleUuid) error

	// Enables notifications on the specified characteristic.
	Subscribe(id string, handle uint16) error

	// Performs a blocking write to the specified characteristic.  This must
	// not be called from a goroutine that delivers adapter callbacks.
	Write(id string, handle uint16, data []byte) error

	// The maximum write payload for the specified connection.
	Mtu(id string) int
}
