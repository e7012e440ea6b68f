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
	"github.com/blufimgr/blufimgr/bmxact/xport"
)

// Every asynchronous input to the session is one of the event types below.
// Connection-scoped events carry the generation that issued the request;
// scan events carry the scan batch.  The session discards events whose tag
// doesn't match its current one.
type Evt interface {
	isEvt()
}

type AdapterPoweredEvt struct{}

type AdapterUnpoweredEvt struct{}

type AdapterFaultEvt struct {
	Reason string
}

type DeviceDiscoveredEvt struct {
	Batch uint64
	Dev   DeviceRecord
}

type RssiUpdatedEvt struct {
	Batch uint64
	Id    string
	Rssi  int
}

type ScanFailedEvt struct {
	Batch uint64
	Err   error
}

type ConnectedEvt struct {
	Gen uint64
	Id  string
}

type ConnectFailedEvt struct {
	Gen uint64
	Id  string
	Err error
}

type DisconnectedEvt struct {
	Gen uint64
	Id  string
	Err error
}

type ChrsDiscoveredEvt struct {
	Gen  uint64
	Chrs []xport.Chr
	Err  error
}

type SubscribedEvt struct {
	Gen    uint64
	Handle uint16
	Err    error
}

type NotifyEvt struct {
	Gen    uint64
	Handle uint16
	Data   []byte
}

type SecurityNegotiatedEvt struct {
	Gen uint64
	Err error
}

type ConfigureResultEvt struct {
	Gen uint64
	Err error
}

type WifiScanResultEvt struct {
	Gen  uint64
	Nets []WifiNetwork
	Err  error
}

type ProtocolErrorEvt struct {
	Gen  uint64
	Code int
}

type TimeoutEvt struct {
	Gen   uint64
	Op    string
	Token uint64
}

func (*AdapterPoweredEvt) isEvt()     {}
func (*AdapterUnpoweredEvt) isEvt()   {}
func (*AdapterFaultEvt) isEvt()       {}
func (*DeviceDiscoveredEvt) isEvt()   {}
func (*RssiUpdatedEvt) isEvt()        {}
func (*ScanFailedEvt) isEvt()         {}
func (*ConnectedEvt) isEvt()          {}
func (*ConnectFailedEvt) isEvt()      {}
func (*DisconnectedEvt) isEvt()       {}
func (*ChrsDiscoveredEvt) isEvt()     {}
func (*SubscribedEvt) isEvt()         {}
func (*NotifyEvt) isEvt()             {}
func (*SecurityNegotiatedEvt) isEvt() {}
func (*ConfigureResultEvt) isEvt()    {}
func (*WifiScanResultEvt) isEvt()     {}
func (*ProtocolErrorEvt) isEvt()      {}
func (*TimeoutEvt) isEvt()            {}

// Returns the generation tag of a connection-scoped event.
func evtGen(evt Evt) (uint64, bool) {
	switch e := evt.(type) {
	case *ConnectedEvt:
		return e.Gen, true
	case *ConnectFailedEvt:
		return e.Gen, true
	case *DisconnectedEvt:
		return e.Gen, true
	case *ChrsDiscoveredEvt:
		return e.Gen, true
	case *SubscribedEvt:
		return e.Gen, true
	case *NotifyEvt:
		return e.Gen, true
	case *SecurityNegotiatedEvt:
		return e.Gen, true
	case *ConfigureResultEvt:
		return e.Gen, true
	case *WifiScanResultEvt:
		return e.Gen, true
	case *ProtocolErrorEvt:
		return e.Gen, true
	case *TimeoutEvt:
		return e.Gen, true
	default:
		return 0, false
	}
}
