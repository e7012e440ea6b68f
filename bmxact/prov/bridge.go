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
	"sync"

	"github.com/blufimgr/blufimgr/bmxact/xport"
)

type EvtFn func(evt Evt)

// Translates raw adapter callbacks into session events.  The bridge never
// retries and holds no session state; the only memory it keeps is the
// per-batch duplicate filter for scan results.
type EvtBridge struct {
	emit EvtFn
}

func NewEvtBridge(emit EvtFn) *EvtBridge {
	return &EvtBridge{
		emit: emit,
	}
}

func (b *EvtBridge) OnPowerChanged(state xport.PowerState) {
	switch state {
	case xport.POWER_STATE_ON:
		b.emit(&AdapterPoweredEvt{})

	case xport.POWER_STATE_OFF:
		b.emit(&AdapterUnpoweredEvt{})

	default:
		b.emit(&AdapterFaultEvt{
			Reason: fmt.Sprintf("unexpected state: %s", state.String()),
		})
	}
}

// Builds the handler for a single scan batch.
func (b *EvtBridge) ScanHandler(batch uint64) xport.ScanHandler {
	return &scanBridge{
		emit:  b.emit,
		batch: batch,
		seen:  map[string]int{},
	}
}

// Builds the handler for a single connection attempt.
func (b *EvtBridge) ConnHandler(gen uint64) xport.ConnHandler {
	return &connBridge{
		emit: b.emit,
		gen:  gen,
	}
}

type scanBridge struct {
	emit  EvtFn
	batch uint64

	// id => last reported rssi.
	seen map[string]int
	mtx  sync.Mutex
}

func (sb *scanBridge) OnDeviceDiscovered(rpt xport.AdvReport) {
	sb.mtx.Lock()
	rssi, ok := sb.seen[rpt.Id]
	sb.seen[rpt.Id] = rpt.Rssi
	sb.mtx.Unlock()

	if !ok {
		sb.emit(&DeviceDiscoveredEvt{
			Batch: sb.batch,
			Dev: DeviceRecord{
				Id:   rpt.Id,
				Name: rpt.Name,
				Rssi: rpt.Rssi,
			},
		})
	} else if rssi != rpt.Rssi {
		sb.emit(&RssiUpdatedEvt{
			Batch: sb.batch,
			Id:    rpt.Id,
			Rssi:  rpt.Rssi,
		})
	}
}

func (sb *scanBridge) OnScanFailed(err error) {
	sb.emit(&ScanFailedEvt{Batch: sb.batch, Err: err})
}

type connBridge struct {
	emit EvtFn
	gen  uint64
}

func (cb *connBridge) OnConnected(id string) {
	cb.emit(&ConnectedEvt{Gen: cb.gen, Id: id})
}

func (cb *connBridge) OnConnectFailed(id string, err error) {
	cb.emit(&ConnectFailedEvt{Gen: cb.gen, Id: id, Err: err})
}

func (cb *connBridge) OnDisconnected(id string, err error) {
	cb.emit(&DisconnectedEvt{Gen: cb.gen, Id: id, Err: err})
}

func (cb *connBridge) OnChrsDiscovered(id string, chrs []xport.Chr,
	err error) {

	cb.emit(&ChrsDiscoveredEvt{Gen: cb.gen, Chrs: chrs, Err: err})
}

func (cb *connBridge) OnSubscribed(id string, handle uint16, err error) {
	cb.emit(&SubscribedEvt{Gen: cb.gen, Handle: handle, Err: err})
}

func (cb *connBridge) OnNotify(id string, handle uint16, data []byte) {
	cb.emit(&NotifyEvt{Gen: cb.gen, Handle: handle, Data: data})
}

// Tags protocol engine callbacks with the generation that created the engine.
type engineBridge struct {
	emit EvtFn
	gen  uint64
}

func (eb *engineBridge) SecurityNegotiated(err error) {
	eb.emit(&SecurityNegotiatedEvt{Gen: eb.gen, Err: err})
}

func (eb *engineBridge) ConfigureResult(err error) {
	eb.emit(&ConfigureResultEvt{Gen: eb.gen, Err: err})
}

func (eb *engineBridge) WifiScanResult(nets []WifiNetwork, err error) {
	eb.emit(&WifiScanResultEvt{Gen: eb.gen, Nets: nets, Err: err})
}

func (eb *engineBridge) ProtocolError(code int) {
	eb.emit(&ProtocolErrorEvt{Gen: eb.gen, Code: code})
}
