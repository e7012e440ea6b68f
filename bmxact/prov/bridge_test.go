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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blufimgr/blufimgr/bmxact/xport"
)

type evtRecorder struct {
	evts []Evt
}

func (r *evtRecorder) emit(evt Evt) {
	r.evts = append(r.evts, evt)
}

func TestBridgePower(t *testing.T) {
	rec := &evtRecorder{}
	b := NewEvtBridge(rec.emit)

	b.OnPowerChanged(xport.POWER_STATE_ON)
	b.OnPowerChanged(xport.POWER_STATE_OFF)
	b.OnPowerChanged(xport.POWER_STATE_UNAUTHORIZED)

	require.Len(t, rec.evts, 3)
	assert.IsType(t, &AdapterPoweredEvt{}, rec.evts[0])
	assert.IsType(t, &AdapterUnpoweredEvt{}, rec.evts[1])

	fault, ok := rec.evts[2].(*AdapterFaultEvt)
	require.True(t, ok)
	assert.Equal(t, "unexpected state: unauthorized", fault.Reason)
}

func TestBridgeScanDedup(t *testing.T) {
	rec := &evtRecorder{}
	b := NewEvtBridge(rec.emit)
	sh := b.ScanHandler(7)

	sh.OnDeviceDiscovered(xport.AdvReport{Id: "a", Name: "BLUFI_A", Rssi: -60})
	sh.OnDeviceDiscovered(xport.AdvReport{Id: "b", Name: "other", Rssi: -70})
	sh.OnDeviceDiscovered(xport.AdvReport{Id: "a", Name: "renamed", Rssi: -60})
	sh.OnDeviceDiscovered(xport.AdvReport{Id: "a", Name: "", Rssi: -50})

	require.Len(t, rec.evts, 3)

	d0 := rec.evts[0].(*DeviceDiscoveredEvt)
	assert.Equal(t, uint64(7), d0.Batch)
	assert.Equal(t, DeviceRecord{Id: "a", Name: "BLUFI_A", Rssi: -60}, d0.Dev)

	d1 := rec.evts[1].(*DeviceDiscoveredEvt)
	assert.Equal(t, "b", d1.Dev.Id)

	upd := rec.evts[2].(*RssiUpdatedEvt)
	assert.Equal(t, RssiUpdatedEvt{Batch: 7, Id: "a", Rssi: -50}, *upd)

	// A new batch forgets earlier sightings.
	sh2 := b.ScanHandler(8)
	sh2.OnDeviceDiscovered(xport.AdvReport{Id: "a", Name: "BLUFI_A", Rssi: -50})
	require.Len(t, rec.evts, 4)
	assert.Equal(t, uint64(8), rec.evts[3].(*DeviceDiscoveredEvt).Batch)
}

func TestBridgeConnTagsGeneration(t *testing.T) {
	rec := &evtRecorder{}
	b := NewEvtBridge(rec.emit)
	ch := b.ConnHandler(3)

	ch.OnConnected("a")
	ch.OnDisconnected("a", fmt.Errorf("supervision timeout"))
	ch.OnSubscribed("a", 44, nil)
	ch.OnNotify("a", 44, []byte{1, 2})

	require.Len(t, rec.evts, 4)
	for _, evt := range rec.evts {
		gen, ok := evtGen(evt)
		assert.True(t, ok)
		assert.Equal(t, uint64(3), gen)
	}

	disc := rec.evts[1].(*DisconnectedEvt)
	assert.EqualError(t, disc.Err, "supervision timeout")
}

func TestBridgeScanFailureTagsBatch(t *testing.T) {
	rec := &evtRecorder{}
	b := NewEvtBridge(rec.emit)

	b.ScanHandler(5).OnScanFailed(fmt.Errorf("hci error"))

	require.Len(t, rec.evts, 1)
	sf, ok := rec.evts[0].(*ScanFailedEvt)
	require.True(t, ok)
	assert.Equal(t, uint64(5), sf.Batch)
	assert.EqualError(t, sf.Err, "hci error")
}
