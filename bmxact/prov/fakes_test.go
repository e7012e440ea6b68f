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
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/blufimgr/blufimgr/bmxact/bledefs"
	"github.com/blufimgr/blufimgr/bmxact/xport"
)

type fakeAdapter struct {
	mtx sync.Mutex

	power       xport.PowerHandler
	scan        xport.ScanHandler
	scanning    bool
	conns       []xport.ConnHandler
	connIds     []string
	disconnects []string
	discovers   []bledefs.BleUuid
	subscribes  []uint16
	writes      [][]byte

	connectErr error
}

func (fa *fakeAdapter) Start(h xport.PowerHandler) error {
	fa.mtx.Lock()
	defer fa.mtx.Unlock()

	fa.power = h
	return nil
}

func (fa *fakeAdapter) Stop() error {
	return nil
}

func (fa *fakeAdapter) Scan(h xport.ScanHandler) error {
	fa.mtx.Lock()
	defer fa.mtx.Unlock()

	fa.scan = h
	fa.scanning = true
	return nil
}

func (fa *fakeAdapter) StopScan() error {
	fa.mtx.Lock()
	defer fa.mtx.Unlock()

	fa.scanning = false
	return nil
}

func (fa *fakeAdapter) Connect(id string, h xport.ConnHandler) error {
	fa.mtx.Lock()
	defer fa.mtx.Unlock()

	if fa.connectErr != nil {
		return fa.connectErr
	}
	fa.conns = append(fa.conns, h)
	fa.connIds = append(fa.connIds, id)
	return nil
}

func (fa *fakeAdapter) Disconnect(id string) error {
	fa.mtx.Lock()
	defer fa.mtx.Unlock()

	fa.disconnects = append(fa.disconnects, id)
	return nil
}

func (fa *fakeAdapter) DiscoverChrs(id string, svcUuid bledefs.BleUuid) error {
	fa.mtx.Lock()
	defer fa.mtx.Unlock()

	fa.discovers = append(fa.discovers, svcUuid)
	return nil
}

func (fa *fakeAdapter) Subscribe(id string, handle uint16) error {
	fa.mtx.Lock()
	defer fa.mtx.Unlock()

	fa.subscribes = append(fa.subscribes, handle)
	return nil
}

func (fa *fakeAdapter) Write(id string, handle uint16, data []byte) error {
	fa.mtx.Lock()
	defer fa.mtx.Unlock()

	fa.writes = append(fa.writes, data)
	return nil
}

func (fa *fakeAdapter) Mtu(id string) int {
	return bledefs.BLE_ATT_MTU_DFLT
}

func (fa *fakeAdapter) powerHandler() xport.PowerHandler {
	fa.mtx.Lock()
	defer fa.mtx.Unlock()

	return fa.power
}

func (fa *fakeAdapter) scanHandler() xport.ScanHandler {
	fa.mtx.Lock()
	defer fa.mtx.Unlock()

	return fa.scan
}

func (fa *fakeAdapter) isScanning() bool {
	fa.mtx.Lock()
	defer fa.mtx.Unlock()

	return fa.scanning
}

func (fa *fakeAdapter) lastConn() xport.ConnHandler {
	fa.mtx.Lock()
	defer fa.mtx.Unlock()

	if len(fa.conns) == 0 {
		return nil
	}
	return fa.conns[len(fa.conns)-1]
}

func (fa *fakeAdapter) numConnects() int {
	fa.mtx.Lock()
	defer fa.mtx.Unlock()

	return len(fa.conns)
}

func (fa *fakeAdapter) disconnected() []string {
	fa.mtx.Lock()
	defer fa.mtx.Unlock()

	return append([]string(nil), fa.disconnects...)
}

func (fa *fakeAdapter) subscribed() []uint16 {
	fa.mtx.Lock()
	defer fa.mtx.Unlock()

	return append([]uint16(nil), fa.subscribes...)
}

// Hands out fake engines and tracks how many are attached at once.
type fakeEngineFactory struct {
	mtx     sync.Mutex
	engines []*fakeEngine
	live    int
	maxLive int
}

func (ff *fakeEngineFactory) New() Engine {
	ff.mtx.Lock()
	defer ff.mtx.Unlock()

	e := &fakeEngine{ff: ff}
	ff.engines = append(ff.engines, e)
	return e
}

func (ff *fakeEngineFactory) last() *fakeEngine {
	ff.mtx.Lock()
	defer ff.mtx.Unlock()

	if len(ff.engines) == 0 {
		return nil
	}
	return ff.engines[len(ff.engines)-1]
}

func (ff *fakeEngineFactory) numEngines() int {
	ff.mtx.Lock()
	defer ff.mtx.Unlock()

	return len(ff.engines)
}

func (ff *fakeEngineFactory) counts() (int, int) {
	ff.mtx.Lock()
	defer ff.mtx.Unlock()

	return ff.live, ff.maxLive
}

type fakeEngine struct {
	ff *fakeEngineFactory

	mtx        sync.Mutex
	t          Transport
	l          EngineListener
	attached   bool
	closed     bool
	negotiates int
	scans      int
	params     []ConfigureParams
	notifs     [][]byte

	scanErr error
}

func (e *fakeEngine) Attach(t Transport, l EngineListener) error {
	e.mtx.Lock()
	e.t = t
	e.l = l
	e.attached = true
	e.mtx.Unlock()

	e.ff.mtx.Lock()
	e.ff.live++
	if e.ff.live > e.ff.maxLive {
		e.ff.maxLive = e.ff.live
	}
	e.ff.mtx.Unlock()

	return nil
}

func (e *fakeEngine) NegotiateSecurity() error {
	e.mtx.Lock()
	defer e.mtx.Unlock()

	e.negotiates++
	return nil
}

func (e *fakeEngine) Configure(params ConfigureParams) error {
	e.mtx.Lock()
	defer e.mtx.Unlock()

	e.params = append(e.params, params)
	return nil
}

func (e *fakeEngine) RequestWifiScan() error {
	e.mtx.Lock()
	defer e.mtx.Unlock()

	e.scans++
	return e.scanErr
}

func (e *fakeEngine) HandleNotification(data []byte) {
	e.mtx.Lock()
	defer e.mtx.Unlock()

	e.notifs = append(e.notifs, data)
}

func (e *fakeEngine) Close() error {
	e.mtx.Lock()
	wasLive := e.attached && !e.closed
	e.closed = true
	e.mtx.Unlock()

	if wasLive {
		e.ff.mtx.Lock()
		e.ff.live--
		e.ff.mtx.Unlock()
	}
	return nil
}

func (e *fakeEngine) listener() EngineListener {
	e.mtx.Lock()
	defer e.mtx.Unlock()

	return e.l
}

func (e *fakeEngine) isClosed() bool {
	e.mtx.Lock()
	defer e.mtx.Unlock()

	return e.closed
}

func (e *fakeEngine) counts() (int, int) {
	e.mtx.Lock()
	defer e.mtx.Unlock()

	return e.negotiates, e.scans
}

/*****************************************************************************
 * $helpers                                                                  *
 *****************************************************************************/

const testDevId = "D1"

func testSesnCfg() SesnCfg {
	cfg := NewSesnCfg()
	cfg.ConnTimeout = 5 * time.Second
	cfg.GattTimeout = 5 * time.Second
	cfg.NegotiateTimeout = 5 * time.Second
	cfg.WifiScanTimeout = 5 * time.Second
	cfg.ConfigureTimeout = 5 * time.Second
	return cfg
}

func newTestSesn(t *testing.T, cfg SesnCfg) (
	*ProvSesn, *fakeAdapter, *fakeEngineFactory) {

	fa := &fakeAdapter{}
	ff := &fakeEngineFactory{}

	s := NewProvSesn(cfg, fa, ff.New)
	require.NoError(t, s.Start())
	t.Cleanup(func() { s.Stop() })

	return s, fa, ff
}

// Waits until every event posted so far has been processed.
func flush(t *testing.T, s *ProvSesn) {
	require.NoError(t, s.run(func() error { return nil }))
}

func waitState(t *testing.T, s *ProvSesn, state SesnState) Snapshot {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	snap, err := s.Await(ctx, func(snap Snapshot) bool {
		return snap.State == state
	})
	require.NoErrorf(t, err, "state=%s want=%s", snap.State, state)
	return snap
}

func powerOn(t *testing.T, s *ProvSesn, fa *fakeAdapter) {
	fa.powerHandler().OnPowerChanged(xport.POWER_STATE_ON)
	waitState(t, s, SESN_STATE_POWERED_ON)
}

// Drives the session from PoweredOn up to GattDiscovering and returns the
// connection's handler.
func toGattDiscovering(t *testing.T, s *ProvSesn,
	fa *fakeAdapter) xport.ConnHandler {

	require.NoError(t, s.StartScan())
	fa.scanHandler().OnDeviceDiscovered(xport.AdvReport{
		Id:   testDevId,
		Name: "BLUFI_D1",
		Rssi: -50,
	})
	flush(t, s)

	require.NoError(t, s.SelectDevice(testDevId))
	waitState(t, s, SESN_STATE_CONNECTING)
	require.False(t, fa.isScanning())

	conn := fa.lastConn()
	require.NotNil(t, conn)
	conn.OnConnected(testDevId)
	waitState(t, s, SESN_STATE_GATT_DISCOVERING)

	return conn
}

func toNegotiating(t *testing.T, s *ProvSesn, fa *fakeAdapter,
	ff *fakeEngineFactory) (xport.ConnHandler, *fakeEngine) {

	numEngines := ff.numEngines()

	conn := toGattDiscovering(t, s, fa)
	conn.OnChrsDiscovered(testDevId, blufiChrList(), nil)
	flush(t, s)
	require.Equal(t, numEngines, ff.numEngines(),
		"engine created before subscription ack")

	conn.OnSubscribed(testDevId, 44, nil)
	waitState(t, s, SESN_STATE_NEGOTIATING)
	require.Equal(t, numEngines+1, ff.numEngines())

	return conn, ff.last()
}

func toReady(t *testing.T, s *ProvSesn, fa *fakeAdapter,
	ff *fakeEngineFactory) (xport.ConnHandler, *fakeEngine) {

	conn, eng := toNegotiating(t, s, fa, ff)
	eng.listener().SecurityNegotiated(nil)
	waitState(t, s, SESN_STATE_READY)

	return conn, eng
}
