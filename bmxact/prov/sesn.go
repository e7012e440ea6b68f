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
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/blufimgr/blufimgr/bmxact/bmxutil"
	"github.com/blufimgr/blufimgr/bmxact/task"
	"github.com/blufimgr/blufimgr/bmxact/xport"
)

const (
	TIMEOUT_OP_CONNECT   = "connect"
	TIMEOUT_OP_GATT      = "gatt"
	TIMEOUT_OP_NEGOTIATE = "negotiate"
	TIMEOUT_OP_WIFI_SCAN = "wifi_scan"
	TIMEOUT_OP_CONFIGURE = "configure"
)

// A consistent view of the session, as of the most recently processed job.
type Snapshot struct {
	State       SesnState
	Devices     []DeviceRecord
	WifiResults []WifiNetwork
	LastError   error
	Target      *DeviceRecord
	Gen         uint64
}

// Writes to the write characteristic of one connection.
type sesnTransport struct {
	adapter xport.Adapter
	id      string
	handle  uint16
}

func (t *sesnTransport) Write(data []byte) error {
	return t.adapter.Write(t.id, t.handle, data)
}

func (t *sesnTransport) Mtu() int {
	return t.adapter.Mtu(t.id)
}

// Drives a single peripheral from discovery to a committed WiFi
// configuration.  Commands, adapter callbacks, engine callbacks and timer
// expirations all execute on the session's task queue; no field below the
// queue is touched from any other goroutine.
type ProvSesn struct {
	cfg       SesnCfg
	adapter   xport.Adapter
	newEngine EngineFactory
	q         *task.TaskQueue
	obs       *Observer
	bridge    *EvtBridge

	state       SesnState
	powered     bool
	devices     []DeviceRecord
	devIdx      map[string]int
	wifiResults []WifiNetwork
	lastErr     error
	target      *DeviceRecord

	// Connection-scoped.  gen identifies the current connection attempt;
	// batch identifies the current scan.
	gen    uint64
	batch  uint64
	connId string
	router *ChrRouter
	gatt   GattCtx
	engine Engine

	timer      *time.Timer
	timerToken uint64

	snapMtx sync.Mutex
	snap    Snapshot
}

func NewProvSesn(cfg SesnCfg, adapter xport.Adapter,
	newEngine EngineFactory) *ProvSesn {

	s := &ProvSesn{
		cfg:       cfg,
		adapter:   adapter,
		newEngine: newEngine,
		q:         task.NewTaskQueue("prov_sesn"),
		obs:       NewObserver(),
		devIdx:    map[string]int{},
	}
	s.bridge = NewEvtBridge(s.post)
	s.refreshSnapshot()

	return s
}

// Starts the session's task queue and begins listening for adapter power
// state changes.
func (s *ProvSesn) Start() error {
	if err := s.q.Start(); err != nil {
		return err
	}

	if err := s.adapter.Start(s.bridge); err != nil {
		s.q.Stop(err)
		return bmxutil.NewAdapterFaultError(
			fmt.Sprintf("failed to start adapter: %s", err.Error()))
	}

	return nil
}

// Releases the connection, stops the adapter and cancels every subscription.
func (s *ProvSesn) Stop() error {
	err := s.run(func() error {
		s.teardownConn()
		s.stopScanning()
		return nil
	})
	if err != nil {
		return err
	}

	if err := s.adapter.Stop(); err != nil {
		log.Debugf("Adapter stop failed: %s", err.Error())
	}

	s.q.Stop(fmt.Errorf("provisioning session stopped"))
	s.obs.Close()

	return nil
}

// Registers a callback for every state transition and domain event.
func (s *ProvSesn) Subscribe(fn NotifyFn) *Subscription {
	return s.obs.Subscribe(fn)
}

func (s *ProvSesn) Listen(depth int) (*Subscription, <-chan Notification) {
	return s.obs.Listen(depth)
}

func (s *ProvSesn) Snapshot() Snapshot {
	s.snapMtx.Lock()
	defer s.snapMtx.Unlock()

	return s.snap
}

func (s *ProvSesn) State() SesnState {
	return s.Snapshot().State
}

// Blocks until pred accepts the session snapshot or the context is done.
func (s *ProvSesn) Await(ctx context.Context,
	pred func(snap Snapshot) bool) (Snapshot, error) {

	sub, ch := s.obs.Listen(16)
	defer sub.Cancel()

	for {
		snap := s.Snapshot()
		if pred(snap) {
			return snap, nil
		}

		select {
		case <-ch:
		case <-ctx.Done():
			return snap, ctx.Err()
		}
	}
}

func (s *ProvSesn) refreshSnapshot() {
	snap := Snapshot{
		State:     s.state,
		LastError: s.lastErr,
		Gen:       s.gen,
	}
	if len(s.devices) > 0 {
		snap.Devices = append([]DeviceRecord(nil), s.devices...)
	}
	if len(s.wifiResults) > 0 {
		snap.WifiResults = append([]WifiNetwork(nil), s.wifiResults...)
	}
	if s.target != nil {
		t := *s.target
		snap.Target = &t
	}

	s.snapMtx.Lock()
	s.snap = snap
	s.snapMtx.Unlock()
}

// Executes a command on the task queue and returns its validation result.
func (s *ProvSesn) run(fn func() error) error {
	return s.q.Run(func() error {
		err := fn()
		s.refreshSnapshot()
		return err
	})
}

func (s *ProvSesn) post(evt Evt) {
	err := s.q.Post(func() {
		s.handleEvt(evt)
		s.refreshSnapshot()
	})
	if err != nil {
		log.Debugf("Dropping %T; session not running", evt)
	}
}

func (s *ProvSesn) setState(to SesnState) {
	from := s.state
	if from == to {
		return
	}

	s.state = to
	log.Infof("Provisioning session: %s --> %s", from, to)

	s.publish(Notification{
		Type:      NOTIF_STATE_CHANGED,
		State:     to,
		PrevState: from,
	})
}

// Subscribers that read the snapshot from a callback must see the change
// being announced.
func (s *ProvSesn) publish(n Notification) {
	s.refreshSnapshot()
	s.obs.Publish(n)
}

func (s *ProvSesn) armTimer(op string, dur time.Duration) {
	s.cancelTimer()
	if dur <= 0 {
		return
	}

	evt := &TimeoutEvt{
		Gen:   s.gen,
		Op:    op,
		Token: s.timerToken,
	}
	s.timer = time.AfterFunc(dur, func() { s.post(evt) })
}

// Stops the pending timer.  A timeout that already fired but is still queued
// is rendered stale by the token bump.
func (s *ProvSesn) cancelTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.timerToken++
}

// Releases everything owned by the current connection attempt and starts a
// new generation, so that late callbacks from the old one are discarded.
func (s *ProvSesn) teardownConn() {
	s.cancelTimer()

	if s.engine != nil {
		if err := s.engine.Close(); err != nil {
			log.Debugf("Failed to close protocol engine: %s", err.Error())
		}
		s.engine = nil
	}

	s.router = nil
	s.gatt = GattCtx{}

	if s.connId != "" {
		if err := s.adapter.Disconnect(s.connId); err != nil {
			log.Debugf("Failed to disconnect %s: %s", s.connId, err.Error())
		}
		s.connId = ""
	}

	s.gen++
}

func (s *ProvSesn) stopScanning() {
	if s.state == SESN_STATE_SCANNING {
		if err := s.adapter.StopScan(); err != nil {
			log.Debugf("Failed to stop scan: %s", err.Error())
		}
	}
	s.batch++
}

func (s *ProvSesn) fail(err error) {
	log.Errorf("Provisioning session failed: %s", err.Error())

	s.teardownConn()
	s.stopScanning()
	s.lastErr = err
	s.setState(SESN_STATE_ERROR)

	s.publish(Notification{
		Type: NOTIF_ERROR,
		Err:  err,
	})
}

func (s *ProvSesn) busyOrInvalid(cmd string) error {
	if s.state.Connected() {
		return bmxutil.FmtBusyError(
			"cannot %s: operation in progress (state=%s)", cmd, s.state)
	}

	return bmxutil.FmtInvalidStateError(
		"cannot %s in state %s", cmd, s.state)
}

/*****************************************************************************
 * $commands                                                                 *
 *****************************************************************************/

func (s *ProvSesn) StartScan() error {
	return s.run(func() error {
		switch s.state {
		case SESN_STATE_POWERED_ON:
		case SESN_STATE_SCANNING:
			return bmxutil.NewBusyError("scan already in progress")
		default:
			return s.busyOrInvalid("start scan")
		}

		s.batch++
		s.devices = nil
		s.devIdx = map[string]int{}
		s.setState(SESN_STATE_SCANNING)

		if err := s.adapter.Scan(s.bridge.ScanHandler(s.batch)); err != nil {
			s.fail(bmxutil.NewAdapterFaultError(
				fmt.Sprintf("scan failed: %s", err.Error())))
		}

		return nil
	})
}

func (s *ProvSesn) StopScan() error {
	return s.run(func() error {
		if s.state != SESN_STATE_SCANNING {
			return bmxutil.FmtInvalidStateError(
				"cannot stop scan in state %s", s.state)
		}

		s.stopScanning()
		s.setState(SESN_STATE_POWERED_ON)
		return nil
	})
}

// Connects to a device from the current (or most recent) scan batch.
func (s *ProvSesn) SelectDevice(id string) error {
	return s.run(func() error {
		switch s.state {
		case SESN_STATE_SCANNING, SESN_STATE_POWERED_ON:
		default:
			return s.busyOrInvalid("select device")
		}

		idx, ok := s.devIdx[id]
		if !ok {
			return bmxutil.NewUnknownDeviceError(id)
		}

		s.connect(s.devices[idx])
		return nil
	})
}

func (s *ProvSesn) ConfigureWifi(ssid string, password string) error {
	return s.run(func() error {
		if s.state != SESN_STATE_READY {
			return s.busyOrInvalid("configure")
		}

		params := ConfigureParams{
			OpMode:      s.cfg.OpMode,
			StaSsid:     ssid,
			StaPassword: password,
		}
		if err := params.Validate(); err != nil {
			return err
		}

		s.setState(SESN_STATE_CONFIGURING)
		s.armTimer(TIMEOUT_OP_CONFIGURE, s.cfg.ConfigureTimeout)

		if err := s.engine.Configure(params); err != nil {
			s.fail(bmxutil.NewConfigureError(
				fmt.Sprintf("configure failed: %s", err.Error())))
		}

		return nil
	})
}

// Asks the peripheral to scan for WiFi networks.  The results replace those
// of any earlier request.
func (s *ProvSesn) ScanRemoteWifi() error {
	return s.run(func() error {
		if s.state != SESN_STATE_READY {
			return s.busyOrInvalid("scan remote wifi")
		}

		s.wifiResults = nil
		s.setState(SESN_STATE_WIFI_SCANNING)
		s.armTimer(TIMEOUT_OP_WIFI_SCAN, s.cfg.WifiScanTimeout)

		if err := s.engine.RequestWifiScan(); err != nil {
			log.Warnf("WiFi scan request failed: %s", err.Error())
			s.finishWifiScan(nil)
		}

		return nil
	})
}

// Tears down any connection or scan and returns to PoweredOn (PoweredOff if
// the adapter is not powered).  Valid in every state.
func (s *ProvSesn) Reset() error {
	return s.run(func() error {
		s.teardownConn()
		s.stopScanning()

		s.target = nil
		s.lastErr = nil
		s.wifiResults = nil

		if s.powered {
			s.setState(SESN_STATE_POWERED_ON)
		} else {
			s.setState(SESN_STATE_POWERED_OFF)
		}

		return nil
	})
}

/*****************************************************************************
 * $transitions                                                              *
 *****************************************************************************/

func (s *ProvSesn) connect(dev DeviceRecord) {
	s.stopScanning()
	s.teardownConn()

	s.target = &dev
	s.connId = dev.Id
	s.setState(SESN_STATE_CONNECTING)
	s.armTimer(TIMEOUT_OP_CONNECT, s.cfg.ConnTimeout)

	log.Debugf("Connecting to %s (gen=%d)", dev.String(), s.gen)
	if err := s.adapter.Connect(dev.Id, s.bridge.ConnHandler(s.gen)); err != nil {
		s.fail(bmxutil.FmtConnectError("connect failed: %s", err.Error()))
	}
}

func (s *ProvSesn) onRouterResult(g *GattCtx, err error) {
	if err != nil {
		s.fail(err)
		return
	}
	if g == nil {
		return
	}

	s.gatt = *g
	s.cancelTimer()

	eng := s.newEngine()
	tr := &sesnTransport{
		adapter: s.adapter,
		id:      s.connId,
		handle:  g.WriteChr.Handle,
	}
	eb := &engineBridge{
		emit: s.post,
		gen:  s.gen,
	}
	if err := eng.Attach(tr, eb); err != nil {
		eng.Close()
		s.fail(bmxutil.NewNegotiateError(
			fmt.Sprintf("failed to attach protocol engine: %s", err.Error())))
		return
	}
	s.engine = eng

	s.setState(SESN_STATE_NEGOTIATING)
	s.armTimer(TIMEOUT_OP_NEGOTIATE, s.cfg.NegotiateTimeout)

	if err := eng.NegotiateSecurity(); err != nil {
		s.fail(bmxutil.NewNegotiateError(
			fmt.Sprintf("negotiation failed: %s", err.Error())))
	}
}

func (s *ProvSesn) finishWifiScan(nets []WifiNetwork) {
	s.cancelTimer()

	s.wifiResults = SortWifiNetworks(nets)
	s.publish(Notification{
		Type:        NOTIF_WIFI_SCAN_RESULT,
		WifiResults: append([]WifiNetwork(nil), s.wifiResults...),
	})

	s.setState(SESN_STATE_READY)
}

/*****************************************************************************
 * $events                                                                   *
 *****************************************************************************/

func (s *ProvSesn) handleEvt(evt Evt) {
	if gen, ok := evtGen(evt); ok && gen != s.gen {
		log.Debugf("Discarding stale %T (gen=%d cur=%d)", evt, gen, s.gen)
		return
	}

	switch e := evt.(type) {
	case *AdapterPoweredEvt:
		s.powered = true
		if s.state == SESN_STATE_POWERED_OFF {
			s.setState(SESN_STATE_POWERED_ON)
		}

	case *AdapterUnpoweredEvt:
		s.onAdapterDown(nil)

	case *AdapterFaultEvt:
		s.onAdapterDown(bmxutil.NewAdapterFaultError(e.Reason))

	case *DeviceDiscoveredEvt:
		s.onDeviceDiscovered(e)

	case *RssiUpdatedEvt:
		if e.Batch != s.batch || s.state != SESN_STATE_SCANNING {
			return
		}
		if idx, ok := s.devIdx[e.Id]; ok {
			s.devices[idx].Rssi = e.Rssi
			s.publish(Notification{
				Type:   NOTIF_DEVICE_UPDATED,
				Device: s.devices[idx],
			})
		}

	case *ScanFailedEvt:
		if e.Batch != s.batch || s.state != SESN_STATE_SCANNING {
			return
		}
		s.fail(bmxutil.NewAdapterFaultError(
			fmt.Sprintf("scan failed: %s", errText(e.Err))))

	case *ConnectedEvt:
		if s.state != SESN_STATE_CONNECTING {
			return
		}

		s.setState(SESN_STATE_GATT_DISCOVERING)
		s.armTimer(TIMEOUT_OP_GATT, s.cfg.GattTimeout)

		connId := s.connId
		s.router = NewChrRouter(s.cfg.Chrs, func(handle uint16) error {
			return s.adapter.Subscribe(connId, handle)
		})
		err := s.adapter.DiscoverChrs(connId, s.cfg.Chrs.WriteChr.SvcUuid)
		if err != nil {
			s.fail(bmxutil.FmtGattPrepError(
				"characteristic discovery failed: %s", err.Error()))
		}

	case *ConnectFailedEvt:
		if s.state != SESN_STATE_CONNECTING {
			return
		}
		s.connId = ""
		s.fail(bmxutil.FmtConnectError("connect failed: %s",
			errText(e.Err)))

	case *DisconnectedEvt:
		s.onDisconnected(e)

	case *ChrsDiscoveredEvt:
		if s.state == SESN_STATE_GATT_DISCOVERING && s.router != nil {
			s.onRouterResult(s.router.OnChrsDiscovered(e.Chrs, e.Err))
		}

	case *SubscribedEvt:
		if s.state == SESN_STATE_GATT_DISCOVERING && s.router != nil {
			s.onRouterResult(s.router.OnSubscribed(e.Handle, e.Err))
		}

	case *NotifyEvt:
		if s.engine == nil || s.gatt.NotifyChr == nil ||
			e.Handle != s.gatt.NotifyChr.Handle {

			log.Debugf("Ignoring notification on handle %d", e.Handle)
			return
		}
		s.engine.HandleNotification(e.Data)

	case *SecurityNegotiatedEvt:
		if s.state != SESN_STATE_NEGOTIATING {
			return
		}
		s.cancelTimer()
		if e.Err != nil {
			s.fail(bmxutil.NewNegotiateError(
				fmt.Sprintf("negotiation failed: %s", e.Err.Error())))
			return
		}
		s.setState(SESN_STATE_READY)

	case *ConfigureResultEvt:
		if s.state != SESN_STATE_CONFIGURING {
			return
		}
		s.cancelTimer()
		if e.Err != nil {
			s.fail(bmxutil.NewConfigureError(
				fmt.Sprintf("configure failed: %s", e.Err.Error())))
			return
		}
		s.setState(SESN_STATE_CONFIGURED)

	case *WifiScanResultEvt:
		if s.state != SESN_STATE_WIFI_SCANNING {
			return
		}
		if e.Err != nil {
			log.Warnf("Remote WiFi scan failed: %s", e.Err.Error())
			s.finishWifiScan(nil)
		} else {
			s.finishWifiScan(e.Nets)
		}

	case *ProtocolErrorEvt:
		if s.engine == nil {
			return
		}
		if s.state == SESN_STATE_CONFIGURED {
			log.Warnf("Device reported error %d after configuration", e.Code)
			return
		}
		s.fail(bmxutil.FmtProtocolError(e.Code,
			"device reported error %d", e.Code))

	case *TimeoutEvt:
		s.onTimeout(e)

	default:
		log.Errorf("Unhandled session event: %T", evt)
	}
}

func (s *ProvSesn) onAdapterDown(fault error) {
	s.powered = false

	switch {
	case s.state == SESN_STATE_POWERED_ON || s.state == SESN_STATE_SCANNING:
		if fault != nil {
			s.fail(fault)
		} else {
			s.stopScanning()
			s.setState(SESN_STATE_POWERED_OFF)
		}

	case s.state.Connected():
		if fault == nil {
			fault = bmxutil.NewAdapterFaultError("adapter powered off")
		}
		s.fail(fault)

	case s.state == SESN_STATE_POWERED_OFF:
		if fault != nil {
			s.fail(fault)
		}

	case s.state == SESN_STATE_CONFIGURED:
		s.teardownConn()
	}
}

func (s *ProvSesn) onDeviceDiscovered(e *DeviceDiscoveredEvt) {
	if e.Batch != s.batch || s.state != SESN_STATE_SCANNING {
		return
	}

	if idx, ok := s.devIdx[e.Dev.Id]; ok {
		s.devices[idx].Rssi = e.Dev.Rssi
		return
	}

	s.devIdx[e.Dev.Id] = len(s.devices)
	s.devices = append(s.devices, e.Dev)
	log.Debugf("Discovered %s", e.Dev.String())

	s.publish(Notification{
		Type:   NOTIF_DEVICE_FOUND,
		Device: e.Dev,
	})

	if s.cfg.AutoSelect && s.cfg.Matches(e.Dev) {
		log.Infof("Auto-selecting %s", e.Dev.String())
		s.connect(e.Dev)
	}
}

func (s *ProvSesn) onDisconnected(e *DisconnectedEvt) {
	switch {
	case s.state.Connected():
		s.connId = ""
		s.fail(bmxutil.NewDisconnectError("device disconnected", e.Err))

	case s.state == SESN_STATE_CONFIGURED:
		log.Infof("Device %s disconnected after configuration", e.Id)
		s.connId = ""
		s.teardownConn()
	}
}

func (s *ProvSesn) onTimeout(e *TimeoutEvt) {
	if e.Token != s.timerToken {
		return
	}
	s.timer = nil

	if e.Op == TIMEOUT_OP_WIFI_SCAN {
		if s.state == SESN_STATE_WIFI_SCANNING {
			log.Warnf("Remote WiFi scan timed out")
			s.finishWifiScan(nil)
		}
		return
	}

	s.fail(bmxutil.NewTimeoutError(e.Op,
		fmt.Sprintf("%s timed out", e.Op)))
}

func errText(err error) string {
	if err == nil {
		return "unknown reason"
	}
	return err.Error()
}
