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

package bll

import (
	"context"
	"fmt"
	"sync"

	"github.com/JuulLabs-OSS/ble"
	"github.com/JuulLabs-OSS/ble/examples/lib/dev"
	log "github.com/sirupsen/logrus"

	"github.com/blufimgr/blufimgr/blufimgr/bmutil"
	"github.com/blufimgr/blufimgr/bmxact/bledefs"
	"github.com/blufimgr/blufimgr/bmxact/xport"
)

// Size of the ATT write command header.
const ATT_WRITE_HDR_LEN = 3

const DFLT_PREFERRED_MTU = 512

type AdapterCfg struct {
	CtlrName     string
	HciIdx       int
	PreferredMtu int

	// Use acknowledged write requests instead of write commands.
	WriteRsp bool
}

func NewAdapterCfg() AdapterCfg {
	return AdapterCfg{
		CtlrName:     "default",
		PreferredMtu: DFLT_PREFERRED_MTU,
	}
}

type bllConn struct {
	id     string
	h      xport.ConnHandler
	cancel context.CancelFunc

	// All below fields are protected by the adapter mutex.
	cln     ble.Client
	attMtu  int
	chrs    map[uint16]*ble.Characteristic
	closing bool
}

// An adapter that uses the host machine's native BLE support.  Blocking
// library calls run on their own goroutines; their results are reported to
// the handler supplied with the request.
type BllAdapter struct {
	cfg AdapterCfg

	mtx        sync.Mutex
	started    bool
	scanCancel context.CancelFunc
	scanSeq    uint64
	conns      map[string]*bllConn
}

func NewBllAdapter(cfg AdapterCfg) *BllAdapter {
	return &BllAdapter{
		cfg:   cfg,
		conns: map[string]*bllConn{},
	}
}

func (a *BllAdapter) Start(h xport.PowerHandler) error {
	a.mtx.Lock()
	if a.started {
		a.mtx.Unlock()
		return fmt.Errorf("BLE adapter already started")
	}
	a.started = true
	a.mtx.Unlock()

	go func() {
		d, err := dev.NewDevice(a.cfg.CtlrName, ble.OptDeviceID(a.cfg.HciIdx))
		if err != nil {
			log.Errorf("Failed to open BLE controller \"%s\": %s",
				a.cfg.CtlrName, err.Error())
			h.OnPowerChanged(xport.POWER_STATE_UNSUPPORTED)
			return
		}

		ble.SetDefaultDevice(d)
		h.OnPowerChanged(xport.POWER_STATE_ON)
	}()

	return nil
}

func (a *BllAdapter) Stop() error {
	a.mtx.Lock()
	if !a.started {
		a.mtx.Unlock()
		return nil
	}
	a.started = false

	if a.scanCancel != nil {
		a.scanCancel()
		a.scanCancel = nil
	}

	var clns []ble.Client
	for _, c := range a.conns {
		c.closing = true
		c.cancel()
		if c.cln != nil {
			clns = append(clns, c.cln)
		}
	}
	a.mtx.Unlock()

	for _, cln := range clns {
		cln.CancelConnection()
	}

	return ble.Stop()
}

/*****************************************************************************
 * $scan                                                                     *
 *****************************************************************************/

func (a *BllAdapter) Scan(h xport.ScanHandler) error {
	a.mtx.Lock()
	defer a.mtx.Unlock()

	if !a.started {
		return fmt.Errorf("BLE adapter not started")
	}
	if a.scanCancel != nil {
		return fmt.Errorf("scan already in progress")
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.scanCancel = cancel
	a.scanSeq++
	seq := a.scanSeq

	onAdv := func(adv ble.Advertisement) {
		h.OnDeviceDiscovered(xport.AdvReport{
			Id:   adv.Addr().String(),
			Name: adv.LocalName(),
			Rssi: adv.RSSI(),
		})
	}

	go func() {
		// Duplicates are reported so that signal strength stays current.
		err := ble.Scan(ctx, true, onAdv, nil)
		stopped := ctx.Err() != nil

		a.mtx.Lock()
		if a.scanSeq == seq && a.scanCancel != nil {
			a.scanCancel()
			a.scanCancel = nil
		}
		a.mtx.Unlock()

		if err != nil && !stopped &&
			!bmutil.ErrorCausedBy(err, context.Canceled) {

			log.Errorf("BLE scan failed: %s", err.Error())
			h.OnScanFailed(err)
		}
	}()

	return nil
}

func (a *BllAdapter) StopScan() error {
	a.mtx.Lock()
	defer a.mtx.Unlock()

	if a.scanCancel != nil {
		a.scanCancel()
		a.scanCancel = nil
	}

	return nil
}

/*****************************************************************************
 * $connection                                                               *
 *****************************************************************************/

func (a *BllAdapter) Connect(id string, h xport.ConnHandler) error {
	a.mtx.Lock()
	defer a.mtx.Unlock()

	if !a.started {
		return fmt.Errorf("BLE adapter not started")
	}
	if a.conns[id] != nil {
		return fmt.Errorf("connection to %s already in progress", id)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &bllConn{
		id:     id,
		h:      h,
		cancel: cancel,
		chrs:   map[uint16]*ble.Characteristic{},
	}
	a.conns[id] = c

	go a.dial(ctx, c)

	return nil
}

func (a *BllAdapter) dial(ctx context.Context, c *bllConn) {
	log.Debugf("Connecting to peer %s", c.id)

	cln, err := ble.Dial(ctx, ble.NewAddr(c.id))
	if err == nil {
		var mtu int
		mtu, err = exchangeMtu(cln, a.cfg.PreferredMtu)
		if err != nil {
			cln.CancelConnection()
		} else {
			a.mtx.Lock()
			if c.closing {
				err = fmt.Errorf("connection cancelled")
				cln.CancelConnection()
			} else {
				c.cln = cln
				c.attMtu = mtu
			}
			a.mtx.Unlock()
		}
	}

	if err != nil {
		a.removeConn(c)
		c.h.OnConnectFailed(c.id, err)
		return
	}

	c.h.OnConnected(c.id)

	go func() {
		<-cln.Disconnected()

		a.mtx.Lock()
		requested := c.closing
		a.mtx.Unlock()
		a.removeConn(c)

		var reason error
		if !requested {
			reason = fmt.Errorf("link lost")
		}
		c.h.OnDisconnected(c.id, reason)
	}()
}

func (a *BllAdapter) removeConn(c *bllConn) {
	a.mtx.Lock()
	defer a.mtx.Unlock()

	if a.conns[c.id] == c {
		delete(a.conns, c.id)
	}
}

func (a *BllAdapter) Disconnect(id string) error {
	a.mtx.Lock()
	c := a.conns[id]
	if c == nil {
		a.mtx.Unlock()
		return nil
	}

	// The entry goes now so that the peer can be reconnected while the old
	// link is still tearing down.  A late removeConn from the old watcher
	// only deletes its own entry.
	c.closing = true
	c.cancel()
	cln := c.cln
	delete(a.conns, id)
	a.mtx.Unlock()

	if cln != nil {
		go cln.CancelConnection()
	}

	return nil
}

func (a *BllAdapter) getConn(id string) (*bllConn, ble.Client, error) {
	a.mtx.Lock()
	defer a.mtx.Unlock()

	c := a.conns[id]
	if c == nil || c.cln == nil {
		return nil, nil, fmt.Errorf("not connected to %s", id)
	}

	return c, c.cln, nil
}

/*****************************************************************************
 * $gatt                                                                     *
 *****************************************************************************/

func (a *BllAdapter) DiscoverChrs(id string, svcUuid bledefs.BleUuid) error {
	c, cln, err := a.getConn(id)
	if err != nil {
		return err
	}

	go func() {
		chrs, err := a.discover(c, cln, svcUuid)
		c.h.OnChrsDiscovered(id, chrs, err)
	}()

	return nil
}

// Characteristic handles are assigned by the adapter rather than taken from
// the ATT layer; macOS does not expose the latter.
func (a *BllAdapter) discover(c *bllConn, cln ble.Client,
	svcUuid bledefs.BleUuid) ([]xport.Chr, error) {

	log.Debugf("Discovering service %s", svcUuid.String())

	svcs, err := cln.DiscoverServices([]ble.UUID{BllUuidFromUuid(svcUuid)})
	if err != nil {
		return nil, err
	}

	var svc *ble.Service
	for _, s := range svcs {
		uuid, err := UuidFromBllUuid(s.UUID)
		if err == nil && bledefs.CompareUuids(uuid, svcUuid) == 0 {
			svc = s
			break
		}
	}
	if svc == nil {
		return nil, fmt.Errorf("peer lacks service %s", svcUuid.String())
	}

	bllChrs, err := cln.DiscoverCharacteristics(nil, svc)
	if err != nil {
		return nil, err
	}

	var chrs []xport.Chr
	for _, bc := range bllChrs {
		uuid, err := UuidFromBllUuid(bc.UUID)
		if err != nil {
			log.Debugf("Ignoring characteristic: %s", err.Error())
			continue
		}

		// Descriptors are needed to locate the CCCD when subscribing.
		if _, err := cln.DiscoverDescriptors(nil, bc); err != nil {
			return nil, err
		}

		a.mtx.Lock()
		handle := uint16(len(c.chrs) + 1)
		c.chrs[handle] = bc
		a.mtx.Unlock()

		chrs = append(chrs, xport.Chr{Uuid: uuid, Handle: handle})
	}

	return chrs, nil
}

func (a *BllAdapter) lookupChr(id string,
	handle uint16) (*bllConn, ble.Client, *ble.Characteristic, error) {

	c, cln, err := a.getConn(id)
	if err != nil {
		return nil, nil, nil, err
	}

	a.mtx.Lock()
	chr := c.chrs[handle]
	a.mtx.Unlock()

	if chr == nil {
		return nil, nil, nil, fmt.Errorf("unknown characteristic handle: %d",
			handle)
	}

	return c, cln, chr, nil
}

func (a *BllAdapter) Subscribe(id string, handle uint16) error {
	c, cln, chr, err := a.lookupChr(id, handle)
	if err != nil {
		return err
	}

	onNotify := func(data []byte) {
		c.h.OnNotify(id, handle, data)
	}

	go func() {
		log.Debugf("Subscribing to characteristic %d", handle)
		err := cln.Subscribe(chr, false, onNotify)
		c.h.OnSubscribed(id, handle, err)
	}()

	return nil
}

func (a *BllAdapter) Write(id string, handle uint16, data []byte) error {
	_, cln, chr, err := a.lookupChr(id, handle)
	if err != nil {
		return err
	}

	return cln.WriteCharacteristic(chr, data, !a.cfg.WriteRsp)
}

func (a *BllAdapter) Mtu(id string) int {
	a.mtx.Lock()
	defer a.mtx.Unlock()

	mtu := bledefs.BLE_ATT_MTU_DFLT
	if c := a.conns[id]; c != nil && c.attMtu > 0 {
		mtu = c.attMtu
	}

	return mtu - ATT_WRITE_HDR_LEN
}
