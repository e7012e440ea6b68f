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

package blufi

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blufimgr/blufimgr/bmxact/bmxutil"
	"github.com/blufimgr/blufimgr/bmxact/prov"
)

// A BluFi peripheral that answers the client's writes with notifications.
type fakeDevice struct {
	t      *testing.T
	client *Client
	mtu    int

	mtx       sync.Mutex
	sendSeq   uint8
	recvSeq   uint8
	rx        reassembler
	ciph      *frameCipher
	secure    bool
	secMode   uint8
	opMode    uint8
	ssid      string
	password  string
	connected bool
	networks  []prov.WifiNetwork
	writes    int

	// Overrides the response to CTRL_GET_WIFI_LIST.
	scanErrCode int
	writeErr    error
}

func (d *fakeDevice) Mtu() int {
	return d.mtu
}

func (d *fakeDevice) Write(b []byte) error {
	d.mtx.Lock()
	defer d.mtx.Unlock()

	d.writes++
	if len(b) > d.mtu {
		d.t.Errorf("write exceeds mtu: %d > %d", len(b), d.mtu)
	}
	if d.writeErr != nil {
		return d.writeErr
	}

	f, _, err := decodeFrame(b, d.ciph)
	if err != nil {
		d.t.Errorf("device failed to decode frame: %s", err.Error())
		return nil
	}
	if f.Seq != d.recvSeq {
		d.t.Errorf("device sequence mismatch: have=%d want=%d",
			f.Seq, d.recvSeq)
	}
	d.recvSeq = f.Seq + 1

	msg, err := d.rx.add(f)
	require.NoError(d.t, err)
	if msg == nil {
		return nil
	}

	d.handle(f.PktType, f.SubType, msg)
	return nil
}

func (d *fakeDevice) notify(pktType uint8, subType uint8, data []byte) {
	var fc uint8 = FC_DIR_IN
	if pktType == PKT_TYPE_DATA && d.secure {
		fc |= FC_ENCRYPTED | FC_CHECKSUM
	}

	for _, f := range fragment(pktType, subType, fc, data, d.mtu) {
		f.Seq = d.sendSeq
		d.sendSeq++

		b, err := encodeFrame(f, d.ciph)
		require.NoError(d.t, err)
		d.client.HandleNotification(b)
	}
}

func (d *fakeDevice) handle(pktType uint8, subType uint8, msg []byte) {
	if pktType == PKT_TYPE_CTRL {
		switch subType {
		case CTRL_SET_SEC_MODE:
			d.secMode = msg[0]
			d.secure = true
		case CTRL_SET_OP_MODE:
			d.opMode = msg[0]
		case CTRL_CONNECT_WIFI:
			d.connected = true
		case CTRL_GET_WIFI_LIST:
			if d.scanErrCode != 0 {
				d.notify(PKT_TYPE_DATA, DATA_ERROR, []byte{uint8(d.scanErrCode)})
				return
			}
			var list []byte
			for _, n := range d.networks {
				list = append(list, uint8(len(n.Ssid)+1), uint8(n.Rssi))
				list = append(list, n.Ssid...)
			}
			d.notify(PKT_TYPE_DATA, DATA_WIFI_LIST, list)
		}
		return
	}

	switch subType {
	case DATA_NEG:
		d.handleNeg(msg)
	case DATA_STA_SSID:
		d.ssid = string(msg)
	case DATA_STA_PASSWORD:
		d.password = string(msg)
	}
}

func (d *fakeDevice) handleNeg(msg []byte) {
	switch msg[0] {
	case NEG_SET_SEC_TOTAL_LEN:
		require.Len(d.t, msg, 3)

	case NEG_SET_SEC_ALL_DATA:
		var fields [][]byte
		b := msg[1:]
		for len(b) > 0 {
			n := int(binary.BigEndian.Uint16(b))
			fields = append(fields, b[2:2+n])
			b = b[2+n:]
		}
		require.Len(d.t, fields, 3)

		p := new(big.Int).SetBytes(fields[0])
		g := new(big.Int).SetBytes(fields[1])
		require.Equal(d.t, 0, p.Cmp(dhPrime))
		require.Equal(d.t, int64(2), g.Int64())

		priv, err := rand.Int(rand.Reader, p)
		require.NoError(d.t, err)

		pub := new(big.Int).Exp(g, priv, p)
		peer := new(big.Int).SetBytes(fields[2])
		secret := new(big.Int).Exp(peer, priv, p)

		d.ciph, err = newFrameCipher(secret.Bytes())
		require.NoError(d.t, err)

		d.notify(PKT_TYPE_DATA, DATA_NEG, pub.Bytes())
	}
}

type listenerEvt struct {
	kind string
	err  error
	nets []prov.WifiNetwork
	code int
}

type chanListener struct {
	ch chan listenerEvt
}

func newChanListener() *chanListener {
	return &chanListener{ch: make(chan listenerEvt, 16)}
}

func (l *chanListener) SecurityNegotiated(err error) {
	l.ch <- listenerEvt{kind: "negotiated", err: err}
}

func (l *chanListener) ConfigureResult(err error) {
	l.ch <- listenerEvt{kind: "configured", err: err}
}

func (l *chanListener) WifiScanResult(nets []prov.WifiNetwork, err error) {
	l.ch <- listenerEvt{kind: "wifi_scan", nets: nets, err: err}
}

func (l *chanListener) ProtocolError(code int) {
	l.ch <- listenerEvt{kind: "protocol_error", code: code}
}

func (l *chanListener) next(t *testing.T) listenerEvt {
	select {
	case evt := <-l.ch:
		return evt
	case <-time.After(2 * time.Second):
		t.Fatal("no engine callback")
		return listenerEvt{}
	}
}

func newTestClient(t *testing.T, mtu int) (*Client, *fakeDevice, *chanListener) {
	c := NewClient(nil)
	d := &fakeDevice{t: t, client: c, mtu: mtu}
	l := newChanListener()

	require.NoError(t, c.Attach(d, l))
	t.Cleanup(func() { c.Close() })

	return c, d, l
}

func negotiate(t *testing.T, c *Client, l *chanListener) {
	require.NoError(t, c.NegotiateSecurity())
	evt := l.next(t)
	require.Equal(t, "negotiated", evt.kind)
	require.NoError(t, evt.err)
}

func TestClientNegotiateAndConfigure(t *testing.T) {
	c, d, l := newTestClient(t, 20)
	negotiate(t, c, l)

	d.mtx.Lock()
	assert.Equal(t, SEC_MODE_CHECKSUM|SEC_MODE_ENCRYPT, d.secMode)
	d.mtx.Unlock()

	require.NoError(t, c.Configure(prov.ConfigureParams{
		OpMode:      prov.OP_MODE_STA,
		StaSsid:     "a-rather-long-network-name",
		StaPassword: "correct horse battery staple",
	}))

	evt := l.next(t)
	require.Equal(t, "configured", evt.kind)
	require.NoError(t, evt.err)

	d.mtx.Lock()
	defer d.mtx.Unlock()
	assert.Equal(t, uint8(prov.OP_MODE_STA), d.opMode)
	assert.Equal(t, "a-rather-long-network-name", d.ssid)
	assert.Equal(t, "correct horse battery staple", d.password)
	assert.True(t, d.connected)
}

func TestClientConfigureRequiresSecurity(t *testing.T) {
	c, _, l := newTestClient(t, 20)

	require.NoError(t, c.Configure(prov.ConfigureParams{
		OpMode:  prov.OP_MODE_STA,
		StaSsid: "home",
	}))

	evt := l.next(t)
	require.Equal(t, "configured", evt.kind)
	assert.Error(t, evt.err)
}

func TestClientConfigureInvalidParams(t *testing.T) {
	c, _, _ := newTestClient(t, 20)

	assert.Error(t, c.Configure(prov.ConfigureParams{
		OpMode: prov.OP_MODE_STA,
	}))
}

func TestClientWifiScan(t *testing.T) {
	c, d, l := newTestClient(t, 20)
	negotiate(t, c, l)

	d.mtx.Lock()
	d.networks = []prov.WifiNetwork{
		{Ssid: "home", Rssi: -80},
		{Ssid: "neighbour-with-a-long-name", Rssi: -40},
		{Ssid: "", Rssi: -90},
	}
	d.mtx.Unlock()

	require.NoError(t, c.RequestWifiScan())

	evt := l.next(t)
	require.Equal(t, "wifi_scan", evt.kind)
	require.NoError(t, evt.err)
	assert.Equal(t, []prov.WifiNetwork{
		{Ssid: "home", Rssi: -80},
		{Ssid: "neighbour-with-a-long-name", Rssi: -40},
		{Ssid: "", Rssi: -90},
	}, evt.nets)
}

func TestClientWifiScanDeviceError(t *testing.T) {
	c, d, l := newTestClient(t, 20)
	negotiate(t, c, l)

	d.mtx.Lock()
	d.scanErrCode = ERR_WIFI_SCAN
	d.mtx.Unlock()

	require.NoError(t, c.RequestWifiScan())

	evt := l.next(t)
	require.Equal(t, "wifi_scan", evt.kind)
	assert.Error(t, evt.err)
	assert.Empty(t, evt.nets)
}

func TestClientWriteFailure(t *testing.T) {
	c, d, l := newTestClient(t, 20)

	d.mtx.Lock()
	d.writeErr = fmt.Errorf("link lost")
	d.mtx.Unlock()

	require.NoError(t, c.NegotiateSecurity())
	evt := l.next(t)
	require.Equal(t, "negotiated", evt.kind)
	require.Error(t, evt.err)
	assert.True(t, bmxutil.IsXport(evt.err))
}

func TestClientUnsolicitedDeviceError(t *testing.T) {
	c, d, l := newTestClient(t, 20)
	negotiate(t, c, l)

	d.mtx.Lock()
	d.notify(PKT_TYPE_DATA, DATA_ERROR, []byte{ERR_INVALID_PARAM})
	d.mtx.Unlock()

	evt := l.next(t)
	require.Equal(t, "protocol_error", evt.kind)
	assert.Equal(t, ERR_INVALID_PARAM, evt.code)
}

func TestClientSequenceMismatch(t *testing.T) {
	_, d, l := newTestClient(t, 20)

	d.mtx.Lock()
	d.sendSeq = 5
	d.notify(PKT_TYPE_DATA, DATA_VERSION, []byte{1, 2})
	d.mtx.Unlock()

	evt := l.next(t)
	require.Equal(t, "protocol_error", evt.kind)
	assert.Equal(t, ERR_SEQUENCE, evt.code)
}

func TestClientClosed(t *testing.T) {
	c, d, l := newTestClient(t, 20)
	negotiate(t, c, l)
	require.NoError(t, c.Close())

	assert.True(t, bmxutil.IsXport(c.RequestWifiScan()))
	assert.Error(t, c.Attach(d, l))

	d.mtx.Lock()
	d.notify(PKT_TYPE_DATA, DATA_ERROR, []byte{ERR_INVALID_PARAM})
	d.mtx.Unlock()

	select {
	case evt := <-l.ch:
		t.Fatalf("callback after close: %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestClientUnattached(t *testing.T) {
	c := NewClient(nil)
	assert.Error(t, c.NegotiateSecurity())
	assert.NoError(t, c.Close())
}
