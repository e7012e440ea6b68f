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
	"fmt"
	"io"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/blufimgr/blufimgr/bmxact/bmxutil"
	"github.com/blufimgr/blufimgr/bmxact/prov"
	"github.com/blufimgr/blufimgr/bmxact/task"
)

// Negotiation message kinds (first byte of a DATA_NEG frame we send).
const (
	NEG_SET_SEC_TOTAL_LEN uint8 = 0x00
	NEG_SET_SEC_ALL_DATA  uint8 = 0x01
)

// Security mode bits sent with CTRL_SET_SEC_MODE.  The low nibble applies to
// data frames, the high nibble to control frames.
const (
	SEC_MODE_CHECKSUM uint8 = 0x01
	SEC_MODE_ENCRYPT  uint8 = 0x02
)

// Writes are never larger than this, whatever the link allows.
const MAX_WRITE_LEN = 0xff

// Fallback when the transport reports an unusable limit.
const DFLT_WRITE_LEN = 20

// A BluFi protocol engine.  Requests and received notifications are
// processed in order on the client's own task queue, so the blocking
// transport writes never run on the caller's goroutine.
type Client struct {
	rnd io.Reader
	q   *task.TaskQueue

	mtx    sync.Mutex
	t      prov.Transport
	l      prov.EngineListener
	closed bool

	// Only touched from the task queue.
	sendSeq     uint8
	recvSeq     uint8
	rx          reassembler
	dh          *dhKey
	ciph        *frameCipher
	secure      bool
	negPending  bool
	scanPending bool
}

// Creates a client.  If rnd is nil, keys are generated from crypto/rand.
func NewClient(rnd io.Reader) *Client {
	if rnd == nil {
		rnd = rand.Reader
	}

	return &Client{
		rnd: rnd,
		q:   task.NewTaskQueue("blufi_client"),
	}
}

// Suitable for use as a session's engine factory.
func NewEngine() prov.Engine {
	return NewClient(nil)
}

func (c *Client) Attach(t prov.Transport, l prov.EngineListener) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if c.closed {
		return fmt.Errorf("blufi client closed")
	}
	if c.t != nil {
		return fmt.Errorf("blufi client already attached")
	}

	c.t = t
	c.l = l

	return c.q.Start()
}

// Releases the client.  Queued work is discarded and the listener receives
// nothing further.  A write already in progress runs to completion.
func (c *Client) Close() error {
	c.mtx.Lock()
	if c.closed {
		c.mtx.Unlock()
		return nil
	}
	c.closed = true
	attached := c.t != nil
	c.mtx.Unlock()

	if attached {
		c.q.StopNoWait(fmt.Errorf("blufi client closed"))
	}

	return nil
}

func (c *Client) NegotiateSecurity() error {
	return c.post(func() {
		if err := c.negotiate(); err != nil {
			c.negPending = false
			c.emit(func(l prov.EngineListener) {
				l.SecurityNegotiated(err)
			})
		}
	})
}

func (c *Client) Configure(params prov.ConfigureParams) error {
	if err := params.Validate(); err != nil {
		return err
	}

	return c.post(func() {
		err := c.configure(params)
		c.emit(func(l prov.EngineListener) {
			l.ConfigureResult(err)
		})
	})
}

func (c *Client) RequestWifiScan() error {
	return c.post(func() {
		c.scanPending = true
		if err := c.send(PKT_TYPE_CTRL, CTRL_GET_WIFI_LIST, nil); err != nil {
			c.scanPending = false
			c.emit(func(l prov.EngineListener) {
				l.WifiScanResult(nil, err)
			})
		}
	})
}

func (c *Client) HandleNotification(data []byte) {
	b := append([]byte(nil), data...)
	if err := c.q.Post(func() { c.rxFrame(b) }); err != nil {
		log.Debugf("Dropping BluFi notification: %s", err.Error())
	}
}

func (c *Client) post(fn func()) error {
	c.mtx.Lock()
	attached := c.t != nil && !c.closed
	c.mtx.Unlock()

	if !attached {
		return bmxutil.NewXportError("blufi client not attached")
	}

	return c.q.Post(fn)
}

// Delivers a result unless the client has been closed.
func (c *Client) emit(fn func(l prov.EngineListener)) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if !c.closed && c.l != nil {
		fn(c.l)
	}
}

func (c *Client) writeLen() int {
	n := c.t.Mtu()
	if n > MAX_WRITE_LEN {
		n = MAX_WRITE_LEN
	}
	if n < FRAME_HDR_LEN+FRAME_CHECKSUM_LEN+FRAME_FRAG_HDR_LEN+1 {
		n = DFLT_WRITE_LEN
	}

	return n
}

func (c *Client) send(pktType uint8, subType uint8, data []byte) error {
	var fc uint8
	if pktType == PKT_TYPE_DATA && c.secure {
		fc = FC_ENCRYPTED | FC_CHECKSUM
	}

	for _, f := range fragment(pktType, subType, fc, data, c.writeLen()) {
		f.Seq = c.sendSeq
		c.sendSeq++

		b, err := encodeFrame(f, c.ciph)
		if err != nil {
			return err
		}

		log.Debugf("Tx BluFi frame: %s", f.String())
		bmxutil.LogDump("Tx", b)

		if err := c.t.Write(b); err != nil {
			return bmxutil.FmtXportError("write failed: %s", err.Error())
		}
	}

	return nil
}

func (c *Client) negotiate() error {
	k, err := newDhKey(c.rnd)
	if err != nil {
		return err
	}

	c.dh = k
	c.ciph = nil
	c.secure = false
	c.negPending = true

	msg := k.paramMsg()
	hdr := []byte{NEG_SET_SEC_TOTAL_LEN, uint8(len(msg) >> 8), uint8(len(msg))}
	if err := c.send(PKT_TYPE_DATA, DATA_NEG, hdr); err != nil {
		return err
	}

	body := append([]byte{NEG_SET_SEC_ALL_DATA}, msg...)
	return c.send(PKT_TYPE_DATA, DATA_NEG, body)
}

func (c *Client) configure(params prov.ConfigureParams) error {
	if !c.secure {
		return fmt.Errorf("security not negotiated")
	}

	if err := c.send(PKT_TYPE_CTRL, CTRL_SET_OP_MODE,
		[]byte{uint8(params.OpMode)}); err != nil {

		return err
	}
	if err := c.send(PKT_TYPE_DATA, DATA_STA_SSID,
		[]byte(params.StaSsid)); err != nil {

		return err
	}
	if err := c.send(PKT_TYPE_DATA, DATA_STA_PASSWORD,
		[]byte(params.StaPassword)); err != nil {

		return err
	}

	return c.send(PKT_TYPE_CTRL, CTRL_CONNECT_WIFI, nil)
}

/*****************************************************************************
 * $receive                                                                  *
 *****************************************************************************/

func (c *Client) protoErr(code int) {
	c.emit(func(l prov.EngineListener) {
		l.ProtocolError(code)
	})
}

func (c *Client) rxFrame(b []byte) {
	bmxutil.LogDump("Rx", b)

	f, code, err := decodeFrame(b, c.ciph)
	if err != nil {
		log.Debugf("Failed to decode BluFi frame: %s", err.Error())
		c.rx.reset()
		c.protoErr(code)
		return
	}
	log.Debugf("Rx BluFi frame: %s", f.String())

	if f.Seq != c.recvSeq {
		log.Debugf("BluFi sequence mismatch: have=%d want=%d",
			f.Seq, c.recvSeq)
		c.recvSeq = f.Seq + 1
		c.rx.reset()
		c.protoErr(ERR_SEQUENCE)
		return
	}
	c.recvSeq++

	msg, err := c.rx.add(f)
	if err != nil {
		log.Debugf("BluFi reassembly failed: %s", err.Error())
		c.protoErr(ERR_DATA_FORMAT)
		return
	}
	if msg == nil {
		return
	}

	c.dispatch(f.PktType, f.SubType, msg)
}

func (c *Client) dispatch(pktType uint8, subType uint8, msg []byte) {
	if pktType == PKT_TYPE_CTRL {
		if subType == CTRL_ACK && len(msg) > 0 {
			log.Debugf("BluFi ack: seq=%d", msg[0])
		} else {
			log.Debugf("Ignoring BluFi ctrl frame: subtype=0x%02x", subType)
		}
		return
	}

	switch subType {
	case DATA_NEG:
		c.rxNeg(msg)

	case DATA_WIFI_LIST:
		c.rxWifiList(msg)

	case DATA_ERROR:
		c.rxError(msg)

	case DATA_WIFI_STATE:
		c.rxWifiState(msg)

	case DATA_VERSION:
		if len(msg) >= 2 {
			log.Infof("BluFi device version: %d.%d", msg[0], msg[1])
		}

	case DATA_CUSTOM:
		log.Debugf("BluFi custom data: %d bytes", len(msg))

	default:
		log.Debugf("Ignoring BluFi data frame: subtype=0x%02x", subType)
	}
}

func (c *Client) rxNeg(msg []byte) {
	if !c.negPending {
		log.Debugf("Unsolicited BluFi negotiation response")
		return
	}
	c.negPending = false

	err := func() error {
		secret, err := c.dh.sharedSecret(msg)
		if err != nil {
			return err
		}

		ciph, err := newFrameCipher(secret)
		if err != nil {
			return err
		}

		if err := c.send(PKT_TYPE_CTRL, CTRL_SET_SEC_MODE,
			[]byte{SEC_MODE_CHECKSUM | SEC_MODE_ENCRYPT}); err != nil {

			return err
		}

		c.ciph = ciph
		c.secure = true
		return nil
	}()

	c.dh = nil
	c.emit(func(l prov.EngineListener) {
		l.SecurityNegotiated(err)
	})
}

func parseWifiList(msg []byte) ([]prov.WifiNetwork, error) {
	nets := []prov.WifiNetwork{}
	for off := 0; off < len(msg); {
		recLen := int(msg[off])
		if recLen < 1 || off+1+recLen > len(msg) {
			return nil, fmt.Errorf("malformed wifi list record at offset %d",
				off)
		}

		nets = append(nets, prov.WifiNetwork{
			Rssi: int8(msg[off+1]),
			Ssid: string(msg[off+2 : off+1+recLen]),
		})
		off += 1 + recLen
	}

	return nets, nil
}

func (c *Client) rxWifiList(msg []byte) {
	if !c.scanPending {
		log.Debugf("Unsolicited BluFi wifi list")
		return
	}
	c.scanPending = false

	nets, err := parseWifiList(msg)
	c.emit(func(l prov.EngineListener) {
		l.WifiScanResult(nets, err)
	})
}

func (c *Client) rxError(msg []byte) {
	code := ERR_DATA_FORMAT
	if len(msg) > 0 {
		code = int(msg[0])
	}
	log.Debugf("BluFi device error: %s", ErrCodeString(code))

	switch {
	case code == ERR_WIFI_SCAN && c.scanPending:
		c.scanPending = false
		c.emit(func(l prov.EngineListener) {
			l.WifiScanResult(nil, bmxutil.NewProtocolError(code,
				"device wifi scan failed"))
		})

	case c.negPending:
		c.negPending = false
		c.emit(func(l prov.EngineListener) {
			l.SecurityNegotiated(bmxutil.FmtProtocolError(code,
				"device error: %s", ErrCodeString(code)))
		})

	default:
		c.protoErr(code)
	}
}

func (c *Client) rxWifiState(msg []byte) {
	if len(msg) < 3 {
		log.Debugf("Short BluFi wifi state report: %d bytes", len(msg))
		return
	}

	log.Infof("Device wifi state: opmode=%s sta_state=%d softap_conns=%d",
		prov.OpMode(msg[0]).String(), msg[1], msg[2])
}
