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
	"encoding/binary"
	"fmt"

	"github.com/joaojeronimo/go-crc16"
)

const (
	PKT_TYPE_CTRL uint8 = 0x00
	PKT_TYPE_DATA uint8 = 0x01
)

// Control frame subtypes.
const (
	CTRL_ACK              uint8 = 0x00
	CTRL_SET_SEC_MODE     uint8 = 0x01
	CTRL_SET_OP_MODE      uint8 = 0x02
	CTRL_CONNECT_WIFI     uint8 = 0x03
	CTRL_DISCONNECT_WIFI  uint8 = 0x04
	CTRL_GET_WIFI_STATUS  uint8 = 0x05
	CTRL_DEAUTHENTICATE   uint8 = 0x06
	CTRL_GET_VERSION      uint8 = 0x07
	CTRL_CLOSE_CONNECTION uint8 = 0x08
	CTRL_GET_WIFI_LIST    uint8 = 0x09
)

// Data frame subtypes.
const (
	DATA_NEG             uint8 = 0x00
	DATA_STA_BSSID       uint8 = 0x01
	DATA_STA_SSID        uint8 = 0x02
	DATA_STA_PASSWORD    uint8 = 0x03
	DATA_SOFTAP_SSID     uint8 = 0x04
	DATA_SOFTAP_PASSWORD uint8 = 0x05
	DATA_WIFI_STATE      uint8 = 0x0f
	DATA_VERSION         uint8 = 0x10
	DATA_WIFI_LIST       uint8 = 0x11
	DATA_ERROR           uint8 = 0x12
	DATA_CUSTOM          uint8 = 0x13
)

// Frame control bits.
const (
	FC_ENCRYPTED uint8 = 0x01
	FC_CHECKSUM  uint8 = 0x02
	FC_DIR_IN    uint8 = 0x04
	FC_ACK_REQ   uint8 = 0x08
	FC_FRAG      uint8 = 0x10
)

// Error codes reported by the device in DATA_ERROR frames.  The same codes
// describe locally detected framing failures.
const (
	ERR_SEQUENCE      = 0
	ERR_CHECKSUM      = 1
	ERR_DECRYPT       = 2
	ERR_ENCRYPT       = 3
	ERR_INIT_SECURITY = 4
	ERR_DH_MALLOC     = 5
	ERR_DH_PARAM      = 6
	ERR_READ_PARAM    = 7
	ERR_MAKE_PUBLIC   = 8
	ERR_DATA_FORMAT   = 9
	ERR_CALC_MD5      = 10
	ERR_WIFI_SCAN     = 11
	ERR_MSG_TOO_LONG  = 12
	ERR_INVALID_PARAM = 13
	ERR_NOT_SUPPORTED = 14
)

var errCodeNameMap = map[int]string{
	ERR_SEQUENCE:      "sequence",
	ERR_CHECKSUM:      "checksum",
	ERR_DECRYPT:       "decrypt",
	ERR_ENCRYPT:       "encrypt",
	ERR_INIT_SECURITY: "init_security",
	ERR_DH_MALLOC:     "dh_malloc",
	ERR_DH_PARAM:      "dh_param",
	ERR_READ_PARAM:    "read_param",
	ERR_MAKE_PUBLIC:   "make_public",
	ERR_DATA_FORMAT:   "data_format",
	ERR_CALC_MD5:      "calc_md5",
	ERR_WIFI_SCAN:     "wifi_scan",
	ERR_MSG_TOO_LONG:  "msg_too_long",
	ERR_INVALID_PARAM: "invalid_param",
	ERR_NOT_SUPPORTED: "not_supported",
}

func ErrCodeString(code int) string {
	if name, ok := errCodeNameMap[code]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", code)
}

const FRAME_HDR_LEN = 4
const FRAME_CHECKSUM_LEN = 2
const FRAME_FRAG_HDR_LEN = 2

type Frame struct {
	PktType uint8
	SubType uint8
	Fc      uint8
	Seq     uint8

	// Plaintext payload, excluding any fragment header.
	Data []byte

	// Total number of payload bytes remaining in the message, including
	// this fragment.  Only meaningful if Fc has FC_FRAG set.
	FragTotal uint16
}

func (f *Frame) Type() uint8 {
	return f.SubType<<2 | f.PktType
}

func (f *Frame) String() string {
	return fmt.Sprintf("type=%d subtype=0x%02x fc=0x%02x seq=%d len=%d",
		f.PktType, f.SubType, f.Fc, f.Seq, len(f.Data))
}

// CRC-16/CCITT with an all-ones initial value and an inverted result.  The
// table-driven crc16 package starts from zero, so the contribution of the
// initial register is folded in separately.
func checksum(b []byte) uint16 {
	reg := uint16(0xffff)
	for range b {
		reg = reg<<8 ^ crc16.Crc16([]byte{byte(reg >> 8)})
	}

	return ^(crc16.Crc16(b) ^ reg)
}

func frameChecksum(seq uint8, content []byte) uint16 {
	b := make([]byte, 0, 2+len(content))
	b = append(b, seq, uint8(len(content)))
	b = append(b, content...)

	return checksum(b)
}

// Serializes a single frame.  The payload must fit in one frame; splitting a
// message into fragments is the caller's responsibility.
func encodeFrame(f *Frame, ciph *frameCipher) ([]byte, error) {
	content := f.Data
	if f.Fc&FC_FRAG != 0 {
		content = make([]byte, FRAME_FRAG_HDR_LEN, FRAME_FRAG_HDR_LEN+len(f.Data))
		binary.LittleEndian.PutUint16(content, f.FragTotal)
		content = append(content, f.Data...)
	}

	if len(content) > 0xff {
		return nil, fmt.Errorf("frame payload too long: %d", len(content))
	}

	b := make([]byte, 0, FRAME_HDR_LEN+len(content)+FRAME_CHECKSUM_LEN)
	b = append(b, f.Type(), f.Fc, f.Seq, uint8(len(content)))

	var crc uint16
	if f.Fc&FC_CHECKSUM != 0 {
		crc = frameChecksum(f.Seq, content)
	}

	if f.Fc&FC_ENCRYPTED != 0 {
		if ciph == nil {
			return nil, fmt.Errorf("encrypted frame without a negotiated key")
		}
		content = ciph.encrypt(f.Seq, content)
	}
	b = append(b, content...)

	if f.Fc&FC_CHECKSUM != 0 {
		b = append(b, uint8(crc), uint8(crc>>8))
	}

	return b, nil
}

// Parses a single frame.  On failure, the returned code identifies the
// problem using the device's error numbering.
func decodeFrame(b []byte, ciph *frameCipher) (*Frame, int, error) {
	if len(b) < FRAME_HDR_LEN {
		return nil, ERR_DATA_FORMAT,
			fmt.Errorf("frame too short: %d bytes", len(b))
	}

	f := &Frame{
		PktType: b[0] & 0x03,
		SubType: b[0] >> 2,
		Fc:      b[1],
		Seq:     b[2],
	}
	dataLen := int(b[3])

	need := FRAME_HDR_LEN + dataLen
	if f.Fc&FC_CHECKSUM != 0 {
		need += FRAME_CHECKSUM_LEN
	}
	if len(b) < need {
		return nil, ERR_DATA_FORMAT, fmt.Errorf(
			"truncated frame: have=%d want=%d", len(b), need)
	}

	content := b[FRAME_HDR_LEN : FRAME_HDR_LEN+dataLen]
	if f.Fc&FC_ENCRYPTED != 0 {
		if ciph == nil {
			return nil, ERR_DECRYPT,
				fmt.Errorf("encrypted frame without a negotiated key")
		}
		content = ciph.decrypt(f.Seq, content)
	} else {
		content = append([]byte(nil), content...)
	}

	if f.Fc&FC_CHECKSUM != 0 {
		off := FRAME_HDR_LEN + dataLen
		rxCrc := binary.LittleEndian.Uint16(b[off : off+2])
		if crc := frameChecksum(f.Seq, content); crc != rxCrc {
			return nil, ERR_CHECKSUM, fmt.Errorf(
				"checksum mismatch: have=0x%04x want=0x%04x", rxCrc, crc)
		}
	}

	if f.Fc&FC_FRAG != 0 {
		if len(content) < FRAME_FRAG_HDR_LEN {
			return nil, ERR_DATA_FORMAT,
				fmt.Errorf("fragment missing length header")
		}
		f.FragTotal = binary.LittleEndian.Uint16(content)
		content = content[FRAME_FRAG_HDR_LEN:]
	}
	f.Data = content

	return f, 0, nil
}

// Splits a message into frames of at most mtu bytes each.  Every frame but
// the last carries FC_FRAG and the number of bytes remaining.
func fragment(pktType uint8, subType uint8, fc uint8, data []byte,
	mtu int) []*Frame {

	maxData := mtu - FRAME_HDR_LEN
	if fc&FC_CHECKSUM != 0 {
		maxData -= FRAME_CHECKSUM_LEN
	}

	if len(data) <= maxData {
		return []*Frame{{
			PktType: pktType,
			SubType: subType,
			Fc:      fc,
			Data:    data,
		}}
	}

	chunkLen := maxData - FRAME_FRAG_HDR_LEN

	var frames []*Frame
	for off := 0; off < len(data); {
		remaining := len(data) - off
		if remaining <= maxData {
			frames = append(frames, &Frame{
				PktType: pktType,
				SubType: subType,
				Fc:      fc,
				Data:    data[off:],
			})
			break
		}

		frames = append(frames, &Frame{
			PktType:   pktType,
			SubType:   subType,
			Fc:        fc | FC_FRAG,
			Data:      data[off : off+chunkLen],
			FragTotal: uint16(remaining),
		})
		off += chunkLen
	}

	return frames
}

// Reassembles fragmented messages from a sequence of decoded frames.
type reassembler struct {
	typ  uint8
	buf  []byte
	busy bool
}

// Returns the complete payload once the final fragment arrives, or nil while
// more fragments are expected.
func (r *reassembler) add(f *Frame) ([]byte, error) {
	if r.busy && f.Type() != r.typ {
		r.reset()
		return nil, fmt.Errorf(
			"fragment type mismatch: have=0x%02x want=0x%02x", f.Type(), r.typ)
	}

	r.typ = f.Type()
	r.buf = append(r.buf, f.Data...)

	if f.Fc&FC_FRAG != 0 {
		r.busy = true
		return nil, nil
	}

	msg := r.buf
	r.reset()
	if msg == nil {
		msg = []byte{}
	}
	return msg, nil
}

func (r *reassembler) reset() {
	r.buf = nil
	r.busy = false
}
