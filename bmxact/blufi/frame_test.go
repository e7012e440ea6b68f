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
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecksum(t *testing.T) {
	// CRC-16/GENIBUS check value.
	assert.Equal(t, uint16(0xd64e), checksum([]byte("123456789")))
}

func testCipher(t *testing.T) *frameCipher {
	ciph, err := newFrameCipher([]byte("shared secret"))
	require.NoError(t, err)
	return ciph
}

func TestFramePlain(t *testing.T) {
	f := &Frame{
		PktType: PKT_TYPE_CTRL,
		SubType: CTRL_SET_OP_MODE,
		Seq:     7,
		Data:    []byte{0x01},
	}

	b, err := encodeFrame(f, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x08, 0x00, 0x07, 0x01, 0x01}, b)

	d, code, err := decodeFrame(b, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, f.Type(), d.Type())
	assert.Equal(t, f.Data, d.Data)
}

func TestFrameEncrypted(t *testing.T) {
	ciph := testCipher(t)
	f := &Frame{
		PktType: PKT_TYPE_DATA,
		SubType: DATA_STA_SSID,
		Fc:      FC_ENCRYPTED | FC_CHECKSUM,
		Seq:     3,
		Data:    []byte("home-network"),
	}

	b, err := encodeFrame(f, ciph)
	require.NoError(t, err)
	require.Len(t, b, FRAME_HDR_LEN+len(f.Data)+FRAME_CHECKSUM_LEN)
	assert.False(t, bytes.Contains(b, f.Data), "payload sent in the clear")

	d, _, err := decodeFrame(b, ciph)
	require.NoError(t, err)
	assert.Equal(t, f.Data, d.Data)
	assert.Equal(t, DATA_STA_SSID, d.SubType)

	// Without the key.
	_, code, err := decodeFrame(b, nil)
	assert.Error(t, err)
	assert.Equal(t, ERR_DECRYPT, code)

	// Corrupted checksum.
	b[len(b)-1] ^= 0xff
	_, code, err = decodeFrame(b, ciph)
	assert.Error(t, err)
	assert.Equal(t, ERR_CHECKSUM, code)
}

func TestFrameTruncated(t *testing.T) {
	_, code, err := decodeFrame([]byte{0x01, 0x00}, nil)
	assert.Error(t, err)
	assert.Equal(t, ERR_DATA_FORMAT, code)

	_, code, err = decodeFrame([]byte{0x01, 0x00, 0x00, 0x05, 0xaa}, nil)
	assert.Error(t, err)
	assert.Equal(t, ERR_DATA_FORMAT, code)
}

func TestFragmentReassemble(t *testing.T) {
	data := make([]byte, 75)
	for i := range data {
		data[i] = byte(i)
	}

	ciph := testCipher(t)
	frames := fragment(PKT_TYPE_DATA, DATA_NEG, FC_ENCRYPTED|FC_CHECKSUM,
		data, 20)
	require.True(t, len(frames) > 1)

	r := reassembler{}
	var msg []byte
	for i, f := range frames {
		f.Seq = uint8(i)

		b, err := encodeFrame(f, ciph)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(b), 20)

		d, _, err := decodeFrame(b, ciph)
		require.NoError(t, err)

		if i < len(frames)-1 {
			assert.NotZero(t, d.Fc&FC_FRAG)
			assert.Equal(t, uint16(len(data)-i*12), d.FragTotal)
		} else {
			assert.Zero(t, d.Fc&FC_FRAG)
		}

		msg, err = r.add(d)
		require.NoError(t, err)
		if i < len(frames)-1 {
			assert.Nil(t, msg)
		}
	}

	assert.Equal(t, data, msg)
}

func TestFragmentSingle(t *testing.T) {
	frames := fragment(PKT_TYPE_CTRL, CTRL_GET_WIFI_LIST, 0, nil, 20)
	require.Len(t, frames, 1)
	assert.Zero(t, frames[0].Fc&FC_FRAG)

	r := reassembler{}
	msg, err := r.add(frames[0])
	require.NoError(t, err)
	assert.NotNil(t, msg)
	assert.Empty(t, msg)
}

func TestReassembleTypeMismatch(t *testing.T) {
	r := reassembler{}
	_, err := r.add(&Frame{PktType: PKT_TYPE_DATA, SubType: DATA_WIFI_LIST,
		Fc: FC_FRAG, Data: []byte{1}})
	require.NoError(t, err)

	_, err = r.add(&Frame{PktType: PKT_TYPE_DATA, SubType: DATA_ERROR,
		Data: []byte{1}})
	assert.Error(t, err)
}

func TestParseWifiList(t *testing.T) {
	msg := []byte{
		5, 0xb0, 'h', 'o', 'm', 'e',
		1, 0xd8,
		4, 0xc4, 'l', 'a', 'b',
	}

	nets, err := parseWifiList(msg)
	require.NoError(t, err)
	require.Len(t, nets, 3)
	assert.Equal(t, "home", nets[0].Ssid)
	assert.Equal(t, int8(-80), nets[0].Rssi)
	assert.Equal(t, "", nets[1].Ssid)
	assert.Equal(t, int8(-40), nets[1].Rssi)
	assert.Equal(t, "lab", nets[2].Ssid)

	_, err = parseWifiList([]byte{9, 0xb0, 'x'})
	assert.Error(t, err)

	nets, err = parseWifiList(nil)
	require.NoError(t, err)
	assert.Empty(t, nets)
}

func TestDhSharedSecret(t *testing.T) {
	a, err := newDhKey(rand.Reader)
	require.NoError(t, err)
	b, err := newDhKey(rand.Reader)
	require.NoError(t, err)

	sa, err := a.sharedSecret(b.pub.Bytes())
	require.NoError(t, err)
	sb, err := b.sharedSecret(a.pub.Bytes())
	require.NoError(t, err)
	assert.Equal(t, sa, sb)

	_, err = a.sharedSecret([]byte{1})
	assert.Error(t, err)
}
