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

package bledefs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

const BLE_ATT_ATTR_MAX_LEN = 512

const BLE_ATT_MTU_DFLT = 23

// Well-known BluFi GATT identifiers.
const BlufiSvcUuid = 0xffff
const BlufiWriteChrUuid = 0xff01
const BlufiNotifyChrUuid = 0xff02

// The Bluetooth base UUID; 16-bit UUIDs are aliases into this range.
var bleBaseUuid = BleUuid128{
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x10, 0x00,
	0x80, 0x00, 0x00, 0x80, 0x5f, 0x9b, 0x34, 0xfb,
}

type BleUuid16 uint16

func (bu16 *BleUuid16) String() string {
	return fmt.Sprintf("0x%04x", *bu16)
}

func ParseUuid16(s string) (BleUuid16, error) {
	val, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return BleUuid16(0), fmt.Errorf("Invalid UUID: %s", s)
	}

	return BleUuid16(val), nil
}

// Big-endian (string order) 128-bit UUID.
type BleUuid128 [16]byte

func (bu128 *BleUuid128) String() string {
	return uuid.UUID(*bu128).String()
}

func ParseUuid128(s string) (BleUuid128, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return BleUuid128{}, fmt.Errorf("Invalid UUID: %s", s)
	}

	return BleUuid128(u), nil
}

type BleUuid struct {
	// Set to 0 if the 128-bit UUID should be used.
	U16 BleUuid16

	// Ignored if U16 is nonzero.
	U128 BleUuid128
}

func NewBleUuid16(u16 uint16) BleUuid {
	return BleUuid{U16: BleUuid16(u16)}
}

func (bu BleUuid) String() string {
	if bu.U16 != 0 {
		return bu.U16.String()
	} else {
		return bu.U128.String()
	}
}

// Converts a 128-bit UUID in the Bluetooth base range to its 16-bit alias.
// Other UUIDs are returned unchanged.
func (bu BleUuid) Canonical() BleUuid {
	if bu.U16 != 0 {
		return bu
	}

	u := bu.U128
	if u[0] != 0 || u[1] != 0 || !bytes.Equal(u[4:], bleBaseUuid[4:]) {
		return bu
	}

	return BleUuid{U16: BleUuid16(uint16(u[2])<<8 | uint16(u[3]))}
}

func ParseUuid(uuidStr string) (BleUuid, error) {
	bu := BleUuid{}
	var err error

	// First, try to parse as a 16-bit UUID.
	bu.U16, err = ParseUuid16(uuidStr)
	if err == nil {
		return bu, nil
	}

	// Try to parse as a 128-bit UUID.
	bu.U128, err = ParseUuid128(uuidStr)
	if err == nil {
		return bu, nil
	}

	return bu, err
}

func (bu BleUuid) MarshalJSON() ([]byte, error) {
	return json.Marshal(bu.String())
}

func (bu *BleUuid) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	var err error
	*bu, err = ParseUuid(s)
	return err
}

// 16-bit aliases compare equal to their 128-bit base-range forms.
func CompareUuids(a BleUuid, b BleUuid) int {
	a = a.Canonical()
	b = b.Canonical()

	if a.U16 != 0 || b.U16 != 0 {
		return int(a.U16) - int(b.U16)
	} else {
		return bytes.Compare(a.U128[:], b.U128[:])
	}
}

// Identifies a characteristic within a service.
type BleChrId struct {
	SvcUuid BleUuid
	ChrUuid BleUuid
}

func (c *BleChrId) String() string {
	return fmt.Sprintf("s=%s c=%s", c.SvcUuid.String(), c.ChrUuid.String())
}

// The characteristics a BluFi peripheral must expose.
type BlufiChrs struct {
	WriteChr  BleChrId
	NotifyChr BleChrId
}

func DefaultBlufiChrs() BlufiChrs {
	svc := NewBleUuid16(BlufiSvcUuid)
	return BlufiChrs{
		WriteChr: BleChrId{
			SvcUuid: svc,
			ChrUuid: NewBleUuid16(BlufiWriteChrUuid),
		},
		NotifyChr: BleChrId{
			SvcUuid: svc,
			ChrUuid: NewBleUuid16(BlufiNotifyChrUuid),
		},
	}
}
