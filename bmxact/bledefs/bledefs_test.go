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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUuid(t *testing.T) {
	u, err := ParseUuid("0xff01")
	require.NoError(t, err)
	assert.Equal(t, BleUuid16(0xff01), u.U16)

	u, err = ParseUuid("8D53DC1D-1DB7-4CD3-868B-8A527460AA84")
	require.NoError(t, err)
	assert.Equal(t, BleUuid16(0), u.U16)
	assert.Equal(t, "8d53dc1d-1db7-4cd3-868b-8a527460aa84", u.String())

	_, err = ParseUuid("not-a-uuid")
	assert.Error(t, err)
}

func TestCompareUuidsBaseRange(t *testing.T) {
	long, err := ParseUuid("0000ff02-0000-1000-8000-00805f9b34fb")
	require.NoError(t, err)

	assert.Equal(t, 0, CompareUuids(long, NewBleUuid16(BlufiNotifyChrUuid)))
	assert.NotEqual(t, 0, CompareUuids(long, NewBleUuid16(BlufiWriteChrUuid)))

	other, err := ParseUuid("8D53DC1D-1DB7-4CD3-868B-8A527460AA84")
	require.NoError(t, err)
	assert.Equal(t, other, other.Canonical())
	assert.NotEqual(t, 0, CompareUuids(other, long))
}

func TestUuidJSON(t *testing.T) {
	u := NewBleUuid16(BlufiSvcUuid)
	b, err := u.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"0xffff"`, string(b))

	var back BleUuid
	require.NoError(t, back.UnmarshalJSON(b))
	assert.Equal(t, u, back)
}
