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
)

type SesnState int

// Happy-path states are declared in order.
const (
	SESN_STATE_POWERED_OFF SesnState = iota
	SESN_STATE_POWERED_ON
	SESN_STATE_SCANNING
	SESN_STATE_CONNECTING
	SESN_STATE_GATT_DISCOVERING
	SESN_STATE_NEGOTIATING
	SESN_STATE_READY
	SESN_STATE_WIFI_SCANNING
	SESN_STATE_CONFIGURING
	SESN_STATE_CONFIGURED
	SESN_STATE_ERROR
)

var sesnStateNameMap = map[SesnState]string{
	SESN_STATE_POWERED_OFF:      "powered_off",
	SESN_STATE_POWERED_ON:       "powered_on",
	SESN_STATE_SCANNING:         "scanning",
	SESN_STATE_CONNECTING:       "connecting",
	SESN_STATE_GATT_DISCOVERING: "gatt_discovering",
	SESN_STATE_NEGOTIATING:      "negotiating",
	SESN_STATE_READY:            "ready",
	SESN_STATE_WIFI_SCANNING:    "wifi_scanning",
	SESN_STATE_CONFIGURING:      "configuring",
	SESN_STATE_CONFIGURED:       "configured",
	SESN_STATE_ERROR:            "error",
}

func (s SesnState) String() string {
	if name, ok := sesnStateNameMap[s]; ok {
		return name
	}
	return fmt.Sprintf("SesnState(%d)", int(s))
}

// Indicates whether a connection attempt is in progress or established.
func (s SesnState) Connected() bool {
	return s >= SESN_STATE_CONNECTING && s <= SESN_STATE_CONFIGURING
}

// Indicates whether the peripheral has accepted the security handshake.
func (s SesnState) Negotiated() bool {
	return s >= SESN_STATE_READY && s <= SESN_STATE_CONFIGURED
}

func (s SesnState) Terminal() bool {
	return s == SESN_STATE_CONFIGURED || s == SESN_STATE_ERROR
}
