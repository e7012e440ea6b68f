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
	"encoding/binary"
	"fmt"
	"runtime"
	"time"

	"github.com/JuulLabs-OSS/ble"
	log "github.com/sirupsen/logrus"

	"github.com/blufimgr/blufimgr/bmxact/bledefs"
)

func UuidFromBllUuid(bllUuid ble.UUID) (bledefs.BleUuid, error) {
	uuid := bledefs.BleUuid{}

	switch len(bllUuid) {
	case 2:
		uuid.U16 = bledefs.BleUuid16(binary.LittleEndian.Uint16(bllUuid))
		return uuid, nil

	case 16:
		for i, b := range bllUuid {
			uuid.U128[15-i] = b
		}
		return uuid, nil

	default:
		return uuid, fmt.Errorf("Invalid UUID: %#v", bllUuid)
	}
}

func BllUuidFromUuid(uuid bledefs.BleUuid) ble.UUID {
	if uuid.U16 != 0 {
		return ble.UUID16(uint16(uuid.U16))
	}

	b := make(ble.UUID, 16)
	for i, v := range uuid.U128 {
		b[15-i] = v
	}
	return b
}

func exchangeMtu(cln ble.Client, preferredMtu int) (int, error) {
	log.Debugf("Exchanging MTU")

	// macOS performs the exchange on its own and only reports the result.
	// Until it has done so, the library returns the default of 23; give the
	// OS some time and requery.
	var mtu int
	for i := 0; i < 3; i++ {
		var err error
		mtu, err = cln.ExchangeMTU(preferredMtu)
		if err != nil {
			return 0, err
		}

		if runtime.GOOS != "darwin" {
			break
		}

		if mtu != bledefs.BLE_ATT_MTU_DFLT {
			break
		}

		log.Debugf("macOS reports an MTU of 23.  " +
			"Assume exchange hasn't completed; wait and requery.")
		time.Sleep(time.Second)
	}

	log.Debugf("Exchanged MTU; ATT MTU = %d", mtu)
	return mtu, nil
}
