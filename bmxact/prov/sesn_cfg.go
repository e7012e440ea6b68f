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
	"strings"
	"time"

	"github.com/blufimgr/blufimgr/bmxact/bledefs"
)

const DFLT_NAME_PREFIX = "BLUFI"

type SesnCfg struct {
	Chrs bledefs.BlufiChrs

	// Peer selection while scanning.  If AutoSelect is set, the first
	// device matching PeerId, PeerName or NamePrefix (checked in that order)
	// is selected without a SelectDevice call.
	AutoSelect bool
	PeerId     string
	PeerName   string
	NamePrefix string

	ConnTimeout      time.Duration
	GattTimeout      time.Duration
	NegotiateTimeout time.Duration
	WifiScanTimeout  time.Duration
	ConfigureTimeout time.Duration

	OpMode OpMode
}

func NewSesnCfg() SesnCfg {
	return SesnCfg{
		Chrs:             bledefs.DefaultBlufiChrs(),
		NamePrefix:       DFLT_NAME_PREFIX,
		ConnTimeout:      10 * time.Second,
		GattTimeout:      10 * time.Second,
		NegotiateTimeout: 10 * time.Second,
		WifiScanTimeout:  15 * time.Second,
		ConfigureTimeout: 10 * time.Second,
		OpMode:           OP_MODE_STA,
	}
}

// Indicates whether the specified device should be selected automatically.
func (cfg *SesnCfg) Matches(dev DeviceRecord) bool {
	switch {
	case cfg.PeerId != "":
		return strings.EqualFold(cfg.PeerId, dev.Id)
	case cfg.PeerName != "":
		return cfg.PeerName == dev.Name
	case cfg.NamePrefix != "":
		return strings.HasPrefix(dev.Name, cfg.NamePrefix)
	default:
		return false
	}
}
