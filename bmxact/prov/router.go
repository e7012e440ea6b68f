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
	log "github.com/sirupsen/logrus"

	"github.com/blufimgr/blufimgr/bmxact/bledefs"
	"github.com/blufimgr/blufimgr/bmxact/bmxutil"
	"github.com/blufimgr/blufimgr/bmxact/xport"
)

type ChrRole int

const (
	CHR_ROLE_UNCLASSIFIED ChrRole = iota
	CHR_ROLE_WRITE
	CHR_ROLE_NOTIFY
)

var chrRoleNameMap = map[ChrRole]string{
	CHR_ROLE_UNCLASSIFIED: "unclassified",
	CHR_ROLE_WRITE:        "write",
	CHR_ROLE_NOTIFY:       "notify",
}

func (r ChrRole) String() string {
	return chrRoleNameMap[r]
}

// The GATT handles of the active connection.
type GattCtx struct {
	WriteChr    *xport.Chr
	NotifyChr   *xport.Chr
	NotifyAcked bool
}

func (g *GattCtx) Ready() bool {
	return g.WriteChr != nil && g.NotifyChr != nil && g.NotifyAcked
}

type SubscribeFn func(handle uint16) error

// Classifies the characteristics of the provisioning service and activates
// the notify subscription.  A router belongs to a single connection attempt
// and reports its outcome exactly once: either a ready GattCtx or an error.
type ChrRouter struct {
	chrs      bledefs.BlufiChrs
	subscribe SubscribeFn

	roles      map[uint16]ChrRole
	gatt       GattCtx
	discovered bool
	done       bool
}

func NewChrRouter(chrs bledefs.BlufiChrs, subscribe SubscribeFn) *ChrRouter {
	return &ChrRouter{
		chrs:      chrs,
		subscribe: subscribe,
		roles:     map[uint16]ChrRole{},
	}
}

func (r *ChrRouter) Classify(uuid bledefs.BleUuid) ChrRole {
	switch {
	case bledefs.CompareUuids(uuid, r.chrs.WriteChr.ChrUuid) == 0:
		return CHR_ROLE_WRITE
	case bledefs.CompareUuids(uuid, r.chrs.NotifyChr.ChrUuid) == 0:
		return CHR_ROLE_NOTIFY
	default:
		return CHR_ROLE_UNCLASSIFIED
	}
}

// Returns the role assigned to the specified handle.
func (r *ChrRouter) Role(handle uint16) ChrRole {
	return r.roles[handle]
}

func (r *ChrRouter) Gatt() GattCtx {
	return r.gatt
}

// Indicates whether the router has reported its outcome.
func (r *ChrRouter) Done() bool {
	return r.done
}

func (r *ChrRouter) fail(err error) (*GattCtx, error) {
	r.done = true
	return nil, err
}

func (r *ChrRouter) checkReady() (*GattCtx, error) {
	if !r.discovered || !r.gatt.Ready() {
		return nil, nil
	}

	r.done = true
	g := r.gatt
	return &g, nil
}

// Processes the result of characteristic discovery.
//
// @return *GattCtx             Non-nil once the channel is ready.
//         error                Non-nil if preparation failed.
// Both are nil while the router is still waiting.
func (r *ChrRouter) OnChrsDiscovered(chrs []xport.Chr,
	err error) (*GattCtx, error) {

	if r.done {
		return nil, nil
	}

	if err != nil {
		return r.fail(bmxutil.FmtGattPrepError(
			"characteristic discovery failed: %s", err.Error()))
	}

	for i := range chrs {
		c := chrs[i]
		if _, ok := r.roles[c.Handle]; ok {
			continue
		}

		role := r.Classify(c.Uuid)
		r.roles[c.Handle] = role

		switch role {
		case CHR_ROLE_WRITE:
			if r.gatt.WriteChr == nil {
				log.Debugf("Write characteristic: uuid=%s handle=%d",
					c.Uuid.String(), c.Handle)
				r.gatt.WriteChr = &c
			}

		case CHR_ROLE_NOTIFY:
			if r.gatt.NotifyChr == nil {
				log.Debugf("Notify characteristic: uuid=%s handle=%d",
					c.Uuid.String(), c.Handle)
				r.gatt.NotifyChr = &c
				if err := r.subscribe(c.Handle); err != nil {
					return r.fail(bmxutil.FmtGattPrepError(
						"failed to subscribe to %s: %s",
						c.Uuid.String(), err.Error()))
				}
			}
		}
	}

	if r.gatt.WriteChr == nil {
		return r.fail(bmxutil.FmtGattPrepError(
			"Peer doesn't support required characteristic: %s",
			r.chrs.WriteChr.ChrUuid.String()))
	}

	if r.gatt.NotifyChr == nil {
		return r.fail(bmxutil.FmtGattPrepError(
			"Peer doesn't support required characteristic: %s",
			r.chrs.NotifyChr.ChrUuid.String()))
	}

	r.discovered = true
	return r.checkReady()
}

// Processes the adapter's acknowledgement of a subscribe request.
func (r *ChrRouter) OnSubscribed(handle uint16, err error) (*GattCtx, error) {
	if r.done || r.gatt.NotifyChr == nil || r.gatt.NotifyChr.Handle != handle {
		return nil, nil
	}

	if err != nil {
		return r.fail(bmxutil.FmtGattPrepError(
			"notify subscription failed: %s", err.Error()))
	}

	r.gatt.NotifyAcked = true
	return r.checkReady()
}
