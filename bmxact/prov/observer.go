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
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/blufimgr/blufimgr/bmxact/task"
)

type NotifType int

const (
	NOTIF_STATE_CHANGED NotifType = iota
	NOTIF_DEVICE_FOUND
	NOTIF_DEVICE_UPDATED
	NOTIF_WIFI_SCAN_RESULT
	NOTIF_ERROR
)

var notifTypeNameMap = map[NotifType]string{
	NOTIF_STATE_CHANGED:    "state_changed",
	NOTIF_DEVICE_FOUND:     "device_found",
	NOTIF_DEVICE_UPDATED:   "device_updated",
	NOTIF_WIFI_SCAN_RESULT: "wifi_scan_result",
	NOTIF_ERROR:            "error",
}

func (t NotifType) String() string {
	if name, ok := notifTypeNameMap[t]; ok {
		return name
	}
	return fmt.Sprintf("NotifType(%d)", int(t))
}

// A single state transition or domain event published by a session.  Only
// the fields relevant to Type are populated.
type Notification struct {
	Type NotifType

	// NOTIF_STATE_CHANGED.
	State     SesnState
	PrevState SesnState

	// NOTIF_DEVICE_FOUND, NOTIF_DEVICE_UPDATED.
	Device DeviceRecord

	// NOTIF_WIFI_SCAN_RESULT; sorted for presentation.
	WifiResults []WifiNetwork

	// NOTIF_ERROR.
	Err error
}

type NotifyFn func(n Notification)

// A registered consumer.  Each subscription is served by its own task queue,
// so a slow consumer never holds up the session or other consumers, and a
// consumer sees notifications in emission order.
type Subscription struct {
	obs    *Observer
	id     int
	fn     NotifyFn
	q      *task.TaskQueue
	doneCh chan struct{}
	once   sync.Once
}

// Stops delivery to this subscription.  It is safe to call at any time,
// including from within the subscription's own callback; it never waits for
// an in-progress callback to return.
func (sub *Subscription) Cancel() {
	sub.once.Do(func() {
		sub.obs.remove(sub.id)
		close(sub.doneCh)
		sub.q.StopNoWait(fmt.Errorf("subscription cancelled"))
	})
}

// Closed once the subscription is cancelled.
func (sub *Subscription) Done() <-chan struct{} {
	return sub.doneCh
}

func (sub *Subscription) deliver(n Notification) {
	err := sub.q.Post(func() {
		select {
		case <-sub.doneCh:
		default:
			sub.fn(n)
		}
	})
	if err != nil {
		log.Debugf("dropping %s notification for cancelled subscriber %d",
			n.Type, sub.id)
	}
}

type Observer struct {
	mtx    sync.Mutex
	subs   map[int]*Subscription
	nextId int
	closed bool
}

func NewObserver() *Observer {
	return &Observer{
		subs: map[int]*Subscription{},
	}
}

// Registers a callback.  The callback runs on a goroutine dedicated to the
// subscription.
func (o *Observer) Subscribe(fn NotifyFn) *Subscription {
	return o.subscribe(make(chan struct{}), fn)
}

func (o *Observer) subscribe(doneCh chan struct{}, fn NotifyFn) *Subscription {
	o.mtx.Lock()
	defer o.mtx.Unlock()

	sub := &Subscription{
		obs:    o,
		id:     o.nextId,
		fn:     fn,
		q:      task.NewTaskQueue(fmt.Sprintf("observer-%d", o.nextId)),
		doneCh: doneCh,
	}
	o.nextId++

	sub.q.Start()
	if o.closed {
		sub.once.Do(func() {
			close(sub.doneCh)
			sub.q.StopNoWait(fmt.Errorf("observer closed"))
		})
		return sub
	}

	o.subs[sub.id] = sub
	return sub
}

// Registers a channel-based subscriber.  The channel is never closed; use
// the subscription's Done channel to detect cancellation.
func (o *Observer) Listen(depth int) (*Subscription, <-chan Notification) {
	ch := make(chan Notification, depth)
	doneCh := make(chan struct{})

	sub := o.subscribe(doneCh, func(n Notification) {
		select {
		case ch <- n:
		case <-doneCh:
		}
	})

	return sub, ch
}

func (o *Observer) remove(id int) {
	o.mtx.Lock()
	defer o.mtx.Unlock()

	delete(o.subs, id)
}

// Fans the notification out to every current subscriber.  It never blocks on
// a subscriber.
func (o *Observer) Publish(n Notification) {
	o.mtx.Lock()
	subs := make([]*Subscription, 0, len(o.subs))
	for _, sub := range o.subs {
		subs = append(subs, sub)
	}
	o.mtx.Unlock()

	sort.Slice(subs, func(i, j int) bool {
		return subs[i].id < subs[j].id
	})

	for _, sub := range subs {
		sub.deliver(n)
	}
}

// Cancels every subscription; later subscriptions are cancelled immediately.
func (o *Observer) Close() {
	o.mtx.Lock()
	o.closed = true
	subs := make([]*Subscription, 0, len(o.subs))
	for _, sub := range o.subs {
		subs = append(subs, sub)
	}
	o.mtx.Unlock()

	for _, sub := range subs {
		sub.Cancel()
	}
}

func (o *Observer) NumSubscribers() int {
	o.mtx.Lock()
	defer o.mtx.Unlock()

	return len(o.subs)
}
