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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stateNotif(s SesnState) Notification {
	return Notification{Type: NOTIF_STATE_CHANGED, State: s}
}

func TestObserverOrderedDelivery(t *testing.T) {
	o := NewObserver()
	defer o.Close()

	_, ch := o.Listen(100)

	for i := 0; i < 50; i++ {
		o.Publish(stateNotif(SesnState(i % 11)))
	}

	for i := 0; i < 50; i++ {
		select {
		case n := <-ch:
			assert.Equal(t, SesnState(i%11), n.State)
		case <-time.After(time.Second):
			t.Fatalf("notification %d not delivered", i)
		}
	}
}

func TestObserverSlowSubscriberDoesNotBlock(t *testing.T) {
	o := NewObserver()
	defer o.Close()

	release := make(chan struct{})
	o.Subscribe(func(Notification) {
		<-release
	})
	_, ch := o.Listen(10)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			o.Publish(stateNotif(SESN_STATE_SCANNING))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	for i := 0; i < 5; i++ {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatal("fast subscriber starved")
		}
	}
	close(release)
}

func TestObserverCancelFromCallback(t *testing.T) {
	o := NewObserver()
	defer o.Close()

	var mtx sync.Mutex
	count := 0

	var sub *Subscription
	ready := make(chan struct{})
	sub = o.Subscribe(func(n Notification) {
		<-ready
		mtx.Lock()
		count++
		mtx.Unlock()
		sub.Cancel()

		// Subscribing from within a callback must not deadlock either.
		o.Subscribe(func(Notification) {}).Cancel()
	})
	close(ready)

	o.Publish(stateNotif(SESN_STATE_POWERED_ON))
	<-sub.Done()

	o.Publish(stateNotif(SESN_STATE_SCANNING))
	time.Sleep(20 * time.Millisecond)

	mtx.Lock()
	defer mtx.Unlock()
	assert.Equal(t, 1, count)
	assert.Equal(t, 0, o.NumSubscribers())
}

func TestObserverSubscribeFromCallback(t *testing.T) {
	o := NewObserver()
	defer o.Close()

	got := make(chan Notification, 4)
	subscribed := make(chan struct{})

	var once sync.Once
	o.Subscribe(func(n Notification) {
		once.Do(func() {
			o.Subscribe(func(n Notification) {
				got <- n
			})
			close(subscribed)
		})
	})

	o.Publish(stateNotif(SESN_STATE_POWERED_ON))
	select {
	case <-subscribed:
	case <-time.After(time.Second):
		t.Fatal("subscribe from callback blocked")
	}
	require.Equal(t, 2, o.NumSubscribers())

	o.Publish(stateNotif(SESN_STATE_SCANNING))
	select {
	case n := <-got:
		assert.Equal(t, SESN_STATE_SCANNING, n.State)
	case <-time.After(time.Second):
		t.Fatal("new subscriber missed the next notification")
	}
}

func TestObserverClose(t *testing.T) {
	o := NewObserver()
	sub, _ := o.Listen(1)
	require.Equal(t, 1, o.NumSubscribers())

	o.Close()
	<-sub.Done()
	assert.Equal(t, 0, o.NumSubscribers())

	late := o.Subscribe(func(Notification) {})
	select {
	case <-late.Done():
	default:
		t.Fatal("subscription after close is live")
	}
}
