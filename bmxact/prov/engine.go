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

// The byte pipe an engine uses to reach the peripheral: writes go to the
// write characteristic; notifications from the notify characteristic are fed
// back through Engine.HandleNotification.
type Transport interface {
	// Blocks until the adapter acknowledges the write.
	Write(data []byte) error

	// Maximum number of bytes per write.
	Mtu() int
}

// Receives decoded protocol outcomes.  Implementations must not block.
type EngineListener interface {
	SecurityNegotiated(err error)
	ConfigureResult(err error)
	WifiScanResult(nets []WifiNetwork, err error)

	// An unsolicited error reported at any time after Attach.
	ProtocolError(code int)
}

// A provisioning protocol engine (codec + handshake).  All request methods
// are fire-and-forget: a nil return means the request was issued, and its
// outcome is later delivered to the listener.  None of them may block on
// peripheral I/O.
type Engine interface {
	Attach(t Transport, l EngineListener) error
	NegotiateSecurity() error
	Configure(params ConfigureParams) error
	RequestWifiScan() error

	// Feeds raw bytes received on the notify characteristic.
	HandleNotification(data []byte)

	// Releases the engine.  No listener callbacks are delivered afterwards.
	Close() error
}

type EngineFactory func() Engine
