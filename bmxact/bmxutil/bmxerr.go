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

package bmxutil

import (
	"fmt"

	"github.com/pkg/errors"
)

// The adapter reported a power state other than on or off.
type AdapterFaultError struct {
	Text string
}

func NewAdapterFaultError(text string) *AdapterFaultError {
	return &AdapterFaultError{Text: text}
}

func (e *AdapterFaultError) Error() string {
	return e.Text
}

func IsAdapterFault(err error) bool {
	_, ok := errors.Cause(err).(*AdapterFaultError)
	return ok
}

// A connect attempt was rejected by the adapter.
type ConnectError struct {
	Text string
}

func NewConnectError(text string) *ConnectError {
	return &ConnectError{Text: text}
}

func FmtConnectError(format string, args ...interface{}) *ConnectError {
	return NewConnectError(fmt.Sprintf(format, args...))
}

func (e *ConnectError) Error() string {
	return e.Text
}

func IsConnect(err error) bool {
	_, ok := errors.Cause(err).(*ConnectError)
	return ok
}

// Service discovery failed, a required characteristic is missing, or the
// notify subscription was refused.
type GattPrepError struct {
	Text string
}

func NewGattPrepError(text string) *GattPrepError {
	return &GattPrepError{Text: text}
}

func FmtGattPrepError(format string, args ...interface{}) *GattPrepError {
	return NewGattPrepError(fmt.Sprintf(format, args...))
}

func (e *GattPrepError) Error() string {
	return e.Text
}

func IsGattPrep(err error) bool {
	_, ok := errors.Cause(err).(*GattPrepError)
	return ok
}

// The peer rejected the security handshake.
type NegotiateError struct {
	Text string
}

func NewNegotiateError(text string) *NegotiateError {
	return &NegotiateError{Text: text}
}

func (e *NegotiateError) Error() string {
	return e.Text
}

func IsNegotiate(err error) bool {
	_, ok := errors.Cause(err).(*NegotiateError)
	return ok
}

// The peer rejected the WiFi configuration.
type ConfigureError struct {
	Text string
}

func NewConfigureError(text string) *ConfigureError {
	return &ConfigureError{Text: text}
}

func (e *ConfigureError) Error() string {
	return e.Text
}

func IsConfigure(err error) bool {
	_, ok := errors.Cause(err).(*ConfigureError)
	return ok
}

// The peer dropped the connection without being asked to.
type DisconnectError struct {
	Text   string
	Reason error
}

func NewDisconnectError(text string, reason error) *DisconnectError {
	return &DisconnectError{
		Text:   text,
		Reason: reason,
	}
}

func (e *DisconnectError) Error() string {
	return e.Text
}

func IsDisconnect(err error) bool {
	_, ok := errors.Cause(err).(*DisconnectError)
	return ok
}

// An operation did not complete within its bound.
type TimeoutError struct {
	Text string
	Op   string
}

func NewTimeoutError(op string, text string) *TimeoutError {
	return &TimeoutError{
		Text: text,
		Op:   op,
	}
}

func (e *TimeoutError) Error() string {
	return e.Text
}

func IsTimeout(err error) bool {
	_, ok := errors.Cause(err).(*TimeoutError)
	return ok
}

// Returns the operation that timed out, or "" if err is not a timeout.
func TimeoutOp(err error) string {
	if terr, ok := errors.Cause(err).(*TimeoutError); ok {
		return terr.Op
	}
	return ""
}

// A command was issued while an operation on the same resource is still
// outstanding.
type BusyError struct {
	Text string
}

func NewBusyError(text string) *BusyError {
	return &BusyError{Text: text}
}

func FmtBusyError(format string, args ...interface{}) *BusyError {
	return NewBusyError(fmt.Sprintf(format, args...))
}

func (e *BusyError) Error() string {
	return e.Text
}

func IsBusy(err error) bool {
	_, ok := errors.Cause(err).(*BusyError)
	return ok
}

// A command is not valid in the current session state.
type InvalidStateError struct {
	Text string
}

func NewInvalidStateError(text string) *InvalidStateError {
	return &InvalidStateError{Text: text}
}

func FmtInvalidStateError(format string,
	args ...interface{}) *InvalidStateError {

	return NewInvalidStateError(fmt.Sprintf(format, args...))
}

func (e *InvalidStateError) Error() string {
	return e.Text
}

func IsInvalidState(err error) bool {
	_, ok := errors.Cause(err).(*InvalidStateError)
	return ok
}

type UnknownDeviceError struct {
	Text string
	Id   string
}

func NewUnknownDeviceError(id string) *UnknownDeviceError {
	return &UnknownDeviceError{
		Text: fmt.Sprintf("unknown device: %s", id),
		Id:   id,
	}
}

func (e *UnknownDeviceError) Error() string {
	return e.Text
}

func IsUnknownDevice(err error) bool {
	_, ok := errors.Cause(err).(*UnknownDeviceError)
	return ok
}

// An error reported by the provisioning protocol engine, either decoded from
// the peer or raised by the codec itself.
type ProtocolError struct {
	Text string
	Code int
}

func NewProtocolError(code int, text string) *ProtocolError {
	return &ProtocolError{
		Text: text,
		Code: code,
	}
}

func FmtProtocolError(code int, format string,
	args ...interface{}) *ProtocolError {

	return NewProtocolError(code, fmt.Sprintf(format, args...))
}

func (e *ProtocolError) Error() string {
	return e.Text
}

func IsProtocol(err error) bool {
	_, ok := errors.Cause(err).(*ProtocolError)
	return ok
}

func ToProtocol(err error) *ProtocolError {
	if perr, ok := errors.Cause(err).(*ProtocolError); ok {
		return perr
	} else {
		return nil
	}
}

// Represents a low-level transport error.
type XportError struct {
	Text string
}

func NewXportError(text string) *XportError {
	return &XportError{text}
}

func FmtXportError(format string, args ...interface{}) *XportError {
	return NewXportError(fmt.Sprintf(format, args...))
}

func (e *XportError) Error() string {
	return e.Text
}

func IsXport(err error) bool {
	if err == nil {
		return false
	}

	_, ok := errors.Cause(err).(*XportError)
	return ok
}
