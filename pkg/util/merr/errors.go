// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package merr

import (
	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
)

const (
	CanceledCode int32 = 10000
	TimeoutCode  int32 = 10001
)

type ErrorType int32

const (
	SystemError ErrorType = 0
	InputError  ErrorType = 1
)

var ErrorTypeName = map[ErrorType]string{
	SystemError: "system_error",
	InputError:  "input_error",
}

func (err ErrorType) String() string {
	return ErrorTypeName[err]
}

// Define leaf errors here,
// WARN: take care to add new error,
// check whether you can use the errors below before adding a new one.
// Name: Err + related prefix + error name
var (
	// Service related
	ErrServiceNotReady        = newChatError("service not ready", 1, true)
	ErrServiceUnavailable     = newChatError("service unavailable", 2, true)
	ErrServiceTooManyRequests = newChatError("too many concurrent requests, queue is full", 4, true)
	ErrServiceInternal        = newChatError("service internal error", 5, false)

	// Room related
	ErrRoomNotFound      = newChatError("chatroom not found", 100, false, WithErrorType(InputError))
	ErrRoomAlreadyExists = newChatError("chatroom already exists", 101, false, WithErrorType(InputError))
	ErrRoomNameInvalid   = newChatError("invalid chatroom name", 102, false, WithErrorType(InputError))

	// Membership related
	ErrAlreadyInRoom = newChatError("already in a chatroom", 200, false, WithErrorType(InputError))
	ErrNotInRoom     = newChatError("not in a chatroom", 201, false, WithErrorType(InputError))

	// Session related
	ErrSessionNotFound  = newChatError("session not found", 300, false)
	ErrUsernameTaken    = newChatError("username already taken", 301, false, WithErrorType(InputError))
	ErrUsernameTooLong  = newChatError("username too long", 302, false, WithErrorType(InputError))
	ErrUsernameEmpty    = newChatError("username is empty", 303, false, WithErrorType(InputError))
	ErrAlreadyLoggedIn  = newChatError("already logged in", 304, false, WithErrorType(InputError))
	ErrSessionDuplicate = newChatError("session reduplicates", 305, false)

	// IO related
	ErrIoFailed      = newChatError("IO failed", 1001, false)
	ErrIoUnexpectEOF = newChatError("unexpected EOF", 1002, true)

	// Parameter related
	ErrParameterInvalid  = newChatError("invalid parameter", 1100, false, WithErrorType(InputError))
	ErrParameterMissing  = newChatError("missing parameter", 1101, false, WithErrorType(InputError))
	ErrParameterTooLarge = newChatError("parameter too large", 1102, false, WithErrorType(InputError))

	// Protocol related
	ErrMessageMalformed   = newChatError("malformed message", 1200, false, WithErrorType(InputError))
	ErrMessageTypeUnknown = newChatError("unknown message type", 1201, false, WithErrorType(InputError))
	ErrSendQueueFull      = newChatError("send queue is full", 1202, true)

	// Do NOT export this,
	// never allow programmer using this, keep only for converting unknown error to chatError
	errUnexpected = newChatError("unexpected error", (1<<16)-1, false)

	// General
	ErrOperationNotSupported = newChatError("unsupported operation", 3000, false)
)

type errorOption func(*chatError)

func WithDetail(detail string) errorOption {
	return func(err *chatError) {
		err.detail = detail
	}
}

func WithErrorType(etype ErrorType) errorOption {
	return func(err *chatError) {
		err.errType = etype
	}
}

type chatError struct {
	msg       string
	detail    string
	retriable bool
	errCode   int32
	errType   ErrorType
}

func newChatError(msg string, code int32, retriable bool, options ...errorOption) chatError {
	err := chatError{
		msg:       msg,
		detail:    msg,
		retriable: retriable,
		errCode:   code,
	}

	for _, option := range options {
		option(&err)
	}
	return err
}

func (e chatError) code() int32 {
	return e.errCode
}

func (e chatError) Error() string {
	return e.msg
}

func (e chatError) Detail() string {
	return e.detail
}

func (e chatError) Is(err error) bool {
	cause := errors.Cause(err)
	if cause, ok := cause.(chatError); ok {
		return e.errCode == cause.errCode
	}
	return false
}

type multiErrors struct {
	errs []error
}

func (e multiErrors) Unwrap() error {
	if len(e.errs) <= 1 {
		return nil
	}
	// the cause of multi errors is defined as the last error
	if len(e.errs) == 2 {
		return e.errs[1]
	}

	return multiErrors{
		errs: e.errs[1:],
	}
}

func (e multiErrors) Error() string {
	final := e.errs[0]
	for i := 1; i < len(e.errs); i++ {
		final = errors.Wrap(e.errs[i], final.Error())
	}
	return final.Error()
}

func (e multiErrors) Is(err error) bool {
	for _, item := range e.errs {
		if errors.Is(item, err) {
			return true
		}
	}
	return false
}

func Combine(errs ...error) error {
	errs = lo.Filter(errs, func(err error, _ int) bool { return err != nil })
	if len(errs) == 0 {
		return nil
	}
	return multiErrors{
		errs,
	}
}
