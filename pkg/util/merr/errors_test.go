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
	"context"
	"os"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/suite"
)

type ErrSuite struct {
	suite.Suite
}

func (s *ErrSuite) TestCode() {
	err := WrapErrRoomNotFound("lobby")
	err = errors.Wrap(err, "failed to join")
	s.ErrorIs(err, ErrRoomNotFound)
	s.Equal(Code(ErrRoomNotFound), Code(err))
	s.Equal(TimeoutCode, Code(context.DeadlineExceeded))
	s.Equal(CanceledCode, Code(context.Canceled))
	s.Equal(errUnexpected.errCode, Code(errUnexpected))
	s.Equal(errUnexpected.errCode, Code(errors.New("plain")))
	s.Equal(int32(0), Code(nil))

	sameCodeErr := newChatError("new error", ErrRoomNotFound.errCode, false)
	s.True(sameCodeErr.Is(ErrRoomNotFound))
}

func (s *ErrSuite) TestErrorType() {
	s.Equal(InputError, GetErrorType(WrapErrUsernameTaken("alice")))
	s.True(IsInputError(errors.Wrap(WrapErrAlreadyInRoom(1, "lobby"), "create")))
	s.Equal(SystemError, GetErrorType(WrapErrServiceInternal("boom")))
	s.Equal(SystemError, GetErrorType(errors.New("plain")))
	s.False(IsInputError(nil))
	s.Equal("input_error", InputError.String())
}

func (s *ErrSuite) TestRetriable() {
	s.True(IsRetryableErr(WrapErrSendQueueFull(3, 1024)))
	s.False(IsRetryableErr(WrapErrRoomNotFound("lobby")))
	s.False(IsRetryableErr(errors.New("plain")))
}

func (s *ErrSuite) TestCanceledOrTimeout() {
	s.True(IsCanceledOrTimeout(errors.Wrap(context.Canceled, "reactor")))
	s.True(IsCanceledOrTimeout(context.DeadlineExceeded))
	s.False(IsCanceledOrTimeout(ErrIoFailed))
}

func (s *ErrSuite) TestMessage() {
	err := WrapErrRoomAlreadyExists("lobby", "create")
	s.Equal("create: chatroom already exists[room=lobby]", err.Error())

	err = WrapErrUsernameTooLong(30, 25)
	s.Contains(err.Error(), "30 out of range 1 <= length <= 25")

	err = WrapErrIoFailed("conn", os.ErrClosed)
	s.Contains(err.Error(), os.ErrClosed.Error())
	s.Nil(WrapErrIoFailed("conn", nil))
}

func (s *ErrSuite) TestWrap() {
	// Service 相关错误。
	s.ErrorIs(WrapErrServiceNotReady("chatserver", "Initializing", "service not ready"), ErrServiceNotReady)
	s.ErrorIs(WrapErrServiceUnavailable("test", "test init"), ErrServiceUnavailable)
	s.ErrorIs(WrapErrTooManyRequests(100, "too many"), ErrServiceTooManyRequests)
	s.ErrorIs(WrapErrServiceInternal("never throw out", "test init"), ErrServiceInternal)

	// Room 相关错误。
	s.ErrorIs(WrapErrRoomNotFound("lobby", "failed to join"), ErrRoomNotFound)
	s.ErrorIs(WrapErrRoomAlreadyExists("lobby", "failed to create"), ErrRoomAlreadyExists)
	s.ErrorIs(WrapErrRoomNameInvalid("", "failed to create"), ErrRoomNameInvalid)

	// Membership 相关错误。
	s.ErrorIs(WrapErrAlreadyInRoom(1, "lobby", "failed to join"), ErrAlreadyInRoom)
	s.ErrorIs(WrapErrNotInRoom(1, "failed to leave"), ErrNotInRoom)

	// Session 相关错误。
	s.ErrorIs(WrapErrSessionNotFound(1, "failed to send"), ErrSessionNotFound)
	s.ErrorIs(WrapErrUsernameTaken("alice", "failed to login"), ErrUsernameTaken)
	s.ErrorIs(WrapErrUsernameTooLong(26, 25, "failed to login"), ErrUsernameTooLong)
	s.ErrorIs(WrapErrUsernameEmpty("failed to login"), ErrUsernameEmpty)
	s.ErrorIs(WrapErrAlreadyLoggedIn(1, "alice", "failed to login"), ErrAlreadyLoggedIn)
	s.ErrorIs(WrapErrSessionDuplicate(1, "failed to admit"), ErrSessionDuplicate)

	// IO 相关错误。
	s.ErrorIs(WrapErrIoFailed("test_key", os.ErrClosed), ErrIoFailed)
	s.ErrorIs(WrapErrIoUnexpectEOF("test_key", os.ErrClosed), ErrIoUnexpectEOF)

	// 参数相关错误。
	s.ErrorIs(WrapErrParameterInvalid(8, 1, "failed to create"), ErrParameterInvalid)
	s.ErrorIs(WrapErrParameterInvalidRange(1, 1<<16, 0, "frame size should be in range"), ErrParameterInvalid)
	s.ErrorIs(WrapErrParameterInvalidMsg("bad %s", "framing"), ErrParameterInvalid)
	s.ErrorIs(WrapErrParameterMissing("server.addr", "no listen address"), ErrParameterMissing)
	s.ErrorIs(WrapErrParameterTooLarge("unit test"), ErrParameterTooLarge)

	// 协议相关错误。
	s.ErrorIs(WrapErrMessageMalformed("missing separator"), ErrMessageMalformed)
	s.ErrorIs(WrapErrMessageTypeUnknown(9), ErrMessageTypeUnknown)
	s.ErrorIs(WrapErrSendQueueFull(1, 8, "slow consumer"), ErrSendQueueFull)

	s.ErrorIs(WrapErrOperationNotSupported("login"), ErrOperationNotSupported)
}

func (s *ErrSuite) TestCombine() {
	var (
		errFirst  = errors.New("first")
		errSecond = errors.New("second")
		errThird  = errors.New("third")
	)

	err := Combine(errFirst, errSecond)
	s.True(errors.Is(err, errFirst))
	s.True(errors.Is(err, errSecond))
	s.False(errors.Is(err, errThird))

	s.Equal("first: second", err.Error())
}

func (s *ErrSuite) TestCombineWithNil() {
	err := errors.New("non-nil")

	err = Combine(nil, err)
	s.NotNil(err)
}

func (s *ErrSuite) TestCombineOnlyNil() {
	err := Combine(nil, nil)
	s.Nil(err)
}

func (s *ErrSuite) TestCombineCode() {
	err := Combine(WrapErrRoomNotFound("a"), WrapErrUsernameTaken("b"))
	s.Equal(Code(ErrUsernameTaken), Code(err))
}

func TestErrors(t *testing.T) {
	suite.Run(t, new(ErrSuite))
}
