// Copyright (C) 2019-2020 Zilliz. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software distributed under the License
// is distributed on an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express
// or implied. See the License for the specific language governing permissions and limitations under the License.

package retry

import (
	"context"
	"runtime"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/lk2023060901/danmu-chatroom-go/pkg/log"
	"github.com/lk2023060901/danmu-chatroom-go/pkg/util/merr"
)

func getCaller(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "unknown"
	}
	return file + ":" + strconv.Itoa(line)
}

// Do 反复执行 fn，直到成功、次数用尽、ctx 结束或遇到不可重试的错误。
// 被 Unrecoverable 包装的错误，以及 RetryErr 判定为 false 的错误会立即返回。
func Do(ctx context.Context, fn func() error, opts ...Option) error {
	c := newConfig(opts)
	return run(ctx, c, func() (bool, error) {
		err := fn()
		if err == nil {
			return false, nil
		}
		retryable := IsRecoverable(err) && (c.isRetryErr == nil || c.isRetryErr(err))
		return retryable, err
	})
}

// Handle 与 Do 相同，但由 fn 自己给出本次失败是否值得重试。
func Handle(ctx context.Context, fn func() (bool, error), opts ...Option) error {
	return run(ctx, newConfig(opts), fn)
}

func newConfig(opts []Option) *config {
	c := newDefaultConfig()
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func run(ctx context.Context, c *config, fn func() (bool, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	logger := log.Ctx(ctx).With(zap.String("caller", getCaller(3)))

	var lastErr error
	for i := uint(0); c.attempts == 0 || i < c.attempts; i++ {
		shouldRetry, err := fn()
		if err == nil {
			return nil
		}
		if i%4 == 0 {
			logger.Warn("retry func failed", zap.Uint("retried", i), zap.Error(err))
		}

		if !shouldRetry {
			logger.Warn("retry func failed, not retryable", zap.Uint("retried", i), zap.Uint("attempt", c.attempts))
			return finalErr(err, lastErr)
		}
		if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < c.sleep {
			logger.Warn("retry func failed, deadline", zap.Uint("retried", i), zap.Uint("attempt", c.attempts))
			return finalErr(err, lastErr)
		}
		lastErr = err

		select {
		case <-time.After(c.sleep):
		case <-ctx.Done():
			logger.Warn("retry func failed, ctx done", zap.Uint("retried", i), zap.Uint("attempt", c.attempts))
			return lastErr
		}
		c.sleep = min(c.sleep*2, c.maxSleepTime)
	}
	logger.Warn("retry func failed, reach max retry", zap.Uint("attempt", c.attempts))
	return lastErr
}

// finalErr 在 fn 因上下文结束而失败时返回上一次的真实错误。
func finalErr(err, lastErr error) error {
	if lastErr != nil && errors.IsAny(err, context.Canceled, context.DeadlineExceeded) {
		return lastErr
	}
	return err
}

// errUnrecoverable 表示不可恢复错误的标记实例。
var errUnrecoverable = errors.New("unrecoverable error")

// Unrecoverable 将错误包装为不可恢复错误，使重试逻辑能够快速返回。
func Unrecoverable(err error) error {
	return merr.Combine(err, errUnrecoverable)
}

// IsRecoverable 判断给定错误是否为“可恢复”错误。
func IsRecoverable(err error) bool {
	return !errors.Is(err, errUnrecoverable)
}
