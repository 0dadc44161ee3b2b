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

package conc

import (
	"runtime"

	ants "github.com/panjf2000/ants/v2"

	"github.com/lk2023060901/danmu-chatroom-go/pkg/util/merr"
)

// Pool 是对 ants.Pool 的封装，统一任务提交与错误转换。
type Pool struct {
	inner *ants.Pool
	opt   *poolOption
}

// NewPool 创建一个容量为 cap 的协程池，cap <= 0 时使用 GOMAXPROCS。
func NewPool(cap int, opts ...PoolOption) (*Pool, error) {
	if cap <= 0 {
		cap = runtime.GOMAXPROCS(0)
	}
	opt := defaultPoolOption()
	for _, o := range opts {
		o(opt)
	}

	pool, err := ants.NewPool(cap, opt.antsOptions()...)
	if err != nil {
		return nil, merr.WrapErrServiceInternal(err.Error(), "failed to create goroutine pool")
	}

	return &Pool{
		inner: pool,
		opt:   opt,
	}, nil
}

// Submit 提交一个任务到协程池。
// 非阻塞模式下池已满会返回 ErrServiceTooManyRequests。
func (pool *Pool) Submit(task func()) error {
	err := pool.inner.Submit(func() {
		if pool.opt.preHandler != nil {
			pool.opt.preHandler()
		}
		task()
	})
	switch {
	case err == nil:
		return nil
	case err == ants.ErrPoolOverload:
		return merr.WrapErrTooManyRequests(int32(pool.Cap()), "goroutine pool overloaded")
	case err == ants.ErrPoolClosed:
		return merr.WrapErrServiceUnavailable("goroutine pool closed")
	default:
		return merr.WrapErrServiceInternal(err.Error())
	}
}

// Running 返回当前正在执行任务的 worker 数量。
func (pool *Pool) Running() int {
	return pool.inner.Running()
}

// Cap 返回协程池容量。
func (pool *Pool) Cap() int {
	return pool.inner.Cap()
}

// Free 返回空闲 worker 数量。
func (pool *Pool) Free() int {
	return pool.inner.Free()
}

// Release 释放协程池，之后提交的任务都会失败。
func (pool *Pool) Release() {
	pool.inner.Release()
}
