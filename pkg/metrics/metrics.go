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

package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// chatNamespace 是当前项目所有 Prometheus 指标使用的命名空间。
	chatNamespace = "chat"

	msgTypeLabelName = "msg_type"
	reasonLabelName  = "reason"
)

var (
	// buckets 为处理耗时直方图的桶划分，单位为毫秒。
	// [0.01 0.02 0.04 ... 163.84]
	buckets = prometheus.ExponentialBuckets(0.01, 2, 15)

	OnlineSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: chatNamespace,
		Name:      "online_sessions",
		Help:      "number of logged-in sessions",
	})

	OpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: chatNamespace,
		Name:      "open_connections",
		Help:      "number of accepted connections not yet released, including those still logging in",
	})

	Rooms = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: chatNamespace,
		Name:      "rooms",
		Help:      "number of chatrooms, empty rooms included",
	})

	ReceivedMessages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: chatNamespace,
		Name:      "received_messages_total",
		Help:      "messages dispatched by the reactor, by message type",
	}, []string{msgTypeLabelName})

	BroadcastDeliveries = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: chatNamespace,
		Name:      "broadcast_deliveries_total",
		Help:      "per-member copies of room broadcasts handed to send queues",
	})

	DecodeFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: chatNamespace,
		Name:      "decode_failures_total",
		Help:      "frames that could not be decoded and were replaced by the invalid message notice",
	})

	LoginRejections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: chatNamespace,
		Name:      "login_rejections_total",
		Help:      "rejected login attempts, by reason",
	}, []string{reasonLabelName})

	SlowConsumers = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: chatNamespace,
		Name:      "slow_consumer_disconnects_total",
		Help:      "connections closed because their send queue was full",
	})

	DispatchLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: chatNamespace,
		Name:      "dispatch_latency_ms",
		Help:      "time spent by the reactor handling one message, in milliseconds",
		Buckets:   buckets,
	}, []string{msgTypeLabelName})

	metricRegisterer prometheus.Registerer
	registerOnce     sync.Once
)

// GetRegisterer 返回全局 Prometheus Registerer。
// 如果尚未通过 Register 显式设置，则返回 prometheus.DefaultRegisterer。
func GetRegisterer() prometheus.Registerer {
	if metricRegisterer == nil {
		return prometheus.DefaultRegisterer
	}
	return metricRegisterer
}

// Register 注册当前定义的所有指标，进程内只生效一次。
func Register(r prometheus.Registerer) {
	registerOnce.Do(func() {
		r.MustRegister(OnlineSessions)
		r.MustRegister(OpenConnections)
		r.MustRegister(Rooms)
		r.MustRegister(ReceivedMessages)
		r.MustRegister(BroadcastDeliveries)
		r.MustRegister(DecodeFailures)
		r.MustRegister(LoginRejections)
		r.MustRegister(SlowConsumers)
		r.MustRegister(DispatchLatency)
		metricRegisterer = r
	})
}
