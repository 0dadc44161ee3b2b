package reactor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	network "github.com/lk2023060901/danmu-chatroom-go/internal/network"
	"github.com/lk2023060901/danmu-chatroom-go/internal/network/codec"
	"github.com/lk2023060901/danmu-chatroom-go/internal/network/session"
	"github.com/lk2023060901/danmu-chatroom-go/pkg/log"
	"github.com/lk2023060901/danmu-chatroom-go/pkg/metrics"
	"github.com/lk2023060901/danmu-chatroom-go/pkg/util/merr"
)

// Handler 由业务层实现，所有回调都在 reactor 协程中串行执行。
type Handler interface {
	// OnLogin 处理连接发来的第一条消息。
	// 返回非 nil 表示登录被拒绝，reactor 不会为该连接启动读协程。
	OnLogin(out session.Outbox, id uint64, msg codec.Message) error

	// OnMessage 处理已登录连接的一条消息。
	OnMessage(out session.Outbox, id uint64, msg codec.Message)

	// OnDisconnect 在连接断开后被调用一次，cause 为断开原因。
	OnDisconnect(out session.Outbox, id uint64, cause error)
}

type eventKind int

const (
	eventAdmit eventKind = iota
	eventMessage
	eventDisconnect
	eventCall
)

type event struct {
	kind  eventKind
	id    uint64
	sess  *session.BaseSession
	msg   codec.Message
	cause error
	fn    func()
	reply chan error
}

// DefaultEventQueueSize 为事件通道的默认容量。
const DefaultEventQueueSize = 4096

var (
	// ErrStopped 表示 reactor 已停止，不再接受事件。
	ErrStopped = errors.New("reactor: stopped")
	// ErrLoginRejected 表示连接的登录请求被业务层拒绝。
	ErrLoginRejected = errors.New("reactor: login rejected")
)

// Reactor 是单消费者的事件循环，是唯一修改业务状态的协程。
//
// 事件来源：
//   - 登录握手协程通过 Admit 投递接纳事件；
//   - 每个已接纳连接的读协程投递消息与断开事件；
//   - 管理接口通过 Call 在 reactor 协程中读取快照。
type Reactor struct {
	log.Binder

	handler  Handler
	sessions session.SessionManager
	events   chan event

	running  atomic.Bool
	stopping chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
	readers  sync.WaitGroup
}

// Option 用于配置 Reactor。
type Option func(r *Reactor)

// WithEventQueueSize 设置事件通道容量。
func WithEventQueueSize(size int) Option {
	return func(r *Reactor) {
		if size > 0 {
			r.events = make(chan event, size)
		}
	}
}

// WithSessionManager 使用外部的 SessionManager 作为连接索引。
func WithSessionManager(m session.SessionManager) Option {
	return func(r *Reactor) {
		r.sessions = m
	}
}

// New 创建一个 Reactor。
func New(h Handler, opts ...Option) *Reactor {
	r := &Reactor{
		handler:  h,
		sessions: session.NewBaseSessionManager(),
		events:   make(chan event, DefaultEventQueueSize),
		stopping: make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.BindComponent("reactor")
	return r
}

// Sessions 返回连接索引。
func (r *Reactor) Sessions() session.SessionManager {
	return r.sessions
}

// Run 消费事件直到 ctx 结束。
// 退出前关闭所有已接纳的连接并等待读协程结束。
func (r *Reactor) Run(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return errors.New("reactor: already running")
	}
	r.Logger().Info("reactor started")

	for {
		select {
		case <-ctx.Done():
			r.shutdown()
			return nil
		case ev := <-r.events:
			r.handle(ev)
		}
	}
}

func (r *Reactor) shutdown() {
	r.stopOnce.Do(func() { close(r.stopping) })

	closed := 0
	r.sessions.Range(func(sess session.Session) bool {
		_ = sess.Close()
		_ = r.sessions.Unregister(sess.ID())
		closed++
		return true
	})
	metrics.OnlineSessions.Set(0)
	r.readers.Wait()

	// 握手协程可能仍在等待接纳结果。
	for {
		select {
		case ev := <-r.events:
			if ev.kind == eventAdmit {
				_ = ev.sess.Close()
			}
			if ev.reply != nil {
				ev.reply <- ErrStopped
			}
		default:
			close(r.stopped)
			r.Logger().Info("reactor stopped", zap.Int("closedSessions", closed))
			return
		}
	}
}

func (r *Reactor) handle(ev event) {
	switch ev.kind {
	case eventAdmit:
		ev.reply <- r.admit(ev.sess, ev.msg)
	case eventMessage:
		if _, ok := r.sessions.Get(ev.id); !ok {
			return
		}
		start := time.Now()
		r.handler.OnMessage(r, ev.id, ev.msg)
		label := ev.msg.Type.String()
		if !ev.msg.Type.Valid() {
			label = "UNKNOWN"
		}
		metrics.ReceivedMessages.WithLabelValues(label).Inc()
		metrics.DispatchLatency.WithLabelValues(label).Observe(float64(time.Since(start).Microseconds()) / 1000)
	case eventDisconnect:
		r.disconnect(ev.id, ev.cause)
	case eventCall:
		ev.fn()
		ev.reply <- nil
	}
}

func (r *Reactor) admit(sess *session.BaseSession, msg codec.Message) error {
	id := sess.ID()
	if err := r.sessions.Register(sess); err != nil {
		_ = sess.Close()
		return err
	}

	if err := r.handler.OnLogin(r, id, msg); err != nil {
		_ = sess.Close()
		_ = r.sessions.Unregister(id)
		return fmt.Errorf("%w: %w", ErrLoginRejected, err)
	}
	metrics.OnlineSessions.Set(float64(r.sessions.Count()))

	r.readers.Add(1)
	go r.readLoop(sess)
	return nil
}

func (r *Reactor) disconnect(id uint64, cause error) {
	sess, ok := r.sessions.Get(id)
	if !ok {
		return
	}
	r.handler.OnDisconnect(r, id, cause)
	_ = sess.Close()
	_ = r.sessions.Unregister(id)
	metrics.OnlineSessions.Set(float64(r.sessions.Count()))
	r.Logger().Debug("session released", log.FieldSession(id), zap.NamedError("cause", cause))
}

// readLoop 是每个已接纳连接的读协程，按顺序把解码结果投递给 reactor。
func (r *Reactor) readLoop(sess *session.BaseSession) {
	defer r.readers.Done()
	defer sess.Recycle()

	id := sess.ID()
	logger := r.Logger().With(log.FieldSession(id)).WithRateGroup("reactor.decode", 1, 10)
	for {
		msg, err := sess.Recv()
		switch {
		case err == nil:
		case errors.Is(err, network.ErrDecodeFailed):
			metrics.DecodeFailures.Inc()
			logger.RatedWarn(1, "decode message failed, substituted",
				zap.String("stage", string(network.StageDecode)), zap.Error(err))
			msg = codec.InvalidMessage
		default:
			if errors.Is(err, network.ErrFrameTooLarge) {
				logger.Warn("frame too large, closing connection",
					zap.String("stage", string(network.StageFrame)), zap.Error(err))
			}
			r.post(event{kind: eventDisconnect, id: id, cause: err})
			return
		}
		if !r.post(event{kind: eventMessage, id: id, msg: msg}) {
			return
		}
	}
}

// post 投递事件，reactor 停止后返回 false。
func (r *Reactor) post(ev event) bool {
	select {
	case r.events <- ev:
		return true
	case <-r.stopping:
		return false
	}
}

// Admit 把完成握手的连接交给 reactor，阻塞直到业务层给出登录结果。
func (r *Reactor) Admit(ctx context.Context, sess *session.BaseSession, msg codec.Message) error {
	return r.request(ctx, event{kind: eventAdmit, sess: sess, msg: msg, reply: make(chan error, 1)})
}

// Call 在 reactor 协程中执行 fn 并等待其返回，用于读取业务状态快照。
func (r *Reactor) Call(ctx context.Context, fn func()) error {
	return r.request(ctx, event{kind: eventCall, fn: fn, reply: make(chan error, 1)})
}

func (r *Reactor) request(ctx context.Context, ev event) error {
	select {
	case <-r.stopping:
		return ErrStopped
	default:
	}

	select {
	case r.events <- ev:
	case <-r.stopping:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-ev.reply:
		return err
	case <-r.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send 实现 session.Outbox。
// 发送队列已满的连接会被关闭，随后由其读协程触发正常的断开流程。
func (r *Reactor) Send(id uint64, msg codec.Message) error {
	sess, ok := r.sessions.Get(id)
	if !ok {
		return merr.WrapErrSessionNotFound(id)
	}
	err := sess.Send(msg)
	if errors.Is(err, merr.ErrSendQueueFull) {
		metrics.SlowConsumers.Inc()
		r.Logger().Warn("send queue full, closing slow consumer", log.FieldSession(id))
		_ = sess.Close()
	}
	return err
}

// Close 实现 session.Outbox。
func (r *Reactor) Close(id uint64) error {
	sess, ok := r.sessions.Get(id)
	if !ok {
		return merr.WrapErrSessionNotFound(id)
	}
	return sess.Close()
}

var _ session.Outbox = (*Reactor)(nil)
