package acceptor

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	network "github.com/lk2023060901/danmu-chatroom-go/internal/network"
	"github.com/lk2023060901/danmu-chatroom-go/internal/network/codec"
	"github.com/lk2023060901/danmu-chatroom-go/internal/network/session"
	"github.com/lk2023060901/danmu-chatroom-go/pkg/log"
	"github.com/lk2023060901/danmu-chatroom-go/pkg/metrics"
	"github.com/lk2023060901/danmu-chatroom-go/pkg/util/conc"
	"github.com/lk2023060901/danmu-chatroom-go/pkg/util/merr"
	"github.com/lk2023060901/danmu-chatroom-go/pkg/util/typeutil"
)

// BaseAcceptor 是 Acceptor 接口的基础 TCP 实现。
type BaseAcceptor struct {
	log.Binder

	ln       net.Listener
	codec    codec.Codec
	admitter Admitter
	cfg      Config

	pool    *conc.Pool
	nextID  atomic.Uint64
	pending *typeutil.ConcurrentSet[*session.BaseSession]

	closeOnce sync.Once
}

// 确保 BaseAcceptor 实现了 Acceptor 接口。
var _ Acceptor = (*BaseAcceptor)(nil)

// NewBaseAcceptor 使用已有的 Listener 创建一个基础接入器。
func NewBaseAcceptor(ln net.Listener, c codec.Codec, admitter Admitter, cfg Config) (*BaseAcceptor, error) {
	if ln == nil {
		return nil, merr.WrapErrParameterMissing("listener")
	}
	if c == nil {
		return nil, merr.WrapErrParameterMissing("codec")
	}
	if admitter == nil {
		return nil, merr.WrapErrParameterMissing("admitter")
	}
	if cfg.HandshakeWorkers <= 0 {
		cfg.HandshakeWorkers = DefaultHandshakeWorkers
	}

	pool, err := conc.NewPool(cfg.HandshakeWorkers,
		conc.WithNonBlocking(true),
		conc.WithConcealPanic(true),
		conc.WithExpiryDuration(time.Minute),
	)
	if err != nil {
		return nil, err
	}

	a := &BaseAcceptor{
		ln:       ln,
		codec:    c,
		admitter: admitter,
		cfg:      cfg,
		pool:     pool,
		pending:  typeutil.NewConcurrentSet[*session.BaseSession](),
	}
	a.BindComponent("acceptor")
	return a, nil
}

// NewTCPAcceptor 在给定地址上监听 TCP，并创建一个基础接入器。
func NewTCPAcceptor(addr string, c codec.Codec, admitter Admitter, cfg Config) (*BaseAcceptor, error) {
	if addr == "" {
		return nil, merr.WrapErrParameterMissing("addr")
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "acceptor: listen on %s", addr)
	}
	a, err := NewBaseAcceptor(ln, c, admitter, cfg)
	if err != nil {
		_ = ln.Close()
		return nil, err
	}
	return a, nil
}

// Addr 实现 Acceptor.Addr。
func (a *BaseAcceptor) Addr() net.Addr {
	return a.ln.Addr()
}

// Pending 返回正在进行登录握手的连接数。
func (a *BaseAcceptor) Pending() int {
	return len(a.pending.Collect())
}

// Serve 实现 Acceptor.Serve。
func (a *BaseAcceptor) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = a.Close() })
	defer stop()
	defer a.pool.Release()

	a.Logger().Info("acceptor serving", zap.Stringer("addr", a.ln.Addr()))

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Millisecond
	b.MaxInterval = time.Second
	b.MaxElapsedTime = 0
	b.Reset()

	for {
		conn, err := a.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				a.closePending()
				return nil
			}
			if !isTemporary(err) {
				return errors.Wrap(err, "acceptor: accept failed")
			}

			wait := b.NextBackOff()
			a.Logger().RatedWarn(1, "accept failed, retrying",
				zap.Duration("backoff", wait), zap.Error(err))
			select {
			case <-time.After(wait):
			case <-ctx.Done():
			}
			continue
		}
		b.Reset()

		a.handleConn(ctx, conn)
	}
}

// Close 实现 Acceptor.Close。
func (a *BaseAcceptor) Close() error {
	var err error
	a.closeOnce.Do(func() {
		err = a.ln.Close()
	})
	return err
}

func (a *BaseAcceptor) handleConn(ctx context.Context, conn net.Conn) {
	id := a.nextID.Inc()
	sess := session.NewBaseSession(ctx, id, conn, a.codec, a.cfg.Session)
	a.pending.Insert(sess)

	err := a.pool.Submit(func() {
		defer a.pending.Remove(sess)
		a.handshake(ctx, sess)
	})
	if err != nil {
		a.pending.Remove(sess)
		a.Logger().RatedWarn(1, "handshake rejected, closing connection",
			log.FieldSession(id), zap.Stringer("remote", conn.RemoteAddr()), zap.Error(err))
		_ = sess.Close()
		sess.Recycle()
	}
}

// handshake 发送欢迎消息，读取第一条消息并交给 Admitter。
func (a *BaseAcceptor) handshake(ctx context.Context, sess *session.BaseSession) {
	ctx = log.WithSession(ctx, sess.ID(), sess.RemoteAddr().String())
	logger := log.Ctx(ctx)

	abort := func(err error) {
		logger.Debug("handshake aborted", zap.String("stage", string(network.StageHandshake)), zap.Error(err))
		_ = sess.Close()
		sess.Recycle()
	}

	if a.cfg.Welcome.Body != "" {
		if err := sess.Send(a.cfg.Welcome); err != nil {
			abort(err)
			return
		}
	}

	if a.cfg.LoginTimeout > 0 {
		_ = sess.Conn().SetReadDeadline(time.Now().Add(a.cfg.LoginTimeout))
	}
	msg, err := sess.Recv()
	if a.cfg.LoginTimeout > 0 {
		_ = sess.Conn().SetReadDeadline(time.Time{})
	}
	switch {
	case err == nil:
	case errors.Is(err, network.ErrDecodeFailed):
		metrics.DecodeFailures.Inc()
		msg = codec.InvalidMessage
	default:
		abort(fmt.Errorf("%w: %w", network.ErrHandshakeFailed, err))
		return
	}

	if err := a.admitter.Admit(ctx, sess, msg); err != nil {
		logger.Info("login not admitted", zap.Error(err))
		_ = sess.Close()
		// ctx 结束时 Admit 的结果未知，接收缓冲区可能已交给读协程。
		if !merr.IsCanceledOrTimeout(err) {
			sess.Recycle()
		}
		return
	}
	logger.Debug("connection admitted")
}

func (a *BaseAcceptor) closePending() {
	a.pending.Range(func(sess *session.BaseSession) bool {
		_ = sess.Close()
		return true
	})
}

// isTemporary 判断 Accept 错误是否可以重试，例如文件描述符耗尽。
func isTemporary(err error) bool {
	var te interface{ Temporary() bool }
	if errors.As(err, &te) {
		return te.Temporary()
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
