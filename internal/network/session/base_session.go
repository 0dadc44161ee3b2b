package session

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	network "github.com/lk2023060901/danmu-chatroom-go/internal/network"
	"github.com/lk2023060901/danmu-chatroom-go/internal/network/codec"
	"github.com/lk2023060901/danmu-chatroom-go/internal/network/framer"
	"github.com/lk2023060901/danmu-chatroom-go/internal/pool/ringbuffer"
	"github.com/lk2023060901/danmu-chatroom-go/pkg/log"
	"github.com/lk2023060901/danmu-chatroom-go/pkg/metrics"
	"github.com/lk2023060901/danmu-chatroom-go/pkg/util/merr"
)

const (
	// DefaultSendQueueSize 为每个会话的发送队列容量。
	DefaultSendQueueSize = 1024
	// DefaultReadBufferSize 为单次从连接读取的字节数。
	DefaultReadBufferSize = 4096
)

// Options 描述单个会话的收发参数。
type Options struct {
	// SendQueueSize 为发送队列容量，队列满时该连接被视为慢消费者。
	SendQueueSize int
	// WriteTimeout 为单次写出的超时时间，为 0 表示不设置 deadline。
	WriteTimeout time.Duration
	// ReadBufferSize 为单次 Read 使用的临时缓冲区大小。
	ReadBufferSize int
}

func (o Options) withDefaults() Options {
	if o.SendQueueSize <= 0 {
		o.SendQueueSize = DefaultSendQueueSize
	}
	if o.ReadBufferSize <= 0 {
		o.ReadBufferSize = DefaultReadBufferSize
	}
	return o
}

// BaseSession 提供了 Session 接口的基础实现。
//
// 每个会话拥有一个专职写协程，所有写出都在该协程中串行执行，
// 避免多 goroutine 并发写 conn 导致的报文交叉。
type BaseSession struct {
	id uint64

	ctx    context.Context
	cancel context.CancelFunc

	conn  net.Conn
	codec codec.Codec
	opts  Options

	remoteAddr net.Addr
	localAddr  net.Addr

	// recvBuf 存放尚未组成完整帧的字节，只由当前调用 Recv 的协程访问。
	recvBuf *ringbuffer.RingBuffer
	readBuf []byte
	readErr error

	sendQueue chan codec.Message

	closing   atomic.Bool
	closeCh   chan struct{}
	closeOnce sync.Once
	done      chan struct{}
}

// 确保 BaseSession 实现了 Session 接口。
var _ Session = (*BaseSession)(nil)

// NewBaseSession 创建一个基于 net.Conn 的基础 Session 实例，并启动写协程。
//
// parent 取消时会话直接释放，不再写出排队中的消息。
func NewBaseSession(parent context.Context, id uint64, conn net.Conn, c codec.Codec, opts Options) *BaseSession {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	opts = opts.withDefaults()

	s := &BaseSession{
		id:         id,
		ctx:        ctx,
		cancel:     cancel,
		conn:       conn,
		codec:      c,
		opts:       opts,
		remoteAddr: conn.RemoteAddr(),
		localAddr:  conn.LocalAddr(),
		recvBuf:    ringbuffer.Get(),
		readBuf:    make([]byte, opts.ReadBufferSize),
		sendQueue:  make(chan codec.Message, opts.SendQueueSize),
		closeCh:    make(chan struct{}),
		done:       make(chan struct{}),
	}
	metrics.OpenConnections.Inc()

	// 上下文结束时让阻塞中的读写立即返回。
	context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	go s.writeLoop()

	return s
}

// ID 实现 Session.ID。
func (s *BaseSession) ID() uint64 {
	return s.id
}

// Context 实现 Session.Context。
func (s *BaseSession) Context() context.Context {
	return s.ctx
}

// RemoteAddr 实现 Session.RemoteAddr。
func (s *BaseSession) RemoteAddr() net.Addr {
	return s.remoteAddr
}

// LocalAddr 实现 Session.LocalAddr。
func (s *BaseSession) LocalAddr() net.Addr {
	return s.localAddr
}

// Conn 返回底层连接，仅用于设置读超时等连接级操作。
func (s *BaseSession) Conn() net.Conn {
	return s.conn
}

// Send 实现 Session.Send。
func (s *BaseSession) Send(msg codec.Message) error {
	if s.closing.Load() {
		return network.ErrSessionClosed
	}
	select {
	case s.sendQueue <- msg:
		return nil
	default:
		return merr.WrapErrSendQueueFull(s.id, cap(s.sendQueue))
	}
}

// Recv 实现 Session.Recv。
//
// 返回值：
//   - 解码失败时帧已被消费，返回包装了 network.ErrDecodeFailed 的错误，会话仍可继续读取；
//   - 返回 network.ErrFrameTooLarge 或 I/O 错误时，会话不再可读。
func (s *BaseSession) Recv() (codec.Message, error) {
	if s.recvBuf == nil {
		return codec.Message{}, network.ErrSessionClosed
	}
	for {
		msg, err := s.codec.DecodeBuffered(s.recvBuf)
		if !errors.Is(err, framer.ErrIncompleteFrame) {
			return msg, err
		}
		if s.readErr != nil {
			return codec.Message{}, s.readErr
		}

		n, err := s.conn.Read(s.readBuf)
		if n > 0 {
			_, _ = s.recvBuf.Write(s.readBuf[:n])
		}
		switch {
		case err != nil:
			// 先把已读到的字节交给解码，下一轮再返回错误。
			s.readErr = err
		case n == 0:
			s.readErr = io.EOF
		}
	}
}

// Recycle 将接收缓冲区归还到对象池，之后不得再调用 Recv。
// 必须由最后一个调用 Recv 的协程调用。
func (s *BaseSession) Recycle() {
	if s.recvBuf != nil {
		ringbuffer.Put(s.recvBuf)
		s.recvBuf = nil
	}
	if s.readErr == nil {
		s.readErr = network.ErrSessionClosed
	}
}

// Close 实现 Session.Close。
//
// Close 不会阻塞调用方：排队消息由写协程在后台写完，之后关闭连接。
// 需要等待连接真正关闭时使用 Done。
func (s *BaseSession) Close() error {
	s.closeOnce.Do(func() {
		s.closing.Store(true)
		close(s.closeCh)
	})
	return nil
}

// Done 在底层连接关闭后被关闭。
func (s *BaseSession) Done() <-chan struct{} {
	return s.done
}

// writeLoop 为每个会话启动的专职写协程。
func (s *BaseSession) writeLoop() {
	defer s.release()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.closeCh:
			s.drain()
			return
		case msg := <-s.sendQueue:
			if err := s.write(msg); err != nil {
				log.Ctx(s.ctx).Debug("session write failed",
					log.FieldSession(s.id),
					zap.String("stage", string(network.StageSend)),
					zap.Error(err))
				return
			}
		}
	}
}

// drain 写出关闭前已排队的消息，任意一次写失败即放弃剩余消息。
func (s *BaseSession) drain() {
	for {
		select {
		case msg := <-s.sendQueue:
			if err := s.write(msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (s *BaseSession) write(msg codec.Message) error {
	if s.opts.WriteTimeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout)); err != nil {
			return fmt.Errorf("%w: %w", network.ErrSendFailed, err)
		}
	}
	if err := s.codec.Encode(s.conn, msg); err != nil {
		return fmt.Errorf("%w: %w", network.ErrSendFailed, err)
	}
	return nil
}

// release 关闭底层连接并取消上下文，只会执行一次（仅由写协程调用）。
func (s *BaseSession) release() {
	s.closing.Store(true)
	_ = s.conn.Close()
	s.cancel()
	metrics.OpenConnections.Dec()
	close(s.done)
}
