package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lk2023060901/danmu-chatroom-go/internal/chat"
	"github.com/lk2023060901/danmu-chatroom-go/internal/network/acceptor"
	"github.com/lk2023060901/danmu-chatroom-go/internal/network/codec"
	"github.com/lk2023060901/danmu-chatroom-go/internal/network/framer"
	"github.com/lk2023060901/danmu-chatroom-go/internal/network/reactor"
	"github.com/lk2023060901/danmu-chatroom-go/internal/network/session"
	"github.com/lk2023060901/danmu-chatroom-go/pkg/log"
	"github.com/lk2023060901/danmu-chatroom-go/pkg/metrics"
)

// adminShutdownTimeout 为管理 HTTP 服务优雅关闭的最长等待时间。
const adminShutdownTimeout = 5 * time.Second

// LoggerProvider 按组件名返回 Logger，用于给各组件绑定独立的日志配置。
type LoggerProvider func(component string) *log.MLogger

// Option 配置 Server。
type Option func(*Server)

// WithLoggers 为 reactor、acceptor、dispatcher 与 admin 绑定 Logger。
func WithLoggers(p LoggerProvider) Option {
	return func(s *Server) {
		s.loggers = p
	}
}

// WithListener 使用已有的 listener 代替 server.addr。
func WithListener(ln net.Listener) Option {
	return func(s *Server) {
		s.ln = ln
	}
}

// Server 组装聊天服务的全部组件。
//
// 组成：
//   - acceptor 接受连接并完成登录握手；
//   - reactor 是唯一修改聊天状态的协程；
//   - dispatcher 实现客户端状态机；
//   - admin 提供指标与调试接口，可选。
type Server struct {
	log.Binder

	cfg     Config
	loggers LoggerProvider
	ln      net.Listener

	dispatcher *chat.Dispatcher
	reactor    *reactor.Reactor
	acceptor   *acceptor.BaseAcceptor
	admin      *adminServer
}

// New 根据配置创建 Server，此时已经开始监听，但尚未接受连接。
func New(cfg Config, opts ...Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Server{cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}
	s.BindComponent("server")

	f, err := framer.New(cfg.Network.Framing, cfg.Network.MaxFrameSize)
	if err != nil {
		return nil, err
	}
	c, err := codec.New(codec.Options{Framer: f})
	if err != nil {
		return nil, err
	}

	metrics.Register(prometheus.DefaultRegisterer)

	s.dispatcher = chat.NewDispatcher(cfg.Chat)
	s.reactor = reactor.New(s.dispatcher, reactor.WithEventQueueSize(cfg.Network.EventQueueSize))

	accCfg := acceptor.Config{
		Session: session.Options{
			SendQueueSize:  cfg.Network.SendQueueSize,
			WriteTimeout:   cfg.Network.WriteTimeout,
			ReadBufferSize: cfg.Network.ReadBufferSize,
		},
		LoginTimeout:     cfg.Network.LoginTimeout,
		HandshakeWorkers: cfg.Network.HandshakeWorkers,
		Welcome:          chat.WelcomeMessage(),
	}
	if s.ln != nil {
		s.acceptor, err = acceptor.NewBaseAcceptor(s.ln, c, s.reactor, accCfg)
	} else {
		s.acceptor, err = acceptor.NewTCPAcceptor(cfg.Server.Addr, c, s.reactor, accCfg)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Metrics.Addr != "" {
		s.admin, err = newAdminServer(cfg.Metrics, s)
		if err != nil {
			_ = s.acceptor.Close()
			return nil, err
		}
	}

	if s.loggers != nil {
		s.reactor.SetLogger(s.loggers("reactor"))
		s.acceptor.SetLogger(s.loggers("acceptor"))
		s.dispatcher.SetLogger(s.loggers("dispatcher"))
		s.SetLogger(s.loggers("server"))
		if s.admin != nil {
			s.admin.SetLogger(s.loggers("admin"))
		}
	}
	return s, nil
}

// Addr 返回聊天端口的实际监听地址。
func (s *Server) Addr() net.Addr {
	return s.acceptor.Addr()
}

// AdminAddr 返回管理端口的实际监听地址，未启用时返回 nil。
func (s *Server) AdminAddr() net.Addr {
	if s.admin == nil {
		return nil
	}
	return s.admin.ln.Addr()
}

// Serve 运行全部组件，阻塞直到 ctx 取消或任一组件失败。
// ctx 取消引起的退出返回 nil。
func (s *Server) Serve(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.reactor.Run(ctx)
	})
	g.Go(func() error {
		return s.acceptor.Serve(ctx)
	})
	if s.admin != nil {
		g.Go(func() error {
			if err := s.admin.srv.Serve(s.admin.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return errors.Wrap(err, "admin: serve")
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), adminShutdownTimeout)
			defer cancel()
			return s.admin.srv.Shutdown(shutdownCtx)
		})
	}

	s.Logger().Info("chat server started",
		zap.Stringer("addr", s.Addr()),
		zap.String("framing", s.cfg.Network.Framing),
		zap.Bool("admin", s.admin != nil))
	err := g.Wait()
	s.Logger().Info("chat server stopped", zap.Error(err))
	return err
}

// Snapshot 在 reactor 协程中读取聊天室视图。
func (s *Server) Snapshot(ctx context.Context) ([]chat.RoomView, error) {
	var views []chat.RoomView
	err := s.reactor.Call(ctx, func() {
		views = s.dispatcher.Snapshot()
	})
	return views, err
}

// OnlineUsers 在 reactor 协程中读取已登录会话数。
func (s *Server) OnlineUsers(ctx context.Context) (int, error) {
	var n int
	err := s.reactor.Call(ctx, func() {
		n = s.dispatcher.SessionCount()
	})
	return n, err
}
