package connector

import (
	"context"
	"net"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/lk2023060901/danmu-chatroom-go/internal/network/codec"
	"github.com/lk2023060901/danmu-chatroom-go/internal/network/session"
	"github.com/lk2023060901/danmu-chatroom-go/pkg/log"
	"github.com/lk2023060901/danmu-chatroom-go/pkg/util/merr"
	"github.com/lk2023060901/danmu-chatroom-go/pkg/util/retry"
)

// Config 描述客户端连接的基础配置。
type Config struct {
	// Session 为连接建立后的收发参数。
	Session session.Options

	// DialTimeout 为单次拨号的超时时间。
	DialTimeout time.Duration
	// Attempts 为最大拨号次数，默认 1 次。
	Attempts uint
	// RetryInterval 为首次重试前的等待时间，之后按指数增长。
	RetryInterval time.Duration

	// Codec 为当前连接使用的编解码器。
	Codec codec.Codec
}

func defaultConfig() Config {
	return Config{
		DialTimeout:   5 * time.Second,
		Attempts:      1,
		RetryInterval: 200 * time.Millisecond,
	}
}

// Connector 抽象了客户端的拨号器。
type Connector interface {
	Dial(ctx context.Context, addr string) (session.Session, error)
}

// tcpConnector 是基于 TCP 的默认 Connector 实现。
type tcpConnector struct {
	cfg Config
}

// NewTCPConnector 创建一个基于 TCP 的 Connector。
func NewTCPConnector(cfg Config) (Connector, error) {
	def := defaultConfig()
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = def.DialTimeout
	}
	if cfg.Attempts == 0 {
		cfg.Attempts = def.Attempts
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = def.RetryInterval
	}
	if cfg.Codec == nil {
		return nil, merr.WrapErrParameterMissing("codec")
	}
	return &tcpConnector{cfg: cfg}, nil
}

// Dial 拨号直到成功、次数用尽或 ctx 结束，地址本身无效时不再重试。
// 返回的会话与服务器侧使用同一套发送队列与分帧逻辑，ID 恒为 0。
func (c *tcpConnector) Dial(ctx context.Context, addr string) (session.Session, error) {
	dialer := &net.Dialer{Timeout: c.cfg.DialTimeout}

	var conn net.Conn
	err := retry.Handle(ctx, func() (bool, error) {
		var err error
		conn, err = dialer.DialContext(ctx, "tcp", addr)
		return dialRetryable(err), err
	}, retry.Attempts(c.cfg.Attempts), retry.Sleep(c.cfg.RetryInterval))
	if err != nil {
		return nil, errors.Wrapf(err, "connector: dial %s", addr)
	}

	log.Ctx(ctx).Debug("connected", zap.String("addr", addr), zap.Stringer("local", conn.LocalAddr()))
	return session.NewBaseSession(ctx, 0, conn, c.cfg.Codec, c.cfg.Session), nil
}

// dialRetryable 判断拨号失败是否可能在稍后成功，例如服务器尚未开始监听。
func dialRetryable(err error) bool {
	var addrErr *net.AddrError
	if errors.As(err, &addrErr) {
		return false
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsTimeout || dnsErr.IsTemporary
	}
	return true
}
