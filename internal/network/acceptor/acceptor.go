package acceptor

import (
	"context"
	"net"
	"time"

	"github.com/lk2023060901/danmu-chatroom-go/internal/network/codec"
	"github.com/lk2023060901/danmu-chatroom-go/internal/network/session"
)

// DefaultHandshakeWorkers 为登录握手协程池的默认容量。
const DefaultHandshakeWorkers = 1024

// Config 描述 Acceptor 的配置。
//
// 说明：
//   - Session 控制每个连接的发送队列容量与写超时；
//   - LoginTimeout 为等待用户名的最长时间，为 0 表示一直等待；
//   - HandshakeWorkers 为同时进行登录握手的连接数上限，超出时新连接被直接关闭；
//   - Welcome 为连接建立后立即发送的欢迎消息，Body 为空时不发送。
type Config struct {
	Session session.Options

	LoginTimeout     time.Duration
	HandshakeWorkers int

	Welcome codec.Message
}

// Admitter 接收完成握手的连接，通常由 reactor 实现。
type Admitter interface {
	// Admit 阻塞直到登录结果产生，返回 nil 表示连接已被接纳，
	// 此后该连接的读取与释放都由 Admitter 负责。
	Admit(ctx context.Context, sess *session.BaseSession, msg codec.Message) error
}

// Acceptor 抽象了服务器侧的 TCP 接入层。
//
// 职责：
//   - 在 listener 上接受连接，对临时性错误按指数退避重试；
//   - 在协程池中完成登录握手，慢速或静默的对端只占用自己的 worker；
//   - 把握手结果交给 Admitter。
type Acceptor interface {
	// Serve 启动接入循环，阻塞直至 ctx 取消或 listener 被关闭。
	Serve(ctx context.Context) error

	// Addr 返回实际监听地址。
	Addr() net.Addr

	// Close 关闭 listener。
	Close() error
}
