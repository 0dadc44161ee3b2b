package session

import (
	"context"
	"net"

	"github.com/lk2023060901/danmu-chatroom-go/internal/network/codec"
)

// Session 抽象了一条网络会话/连接。
//
// 约定：
//   - 每个 Session 对应一条底层 TCP 连接；
//   - Session ID 使用 64 位无符号整型，在进程内保持唯一；
//   - 会话层只关心连接本身，不关心“用户名/聊天室”等业务概念。
type Session interface {
	// ID 返回该会话在进程内的唯一标识。
	ID() uint64

	// Context 返回与该会话关联的上下文，会话释放后 Done 被关闭。
	Context() context.Context

	// RemoteAddr 返回远端地址（客户端地址）。
	RemoteAddr() net.Addr

	// LocalAddr 返回本端地址（服务器监听地址）。
	LocalAddr() net.Addr

	// Send 将消息投递到会话的发送队列，不会阻塞调用方。
	//
	// 队列已满时返回 merr.ErrSendQueueFull，会话已关闭时返回 network.ErrSessionClosed。
	Send(msg codec.Message) error

	// Recv 阻塞读取下一条完整消息。同一时刻只允许一个协程调用。
	Recv() (codec.Message, error)

	// Close 关闭会话：先尽量写完已排队的消息，再关闭底层连接。
	// 多次调用是幂等的。
	Close() error
}

// Outbox 是业务层向连接发送消息、关闭连接的唯一出口。
//
// 由持有会话表的组件实现，业务层只通过连接 ID 寻址，不直接接触 Session。
type Outbox interface {
	// Send 向指定连接发送一条消息。
	Send(id uint64, msg codec.Message) error

	// Close 关闭指定连接，已排队的消息仍会被写出。
	Close(id uint64) error
}
