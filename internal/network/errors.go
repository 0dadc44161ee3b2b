package network

import "errors"

// Stage 表示网络收发链路中的处理阶段。
//
// 主要用于在日志中标记错误发生的位置，便于监控与排查。
type Stage string

const (
	StageHandshake Stage = "handshake"
	StageRecvRaw   Stage = "recv_raw" // 从连接读入原始字节
	StageFrame     Stage = "frame"    // 原始字节 -> 完整帧
	StageDecode    Stage = "decode"   // 帧 -> Message
	StageDispatch  Stage = "dispatch" // Message -> 业务处理
	StageEncode    Stage = "encode"   // Message -> 帧
	StageSend      Stage = "send"     // 写入连接
)

// 统一的错误码常量。
//
// 注意：这些是用于日志/监控的稳定字符串，真正的 error 对象在下面通过 errors.New 构造。
const (
	ErrCodeHandshakeFailed = "network:handshake_failed"
	ErrCodeRecvFailed      = "network:recv_failed"
	ErrCodeDecodeFailed    = "network:decode_failed"
	ErrCodeDispatchFailed  = "network:dispatch_failed"
	ErrCodeEncodeFailed    = "network:encode_failed"
	ErrCodeSendFailed      = "network:send_failed"
	ErrCodeFrameTooLarge   = "network:frame_too_large"
	ErrCodeSessionClosed   = "network:session_closed"
)

var (
	// ErrHandshakeFailed 表示登录握手阶段失败（例如对端在发送用户名前断开）。
	ErrHandshakeFailed = errors.New(ErrCodeHandshakeFailed)

	// ErrRecvFailed 表示在读取底层连接数据时发生错误。
	ErrRecvFailed = errors.New(ErrCodeRecvFailed)

	// ErrDecodeFailed 表示在将帧解码为 Message 时发生错误。
	ErrDecodeFailed = errors.New(ErrCodeDecodeFailed)

	// ErrDispatchFailed 表示在将 Message 分发给业务处理时发生错误。
	ErrDispatchFailed = errors.New(ErrCodeDispatchFailed)

	// ErrEncodeFailed 表示在将 Message 编码为帧时发生错误。
	ErrEncodeFailed = errors.New(ErrCodeEncodeFailed)

	// ErrSendFailed 表示在发送数据到对端时发生错误。
	ErrSendFailed = errors.New(ErrCodeSendFailed)

	// ErrFrameTooLarge 表示帧长度超过上限，该连接必须关闭。
	ErrFrameTooLarge = errors.New(ErrCodeFrameTooLarge)

	// ErrSessionClosed 表示会话已关闭，不再接受发送。
	ErrSessionClosed = errors.New(ErrCodeSessionClosed)
)
