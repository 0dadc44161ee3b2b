package session

// SessionManager 维护当前所有已接纳连接的索引。
//
// 职责说明：
//   - 只负责会话的注册、查询和移除，不直接创建或关闭底层连接；
//   - 会话的生命周期由 reactor 决定；
//   - 管理员接口可以并发读取，因此实现必须是并发安全的。
type SessionManager interface {
	// Register 将一个已创建好的 Session 注册到管理器中。
	// 当存在相同 ID 的会话时返回 merr.ErrSessionDuplicate。
	Register(sess Session) error

	// Get 根据 session id 查找会话。
	Get(id uint64) (sess Session, ok bool)

	// Unregister 从管理器中移除指定 id 的会话，不负责调用 sess.Close()。
	// 会话不存在时返回 merr.ErrSessionNotFound。
	Unregister(id uint64) error

	// Range 遍历当前所有会话，fn 返回 false 时中断遍历。
	Range(fn func(sess Session) bool)

	// Count 返回当前已注册的会话数量。
	Count() int
}
