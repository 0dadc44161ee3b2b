package chat

import (
	"time"
	"unicode/utf8"

	"github.com/lk2023060901/danmu-chatroom-go/pkg/util/merr"
)

// DefaultMaxUsernameLen 是用户名允许的最大字符数。
const DefaultMaxUsernameLen = 25

// ClientSession 记录一个已登录连接的用户名与状态。
type ClientSession struct {
	ConnID   uint64
	Username string
	State    State
	LoginAt  time.Time
}

// SessionTable 维护连接 ID 与用户名之间的双向映射。
// 只在 reactor 协程中访问，不加锁。
type SessionTable struct {
	byConn     map[uint64]*ClientSession
	byName     map[string]uint64
	maxNameLen int
}

// NewSessionTable 创建会话表，maxNameLen <= 0 时使用 DefaultMaxUsernameLen。
func NewSessionTable(maxNameLen int) *SessionTable {
	if maxNameLen <= 0 {
		maxNameLen = DefaultMaxUsernameLen
	}
	return &SessionTable{
		byConn:     make(map[uint64]*ClientSession),
		byName:     make(map[string]uint64),
		maxNameLen: maxNameLen,
	}
}

// Validate 检查用户名是否可以登录。
func (t *SessionTable) Validate(username string) error {
	if username == "" {
		return merr.WrapErrUsernameEmpty()
	}
	if n := utf8.RuneCountInString(username); n > t.maxNameLen {
		return merr.WrapErrUsernameTooLong(n, t.maxNameLen)
	}
	if _, ok := t.byName[username]; ok {
		return merr.WrapErrUsernameTaken(username)
	}
	return nil
}

// Login 为连接注册会话，成功后会话处于 SelectingChatroom 状态。
func (t *SessionTable) Login(connID uint64, username string) (*ClientSession, error) {
	if s, ok := t.byConn[connID]; ok {
		return nil, merr.WrapErrAlreadyLoggedIn(connID, s.Username)
	}
	if err := t.Validate(username); err != nil {
		return nil, err
	}
	s := &ClientSession{
		ConnID:   connID,
		Username: username,
		State:    StateSelectingChatroom,
		LoginAt:  time.Now(),
	}
	t.byConn[connID] = s
	t.byName[username] = connID
	return s, nil
}

// Get 返回连接对应的会话。
func (t *SessionTable) Get(connID uint64) (*ClientSession, bool) {
	s, ok := t.byConn[connID]
	return s, ok
}

// Lookup 按用户名查找连接 ID。
func (t *SessionTable) Lookup(username string) (uint64, bool) {
	id, ok := t.byName[username]
	return id, ok
}

// Username 返回连接的用户名，未登录时返回空串。
func (t *SessionTable) Username(connID uint64) string {
	if s, ok := t.byConn[connID]; ok {
		return s.Username
	}
	return ""
}

// Discard 删除会话并释放用户名，返回被删除的会话。
func (t *SessionTable) Discard(connID uint64) (*ClientSession, error) {
	s, ok := t.byConn[connID]
	if !ok {
		return nil, merr.WrapErrSessionNotFound(connID)
	}
	delete(t.byConn, connID)
	delete(t.byName, s.Username)
	return s, nil
}

// Len 返回已登录会话数量。
func (t *SessionTable) Len() int {
	return len(t.byConn)
}
