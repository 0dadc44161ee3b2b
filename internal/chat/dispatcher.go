package chat

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/lk2023060901/danmu-chatroom-go/internal/network/codec"
	"github.com/lk2023060901/danmu-chatroom-go/internal/network/reactor"
	"github.com/lk2023060901/danmu-chatroom-go/internal/network/session"
	"github.com/lk2023060901/danmu-chatroom-go/pkg/log"
	"github.com/lk2023060901/danmu-chatroom-go/pkg/metrics"
	"github.com/lk2023060901/danmu-chatroom-go/pkg/util/merr"
)

// Config 是聊天业务层的配置，对应配置文件中的 chat 段。
type Config struct {
	DefaultRoom    string `mapstructure:"default_room"`
	MaxUsernameLen int    `mapstructure:"max_username_len"`
	Mask           string `mapstructure:"mask"`
}

// 登录拒绝原因，作为 chat_login_rejections_total 的标签。
const (
	rejectTaken      = "taken"
	rejectTooLong    = "too_long"
	rejectEmpty      = "empty"
	rejectNotLogin   = "unexpected_type"
	rejectQuit       = "quit"
	rejectDuplicated = "duplicated"
)

var errQuitBeforeLogin = errors.New("chat: quit before login")

// transition 处理某个状态下的一种消息。
// 返回的错误只用于日志和登录结果，回复已经在 transition 内发出。
type transition func(out session.Outbox, c *ClientSession, msg codec.Message) error

// RoomView 是管理接口展示的聊天室视图。
type RoomView struct {
	RoomSnapshot
	Users []string `json:"users"`
}

// Dispatcher 是客户端状态机，实现 reactor.Handler。
//
// 状态转移由 table 描述：当前状态 × 消息类型 → 处理函数。
// 表中没有的组合在 PreLogin 状态下拒绝登录，其余状态回复未知消息。
type Dispatcher struct {
	log.Binder

	sessions *SessionTable
	rooms    *Registry
	table    map[State]map[codec.MessageType]transition
}

// NewDispatcher 创建状态机，默认聊天室随之创建。
func NewDispatcher(cfg Config) *Dispatcher {
	d := &Dispatcher{
		sessions: NewSessionTable(cfg.MaxUsernameLen),
		rooms:    NewRegistry(cfg.DefaultRoom, NewCensor(cfg.Mask)),
	}
	d.BindComponent("dispatcher")
	d.table = map[State]map[codec.MessageType]transition{
		StatePreLogin: {
			codec.Login: d.login,
			codec.Quit:  d.quitBeforeLogin,
		},
		StateSelectingChatroom: {
			codec.Join:   d.join,
			codec.Create: d.create,
			codec.Post:   d.postOutsideRoom,
			codec.Menu:   d.leaveOutsideRoom,
			codec.Login:  d.alreadyLoggedIn,
			codec.Quit:   d.quit,
		},
		StateInChatroom: {
			codec.Post:   d.post,
			codec.Menu:   d.leave,
			codec.Join:   d.alreadyInRoom,
			codec.Create: d.alreadyInRoom,
			codec.Login:  d.alreadyLoggedIn,
			codec.Quit:   d.quit,
		},
	}
	return d
}

// OnLogin 处理连接的第一条消息，只有 LOGIN 能够建立会话。
func (d *Dispatcher) OnLogin(out session.Outbox, id uint64, msg codec.Message) error {
	return d.dispatch(out, &ClientSession{ConnID: id, State: StatePreLogin}, msg)
}

// OnMessage 处理已登录连接的消息。
func (d *Dispatcher) OnMessage(out session.Outbox, id uint64, msg codec.Message) {
	c, ok := d.sessions.Get(id)
	if !ok {
		d.Logger().Debug("message for unknown session dropped", log.FieldSession(id), log.FieldMessage(msg))
		return
	}
	if err := d.dispatch(out, c, msg); err != nil {
		d.Logger().Debug("request rejected",
			log.FieldSession(id), log.FieldUser(c.Username), log.FieldMessage(msg),
			zap.Int32("code", merr.Code(err)), zap.Error(err))
	}
}

// OnDisconnect 在连接断开时清理成员关系与会话。
// 已经通过 QUIT 退出的连接不再处理。
func (d *Dispatcher) OnDisconnect(out session.Outbox, id uint64, cause error) {
	c, ok := d.sessions.Get(id)
	if !ok {
		return
	}
	d.teardown(out, c)
	d.Logger().Info("user disconnected", log.FieldSession(id), log.FieldUser(c.Username), zap.NamedError("cause", cause))
}

func (d *Dispatcher) dispatch(out session.Outbox, c *ClientSession, msg codec.Message) error {
	return d.lookup(c.State, msg.Type)(out, c, msg)
}

func (d *Dispatcher) lookup(state State, typ codec.MessageType) transition {
	if t, ok := d.table[state][typ]; ok {
		return t
	}
	if state == StatePreLogin {
		return d.rejectNotLogin
	}
	return d.unknown
}

func (d *Dispatcher) login(out session.Outbox, c *ClientSession, msg codec.Message) error {
	s, err := d.sessions.Login(c.ConnID, msg.Body)
	if err != nil {
		reason, text := d.loginFailure(err, msg.Body)
		return d.rejectLogin(out, c.ConnID, reason, text, err)
	}
	d.Logger().Info("user logged in", log.FieldSession(s.ConnID), log.FieldUser(s.Username))
	return d.sendMenu(out, s.ConnID)
}

func (d *Dispatcher) loginFailure(err error, username string) (reason, text string) {
	switch {
	case errors.Is(err, merr.ErrUsernameEmpty):
		return rejectEmpty, loginEmptyText
	case errors.Is(err, merr.ErrUsernameTooLong):
		return rejectTooLong, usernameTooLongText(d.sessions.maxNameLen)
	case errors.Is(err, merr.ErrUsernameTaken):
		return rejectTaken, usernameTakenText(username)
	default:
		return rejectDuplicated, loginExpectedText
	}
}

func (d *Dispatcher) rejectNotLogin(out session.Outbox, c *ClientSession, msg codec.Message) error {
	err := merr.WrapErrParameterInvalid(codec.Login.String(), msg.Type.String(), "first message must be a login")
	return d.rejectLogin(out, c.ConnID, rejectNotLogin, loginExpectedText, err)
}

func (d *Dispatcher) quitBeforeLogin(_ session.Outbox, _ *ClientSession, _ codec.Message) error {
	metrics.LoginRejections.WithLabelValues(rejectQuit).Inc()
	return errQuitBeforeLogin
}

// rejectLogin 以 QUIT 类型发出拒绝原因，连接随后由 reactor 关闭。
func (d *Dispatcher) rejectLogin(out session.Outbox, id uint64, reason, text string, cause error) error {
	metrics.LoginRejections.WithLabelValues(reason).Inc()
	if err := out.Send(id, codec.NewMessage(codec.Quit, text)); err != nil {
		d.Logger().Warn("send login rejection failed", log.FieldSession(id), zap.Error(err))
	}
	d.Logger().Info("login rejected", log.FieldSession(id), zap.String("reason", reason), zap.Error(cause))
	return cause
}

func (d *Dispatcher) join(out session.Outbox, c *ClientSession, msg codec.Message) error {
	name := msg.Body
	if cur, ok := d.rooms.RoomOf(c.ConnID); ok {
		d.reply(out, c.ConnID, alreadyInRoomText(cur))
		return merr.WrapErrAlreadyInRoom(c.ConnID, cur)
	}
	if _, ok := d.rooms.Room(name); !ok {
		d.reply(out, c.ConnID, roomNotFoundText(name))
		return merr.WrapErrRoomNotFound(name)
	}

	d.broadcast(out, name, joinedText(c.Username, name))
	return d.enter(out, c, name)
}

func (d *Dispatcher) create(out session.Outbox, c *ClientSession, msg codec.Message) error {
	name, list, _ := strings.Cut(msg.Body, ";")
	if err := d.rooms.CreateRoom(name, ParseWords(list), c.Username); err != nil {
		if errors.Is(err, merr.ErrRoomAlreadyExists) {
			d.reply(out, c.ConnID, roomExistsText(name))
		} else {
			d.reply(out, c.ConnID, emptyRoomNameText)
		}
		return err
	}
	d.Logger().Info("chatroom created", log.FieldRoom(name), log.FieldUser(c.Username))
	return d.enter(out, c, name)
}

// enter 把会话加入聊天室并回放历史。
func (d *Dispatcher) enter(out session.Outbox, c *ClientSession, name string) error {
	if err := d.rooms.Join(c.ConnID, name); err != nil {
		return err
	}
	c.State = StateInChatroom

	history, err := d.rooms.History(name)
	if err != nil {
		return err
	}
	return out.Send(c.ConnID, codec.NewMessage(codec.Join, history))
}

func (d *Dispatcher) post(out session.Outbox, c *ClientSession, msg codec.Message) error {
	name, ok := d.rooms.RoomOf(c.ConnID)
	if !ok {
		return d.postOutsideRoom(out, c, msg)
	}
	d.broadcast(out, name, postText(c.Username, msg.Body))
	return nil
}

func (d *Dispatcher) leave(out session.Outbox, c *ClientSession, msg codec.Message) error {
	if _, ok := d.rooms.RoomOf(c.ConnID); !ok {
		return d.leaveOutsideRoom(out, c, msg)
	}
	if err := d.sendMenu(out, c.ConnID); err != nil {
		return err
	}
	d.leaveRoom(out, c)
	c.State = StateSelectingChatroom
	return nil
}

func (d *Dispatcher) quit(out session.Outbox, c *ClientSession, _ codec.Message) error {
	d.teardown(out, c)
	d.Logger().Info("user quit", log.FieldSession(c.ConnID), log.FieldUser(c.Username))
	return out.Close(c.ConnID)
}

// teardown 离开所在聊天室并删除会话。
func (d *Dispatcher) teardown(out session.Outbox, c *ClientSession) {
	d.leaveRoom(out, c)
	c.State = StateQuitting
	_, _ = d.sessions.Discard(c.ConnID)
}

func (d *Dispatcher) leaveRoom(out session.Outbox, c *ClientSession) {
	if name, ok := d.rooms.Leave(c.ConnID); ok {
		d.broadcast(out, name, leftText(c.Username, name))
	}
}

func (d *Dispatcher) alreadyInRoom(out session.Outbox, c *ClientSession, _ codec.Message) error {
	name, _ := d.rooms.RoomOf(c.ConnID)
	d.reply(out, c.ConnID, alreadyInRoomText(name))
	return merr.WrapErrAlreadyInRoom(c.ConnID, name)
}

func (d *Dispatcher) alreadyLoggedIn(out session.Outbox, c *ClientSession, _ codec.Message) error {
	d.reply(out, c.ConnID, alreadyLoggedInText(c.Username))
	return merr.WrapErrAlreadyLoggedIn(c.ConnID, c.Username)
}

func (d *Dispatcher) postOutsideRoom(out session.Outbox, c *ClientSession, _ codec.Message) error {
	d.reply(out, c.ConnID, postOutsideRoomText)
	return merr.WrapErrNotInRoom(c.ConnID)
}

func (d *Dispatcher) leaveOutsideRoom(out session.Outbox, c *ClientSession, _ codec.Message) error {
	d.reply(out, c.ConnID, notInRoomText)
	return merr.WrapErrNotInRoom(c.ConnID)
}

func (d *Dispatcher) unknown(out session.Outbox, c *ClientSession, msg codec.Message) error {
	d.reply(out, c.ConnID, unknownTypeText)
	return merr.WrapErrMessageTypeUnknown(int(msg.Type))
}

func (d *Dispatcher) sendMenu(out session.Outbox, id uint64) error {
	return out.Send(id, codec.NewMessage(codec.Menu, menuText(d.rooms.Rooms())))
}

func (d *Dispatcher) reply(out session.Outbox, id uint64, text string) {
	if err := out.Send(id, codec.NewMessage(codec.Post, text)); err != nil {
		d.Logger().Debug("reply dropped", log.FieldSession(id), zap.Error(err))
	}
}

func (d *Dispatcher) broadcast(out session.Outbox, room, body string) {
	if _, err := d.rooms.Broadcast(out, room, body); err != nil {
		d.Logger().Debug("broadcast partially failed", log.FieldRoom(room), zap.Error(err))
	}
}

// SessionCount 返回已登录会话数量。
func (d *Dispatcher) SessionCount() int {
	return d.sessions.Len()
}

// Snapshot 返回全部聊天室视图，必须在 reactor 协程中调用。
func (d *Dispatcher) Snapshot() []RoomView {
	return lo.Map(d.rooms.Snapshot(), func(rs RoomSnapshot, _ int) RoomView {
		return RoomView{
			RoomSnapshot: rs,
			Users:        lo.Map(rs.Members, func(id uint64, _ int) string { return d.sessions.Username(id) }),
		}
	})
}

var _ reactor.Handler = (*Dispatcher)(nil)
