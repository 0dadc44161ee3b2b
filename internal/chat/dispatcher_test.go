package chat

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/lk2023060901/danmu-chatroom-go/internal/network/codec"
	"github.com/lk2023060901/danmu-chatroom-go/pkg/log"
	"github.com/lk2023060901/danmu-chatroom-go/pkg/util/merr"
)

type DispatcherSuite struct {
	suite.Suite

	d   *Dispatcher
	out *fakeOutbox
}

func (s *DispatcherSuite) SetupTest() {
	s.d = NewDispatcher(Config{})
	s.out = newFakeOutbox()

	lg, _, err := log.InitTestLogger(s.T(), &log.Config{Level: "debug", DisableErrorVerbose: true})
	s.Require().NoError(err)
	s.d.SetLogger(&log.MLogger{Logger: lg})
}

func (s *DispatcherSuite) login(id uint64, name string) {
	s.Require().NoError(s.d.OnLogin(s.out, id, codec.NewMessage(codec.Login, name)))
	s.out.take(id)
}

func (s *DispatcherSuite) send(id uint64, t codec.MessageType, body string) {
	s.d.OnMessage(s.out, id, codec.NewMessage(t, body))
}

// enterRoom 登录并进入聊天室，清空期间产生的全部消息。
func (s *DispatcherSuite) enterRoom(id uint64, name, room string) {
	s.login(id, name)
	if _, ok := s.d.rooms.Room(room); ok {
		s.send(id, codec.Join, room)
	} else {
		s.send(id, codec.Create, room)
	}
	s.Require().Equal(StateInChatroom, s.state(id))
	s.out.sent = make(map[uint64][]codec.Message)
}

func (s *DispatcherSuite) state(id uint64) State {
	c, ok := s.d.sessions.Get(id)
	if !ok {
		return StateQuitting
	}
	return c.State
}

func (s *DispatcherSuite) only(id uint64) codec.Message {
	msgs := s.out.take(id)
	s.Require().Len(msgs, 1)
	return msgs[0]
}

func (s *DispatcherSuite) TestLoginDeliversMenu() {
	s.Require().NoError(s.d.OnLogin(s.out, 1, codec.NewMessage(codec.Login, "alice")))

	msg := s.only(1)
	s.Equal(codec.Menu, msg.Type)
	s.Contains(msg.Body, "---- default\n")
	s.Equal(menuText([]string{"default"}), msg.Body)
	s.Equal(StateSelectingChatroom, s.state(1))
	s.Equal(1, s.d.SessionCount())
}

func (s *DispatcherSuite) TestDuplicateUsernameRejected() {
	s.login(1, "alice")

	err := s.d.OnLogin(s.out, 2, codec.NewMessage(codec.Login, "alice"))
	s.ErrorIs(err, merr.ErrUsernameTaken)
	msg := s.only(2)
	s.Equal(codec.Quit, msg.Type)
	s.Contains(msg.Body, "already taken")
	s.Equal(1, s.d.SessionCount())
	_, ok := s.d.sessions.Get(2)
	s.False(ok)
}

func (s *DispatcherSuite) TestLoginRejectionTexts() {
	cases := []struct {
		name string
		msg  codec.Message
		want error
		text string
	}{
		{"too long", codec.NewMessage(codec.Login, strings.Repeat("x", 26)), merr.ErrUsernameTooLong, usernameTooLongText(DefaultMaxUsernameLen)},
		{"empty", codec.NewMessage(codec.Login, ""), merr.ErrUsernameEmpty, loginEmptyText},
		{"not a login", codec.NewMessage(codec.Post, "hi"), merr.ErrParameterInvalid, loginExpectedText},
		{"unknown type", codec.NewMessage(codec.MessageType(9), "hi"), merr.ErrParameterInvalid, loginExpectedText},
		{"undecodable", codec.InvalidMessage, merr.ErrParameterInvalid, loginExpectedText},
	}
	texts := map[string]bool{usernameTakenText("alice"): true}
	for i, tc := range cases {
		id := uint64(i + 10)
		err := s.d.OnLogin(s.out, id, tc.msg)
		s.ErrorIs(err, tc.want, tc.name)
		msg := s.only(id)
		s.Equal(codec.Quit, msg.Type, tc.name)
		s.Equal(tc.text, msg.Body, tc.name)
		texts[msg.Body] = true
	}
	s.Len(texts, 4)
	s.Zero(s.d.SessionCount())
}

func (s *DispatcherSuite) TestQuitBeforeLogin() {
	err := s.d.OnLogin(s.out, 1, codec.NewMessage(codec.Quit, ""))
	s.ErrorIs(err, errQuitBeforeLogin)
	s.Empty(s.out.take(1))
}

func (s *DispatcherSuite) TestJoinMissingRoom() {
	s.login(1, "alice")
	s.send(1, codec.Join, "nope")

	msg := s.only(1)
	s.Equal(codec.Post, msg.Type)
	s.Contains(msg.Body, "does not exist")
	s.Equal(StateSelectingChatroom, s.state(1))
}

func (s *DispatcherSuite) TestJoinReplaysHistory() {
	s.login(1, "alice")
	s.send(1, codec.Join, "default")
	msg := s.only(1)
	s.Equal(codec.Join, msg.Type)
	s.Equal(roomWelcome("default")+"\n[alice] has joined default\n", msg.Body)

	s.login(2, "bob")
	s.send(2, codec.Join, "default")
	s.Equal(codec.NewMessage(codec.Post, "[bob] has joined default"), s.only(1))
	s.Equal(roomWelcome("default")+"\n[alice] has joined default\n[bob] has joined default\n", s.only(2).Body)
}

func (s *DispatcherSuite) TestCreateRoomAndCensoredPost() {
	s.login(1, "alice")
	s.send(1, codec.Create, "general;spam")
	msg := s.only(1)
	s.Equal(codec.Join, msg.Type)
	s.Equal(roomWelcome("general")+"\n", msg.Body)
	s.Equal(StateInChatroom, s.state(1))

	s.login(2, "bob")
	s.send(2, codec.Join, "general")
	s.out.take(1)
	s.out.take(2)

	room, _ := s.d.rooms.Room("general")
	before := room.HistoryLen()
	s.send(1, codec.Post, "buy spam now")
	want := codec.NewMessage(codec.Post, "[alice]: buy *** now")
	s.Equal(want, s.only(1))
	s.Equal(want, s.only(2))
	s.Equal(before+1, room.HistoryLen())
	s.Equal("alice", room.Creator())
}

func (s *DispatcherSuite) TestMenuListsRoomsSorted() {
	s.enterRoom(1, "alice", "zeta")
	s.enterRoom(2, "bob", "alpha")

	s.send(2, codec.Menu, "")
	s.Equal(menuText([]string{"alpha", "default", "zeta"}), s.only(2).Body)
}

func (s *DispatcherSuite) TestBroadcastCompleteness() {
	s.enterRoom(1, "a", "general")
	s.enterRoom(2, "b", "general")
	s.enterRoom(3, "c", "general")
	s.enterRoom(4, "d", "default")
	s.login(5, "e")

	s.send(2, codec.Post, "hello")
	for _, id := range []uint64{1, 2, 3} {
		s.Equal([]codec.Message{codec.NewMessage(codec.Post, "[b]: hello")}, s.out.take(id))
	}
	s.Empty(s.out.take(4))
	s.Empty(s.out.take(5))
}

func (s *DispatcherSuite) TestLeave() {
	s.enterRoom(1, "alice", "general")
	s.enterRoom(2, "bob", "general")

	s.send(2, codec.Menu, "")
	s.Equal(codec.Menu, s.only(2).Type)
	s.Equal(codec.NewMessage(codec.Post, "[bob] has left general"), s.only(1))
	s.Equal(StateSelectingChatroom, s.state(2))
	_, ok := s.d.rooms.RoomOf(2)
	s.False(ok)
}

func (s *DispatcherSuite) TestQuitInRoom() {
	s.enterRoom(1, "alice", "general")
	s.enterRoom(2, "bob", "general")
	room, _ := s.d.rooms.Room("general")
	s.Equal(2, room.MemberCount())

	s.send(2, codec.Quit, "")
	s.Equal(codec.NewMessage(codec.Post, "[bob] has left general"), s.only(1))
	s.True(s.out.closed.Contain(2))
	s.Equal(1, room.MemberCount())
	s.Equal(1, s.d.SessionCount())

	// 随后的断开事件不会重复广播。
	s.d.OnDisconnect(s.out, 2, nil)
	s.Empty(s.out.take(1))

	s.login(3, "bob")
}

func (s *DispatcherSuite) TestDisconnectInRoom() {
	s.enterRoom(1, "alice", "general")
	s.enterRoom(2, "bob", "general")

	s.d.OnDisconnect(s.out, 1, nil)
	s.Equal(codec.NewMessage(codec.Post, "[alice] has left general"), s.only(2))
	s.Equal(1, s.d.SessionCount())
	s.False(s.out.closed.Contain(1))
}

func (s *DispatcherSuite) TestMessageFromUnknownSession() {
	s.send(42, codec.Post, "hi")
	s.Empty(s.out.take(42))
}

func (s *DispatcherSuite) TestTransitionTable() {
	cases := []struct {
		name   string
		inRoom bool
		msg    codec.Message
		reply  string
		next   State
	}{
		{"post outside room", false, codec.NewMessage(codec.Post, "hi"), postOutsideRoomText, StateSelectingChatroom},
		{"menu outside room", false, codec.NewMessage(codec.Menu, ""), notInRoomText, StateSelectingChatroom},
		{"login again", false, codec.NewMessage(codec.Login, "bob"), "You are already logged in as alice.", StateSelectingChatroom},
		{"unknown type", false, codec.NewMessage(codec.MessageType(9), "x"), unknownTypeText, StateSelectingChatroom},
		{"join missing", false, codec.NewMessage(codec.Join, "nope"), "Chatroom 'nope' does not exist.", StateSelectingChatroom},
		{"create existing", false, codec.NewMessage(codec.Create, "default;x"), "Chatroom 'default' already exists.", StateSelectingChatroom},
		{"create empty name", false, codec.NewMessage(codec.Create, ";spam"), emptyRoomNameText, StateSelectingChatroom},
		{"join while in room", true, codec.NewMessage(codec.Join, "other"), "You are already in chatroom default. Please leave it first.", StateInChatroom},
		{"join same room", true, codec.NewMessage(codec.Join, "default"), "You are already in chatroom default. Please leave it first.", StateInChatroom},
		{"create while in room", true, codec.NewMessage(codec.Create, "x;y"), "You are already in chatroom default. Please leave it first.", StateInChatroom},
		{"login in room", true, codec.NewMessage(codec.Login, "bob"), "You are already logged in as alice.", StateInChatroom},
		{"unknown type in room", true, codec.NewMessage(codec.MessageType(7), ""), unknownTypeText, StateInChatroom},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			s.SetupTest()
			if tc.inRoom {
				s.enterRoom(1, "alice", "default")
			} else {
				s.login(1, "alice")
			}
			s.d.OnMessage(s.out, 1, tc.msg)
			s.Equal(codec.NewMessage(codec.Post, tc.reply), s.only(1))
			s.Equal(tc.next, s.state(1))
		})
	}
}

func (s *DispatcherSuite) TestRoomExclusivity() {
	ops := []struct {
		id   uint64
		typ  codec.MessageType
		body string
	}{
		{1, codec.Join, "default"},
		{2, codec.Create, "r1"},
		{1, codec.Join, "r1"},
		{1, codec.Create, "r2"},
		{3, codec.Create, "r2"},
		{2, codec.Menu, ""},
		{2, codec.Join, "r2"},
		{1, codec.Menu, ""},
		{1, codec.Join, "r1"},
		{3, codec.Quit, ""},
		{2, codec.Join, "default"},
	}
	for _, id := range []uint64{1, 2, 3} {
		s.login(id, string(rune('a'+id)))
	}
	for _, op := range ops {
		s.send(op.id, op.typ, op.body)

		count := map[uint64]int{}
		for _, rs := range s.d.rooms.Snapshot() {
			for _, m := range rs.Members {
				count[m]++
			}
		}
		for _, id := range []uint64{1, 2, 3} {
			s.LessOrEqual(count[id], 1)
			_, in := s.d.rooms.RoomOf(id)
			s.Equal(in, s.state(id) == StateInChatroom, "conn %d", id)
		}
	}
}

func (s *DispatcherSuite) TestSnapshotNamesUsers() {
	s.enterRoom(1, "alice", "general")
	views := s.d.Snapshot()
	s.Require().Len(views, 2)
	s.Equal("default", views[0].Name)
	s.Equal("general", views[1].Name)
	s.Equal([]string{"alice"}, views[1].Users)
}

func TestDispatcher(t *testing.T) {
	suite.Run(t, new(DispatcherSuite))
}
