package reactor

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/danmu-chatroom-go/internal/network/codec"
	"github.com/lk2023060901/danmu-chatroom-go/internal/network/framer"
	"github.com/lk2023060901/danmu-chatroom-go/internal/network/session"
	"github.com/lk2023060901/danmu-chatroom-go/pkg/util/merr"
)

type received struct {
	id  uint64
	msg codec.Message
}

type recordingHandler struct {
	messages    chan received
	disconnects chan uint64
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{
		messages:    make(chan received, 16),
		disconnects: make(chan uint64, 16),
	}
}

func (h *recordingHandler) OnLogin(out session.Outbox, id uint64, msg codec.Message) error {
	if msg.Body == "" {
		_ = out.Send(id, codec.NewMessage(codec.Quit, "Username cannot be empty."))
		_ = out.Close(id)
		return merr.WrapErrUsernameEmpty()
	}
	return out.Send(id, codec.NewMessage(codec.Menu, "menu for "+msg.Body))
}

func (h *recordingHandler) OnMessage(out session.Outbox, id uint64, msg codec.Message) {
	h.messages <- received{id: id, msg: msg}
	if msg.Type == codec.Post {
		_ = out.Send(id, codec.NewMessage(codec.Post, "echo: "+msg.Body))
	}
}

func (h *recordingHandler) OnDisconnect(_ session.Outbox, id uint64, _ error) {
	h.disconnects <- id
}

type fixture struct {
	t      *testing.T
	r      *Reactor
	h      *recordingHandler
	codec  codec.Codec
	cancel context.CancelFunc
	done   chan error

	stopOnce sync.Once
}

func newFixture(t *testing.T) *fixture {
	c, err := codec.New(codec.Options{Framer: framer.NewLengthPrefixedFramer(0)})
	require.NoError(t, err)

	h := newRecordingHandler()
	r := New(h, WithEventQueueSize(16))
	ctx, cancel := context.WithCancel(context.Background())
	f := &fixture{t: t, r: r, h: h, codec: c, cancel: cancel, done: make(chan error, 1)}
	go func() { f.done <- r.Run(ctx) }()
	t.Cleanup(f.stop)
	return f
}

func (f *fixture) stop() {
	f.stopOnce.Do(func() {
		f.cancel()
		select {
		case err := <-f.done:
			assert.NoError(f.t, err)
		case <-time.After(2 * time.Second):
			f.t.Fatal("reactor did not stop")
		}
	})
}

func (f *fixture) connect(id uint64, opts session.Options) (*session.BaseSession, net.Conn) {
	server, client := net.Pipe()
	sess := session.NewBaseSession(context.Background(), id, server, f.codec, opts)
	f.t.Cleanup(func() { _ = client.Close() })
	return sess, client
}

func (f *fixture) login(id uint64, name string) (*session.BaseSession, net.Conn) {
	sess, client := f.connect(id, session.Options{})
	errCh := make(chan error, 1)
	go func() {
		errCh <- f.r.Admit(context.Background(), sess, codec.NewMessage(codec.Login, name))
	}()
	menu, err := f.codec.Decode(client)
	require.NoError(f.t, err)
	assert.Equal(f.t, codec.Menu, menu.Type)
	require.NoError(f.t, <-errCh)
	return sess, client
}

func TestAdmitAndDispatch(t *testing.T) {
	f := newFixture(t)
	_, client := f.login(1, "alice")
	assert.Equal(t, 1, f.r.Sessions().Count())

	go func() { _ = f.codec.Encode(client, codec.NewMessage(codec.Post, "hello")) }()
	got := <-f.h.messages
	assert.Equal(t, received{id: 1, msg: codec.NewMessage(codec.Post, "hello")}, got)

	echo, err := f.codec.Decode(client)
	require.NoError(t, err)
	assert.Equal(t, "echo: hello", echo.Body)
}

func TestAdmitRejected(t *testing.T) {
	f := newFixture(t)
	sess, client := f.connect(2, session.Options{})

	errCh := make(chan error, 1)
	go func() {
		errCh <- f.r.Admit(context.Background(), sess, codec.NewMessage(codec.Login, ""))
	}()

	// 拒绝消息先于连接关闭到达。
	reply, err := f.codec.Decode(client)
	require.NoError(t, err)
	assert.Equal(t, codec.NewMessage(codec.Quit, "Username cannot be empty."), reply)
	_, err = f.codec.Decode(client)
	assert.Error(t, err)

	err = <-errCh
	assert.ErrorIs(t, err, ErrLoginRejected)
	assert.ErrorIs(t, err, merr.ErrUsernameEmpty)
	assert.True(t, errors.Is(err, ErrLoginRejected))
	assert.True(t, errors.Is(err, merr.ErrUsernameEmpty))
	assert.Equal(t, 0, f.r.Sessions().Count())
}

func TestDecodeFailureSubstituted(t *testing.T) {
	f := newFixture(t)
	_, client := f.login(3, "bob")

	go func() { _ = f.codec.Framer().WriteFrame(client, []byte("no separator")) }()
	got := <-f.h.messages
	assert.Equal(t, codec.InvalidMessage, got.msg)
}

func TestPeerCloseDisconnects(t *testing.T) {
	f := newFixture(t)
	sess, client := f.login(4, "carol")

	require.NoError(t, client.Close())
	select {
	case id := <-f.h.disconnects:
		assert.Equal(t, uint64(4), id)
	case <-time.After(time.Second):
		t.Fatal("disconnect not dispatched")
	}
	select {
	case <-sess.Done():
	case <-time.After(time.Second):
		t.Fatal("session not released")
	}
	require.NoError(t, f.r.Call(context.Background(), func() {}))
	assert.Equal(t, 0, f.r.Sessions().Count())
}

func TestCall(t *testing.T) {
	f := newFixture(t)
	var ran bool
	require.NoError(t, f.r.Call(context.Background(), func() { ran = true }))
	assert.True(t, ran)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := f.r.Call(ctx, func() {})
	// 事件可能已经入队，也可能因 ctx 取消而放弃，两者都应返回错误或正常完成。
	if err != nil {
		assert.True(t, errors.Is(err, context.Canceled))
	}
}

func TestSendUnknownSession(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.r.Send(99, codec.NewMessage(codec.Post, "x")), merr.ErrSessionNotFound)
	assert.ErrorIs(t, f.r.Close(99), merr.ErrSessionNotFound)
}

func TestSlowConsumerClosed(t *testing.T) {
	f := newFixture(t)
	sess, client := f.connect(5, session.Options{SendQueueSize: 1})

	errCh := make(chan error, 1)
	go func() {
		errCh <- f.r.Admit(context.Background(), sess, codec.NewMessage(codec.Login, "slow"))
	}()
	// 不读取菜单，写协程会一直阻塞在 Write 上。
	require.NoError(t, <-errCh)

	var err error
	require.NoError(t, f.r.Call(context.Background(), func() {
		for i := 0; i < 10 && err == nil; i++ {
			err = f.r.Send(5, codec.NewMessage(codec.Post, "flood"))
		}
	}))
	assert.ErrorIs(t, err, merr.ErrSendQueueFull)

	// 对端关闭后写协程退出，读协程触发断开。
	_ = client.Close()
	select {
	case id := <-f.h.disconnects:
		assert.Equal(t, uint64(5), id)
	case <-time.After(time.Second):
		t.Fatal("slow consumer not disconnected")
	}
}

func TestShutdownClosesSessions(t *testing.T) {
	f := newFixture(t)
	sess, _ := f.login(6, "dave")

	f.stop()
	select {
	case <-sess.Done():
	case <-time.After(time.Second):
		t.Fatal("session not closed on shutdown")
	}

	other, _ := f.connect(7, session.Options{})
	err := f.r.Admit(context.Background(), other, codec.NewMessage(codec.Login, "late"))
	assert.ErrorIs(t, err, ErrStopped)
	_ = other.Close()
}
