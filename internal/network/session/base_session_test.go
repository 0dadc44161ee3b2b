package session

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	network "github.com/lk2023060901/danmu-chatroom-go/internal/network"
	"github.com/lk2023060901/danmu-chatroom-go/internal/network/codec"
	"github.com/lk2023060901/danmu-chatroom-go/internal/network/framer"
	"github.com/lk2023060901/danmu-chatroom-go/pkg/util/merr"
)

func newTestCodec(t *testing.T) codec.Codec {
	c, err := codec.New(codec.Options{Framer: framer.NewLengthPrefixedFramer(0)})
	require.NoError(t, err)
	return c
}

func newPipeSession(t *testing.T, opts Options) (*BaseSession, net.Conn, codec.Codec) {
	server, client := net.Pipe()
	c := newTestCodec(t)
	sess := NewBaseSession(context.Background(), 1, server, c, opts)
	t.Cleanup(func() {
		_ = sess.Close()
		_ = client.Close()
	})
	return sess, client, c
}

func TestSendOrder(t *testing.T) {
	sess, peer, c := newPipeSession(t, Options{})
	assert.Equal(t, uint64(1), sess.ID())

	for _, body := range []string{"one", "two", "three"} {
		require.NoError(t, sess.Send(codec.NewMessage(codec.Post, body)))
	}
	for _, body := range []string{"one", "two", "three"} {
		msg, err := c.Decode(peer)
		require.NoError(t, err)
		assert.Equal(t, codec.NewMessage(codec.Post, body), msg)
	}
}

func TestCloseDrainsQueue(t *testing.T) {
	sess, peer, c := newPipeSession(t, Options{SendQueueSize: 8})

	require.NoError(t, sess.Send(codec.NewMessage(codec.Quit, "Username is already taken.")))
	require.NoError(t, sess.Send(codec.NewMessage(codec.Post, "bye")))
	require.NoError(t, sess.Close())
	assert.ErrorIs(t, sess.Send(codec.NewMessage(codec.Post, "late")), network.ErrSessionClosed)

	msg, err := c.Decode(peer)
	require.NoError(t, err)
	assert.Equal(t, codec.Quit, msg.Type)
	msg, err = c.Decode(peer)
	require.NoError(t, err)
	assert.Equal(t, "bye", msg.Body)

	_, err = c.Decode(peer)
	assert.Error(t, err)

	select {
	case <-sess.Done():
	case <-time.After(time.Second):
		t.Fatal("session not released")
	}
	assert.Error(t, sess.Context().Err())
}

func TestSendQueueFull(t *testing.T) {
	sess, _, _ := newPipeSession(t, Options{SendQueueSize: 1})

	var err error
	for i := 0; i < 10 && err == nil; i++ {
		err = sess.Send(codec.NewMessage(codec.Post, "flood"))
	}
	assert.ErrorIs(t, err, merr.ErrSendQueueFull)
	assert.True(t, merr.IsRetryableErr(err))
}

func TestWriteTimeoutReleases(t *testing.T) {
	sess, _, _ := newPipeSession(t, Options{WriteTimeout: 20 * time.Millisecond})

	require.NoError(t, sess.Send(codec.NewMessage(codec.Post, "never read")))
	select {
	case <-sess.Done():
	case <-time.After(time.Second):
		t.Fatal("session not released after write timeout")
	}
	assert.ErrorIs(t, sess.Send(codec.NewMessage(codec.Post, "x")), network.ErrSessionClosed)
}

func TestWriteErrorMarked(t *testing.T) {
	sess, peer, _ := newPipeSession(t, Options{})
	require.NoError(t, peer.Close())

	err := sess.write(codec.NewMessage(codec.Post, "x"))
	assert.ErrorIs(t, err, network.ErrSendFailed)
	assert.ErrorIs(t, err, io.ErrClosedPipe)
	assert.True(t, errors.Is(err, network.ErrSendFailed))
}

func TestRecvPartialAndInvalid(t *testing.T) {
	sess, peer, c := newPipeSession(t, Options{ReadBufferSize: 3})
	f := c.Framer()

	go func() {
		var frames []byte
		w := writerFunc(func(p []byte) (int, error) {
			frames = append(frames, p...)
			return len(p), nil
		})
		_ = c.Encode(w, codec.NewMessage(codec.Login, "alice"))
		_ = f.WriteFrame(w, []byte("garbage"))
		_ = c.Encode(w, codec.NewMessage(codec.Join, "default"))
		// 拆成很小的片段写出。
		for i := 0; i < len(frames); i += 2 {
			end := i + 2
			if end > len(frames) {
				end = len(frames)
			}
			if _, err := peer.Write(frames[i:end]); err != nil {
				return
			}
		}
		_ = peer.Close()
	}()

	msg, err := sess.Recv()
	require.NoError(t, err)
	assert.Equal(t, codec.NewMessage(codec.Login, "alice"), msg)

	_, err = sess.Recv()
	assert.ErrorIs(t, err, network.ErrDecodeFailed)

	msg, err = sess.Recv()
	require.NoError(t, err)
	assert.Equal(t, codec.NewMessage(codec.Join, "default"), msg)

	_, err = sess.Recv()
	assert.Error(t, err)
	// 错误会被记住，后续读取直接返回。
	_, err = sess.Recv()
	assert.Error(t, err)

	sess.Recycle()
	_, err = sess.Recv()
	assert.ErrorIs(t, err, network.ErrSessionClosed)
}

func TestRecvFrameTooLarge(t *testing.T) {
	server, client := net.Pipe()
	c, err := codec.New(codec.Options{Framer: framer.NewLengthPrefixedFramer(4)})
	require.NoError(t, err)
	sess := NewBaseSession(context.Background(), 2, server, c, Options{})
	defer sess.Close()
	defer client.Close()

	go func() {
		_, _ = client.Write([]byte{0, 0, 0, 100})
	}()
	_, err = sess.Recv()
	assert.ErrorIs(t, err, network.ErrFrameTooLarge)
}

func TestParentCancelReleases(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	ctx, cancel := context.WithCancel(context.Background())
	sess := NewBaseSession(ctx, 3, server, newTestCodec(t), Options{})

	cancel()
	select {
	case <-sess.Done():
	case <-time.After(time.Second):
		t.Fatal("session not released after parent cancel")
	}
}

type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }
