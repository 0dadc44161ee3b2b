package codec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	network "github.com/lk2023060901/danmu-chatroom-go/internal/network"
	"github.com/lk2023060901/danmu-chatroom-go/internal/network/framer"
	"github.com/lk2023060901/danmu-chatroom-go/pkg/buffer/ring"
)

func TestMarshal(t *testing.T) {
	assert.Equal(t, "4;alice", string(Marshal(NewMessage(Login, "alice"))))
	assert.Equal(t, "1;", string(Marshal(NewMessage(Menu, ""))))
	assert.Equal(t, "5;room;a,b", string(Marshal(NewMessage(Create, "room;a,b"))))
}

func TestUnmarshal(t *testing.T) {
	cases := []struct {
		name    string
		input   string
		want    Message
		wantErr bool
	}{
		{name: "login", input: "4;alice", want: Message{Type: Login, Body: "alice"}},
		{name: "empty body", input: "1;", want: Message{Type: Menu}},
		{name: "body keeps separators", input: "5;room;w1,w2", want: Message{Type: Create, Body: "room;w1,w2"}},
		{name: "out of range tag", input: "9;x", want: Message{Type: 9, Body: "x"}},
		{name: "no separator", input: "hello", wantErr: true},
		{name: "empty tag", input: ";hello", wantErr: true},
		{name: "non numeric tag", input: "abc;hello", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Unmarshal([]byte(tc.input))
			if tc.wantErr {
				assert.ErrorIs(t, err, network.ErrDecodeFailed)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestMessageTypeValid(t *testing.T) {
	for _, mt := range []MessageType{Join, Menu, Quit, Post, Login, Create} {
		assert.True(t, mt.Valid(), mt.String())
	}
	assert.False(t, MessageType(6).Valid())
	assert.False(t, MessageType(-1).Valid())
	assert.Equal(t, "MENU", Menu.String())
	assert.Equal(t, "UNKNOWN(7)", MessageType(7).String())
}

func TestMarshalLogObject(t *testing.T) {
	enc := zapcore.NewMapObjectEncoder()
	require.NoError(t, NewMessage(Post, "hello").MarshalLogObject(enc))
	assert.Equal(t, "POST", enc.Fields["type"])
	assert.Equal(t, 5, enc.Fields["size"])
}

func TestCodecRoundTrip(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)

	c, err := New(Options{Framer: framer.NewLengthPrefixedFramer(0)})
	require.NoError(t, err)

	var stream bytes.Buffer
	require.NoError(t, c.Encode(&stream, NewMessage(Post, "hi")))
	require.NoError(t, c.Encode(&stream, NewMessage(Join, "lobby")))

	msg, err := c.Decode(&stream)
	require.NoError(t, err)
	assert.Equal(t, NewMessage(Post, "hi"), msg)

	buf := ring.New(0)
	_, _ = buf.Write(stream.Bytes())
	msg, err = c.DecodeBuffered(buf)
	require.NoError(t, err)
	assert.Equal(t, NewMessage(Join, "lobby"), msg)

	_, err = c.DecodeBuffered(buf)
	assert.ErrorIs(t, err, framer.ErrIncompleteFrame)
}

func TestCodecDecodeFailureConsumesFrame(t *testing.T) {
	f := framer.NewLengthPrefixedFramer(0)
	c, err := New(Options{Framer: f})
	require.NoError(t, err)

	var stream bytes.Buffer
	require.NoError(t, f.WriteFrame(&stream, []byte("garbage")))
	require.NoError(t, c.Encode(&stream, NewMessage(Post, "ok")))

	buf := ring.New(0)
	_, _ = buf.Write(stream.Bytes())
	_, err = c.DecodeBuffered(buf)
	assert.ErrorIs(t, err, network.ErrDecodeFailed)

	msg, err := c.DecodeBuffered(buf)
	require.NoError(t, err)
	assert.Equal(t, "ok", msg.Body)
}
