package codec

import (
	"io"

	"github.com/cockroachdb/errors"

	"github.com/lk2023060901/danmu-chatroom-go/internal/network/framer"
	"github.com/lk2023060901/danmu-chatroom-go/pkg/buffer/ring"
)

// Codec 抽象了“从协议消息到网络帧，以及从网络帧回到协议消息”的完整编解码流程。
//
// Pipeline（写出 Encode）：
//
//	Message --> Marshal --> framer.WriteFrame
//
// Pipeline（读入 Decode）：
//
//	framer.ReadFrame / framer.Next --> Unmarshal --> Message
type Codec interface {
	// Encode 将消息编码并写入到底层流。
	Encode(w io.Writer, msg Message) error

	// Decode 阻塞读取一帧并解码。
	Decode(r io.Reader) (Message, error)

	// DecodeBuffered 从接收缓冲区中取出下一帧并解码。
	//
	//   - 数据不足一帧时返回 framer.ErrIncompleteFrame，缓冲区保持不变；
	//   - 帧已被消费但内容无法解析时返回包装了 network.ErrDecodeFailed 的错误。
	DecodeBuffered(buf *ring.Buffer) (Message, error)

	// Framer 返回当前使用的分帧器。
	Framer() framer.Framer
}

// Options 用于构造 Codec 的依赖注入参数。
type Options struct {
	Framer framer.Framer
}

type codec struct {
	framer framer.Framer
}

var _ Codec = (*codec)(nil)

// New 创建一个基于给定依赖的 Codec。
func New(opts Options) (Codec, error) {
	if opts.Framer == nil {
		return nil, errors.New("codec: framer is nil")
	}
	return &codec{framer: opts.Framer}, nil
}

// Encode 实现 Codec.Encode。
func (c *codec) Encode(w io.Writer, msg Message) error {
	if w == nil {
		return errors.New("codec: writer is nil")
	}
	return c.framer.WriteFrame(w, Marshal(msg))
}

// Decode 实现 Codec.Decode。
func (c *codec) Decode(r io.Reader) (Message, error) {
	if r == nil {
		return Message{}, errors.New("codec: reader is nil")
	}
	frame, err := c.framer.ReadFrame(r)
	if err != nil {
		return Message{}, err
	}
	return Unmarshal(frame)
}

// DecodeBuffered 实现 Codec.DecodeBuffered。
func (c *codec) DecodeBuffered(buf *ring.Buffer) (Message, error) {
	frame, err := c.framer.Next(buf)
	if err != nil {
		return Message{}, err
	}
	return Unmarshal(frame)
}

func (c *codec) Framer() framer.Framer {
	return c.framer
}
