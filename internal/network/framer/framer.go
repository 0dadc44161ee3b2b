package framer

import (
	"encoding/binary"
	"io"

	"github.com/cockroachdb/errors"

	network "github.com/lk2023060901/danmu-chatroom-go/internal/network"
	"github.com/lk2023060901/danmu-chatroom-go/pkg/buffer/ring"
)

// Framer 抽象了字节流上的分帧能力。
//
// 约定：
//   - WriteFrame 一次性写出完整的一帧，避免与其他帧交叉；
//   - ReadFrame 阻塞读取一帧，适用于客户端等简单场景；
//   - Next 从连接的接收缓冲区中取出下一帧，缓冲区中数据不足一帧时返回 ErrIncompleteFrame 且不消费任何字节。
type Framer interface {
	// Kind 返回分帧方式的名称，与配置项 network.framing 对应。
	Kind() string

	// WriteFrame 将 payload 打包为一帧并写入到 w 中。
	WriteFrame(w io.Writer, payload []byte) error

	// ReadFrame 从 r 中读取一帧数据。
	ReadFrame(r io.Reader) ([]byte, error)

	// Next 从 buf 中取出下一帧完整数据。
	Next(buf *ring.Buffer) ([]byte, error)
}

const (
	KindLengthPrefixed = "length-prefixed"
	KindRaw            = "raw"

	// DefaultMaxFrameSize 为默认的最大帧大小（不含长度头）。
	DefaultMaxFrameSize uint32 = 64 * 1024

	headerSize = 4
)

// ErrIncompleteFrame 表示缓冲区中的数据还不足以组成一帧，需要继续读取。
var ErrIncompleteFrame = errors.New("framer: incomplete frame")

// New 根据名称创建 Framer，kind 为空时使用长度前缀分帧。
func New(kind string, maxFrameSize uint32) (Framer, error) {
	switch kind {
	case "", KindLengthPrefixed:
		return NewLengthPrefixedFramer(maxFrameSize), nil
	case KindRaw:
		return NewRawFramer(maxFrameSize), nil
	default:
		return nil, errors.Newf("framer: unknown framing %q", kind)
	}
}

// LengthPrefixedFramer 使用长度前缀（4 字节大端）作为帧边界。
type LengthPrefixedFramer struct {
	// MaxFrameSize 为允许的最大帧大小，单位字节。
	// 为 0 时使用默认值 DefaultMaxFrameSize。
	MaxFrameSize uint32
}

var _ Framer = (*LengthPrefixedFramer)(nil)

// NewLengthPrefixedFramer 创建一个长度前缀帧编码器。
// maxFrameSize 为 0 时使用默认值。
func NewLengthPrefixedFramer(maxFrameSize uint32) *LengthPrefixedFramer {
	if maxFrameSize == 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	return &LengthPrefixedFramer{
		MaxFrameSize: maxFrameSize,
	}
}

func (f *LengthPrefixedFramer) Kind() string {
	return KindLengthPrefixed
}

// WriteFrame 将 payload 编码为长度前缀帧并通过一次 Write 写出。
func (f *LengthPrefixedFramer) WriteFrame(w io.Writer, payload []byte) error {
	length := uint32(len(payload))
	if length > f.effectiveMaxSize() {
		return errors.Wrapf(network.ErrFrameTooLarge, "frame size %d exceeds max %d", length, f.effectiveMaxSize())
	}

	frame := make([]byte, headerSize+len(payload))
	binary.BigEndian.PutUint32(frame[:headerSize], length)
	copy(frame[headerSize:], payload)

	if _, err := w.Write(frame); err != nil {
		return errors.Wrap(err, "framer: write frame failed")
	}
	return nil
}

// ReadFrame 从流中读取一帧数据。
func (f *LengthPrefixedFramer) ReadFrame(r io.Reader) ([]byte, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	length := binary.BigEndian.Uint32(header[:])
	if length > f.effectiveMaxSize() {
		return nil, errors.Wrapf(network.ErrFrameTooLarge, "frame size %d exceeds max %d", length, f.effectiveMaxSize())
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return body, nil
}

// Next 实现 Framer.Next。
// 长度头超过上限时返回 ErrFrameTooLarge，此时缓冲区内容不再可信，调用方应关闭连接。
func (f *LengthPrefixedFramer) Next(buf *ring.Buffer) ([]byte, error) {
	if buf.Buffered() < headerSize {
		return nil, ErrIncompleteFrame
	}

	var header [headerSize]byte
	head, tail := buf.Peek(headerSize)
	n := copy(header[:], head)
	copy(header[n:], tail)

	length := binary.BigEndian.Uint32(header[:])
	if length > f.effectiveMaxSize() {
		return nil, errors.Wrapf(network.ErrFrameTooLarge, "frame size %d exceeds max %d", length, f.effectiveMaxSize())
	}
	if buf.Buffered() < headerSize+int(length) {
		return nil, ErrIncompleteFrame
	}

	_, _ = buf.Discard(headerSize)
	return buf.ReadN(int(length))
}

func (f *LengthPrefixedFramer) effectiveMaxSize() uint32 {
	if f == nil || f.MaxFrameSize == 0 {
		return DefaultMaxFrameSize
	}
	return f.MaxFrameSize
}

// RawFramer 把每次读取到的字节视为一条完整消息，写出时不附加任何边界。
//
// 注意：对端连续发送的多条消息可能被合并读取，单条消息也可能被拆开，
// 此时消息内容会被错误解析。仅用于兼容不支持长度前缀的旧客户端。
type RawFramer struct {
	// ReadSize 为单次读取的最大字节数。
	ReadSize uint32
}

var _ Framer = (*RawFramer)(nil)

// NewRawFramer 创建一个原始分帧器，readSize 为 0 时使用 DefaultMaxFrameSize。
func NewRawFramer(readSize uint32) *RawFramer {
	if readSize == 0 {
		readSize = DefaultMaxFrameSize
	}
	return &RawFramer{ReadSize: readSize}
}

func (f *RawFramer) Kind() string {
	return KindRaw
}

func (f *RawFramer) WriteFrame(w io.Writer, payload []byte) error {
	if _, err := w.Write(payload); err != nil {
		return errors.Wrap(err, "framer: write frame failed")
	}
	return nil
}

// ReadFrame 执行一次 Read，并把读到的全部字节作为一帧返回。
// 零字节读取视为对端关闭。
func (f *RawFramer) ReadFrame(r io.Reader) ([]byte, error) {
	buf := make([]byte, f.ReadSize)
	n, err := r.Read(buf)
	if n > 0 {
		return buf[:n], nil
	}
	if err == nil {
		err = io.EOF
	}
	return nil, err
}

// Next 取出缓冲区中的全部字节作为一帧。
func (f *RawFramer) Next(buf *ring.Buffer) ([]byte, error) {
	if buf.Buffered() == 0 {
		return nil, ErrIncompleteFrame
	}
	return buf.ReadN(buf.Buffered())
}
