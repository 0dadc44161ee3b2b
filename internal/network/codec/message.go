package codec

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap/zapcore"

	network "github.com/lk2023060901/danmu-chatroom-go/internal/network"
)

// MessageType 为线上协议中的消息类型，取值即其序号。
type MessageType int

const (
	Join MessageType = iota
	// Menu 同时承担“离开聊天室”的语义，客户端的 /leave 发送的就是 Menu。
	Menu
	Quit
	Post
	Login
	Create
)

var messageTypeNames = map[MessageType]string{
	Join:   "JOIN",
	Menu:   "MENU",
	Quit:   "QUIT",
	Post:   "POST",
	Login:  "LOGIN",
	Create: "CREATE",
}

// Valid 判断类型是否属于已知枚举。
func (t MessageType) Valid() bool {
	return t >= Join && t <= Create
}

func (t MessageType) String() string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	return "UNKNOWN(" + strconv.Itoa(int(t)) + ")"
}

const separator = ";"

// Message 是一条协议消息。Body 可以包含任意字符，包括分隔符本身。
type Message struct {
	Type MessageType
	Body string
}

// NewMessage 构造一条消息。
func NewMessage(t MessageType, body string) Message {
	return Message{Type: t, Body: body}
}

// InvalidMessage 为解码失败时替换进来的消息。
var InvalidMessage = Message{Type: Post, Body: "Invalid Message"}

// MarshalLogObject 实现 zapcore.ObjectMarshaler。
func (m Message) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("type", m.Type.String())
	enc.AddInt("size", len(m.Body))
	return nil
}

// Marshal 将消息编码为 "<序号>;<正文>"，不会失败。
func Marshal(m Message) []byte {
	tag := strconv.Itoa(int(m.Type))
	out := make([]byte, 0, len(tag)+len(separator)+len(m.Body))
	out = append(out, tag...)
	out = append(out, separator...)
	out = append(out, m.Body...)
	return out
}

// Unmarshal 解析 "<序号>;<正文>"。
//
// 缺少分隔符或序号不是十进制整数时返回包装了 network.ErrDecodeFailed 的错误；
// 序号合法但不在枚举范围内时正常返回，由调用方通过 Type.Valid 判断。
func Unmarshal(data []byte) (Message, error) {
	raw := string(data)
	tag, body, found := strings.Cut(raw, separator)
	if !found {
		return Message{}, errors.Wrap(network.ErrDecodeFailed, "missing type separator")
	}
	ordinal, err := strconv.Atoi(tag)
	if err != nil {
		return Message{}, errors.Wrapf(network.ErrDecodeFailed, "invalid type tag %q", tag)
	}
	return Message{Type: MessageType(ordinal), Body: body}, nil
}
