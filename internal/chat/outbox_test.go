package chat

import (
	"github.com/lk2023060901/danmu-chatroom-go/internal/network/codec"
	"github.com/lk2023060901/danmu-chatroom-go/pkg/util/merr"
	"github.com/lk2023060901/danmu-chatroom-go/pkg/util/typeutil"
)

// fakeOutbox 记录发出的消息与被关闭的连接。
type fakeOutbox struct {
	sent   map[uint64][]codec.Message
	closed typeutil.Set[uint64]
	full   typeutil.Set[uint64]
}

func newFakeOutbox() *fakeOutbox {
	return &fakeOutbox{
		sent:   make(map[uint64][]codec.Message),
		closed: typeutil.NewSet[uint64](),
		full:   typeutil.NewSet[uint64](),
	}
}

func (o *fakeOutbox) Send(id uint64, msg codec.Message) error {
	if o.full.Contain(id) {
		return merr.WrapErrSendQueueFull(id, 1)
	}
	o.sent[id] = append(o.sent[id], msg)
	return nil
}

func (o *fakeOutbox) Close(id uint64) error {
	o.closed.Insert(id)
	return nil
}

// take 返回并清空发给 id 的消息。
func (o *fakeOutbox) take(id uint64) []codec.Message {
	msgs := o.sent[id]
	delete(o.sent, id)
	return msgs
}
