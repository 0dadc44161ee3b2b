package chat

import (
	"slices"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/lk2023060901/danmu-chatroom-go/internal/network/codec"
	"github.com/lk2023060901/danmu-chatroom-go/internal/network/session"
	"github.com/lk2023060901/danmu-chatroom-go/pkg/log"
	"github.com/lk2023060901/danmu-chatroom-go/pkg/metrics"
	"github.com/lk2023060901/danmu-chatroom-go/pkg/util/merr"
)

// DefaultRoom 是进程启动时创建的聊天室名称。
const DefaultRoom = "default"

// RoomSnapshot 是聊天室的只读视图，用于管理接口。
type RoomSnapshot struct {
	Name           string    `json:"name"`
	Creator        string    `json:"creator,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	Members        []uint64  `json:"members"`
	HistoryLen     int       `json:"historyLen"`
	ForbiddenWords int       `json:"forbiddenWords"`
}

// Registry 持有全部聊天室以及连接所在聊天室的索引。
//
// 约束：
//   - 一个连接同一时刻至多属于一个聊天室；
//   - 聊天室创建后不会被删除，即使没有成员；
//   - 只在 reactor 协程中访问，不加锁。
type Registry struct {
	rooms    map[string]*Room
	memberOf map[uint64]string
	censor   *Censor
}

// NewRegistry 创建注册表并创建默认聊天室。
func NewRegistry(defaultRoom string, censor *Censor) *Registry {
	if defaultRoom == "" {
		defaultRoom = DefaultRoom
	}
	if censor == nil {
		censor = NewCensor(DefaultMask)
	}
	reg := &Registry{
		rooms:    make(map[string]*Room),
		memberOf: make(map[uint64]string),
		censor:   censor,
	}
	_ = reg.CreateRoom(defaultRoom, nil, "")
	return reg
}

// CreateRoom 创建聊天室，历史记录以欢迎语开头。
func (reg *Registry) CreateRoom(name string, words []string, creator string) error {
	if strings.TrimSpace(name) == "" {
		return merr.WrapErrRoomNameInvalid(name, "chatroom name must not be empty")
	}
	if _, ok := reg.rooms[name]; ok {
		return merr.WrapErrRoomAlreadyExists(name)
	}
	reg.rooms[name] = newRoom(name, creator, NormalizeWords(words))
	metrics.Rooms.Set(float64(len(reg.rooms)))
	log.L().Debug("chatroom created", log.FieldRoom(name), log.FieldUser(creator), zap.Int("forbiddenWords", len(words)))
	return nil
}

// Room 返回指定名称的聊天室。
func (reg *Registry) Room(name string) (*Room, bool) {
	r, ok := reg.rooms[name]
	return r, ok
}

// RoomOf 返回连接当前所在的聊天室名称。
func (reg *Registry) RoomOf(connID uint64) (string, bool) {
	name, ok := reg.memberOf[connID]
	return name, ok
}

// Join 把连接加入聊天室。
func (reg *Registry) Join(connID uint64, name string) error {
	if cur, ok := reg.memberOf[connID]; ok {
		return merr.WrapErrAlreadyInRoom(connID, cur)
	}
	r, ok := reg.rooms[name]
	if !ok {
		return merr.WrapErrRoomNotFound(name)
	}
	r.members.Insert(connID)
	reg.memberOf[connID] = name
	return nil
}

// Leave 把连接移出所在聊天室，返回离开的聊天室名称。
func (reg *Registry) Leave(connID uint64) (string, bool) {
	name, ok := reg.memberOf[connID]
	if !ok {
		return "", false
	}
	delete(reg.memberOf, connID)
	reg.rooms[name].members.Remove(connID)
	return name, true
}

// Broadcast 屏蔽 body 后发送给聊天室当前的全部成员，然后追加到历史记录。
// 返回成功投递的连接 ID。
func (reg *Registry) Broadcast(out session.Outbox, name, body string) ([]uint64, error) {
	r, ok := reg.rooms[name]
	if !ok {
		return nil, merr.WrapErrRoomNotFound(name)
	}
	censored := reg.censor.Apply(body, r.words)
	msg := codec.NewMessage(codec.Post, censored)

	delivered := make([]uint64, 0, r.members.Len())
	var errs []error
	for _, id := range r.Members() {
		if err := out.Send(id, msg); err != nil {
			errs = append(errs, errors.Wrapf(err, "broadcast to %d", id))
			continue
		}
		delivered = append(delivered, id)
	}
	r.history = append(r.history, censored)
	metrics.BroadcastDeliveries.Add(float64(len(delivered)))
	return delivered, merr.Combine(errs...)
}

// History 返回聊天室的完整回放内容。
func (reg *Registry) History(name string) (string, error) {
	r, ok := reg.rooms[name]
	if !ok {
		return "", merr.WrapErrRoomNotFound(name)
	}
	return r.Replay(), nil
}

// Rooms 返回升序排列的聊天室名称。
func (reg *Registry) Rooms() []string {
	names := lo.Keys(reg.rooms)
	slices.Sort(names)
	return names
}

// Snapshot 返回按名称排序的全部聊天室视图。
func (reg *Registry) Snapshot() []RoomSnapshot {
	return lo.Map(reg.Rooms(), func(name string, _ int) RoomSnapshot {
		r := reg.rooms[name]
		return RoomSnapshot{
			Name:           r.name,
			Creator:        r.creator,
			CreatedAt:      r.createdAt,
			Members:        r.Members(),
			HistoryLen:     len(r.history),
			ForbiddenWords: len(r.words),
		}
	})
}
