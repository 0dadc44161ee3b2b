package chat

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/lk2023060901/danmu-chatroom-go/pkg/util/typeutil"
)

// Room 是一个具名的广播组。
// 历史记录只追加、不截断，保存的都是已经屏蔽过的文本。
type Room struct {
	name      string
	creator   string
	createdAt time.Time
	words     []string
	members   typeutil.Set[uint64]
	history   []string
}

func newRoom(name, creator string, words []string) *Room {
	return &Room{
		name:      name,
		creator:   creator,
		createdAt: time.Now(),
		words:     words,
		members:   typeutil.NewSet[uint64](),
		history:   []string{roomWelcome(name)},
	}
}

func roomWelcome(name string) string {
	return fmt.Sprintf("\n[Server]: Welcome to the chatroom '%s'.\n"+
		"You can send messages to the chat now.\n"+
		"Type '/leave' to exit the chatroom.", name)
}

func (r *Room) Name() string { return r.name }

// Creator 返回创建者用户名，启动时创建的默认聊天室为空串。
func (r *Room) Creator() string { return r.creator }

func (r *Room) CreatedAt() time.Time { return r.createdAt }

// ForbiddenWords 返回升序排列的屏蔽词副本。
func (r *Room) ForbiddenWords() []string { return slices.Clone(r.words) }

// Members 返回升序排列的成员连接 ID。
func (r *Room) Members() []uint64 {
	ids := r.members.Collect()
	slices.Sort(ids)
	return ids
}

func (r *Room) HasMember(connID uint64) bool { return r.members.Contain(connID) }

func (r *Room) MemberCount() int { return r.members.Len() }

func (r *Room) HistoryLen() int { return len(r.history) }

// Replay 按顺序拼接全部历史，每条后跟一个换行符。
func (r *Room) Replay() string {
	var sb strings.Builder
	for _, entry := range r.history {
		sb.WriteString(entry)
		sb.WriteByte('\n')
	}
	return sb.String()
}
