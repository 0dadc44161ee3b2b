package chat

import "fmt"

// State 是客户端会话在状态机中的位置。
type State int

const (
	StatePreLogin State = iota
	StateSelectingChatroom
	StateInChatroom
	StateQuitting
)

var stateNames = map[State]string{
	StatePreLogin:          "PreLogin",
	StateSelectingChatroom: "SelectingChatroom",
	StateInChatroom:        "InChatroom",
	StateQuitting:          "Quitting",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}
