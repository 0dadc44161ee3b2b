package chat

import (
	"fmt"
	"strings"

	"github.com/lk2023060901/danmu-chatroom-go/internal/network/codec"
)

// 发给客户端的固定文本。
const (
	welcomeText         = "Welcome to the chat server!\nPlease enter username:"
	notInRoomText       = "You are not currently in a chatroom."
	postOutsideRoomText = "You need to join a chatroom to send messages."
	unknownTypeText     = "Unknown message type."
	emptyRoomNameText   = "Chatroom name must not be empty."

	loginExpectedText = "Login failed: expected a username."
	loginEmptyText    = "Login failed: username must not be empty."
)

// WelcomeMessage 是连接建立后服务端发出的第一条消息。
func WelcomeMessage() codec.Message {
	return codec.NewMessage(codec.Post, welcomeText)
}

// menuText 生成聊天室菜单，rooms 需已排序。
func menuText(rooms []string) string {
	var sb strings.Builder
	sb.WriteString("\nAvailable chatrooms:\n")
	for _, name := range rooms {
		sb.WriteString("---- ")
		sb.WriteString(name)
		sb.WriteByte('\n')
	}
	sb.WriteString("Enter a chatroom name to join or create a new one.\n")
	sb.WriteString("To create a new chatroom, type '/create [chatroom name];[forbidden words]'\n")
	sb.WriteString("Example: /create myRoom;word1,word2\n")
	return sb.String()
}

func postText(username, text string) string {
	return fmt.Sprintf("[%s]: %s", username, text)
}

func joinedText(username, room string) string {
	return fmt.Sprintf("[%s] has joined %s", username, room)
}

func leftText(username, room string) string {
	return fmt.Sprintf("[%s] has left %s", username, room)
}

func alreadyInRoomText(room string) string {
	return fmt.Sprintf("You are already in chatroom %s. Please leave it first.", room)
}

func alreadyLoggedInText(username string) string {
	return fmt.Sprintf("You are already logged in as %s.", username)
}

func roomNotFoundText(room string) string {
	return fmt.Sprintf("Chatroom '%s' does not exist.", room)
}

func roomExistsText(room string) string {
	return fmt.Sprintf("Chatroom '%s' already exists.", room)
}

func usernameTakenText(username string) string {
	return fmt.Sprintf("Login failed: username '%s' is already taken.", username)
}

func usernameTooLongText(limit int) string {
	return fmt.Sprintf("Login failed: username must be at most %d characters.", limit)
}
