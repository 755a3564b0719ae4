package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type ChatKind string

const (
	ChatUser   ChatKind = "user"
	ChatSystem ChatKind = "system"
)

type ChatMessage struct {
	ID         string   `json:"id"`
	Kind       ChatKind `json:"kind"`
	Room       RoomID   `json:"room_id"`
	SenderID   UserID   `json:"sender_id,omitempty"`
	SenderName string   `json:"sender_name"`
	Text       string   `json:"text"`
	Timestamp  float64  `json:"timestamp"`
}

func NewChatMessage(room RoomID, sender User, text string) (ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return ChatMessage{}, ErrChatEmpty
	}
	if len(text) > MaxChatTextLen {
		return ChatMessage{}, ErrChatTooLong
	}
	return ChatMessage{
		ID:         uuid.NewString(),
		Kind:       ChatUser,
		Room:       room,
		SenderID:   sender.ID,
		SenderName: sender.Username,
		Text:       text,
		Timestamp:  unixSeconds(time.Now()),
	}, nil
}

func SystemJoined(room RoomID, name string) ChatMessage {
	return systemMessage(room, fmt.Sprintf("%s has joined the meeting.", name))
}

func SystemLeft(room RoomID, name string) ChatMessage {
	return systemMessage(room, fmt.Sprintf("%s has left the meeting.", name))
}

func systemMessage(room RoomID, text string) ChatMessage {
	return ChatMessage{
		ID:         uuid.NewString(),
		Kind:       ChatSystem,
		Room:       room,
		SenderName: "System",
		Text:       text,
		Timestamp:  unixSeconds(time.Now()),
	}
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixMilli()) / 1000
}
