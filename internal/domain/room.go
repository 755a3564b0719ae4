package domain

import (
	"strings"
	"time"
)

type RoomID string

// ParseRoomID validates a client supplied room id.
func ParseRoomID(raw string) (RoomID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrRoomIDEmpty
	}
	if len(raw) > MaxRoomIDLen {
		return "", ErrRoomIDTooLong
	}
	return RoomID(raw), nil
}

// Member is a user's participation in a room.
type Member struct {
	User     User      `json:"user"`
	JoinedAt time.Time `json:"joined_at"`
}

func NewMember(user User) Member {
	return Member{User: user, JoinedAt: time.Now()}
}

func (m Member) ID() UserID { return m.User.ID }

// RoomInfo is a read-only snapshot of a room.
type RoomInfo struct {
	ID           RoomID    `json:"room_id"`
	Host         UserID    `json:"host_id"`
	Locked       bool      `json:"locked"`
	CreatedAt    time.Time `json:"created_at"`
	Members      []Member  `json:"members,omitempty"`
	MemberCount  int       `json:"member_count"`
	PendingCount int       `json:"pending_count"`
}
