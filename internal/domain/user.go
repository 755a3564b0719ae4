// Package domain contains entities and their validation rules, no transport or lifecycle logic.
package domain

import (
	"strings"

	"github.com/pkg/errors"
)

const (
	MaxUsernameLen = 36
	MaxRoomIDLen   = 64
	MaxChatTextLen = 2000

	guestPrefix = "Guest-"
)

var (
	ErrUsernameTooLong = errors.New("username too long")
	ErrRoomIDEmpty     = errors.New("room id empty")
	ErrRoomIDTooLong   = errors.New("room id too long")
	ErrChatEmpty       = errors.New("chat message empty")
	ErrChatTooLong     = errors.New("chat message too long")
)

// UserID is the identity a member is known by inside a room. It equals the signaling session id.
type UserID string

type User struct {
	ID       UserID `json:"id"`
	Username string `json:"name"`
}

// NewUser trims the requested name and falls back to a guest name derived from the id.
func NewUser(id UserID, username string) (*User, error) {
	u := &User{ID: id}
	if err := u.SetUsername(username); err != nil {
		return nil, err
	}
	return u, nil
}

func (u *User) SetUsername(username string) error {
	username = strings.TrimSpace(username)
	if len(username) > MaxUsernameLen {
		return ErrUsernameTooLong
	}
	if username == "" {
		username = GuestName(u.ID)
	}
	u.Username = username
	return nil
}

func GuestName(id UserID) string {
	s := string(id)
	if len(s) > 6 {
		s = s[:6]
	}
	return guestPrefix + s
}
