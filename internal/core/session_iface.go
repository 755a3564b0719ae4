package core

import "github.com/dkeye/Meet/internal/domain"

// SessionID identifies one signaling connection. It is assigned at accept time and never reused.
type SessionID string

func (s SessionID) UserID() domain.UserID { return domain.UserID(s) }

func SessionOf(id domain.UserID) SessionID { return SessionID(id) }
