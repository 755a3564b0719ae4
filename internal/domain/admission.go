package domain

import "time"

type RequestState int

const (
	RequestRequested RequestState = iota
	RequestApproved
	RequestDenied
	RequestAbandoned
)

func (s RequestState) String() string {
	switch s {
	case RequestRequested:
		return "requested"
	case RequestApproved:
		return "approved"
	case RequestDenied:
		return "denied"
	case RequestAbandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

type Decision string

const (
	DecisionAccept    Decision = "accept"
	DecisionDeny      Decision = "deny"
	DecisionAbandoned Decision = "abandoned"
)

// PendingJoinRequest is a requester waiting for the host of a locked room.
type PendingJoinRequest struct {
	Room      RoomID
	Requester User
	CreatedAt time.Time
	State     RequestState
}

// Outcome is the decision a resolved request actually ended with.
func (r PendingJoinRequest) Outcome() Decision {
	switch r.State {
	case RequestApproved:
		return DecisionAccept
	case RequestDenied:
		return DecisionDeny
	default:
		return DecisionAbandoned
	}
}
