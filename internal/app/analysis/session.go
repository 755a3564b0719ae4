// Package analysis negotiates the side-channel that routes one member's video to the
// analysis backend on the host's request.
package analysis

import (
	"time"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

type State int

const (
	Requested State = iota
	OfferAwaited
	AnswerSent
	Connected
	Concluded
	Stopped
	Failed
)

func (s State) String() string {
	switch s {
	case Requested:
		return "requested"
	case OfferAwaited:
		return "offer_awaited"
	case AnswerSent:
		return "answer_sent"
	case Connected:
		return "connected"
	case Concluded:
		return "concluded"
	case Stopped:
		return "stopped"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s State) Terminal() bool {
	return s == Concluded || s == Stopped || s == Failed
}

// Session is one analysis of a target. Token changes with every session so events and
// timers of an earlier session for the same target are recognized as stale.
type Session struct {
	Target     core.SessionID
	Host       core.SessionID
	Room       domain.RoomID
	State      State
	Token      string
	Conclusion *domain.Conclusion
	StartedAt  time.Time

	stopTimer func() bool
}
