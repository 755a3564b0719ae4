// Package mesh models the peer links of a mesh room: one directed link per ordered member pair.
package mesh

import (
	"fmt"

	"github.com/dkeye/Meet/internal/domain"
	"github.com/pkg/errors"
)

type LinkState int

const (
	Idle LinkState = iota
	OfferSent
	OfferReceived
	AnswerExchanged
	Connected
	Reconnecting
	Closed
)

func (s LinkState) String() string {
	switch s {
	case Idle:
		return "idle"
	case OfferSent:
		return "offer_sent"
	case OfferReceived:
		return "offer_received"
	case AnswerExchanged:
		return "answer_exchanged"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("link_state(%d)", int(s))
	}
}

var ErrIllegalTransition = errors.New("illegal link transition")

// Any state may move to Closed, Closed is terminal.
var transitions = map[LinkState][]LinkState{
	Idle:            {OfferSent, OfferReceived},
	OfferSent:       {AnswerExchanged},
	OfferReceived:   {AnswerExchanged},
	AnswerExchanged: {Connected, OfferSent, OfferReceived},
	Connected:       {Reconnecting, OfferSent, OfferReceived},
	Reconnecting:    {Connected},
}

func (s LinkState) CanTransition(to LinkState) bool {
	if s == Closed {
		return false
	}
	if to == Closed {
		return true
	}
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// PairKey addresses the link Local holds towards Remote inside Room.
type PairKey struct {
	Room   domain.RoomID
	Local  domain.UserID
	Remote domain.UserID
}

func (k PairKey) Reverse() PairKey {
	return PairKey{Room: k.Room, Local: k.Remote, Remote: k.Local}
}

func (k PairKey) String() string {
	return fmt.Sprintf("%s:%s->%s", k.Room, k.Local, k.Remote)
}

// Link is the negotiation state of one directed pair.
type Link struct {
	Key     PairKey
	State   LinkState
	Offerer domain.UserID
	// connectedOnce lets a renegotiation settle back to Connected without a fresh media report.
	connectedOnce bool
	// beforeOffer is the state a pending offer started from, restored by Rollback.
	beforeOffer LinkState
}

func NewLink(key PairKey, offerer domain.UserID) *Link {
	return &Link{Key: key, State: Idle, Offerer: offerer}
}

func (l *Link) Transition(to LinkState) error {
	if l.State == to && to != Closed {
		return nil
	}
	if !l.State.CanTransition(to) {
		return errors.Wrapf(ErrIllegalTransition, "%s: %s -> %s", l.Key, l.State, to)
	}
	if to == OfferSent || to == OfferReceived {
		l.beforeOffer = l.State
	}
	l.State = to
	if to == Connected {
		l.connectedOnce = true
	}
	return nil
}

// Rollback abandons the offer in flight and returns the link to the state it was in before.
func (l *Link) Rollback() error {
	if l.State != OfferSent && l.State != OfferReceived {
		return errors.Wrapf(ErrIllegalTransition, "%s: rollback in %s", l.Key, l.State)
	}
	l.State = l.beforeOffer
	return nil
}

// WasConnected reports whether media ever came up on this link.
func (l *Link) WasConnected() bool { return l.connectedOnce }
