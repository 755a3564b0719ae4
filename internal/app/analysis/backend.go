package analysis

import (
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/pion/webrtc/v4"
)

// Backend owns the server end of analysis media connections.
type Backend interface {
	// Start opens a receive-only video connection for target and returns its offer.
	// Asynchronous outcomes are reported through sink tagged with token.
	Start(target core.SessionID, token string, sink func(Event)) (webrtc.SessionDescription, error)
	Answer(target core.SessionID, answer webrtc.SessionDescription) error
	AddCandidate(target core.SessionID, candidate webrtc.ICECandidateInit) error
	// Stop tears the connection down and returns the conclusion, nil when nothing was analysed.
	Stop(target core.SessionID) *domain.Conclusion
}

// Event is something the backend or a timer reports about a session.
type Event interface {
	target() core.SessionID
	token() string
}

type eventBase struct {
	Target core.SessionID
	Token  string
}

func (e eventBase) target() core.SessionID { return e.Target }
func (e eventBase) token() string          { return e.Token }

// LocalCandidate is a server candidate to trickle to the target.
type LocalCandidate struct {
	eventBase
	Candidate webrtc.ICECandidateInit
}

// TrackArrived reports the target's video reached the backend.
type TrackArrived struct{ eventBase }

// TrackEnded reports the video stream ended.
type TrackEnded struct{ eventBase }

// TransportFailed reports the media transport failed.
type TransportFailed struct {
	eventBase
	Err error
}

// ConnectTimeout fires when the session did not connect in time.
type ConnectTimeout struct{ eventBase }

func NewLocalCandidate(target core.SessionID, token string, c webrtc.ICECandidateInit) LocalCandidate {
	return LocalCandidate{eventBase: eventBase{Target: target, Token: token}, Candidate: c}
}

func NewTrackArrived(target core.SessionID, token string) TrackArrived {
	return TrackArrived{eventBase{Target: target, Token: token}}
}

func NewTrackEnded(target core.SessionID, token string) TrackEnded {
	return TrackEnded{eventBase{Target: target, Token: token}}
}

func NewTransportFailed(target core.SessionID, token string, err error) TransportFailed {
	return TransportFailed{eventBase: eventBase{Target: target, Token: token}, Err: err}
}
