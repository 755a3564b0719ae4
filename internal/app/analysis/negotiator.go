package analysis

import (
	"time"

	"github.com/dkeye/Meet/internal/app"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/dkeye/Meet/internal/metrics"
	"github.com/dkeye/Meet/internal/protocol"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const DefaultConnectTimeout = 15 * time.Second

type Membership interface {
	RoomOf(sid core.SessionID) (domain.RoomID, bool)
	IsHost(room domain.RoomID, sid core.SessionID) bool
}

type Sender interface {
	Send(sid core.SessionID, m protocol.Message)
}

// Negotiator keeps at most one session per target. It is driven by the orchestrator loop
// and must not be called concurrently; Post hands asynchronous events back to that loop.
type Negotiator struct {
	Backend        Backend
	Members        Membership
	Sender         Sender
	Post           func(Event)
	ConnectTimeout time.Duration
	// AfterFunc schedules f and returns its cancel function. Defaults to time.AfterFunc.
	AfterFunc func(d time.Duration, f func()) func() bool

	sessions map[core.SessionID]*Session
}

func NewNegotiator(backend Backend, members Membership, sender Sender, post func(Event)) *Negotiator {
	return &Negotiator{
		Backend:        backend,
		Members:        members,
		Sender:         sender,
		Post:           post,
		ConnectTimeout: DefaultConnectTimeout,
		sessions:       make(map[core.SessionID]*Session),
	}
}

func (n *Negotiator) afterFunc(d time.Duration, f func()) func() bool {
	if n.AfterFunc != nil {
		return n.AfterFunc(d, f)
	}
	return time.AfterFunc(d, f).Stop
}

// Session returns a copy of the unresolved session for target.
func (n *Negotiator) Session(target core.SessionID) (Session, bool) {
	s, ok := n.sessions[target]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

func (n *Negotiator) Len() int { return len(n.sessions) }

// Start opens a session for target on behalf of host.
func (n *Negotiator) Start(host, target core.SessionID) error {
	room, ok := n.Members.RoomOf(target)
	if !ok || target == host {
		return errors.Wrap(app.ErrNoSuchTarget, string(target))
	}
	if !n.Members.IsHost(room, host) {
		return app.ErrNotHost
	}
	if _, busy := n.sessions[target]; busy {
		return errors.Wrap(app.ErrAnalysisBusy, string(target))
	}

	s := &Session{
		Target:    target,
		Host:      host,
		Room:      room,
		State:     Requested,
		Token:     uuid.NewString(),
		StartedAt: time.Now(),
	}
	n.sessions[target] = s
	metrics.AnalysisStarted()
	logger := log.With().Str("module", "analysis").Str("target", string(target)).Str("host", string(host)).Logger()

	offer, err := n.Backend.Start(target, s.Token, n.Post)
	if err != nil {
		logger.Error().Err(err).Msg("backend start")
		n.finish(s, Failed, "could not create analysis connection")
		return nil
	}
	n.Sender.Send(target, &protocol.ServerOffer{Offer: offer, TargetID: target.UserID()})
	s.State = OfferAwaited

	token := s.Token
	s.stopTimer = n.afterFunc(n.ConnectTimeout, func() {
		n.Post(ConnectTimeout{eventBase{Target: target, Token: token}})
	})
	logger.Info().Msg("analysis offer sent")
	return nil
}

// ClientAnswer applies the target's answer. Anything not from the target is dropped.
func (n *Negotiator) ClientAnswer(from, target core.SessionID, answer webrtc.SessionDescription) {
	s, ok := n.sessions[target]
	if !ok || from != target || s.State != OfferAwaited {
		log.Debug().Str("module", "analysis").Str("from", string(from)).Str("target", string(target)).Msg("dropped analysis answer")
		return
	}
	if err := n.Backend.Answer(target, answer); err != nil {
		log.Warn().Err(err).Str("module", "analysis").Str("target", string(target)).Msg("apply answer")
		n.Backend.Stop(target)
		n.finish(s, Failed, "analysis answer rejected")
		return
	}
	s.State = AnswerSent
}

func (n *Negotiator) ClientCandidate(from, target core.SessionID, c webrtc.ICECandidateInit) {
	s, ok := n.sessions[target]
	if !ok || from != target || s.State == Requested {
		log.Debug().Str("module", "analysis").Str("from", string(from)).Str("target", string(target)).Msg("dropped analysis candidate")
		return
	}
	if err := n.Backend.AddCandidate(target, c); err != nil {
		log.Warn().Err(err).Str("module", "analysis").Str("target", string(target)).Msg("add candidate")
	}
}

// Stop ends the session on the host's request.
func (n *Negotiator) Stop(host, target core.SessionID) error {
	s, ok := n.sessions[target]
	if !ok || s.State == Requested {
		return errors.Wrap(app.ErrNoSuchTarget, string(target))
	}
	if s.Host != host {
		return app.ErrNotHost
	}
	conclusion := n.Backend.Stop(target)
	if s.State == Connected && conclusion != nil {
		s.Conclusion = conclusion
		n.finish(s, Concluded, "")
		return nil
	}
	n.finish(s, Stopped, "")
	return nil
}

// HandleEvent applies an asynchronous backend or timer event.
func (n *Negotiator) HandleEvent(ev Event) {
	s, ok := n.sessions[ev.target()]
	if !ok || s.Token != ev.token() {
		return
	}
	switch e := ev.(type) {
	case LocalCandidate:
		n.Sender.Send(s.Target, &protocol.ServerCandidate{Candidate: e.Candidate, TargetID: s.Target.UserID()})
	case TrackArrived:
		if s.State != OfferAwaited && s.State != AnswerSent {
			return
		}
		s.State = Connected
		if s.stopTimer != nil {
			s.stopTimer()
		}
		n.Sender.Send(s.Host, &protocol.AnalysisEstablished{TargetID: s.Target.UserID()})
		log.Info().Str("module", "analysis").Str("target", string(s.Target)).Msg("analysis connected")
	case TrackEnded:
		conclusion := n.Backend.Stop(s.Target)
		if s.State == Connected && conclusion != nil {
			s.Conclusion = conclusion
			n.finish(s, Concluded, "")
			return
		}
		n.finish(s, Stopped, "stream ended")
	case TransportFailed:
		log.Warn().Err(e.Err).Str("module", "analysis").Str("target", string(s.Target)).Msg("analysis transport failed")
		n.Backend.Stop(s.Target)
		n.finish(s, Failed, "analysis connection failed")
	case ConnectTimeout:
		if s.State == Connected {
			return
		}
		n.Backend.Stop(s.Target)
		n.finish(s, Failed, "analysis connection timed out")
	}
}

// MemberGone stops every session the member takes part in.
func (n *Negotiator) MemberGone(sid core.SessionID) {
	for _, s := range n.snapshot() {
		if s.Target == sid || s.Host == sid {
			n.Backend.Stop(s.Target)
			n.finish(s, Stopped, "participant left")
		}
	}
}

func (n *Negotiator) RoomClosed(room domain.RoomID) {
	for _, s := range n.snapshot() {
		if s.Room == room {
			n.Backend.Stop(s.Target)
			n.finish(s, Stopped, "meeting ended")
		}
	}
}

// StopAll is used on shutdown.
func (n *Negotiator) StopAll() {
	for _, s := range n.snapshot() {
		n.Backend.Stop(s.Target)
		n.finish(s, Stopped, "server shutting down")
	}
}

func (n *Negotiator) snapshot() []*Session {
	out := make([]*Session, 0, len(n.sessions))
	for _, s := range n.sessions {
		out = append(out, s)
	}
	return out
}

// finish moves s to its terminal state and sends the single terminal notice to the host.
func (n *Negotiator) finish(s *Session, outcome State, reason string) {
	if s.State.Terminal() {
		return
	}
	if s.stopTimer != nil {
		s.stopTimer()
	}
	s.State = outcome
	delete(n.sessions, s.Target)
	metrics.AnalysisFinished(outcome.String())

	n.Sender.Send(s.Target, &protocol.AnalysisStoppedPeer{TargetID: s.Target.UserID()})
	switch outcome {
	case Concluded:
		n.Sender.Send(s.Host, &protocol.AnalysisConclusion{
			AnalyzedSID:     s.Target.UserID(),
			ExpectedHostSID: s.Host.UserID(),
			Conclusion:      *s.Conclusion,
		})
	case Failed:
		n.Sender.Send(s.Host, &protocol.AnalysisFailed{TargetID: s.Target.UserID(), Error: reason})
	default:
		n.Sender.Send(s.Host, &protocol.AnalysisStoppedHost{
			TargetID:        s.Target.UserID(),
			ExpectedHostSID: s.Host.UserID(),
			Error:           reason,
		})
	}
	log.Info().Str("module", "analysis").Str("target", string(s.Target)).Str("outcome", outcome.String()).Str("reason", reason).Msg("analysis finished")
}
