package client

import (
	"sync"

	"github.com/dkeye/Meet/internal/domain"
	"github.com/dkeye/Meet/internal/peer"
	"github.com/dkeye/Meet/internal/protocol"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Room   domain.RoomID
	Name   string
	Locked bool
	// AutoAdmit accepts every join request while hosting.
	AutoAdmit bool
	// Analyze starts an analysis of every member that joins while hosting.
	Analyze bool
}

// Participant routes server messages to the mesh orchestrator and the analysis responder.
type Participant struct {
	Signal    peer.Signaler
	Peer      *peer.Orchestrator
	Responder *peer.Responder
	Controls  *AnalysisControls
	Opts      Options
	// OnChat is called for every chat message when set.
	OnChat func(domain.ChatMessage)
	// OnConclusion is called for every final analysis conclusion when set.
	OnConclusion func(*protocol.AnalysisConclusion)

	mu     sync.Mutex
	done   chan struct{}
	once   sync.Once
	reason string
	logger zerolog.Logger
}

func NewParticipant(signal peer.Signaler, p *peer.Orchestrator, responder *peer.Responder, opts Options) *Participant {
	return &Participant{
		Signal:    signal,
		Peer:      p,
		Responder: responder,
		Controls:  NewAnalysisControls(),
		Opts:      opts,
		done:      make(chan struct{}),
		logger:    log.With().Str("module", "client").Str("room", string(opts.Room)).Logger(),
	}
}

// Done is closed once the participant is out of the room for good.
func (p *Participant) Done() <-chan struct{} { return p.done }

func (p *Participant) Reason() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reason
}

func (p *Participant) finish(reason string) {
	p.once.Do(func() {
		p.mu.Lock()
		p.reason = reason
		p.mu.Unlock()
		close(p.done)
	})
}

func (p *Participant) isHost() bool {
	self := p.Peer.Self()
	return self != "" && self == p.Peer.Host()
}

// Handle reacts to one server message.
func (p *Participant) Handle(m protocol.Message) {
	switch msg := m.(type) {
	case *protocol.ConnectionSuccess:
		p.Peer.SetSelf(msg.SID)
		p.send(&protocol.JoinRoom{RoomID: p.Opts.Room, DisplayName: p.Opts.Name, CreateLocked: p.Opts.Locked})
	case *protocol.RoomJoined:
		if err := p.Peer.HandleRoomJoined(msg); err != nil {
			p.logger.Error().Err(err).Msg("room joined")
		}
	case *protocol.WaitingForApproval:
		p.logger.Info().Msg(msg.Message)
	case *protocol.AdmissionDenied:
		p.logger.Warn().Msg(msg.Message)
		p.finish(msg.Message)
	case *protocol.JoinRequestReceived:
		p.logger.Info().Str("requester", string(msg.RequesterID)).Str("name", msg.RequesterName).Msg("join request")
		if p.Opts.AutoAdmit {
			p.send(&protocol.AdmissionDecision{RoomID: msg.RoomID, RequesterID: msg.RequesterID, Decision: domain.DecisionAccept})
		}
	case *protocol.JoinRequestProcessed:
		p.logger.Info().Str("requester", string(msg.RequesterID)).Str("decision", string(msg.Decision)).Msg("join request processed")
	case *protocol.MemberJoined:
		if err := p.Peer.HandleMemberJoined(msg); err != nil {
			p.logger.Error().Err(err).Str("member", string(msg.Member.ID)).Msg("offer to newcomer")
		}
		if p.Opts.Analyze && p.isHost() && msg.Member.ID != p.Peer.Self() {
			p.StartAnalysis(msg.Member.ID)
		}
	case *protocol.MemberLeft:
		p.Peer.HandleMemberLeft(msg)
		p.Controls.Resolved(msg.Member.ID)
	case *protocol.NewMessage:
		if p.OnChat != nil {
			p.OnChat(msg.ChatMessage)
		}
		p.logger.Info().Str("from", msg.SenderName).Msg(msg.Text)
	case *protocol.MeetingEnded:
		p.Peer.HandleRoomClosed()
		p.Responder.HandleStopped()
		p.finish(msg.Message)
	case *protocol.HostLeft:
		p.Peer.HandleRoomClosed()
		p.Responder.HandleStopped()
		p.finish(msg.Message)
	case *protocol.Offer:
		if err := p.Peer.HandleOffer(msg); err != nil {
			p.logger.Warn().Err(err).Str("from", string(msg.FromID)).Msg("offer")
		}
	case *protocol.Answer:
		if err := p.Peer.HandleAnswer(msg); err != nil {
			p.logger.Warn().Err(err).Str("from", string(msg.FromID)).Msg("answer")
		}
	case *protocol.Candidate:
		if err := p.Peer.HandleCandidate(msg); err != nil {
			p.logger.Debug().Err(err).Str("from", string(msg.FromID)).Msg("candidate")
		}
	case *protocol.ServerOffer:
		if err := p.Responder.HandleOffer(msg); err != nil {
			p.logger.Warn().Err(err).Msg("analysis offer")
		}
	case *protocol.ServerCandidate:
		if err := p.Responder.HandleCandidate(msg); err != nil {
			p.logger.Debug().Err(err).Msg("analysis candidate")
		}
	case *protocol.AnalysisStoppedPeer:
		p.Responder.HandleStopped()
	case *protocol.AnalysisEstablished:
		p.Controls.Established(msg.TargetID)
		p.logger.Info().Str("target", string(msg.TargetID)).Msg("analysis established")
	case *protocol.AnalysisFailed:
		p.Controls.Resolved(msg.TargetID)
		p.logger.Warn().Str("target", string(msg.TargetID)).Msg(msg.Error)
	case *protocol.AnalysisStoppedHost:
		p.Controls.Resolved(msg.TargetID)
		p.logger.Info().Str("target", string(msg.TargetID)).Str("reason", msg.Error).Msg("analysis stopped")
	case *protocol.AnalysisConclusion:
		p.Controls.Resolved(msg.AnalyzedSID)
		if p.OnConclusion != nil {
			p.OnConclusion(msg)
		}
		p.logger.Info().Str("target", string(msg.AnalyzedSID)).Msg(msg.Conclusion.StatusText)
	case *protocol.Error:
		p.logger.Warn().Str("code", string(msg.Code)).Str("ref", string(msg.Ref)).Msg(msg.Message)
	case *protocol.Pong:
	default:
		p.logger.Debug().Str("type", string(m.Kind())).Msg("unhandled message")
	}
}

// StartAnalysis asks the server to analyze target unless a request is already in flight
// or the target is cooling down.
func (p *Participant) StartAnalysis(target domain.UserID) bool {
	if !p.Controls.Start(target) {
		return false
	}
	if err := p.Signal.Send(&protocol.StartAnalysis{TargetID: target, RequestingHostID: p.Peer.Self()}); err != nil {
		p.Controls.Resolved(target)
		p.logger.Warn().Err(err).Msg("start analysis")
		return false
	}
	return true
}

func (p *Participant) StopAnalysis(target domain.UserID) bool {
	if !p.Controls.Stop(target) {
		return false
	}
	p.send(&protocol.StopAnalysis{TargetID: target})
	return true
}

func (p *Participant) Chat(text string) {
	p.send(&protocol.SendMessage{RoomID: p.Peer.Room(), Text: text})
}

// EndMeeting ends the room for everyone. Only the host may do this.
func (p *Participant) EndMeeting() {
	p.send(&protocol.HostEndMeeting{RoomID: p.Peer.Room()})
}

func (p *Participant) send(m protocol.Message) {
	if err := p.Signal.Send(m); err != nil {
		p.logger.Warn().Err(err).Str("type", string(m.Kind())).Msg("send failed")
	}
}
