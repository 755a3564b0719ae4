package orch

import (
	"context"
	"time"

	"github.com/dkeye/Meet/internal/app"
	"github.com/dkeye/Meet/internal/app/analysis"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/dkeye/Meet/internal/mesh"
	"github.com/dkeye/Meet/internal/metrics"
	"github.com/dkeye/Meet/internal/protocol"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const DefaultInboxSize = 1024

// Command is one unit of work for the orchestrator loop.
type Command interface {
	command()
}

// Connected binds a freshly accepted signaling connection.
type Connected struct {
	SID         core.SessionID
	DisplayName string
	Conn        core.SignalConnection
	Cancel      context.CancelFunc
}

type Disconnected struct {
	SID core.SessionID
}

// Inbound is a decoded message received from SID.
type Inbound struct {
	SID core.SessionID
	Msg protocol.Message
}

type AnalysisEvent struct {
	Event analysis.Event
}

func (Connected) command()     {}
func (Disconnected) command()  {}
func (Inbound) command()       {}
func (AnalysisEvent) command() {}

// Orchestrator applies every command on a single goroutine, so room, link and analysis
// state never needs its own locking.
type Orchestrator struct {
	Registry  *app.Registry
	Admission *app.Admission
	Bus       *app.Bus
	Policy    app.Policy
	Links     *mesh.Table
	// Analysis is nil when the analysis backend is disabled.
	Analysis *analysis.Negotiator

	inbox chan Command
	done  chan struct{}
}

type Options struct {
	InboxSize      int
	Backend        analysis.Backend
	ConnectTimeout time.Duration
}

func New(reg *app.Registry, policy app.Policy, opts Options) *Orchestrator {
	if opts.InboxSize <= 0 {
		opts.InboxSize = DefaultInboxSize
	}
	o := &Orchestrator{
		Registry:  reg,
		Admission: &app.Admission{Registry: reg},
		Bus:       &app.Bus{Registry: reg},
		Policy:    policy,
		Links:     mesh.NewTable(),
		inbox:     make(chan Command, opts.InboxSize),
		done:      make(chan struct{}),
	}
	if opts.Backend != nil {
		o.Analysis = analysis.NewNegotiator(opts.Backend, reg, o, func(e analysis.Event) {
			o.Submit(AnalysisEvent{Event: e})
		})
		if opts.ConnectTimeout > 0 {
			o.Analysis.ConnectTimeout = opts.ConnectTimeout
		}
	}
	return o
}

// Submit queues cmd for the loop. It returns false once the loop has stopped.
func (o *Orchestrator) Submit(cmd Command) bool {
	select {
	case <-o.done:
		return false
	default:
	}
	select {
	case o.inbox <- cmd:
		return true
	case <-o.done:
		return false
	}
}

// Run drains the inbox until ctx is done.
func (o *Orchestrator) Run(ctx context.Context) error {
	defer close(o.done)
	log.Info().Str("module", "orch").Msg("orchestrator started")
	for {
		select {
		case <-ctx.Done():
			if o.Analysis != nil {
				o.Analysis.StopAll()
			}
			log.Info().Str("module", "orch").Msg("orchestrator stopped")
			return nil
		case cmd := <-o.inbox:
			o.safeHandle(cmd)
		}
	}
}

func (o *Orchestrator) safeHandle(cmd Command) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("module", "orch").Interface("panic", r).Msgf("command %T panicked", cmd)
		}
	}()
	o.Handle(cmd)
}

// Handle applies one command. Only the loop calls it outside of tests.
func (o *Orchestrator) Handle(cmd Command) {
	switch c := cmd.(type) {
	case Connected:
		o.onConnected(c)
	case Disconnected:
		o.onDisconnected(c.SID)
	case Inbound:
		o.dispatch(c.SID, c.Msg)
	case AnalysisEvent:
		if o.Analysis != nil {
			o.Analysis.HandleEvent(c.Event)
		}
	}
}

func (o *Orchestrator) dispatch(sid core.SessionID, msg protocol.Message) {
	switch m := msg.(type) {
	case *protocol.JoinRoom:
		o.join(sid, m)
	case *protocol.LeaveRoom:
		o.leaveRequest(sid, m)
	case *protocol.AdmissionDecision:
		o.decide(sid, m)
	case *protocol.HostEndMeeting:
		o.endMeeting(sid, m)
	case *protocol.SendMessage:
		o.chat(sid, m)
	case *protocol.Offer:
		o.relayOffer(sid, m)
	case *protocol.Answer:
		o.relayAnswer(sid, m)
	case *protocol.Candidate:
		o.relayCandidate(sid, m)
	case *protocol.PeerState:
		o.peerState(sid, m)
	case *protocol.StartAnalysis:
		o.startAnalysis(sid, m)
	case *protocol.StopAnalysis:
		o.stopAnalysis(sid, m)
	case *protocol.ClientAnswer:
		o.analysisAnswer(sid, m)
	case *protocol.ClientCandidate:
		o.analysisCandidate(sid, m)
	case *protocol.Ping:
		o.Send(sid, &protocol.Pong{})
	default:
		o.replyError(sid, msg.Kind(), errors.Wrapf(app.ErrBadRequest, "unexpected %s", msg.Kind()))
	}
}

// Send delivers m to sid and applies the backpressure policy when its queue is full.
func (o *Orchestrator) Send(sid core.SessionID, m protocol.Message) {
	err := o.Bus.Send(sid, m)
	if err == nil {
		return
	}
	if errors.Is(err, core.ErrBackpressure) {
		room, _ := o.Registry.RoomOf(sid)
		o.onBackpressure(room, sid, m.Kind())
		return
	}
	log.Warn().Err(err).Str("module", "orch").Str("sid", string(sid)).Str("type", string(m.Kind())).Msg("send failed")
}

func (o *Orchestrator) broadcast(room domain.RoomID, m protocol.Message, except ...core.SessionID) {
	res := o.Bus.Broadcast(room, m, except...)
	for _, slow := range res.Dropped {
		o.onBackpressure(room, slow, m.Kind())
	}
}

func (o *Orchestrator) sendTo(room domain.RoomID, members []domain.Member, m protocol.Message, except ...core.SessionID) {
	res := o.Bus.SendTo(members, m, except...)
	for _, slow := range res.Dropped {
		o.onBackpressure(room, slow, m.Kind())
	}
}

func (o *Orchestrator) onBackpressure(room domain.RoomID, sid core.SessionID, kind protocol.Kind) {
	if o.Policy == nil {
		metrics.SignalDropped(string(kind), "backpressure")
		return
	}
	action := o.Policy.OnBackPressure(room, sid)
	log.Warn().Str("module", "orch").Str("sid", string(sid)).Str("room", string(room)).Str("action", action.String()).Msg("send queue full")
	switch action {
	case app.KickMember:
		metrics.SignalDropped(string(kind), "kick")
		o.Registry.Cancel(sid)
	case app.MarkSlow, app.DropFrame, app.NoAction:
		metrics.SignalDropped(string(kind), "backpressure")
	}
}

func (o *Orchestrator) replyError(sid core.SessionID, ref protocol.Kind, err error) {
	log.Info().Err(err).Str("module", "orch").Str("sid", string(sid)).Str("ref", string(ref)).Msg("request rejected")
	o.Send(sid, &protocol.Error{Code: app.Code(err), Message: err.Error(), Ref: ref})
}
