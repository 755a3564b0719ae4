// Package peer is the participant side of the mesh: one media connection per remote member,
// negotiated over the signaling channel.
package peer

import (
	"context"
	"sort"
	"sync"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/dkeye/Meet/internal/mesh"
	"github.com/dkeye/Meet/internal/protocol"
	"github.com/pion/webrtc/v4"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

var ErrNotInRoom = errors.New("not in a room")

type Signaler interface {
	Send(m protocol.Message) error
}

// ConnFactory creates the media connection towards remote.
type ConnFactory func(remote domain.UserID) (core.MediaConnection, error)

// Orchestrator keeps one Link per remote member of the current room. Existing members offer
// to a newcomer; the newcomer only answers.
type Orchestrator struct {
	Signal  Signaler
	NewConn ConnFactory
	Local   *LocalMedia
	// OnRemoteTrack receives incoming tracks. When nil the track is drained.
	OnRemoteTrack func(ctx context.Context, from domain.UserID, track core.RemoteTrack)

	mu     sync.Mutex
	ctx    context.Context
	self   domain.UserID
	host   domain.UserID
	room   domain.RoomID
	links  map[domain.UserID]*Link
	logger zerolog.Logger
}

func NewOrchestrator(ctx context.Context, signal Signaler, newConn ConnFactory, local *LocalMedia) *Orchestrator {
	if local == nil {
		local = NewLocalMedia()
	}
	return &Orchestrator{
		Signal:  signal,
		NewConn: newConn,
		Local:   local,
		ctx:     ctx,
		links:   make(map[domain.UserID]*Link),
		logger:  log.With().Str("module", "peer").Logger(),
	}
}

func (o *Orchestrator) Room() domain.RoomID {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.room
}

func (o *Orchestrator) Self() domain.UserID {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.self
}

func (o *Orchestrator) Host() domain.UserID {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.host
}

func (o *Orchestrator) SetSelf(id domain.UserID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.self = id
}

// States returns the link state per remote member.
func (o *Orchestrator) States() map[domain.UserID]mesh.LinkState {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[domain.UserID]mesh.LinkState, len(o.links))
	for id, l := range o.links {
		out[id] = l.State
	}
	return out
}

// Remotes lists current remote members in id order.
func (o *Orchestrator) Remotes() []domain.UserID {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]domain.UserID, 0, len(o.links))
	for id := range o.links {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (o *Orchestrator) LinkOf(remote domain.UserID) (*Link, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	l, ok := o.links[remote]
	return l, ok
}

// HandleRoomJoined creates idle links to every present member. They will offer to us.
func (o *Orchestrator) HandleRoomJoined(m *protocol.RoomJoined) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.room = m.RoomID
	o.self = m.SelfID
	o.host = m.HostID
	var first error
	for _, u := range m.Members {
		if u.ID == o.self {
			continue
		}
		if _, err := o.ensureLinkLocked(u.ID, u.ID); err != nil && first == nil {
			first = err
		}
	}
	o.logger.Info().Str("room", string(o.room)).Int("remotes", len(o.links)).Msg("joined room")
	return first
}

// HandleMemberJoined offers to the newcomer.
func (o *Orchestrator) HandleMemberJoined(m *protocol.MemberJoined) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.room == "" || m.RoomID != o.room || m.Member.ID == o.self {
		return nil
	}
	l, err := o.ensureLinkLocked(m.Member.ID, o.self)
	if err != nil {
		return err
	}
	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
		if _, ok := l.senders[kind]; ok {
			continue
		}
		if err := l.conn.AddRecvOnly(kind); err != nil {
			return errors.Wrap(err, "add recvonly transceiver")
		}
	}
	return o.offerLocked(l)
}

func (o *Orchestrator) HandleMemberLeft(m *protocol.MemberLeft) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if m.RoomID != o.room {
		return
	}
	o.closeLinkLocked(m.Member.ID)
}

func (o *Orchestrator) HandleOffer(m *protocol.Offer) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.room == "" || m.RoomID != o.room {
		return ErrNotInRoom
	}
	l, err := o.ensureLinkLocked(m.FromID, m.FromID)
	if err != nil {
		return err
	}
	if l.State == mesh.OfferSent {
		// Both sides offered. The designated offerer keeps its offer; the other side yields.
		if l.Offerer == o.self {
			o.logger.Debug().Str("from", string(m.FromID)).Msg("ignored offer while own offer is pending")
			return nil
		}
		if err := l.conn.RollbackOffer(); err != nil {
			o.failLocked(l)
			return errors.Wrap(err, "rollback offer")
		}
		_ = l.Rollback()
		l.renegotiate = true
		o.logger.Debug().Str("from", string(m.FromID)).Msg("rolled back own offer")
	}
	if err := l.Transition(mesh.OfferReceived); err != nil {
		o.logger.Warn().Err(err).Str("from", string(m.FromID)).Msg("dropped offer")
		return err
	}
	answer, err := l.conn.ApplyOfferAndCreateAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: m.SDP})
	if err != nil {
		o.failLocked(l)
		return errors.Wrap(err, "apply offer")
	}
	if err := l.settle(); err != nil {
		return err
	}
	if err := l.flush(); err != nil {
		o.logger.Warn().Err(err).Str("from", string(m.FromID)).Msg("buffered candidate rejected")
	}
	if err := o.Signal.Send(&protocol.Answer{RoomID: o.room, TargetID: m.FromID, SDP: answer.SDP}); err != nil {
		return err
	}
	return o.renegotiateLocked(l)
}

// renegotiateLocked sends the offer deferred while another negotiation was in flight.
func (o *Orchestrator) renegotiateLocked(l *Link) error {
	if !l.renegotiate {
		return nil
	}
	l.renegotiate = false
	return o.offerLocked(l)
}

func (o *Orchestrator) HandleAnswer(m *protocol.Answer) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	l, ok := o.links[m.FromID]
	if !ok || m.RoomID != o.room || l.State != mesh.OfferSent {
		o.logger.Debug().Str("from", string(m.FromID)).Msg("dropped unexpected answer")
		return nil
	}
	if err := l.conn.ApplyAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: m.SDP}); err != nil {
		o.failLocked(l)
		return errors.Wrap(err, "apply answer")
	}
	if err := l.settle(); err != nil {
		return err
	}
	if err := l.flush(); err != nil {
		o.logger.Warn().Err(err).Str("from", string(m.FromID)).Msg("buffered candidate rejected")
	}
	return o.renegotiateLocked(l)
}

func (o *Orchestrator) HandleCandidate(m *protocol.Candidate) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	l, ok := o.links[m.FromID]
	if !ok || m.RoomID != o.room || l.State == mesh.Closed {
		o.logger.Debug().Str("from", string(m.FromID)).Msg("dropped candidate for unknown link")
		return nil
	}
	return l.addCandidate(m.Candidate)
}

// HandleRoomClosed tears everything down after meeting_ended_by_host or host_left_abruptly.
func (o *Orchestrator) HandleRoomClosed() {
	o.CloseAll()
}

// Leave announces the departure and closes every link.
func (o *Orchestrator) Leave() error {
	room := o.Room()
	if room == "" {
		return ErrNotInRoom
	}
	err := o.Signal.Send(&protocol.LeaveRoom{RoomID: room})
	o.CloseAll()
	return err
}

// SetMuted toggles a local track in place on every link.
func (o *Orchestrator) SetMuted(kind webrtc.RTPCodecType, muted bool) bool {
	t, ok := o.Local.Get(kind)
	if !ok {
		return false
	}
	t.SetMuted(muted)
	return true
}

// ReplaceTrack swaps the outgoing track of t's kind. Links that already carry that kind
// replace in place; the rest add the track and renegotiate.
func (o *Orchestrator) ReplaceTrack(t *LocalTrack) error {
	if old := o.Local.Set(t); old != nil && old != t {
		old.MarkDelete()
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	var first error
	for _, l := range o.links {
		if l.State == mesh.Closed {
			continue
		}
		_, had := l.senders[t.Kind()]
		if err := l.attach(t); err != nil {
			o.logger.Warn().Err(err).Str("remote", string(l.Remote)).Msg("replace track")
			if first == nil {
				first = err
			}
			continue
		}
		if had {
			continue
		}
		switch l.State {
		case mesh.Connected, mesh.AnswerExchanged:
			if err := o.offerLocked(l); err != nil && first == nil {
				first = err
			}
		case mesh.OfferSent, mesh.OfferReceived:
			l.renegotiate = true
		}
	}
	return first
}

// CloseAll closes every link concurrently and forgets the room.
func (o *Orchestrator) CloseAll() {
	o.mu.Lock()
	links := o.links
	o.links = make(map[domain.UserID]*Link)
	o.room = ""
	o.host = ""
	o.mu.Unlock()

	var wg conc.WaitGroup
	for _, l := range links {
		_ = l.Transition(mesh.Closed)
		wg.Go(l.conn.Close)
	}
	if r := wg.WaitAndRecover(); r != nil {
		o.logger.Error().Str("panic", r.String()).Msg("closing links")
	}
	o.logger.Info().Int("links", len(links)).Msg("closed all links")
}

func (o *Orchestrator) ensureLinkLocked(remote, offerer domain.UserID) (*Link, error) {
	if l, ok := o.links[remote]; ok && l.State != mesh.Closed {
		return l, nil
	}
	conn, err := o.NewConn(remote)
	if err != nil {
		return nil, errors.Wrap(err, "new media connection")
	}
	l := newLink(o.room, o.self, remote, offerer, conn)
	room := o.room

	conn.OnICECandidate(func(c webrtc.ICECandidateInit) {
		if err := o.Signal.Send(&protocol.Candidate{RoomID: room, TargetID: remote, Candidate: c}); err != nil {
			o.logger.Debug().Err(err).Str("remote", string(remote)).Msg("send candidate")
		}
	})
	conn.OnTrack(func(ctx context.Context, track core.RemoteTrack) {
		if o.OnRemoteTrack != nil {
			o.OnRemoteTrack(ctx, remote, track)
			return
		}
		for {
			if _, _, err := track.ReadRTP(); err != nil {
				return
			}
		}
	})
	conn.OnStateChange(func(s core.MediaState) {
		o.onMediaState(l, s)
	})
	if err := conn.Start(o.ctx); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "start media connection")
	}
	for _, t := range o.Local.Tracks() {
		if err := l.attach(t); err != nil {
			conn.Close()
			return nil, errors.Wrap(err, "attach local track")
		}
	}
	o.links[remote] = l
	return l, nil
}

func (o *Orchestrator) offerLocked(l *Link) error {
	offer, err := l.conn.CreateOffer()
	if err != nil {
		o.failLocked(l)
		return errors.Wrap(err, "create offer")
	}
	if err := l.Transition(mesh.OfferSent); err != nil {
		return err
	}
	o.logger.Debug().Str("remote", string(l.Remote)).Msg("sending offer")
	return o.Signal.Send(&protocol.Offer{RoomID: o.room, TargetID: l.Remote, SDP: offer.SDP})
}

func (o *Orchestrator) onMediaState(l *Link, s core.MediaState) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if cur, ok := o.links[l.Remote]; !ok || cur != l {
		return
	}
	var report string
	switch s {
	case core.MediaConnected:
		if err := l.Transition(mesh.Connected); err != nil {
			o.logger.Debug().Err(err).Msg("media connected")
			return
		}
		report = protocol.PeerConnected
	case core.MediaDisconnected:
		if l.State != mesh.Connected {
			return
		}
		_ = l.Transition(mesh.Reconnecting)
		report = protocol.PeerReconnecting
	case core.MediaFailed:
		o.closeLinkLocked(l.Remote)
		report = protocol.PeerFailed
	case core.MediaClosed:
		o.closeLinkLocked(l.Remote)
		report = protocol.PeerClosed
	default:
		return
	}
	o.logger.Info().Str("remote", string(l.Remote)).Str("state", report).Msg("link state")
	if err := o.Signal.Send(&protocol.PeerState{RoomID: o.room, TargetID: l.Remote, State: report}); err != nil {
		o.logger.Debug().Err(err).Msg("report peer state")
	}
}

func (o *Orchestrator) failLocked(l *Link) {
	o.closeLinkLocked(l.Remote)
	if err := o.Signal.Send(&protocol.PeerState{RoomID: o.room, TargetID: l.Remote, State: protocol.PeerFailed}); err != nil {
		o.logger.Debug().Err(err).Msg("report peer state")
	}
}

func (o *Orchestrator) closeLinkLocked(remote domain.UserID) {
	l, ok := o.links[remote]
	if !ok {
		return
	}
	delete(o.links, remote)
	_ = l.Transition(mesh.Closed)
	go l.conn.Close()
}
