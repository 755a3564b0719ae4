package orch

import (
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/dkeye/Meet/internal/mesh"
	"github.com/dkeye/Meet/internal/metrics"
	"github.com/dkeye/Meet/internal/protocol"
	"github.com/rs/zerolog/log"
)

// link resolves the directed link sid holds towards target, or reports why relayed traffic
// for it must be dropped.
func (o *Orchestrator) link(sid core.SessionID, room domain.RoomID, target domain.UserID) (mesh.PairKey, bool) {
	cur, ok := o.Registry.RoomOf(sid)
	if !ok || cur != room || target == sid.UserID() || !o.Registry.IsMember(room, core.SessionOf(target)) {
		return mesh.PairKey{}, false
	}
	return mesh.PairKey{Room: room, Local: sid.UserID(), Remote: target}, true
}

func (o *Orchestrator) drop(kind protocol.Kind, sid core.SessionID, target domain.UserID, reason error) {
	metrics.SignalDropped(string(kind), "stale")
	log.Debug().Err(reason).Str("module", "orch.media").Str("type", string(kind)).Str("sid", string(sid)).Str("target", string(target)).Msg("dropped relayed signal")
}

func (o *Orchestrator) relayOffer(sid core.SessionID, m *protocol.Offer) {
	key, ok := o.link(sid, m.RoomID, m.TargetID)
	if !ok {
		o.drop(m.Kind(), sid, m.TargetID, nil)
		return
	}
	if err := mesh.ValidateSDP(m.SDP); err != nil {
		o.drop(m.Kind(), sid, m.TargetID, err)
		return
	}
	if err := o.Links.Offer(key); err != nil {
		o.drop(m.Kind(), sid, m.TargetID, err)
		return
	}
	o.Send(core.SessionOf(m.TargetID), &protocol.Offer{RoomID: m.RoomID, FromID: sid.UserID(), SDP: m.SDP})
}

func (o *Orchestrator) relayAnswer(sid core.SessionID, m *protocol.Answer) {
	key, ok := o.link(sid, m.RoomID, m.TargetID)
	if !ok {
		o.drop(m.Kind(), sid, m.TargetID, nil)
		return
	}
	if err := mesh.ValidateSDP(m.SDP); err != nil {
		o.drop(m.Kind(), sid, m.TargetID, err)
		return
	}
	if err := o.Links.Answer(key); err != nil {
		o.drop(m.Kind(), sid, m.TargetID, err)
		return
	}
	o.Send(core.SessionOf(m.TargetID), &protocol.Answer{RoomID: m.RoomID, FromID: sid.UserID(), SDP: m.SDP})
}

func (o *Orchestrator) relayCandidate(sid core.SessionID, m *protocol.Candidate) {
	key, ok := o.link(sid, m.RoomID, m.TargetID)
	if !ok {
		o.drop(m.Kind(), sid, m.TargetID, nil)
		return
	}
	if err := o.Links.Candidate(key); err != nil {
		o.drop(m.Kind(), sid, m.TargetID, err)
		return
	}
	o.Send(core.SessionOf(m.TargetID), &protocol.Candidate{RoomID: m.RoomID, FromID: sid.UserID(), Candidate: m.Candidate})
}

func (o *Orchestrator) peerState(sid core.SessionID, m *protocol.PeerState) {
	key, ok := o.link(sid, m.RoomID, m.TargetID)
	if !ok {
		o.drop(m.Kind(), sid, m.TargetID, nil)
		return
	}
	var state mesh.LinkState
	switch m.State {
	case protocol.PeerConnected:
		state = mesh.Connected
	case protocol.PeerReconnecting:
		state = mesh.Reconnecting
	default:
		state = mesh.Closed
	}
	before := o.Links.Len()
	if err := o.Links.Report(key, state); err != nil {
		o.drop(m.Kind(), sid, m.TargetID, err)
		return
	}
	if closed := before - o.Links.Len(); closed > 0 {
		metrics.LinksClosed(closed)
	}
}
