package app

import (
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Admission applies host decisions to pending join requests of locked rooms.
type Admission struct {
	Registry *Registry
}

type DecisionResult struct {
	Request domain.PendingJoinRequest
	// Room is the snapshot after admission, set only for an accepted request.
	Room domain.RoomInfo
}

// Decide resolves the pending request of requester. Removing the request is the commit point,
// so a request is resolved at most once.
func (a *Admission) Decide(roomID domain.RoomID, host, requester core.SessionID, decision domain.Decision) (DecisionResult, error) {
	r := a.Registry
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return DecisionResult{}, errors.Wrap(ErrNoSuchRoom, string(roomID))
	}
	if room.host != host.UserID() {
		return DecisionResult{}, ErrNotHost
	}
	if decision != domain.DecisionAccept && decision != domain.DecisionDeny {
		return DecisionResult{}, errors.Wrapf(ErrBadRequest, "decision %q", decision)
	}
	uid := requester.UserID()
	req, ok := room.pending.Get(uid)
	if !ok {
		return DecisionResult{}, errors.Wrap(ErrNoSuchRequest, string(requester))
	}
	room.pending.Delete(uid)

	entry, connected := r.sessions[requester]
	if decision == domain.DecisionDeny || !connected {
		req.State = domain.RequestDenied
		log.Info().Str("module", "app.admission").Str("room", string(roomID)).Str("requester", string(requester)).Msg("join request denied")
		return DecisionResult{Request: *req}, nil
	}
	if entry.Room != "" && entry.Room != roomID {
		req.State = domain.RequestAbandoned
		return DecisionResult{Request: *req}, errors.Wrapf(ErrNoSuchRequest, "%s moved to %s", requester, entry.Room)
	}

	req.State = domain.RequestApproved
	r.admitLocked(room, entry)
	log.Info().Str("module", "app.admission").Str("room", string(roomID)).Str("requester", string(requester)).Msg("join request approved")
	return DecisionResult{Request: *req, Room: room.info(true)}, nil
}
