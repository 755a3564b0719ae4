package app

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type sessionEntry struct {
	User   domain.User
	Signal core.SignalConnection
	Cancel context.CancelFunc
	Room   domain.RoomID
}

// Registry holds rooms, their ordered membership and pending queues, and the signaling
// binding of every connected session. Mutations come from the orchestrator loop; the HTTP
// API reads concurrently.
type Registry struct {
	mu       sync.RWMutex
	sessions map[core.SessionID]*sessionEntry
	rooms    map[domain.RoomID]*roomState
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[core.SessionID]*sessionEntry),
		rooms:    make(map[domain.RoomID]*roomState),
	}
}

type JoinOutcome int

const (
	JoinAdmitted JoinOutcome = iota
	JoinAlreadyMember
	JoinPending
)

type JoinResult struct {
	Outcome JoinOutcome
	Created bool
	Room    domain.RoomInfo
	User    domain.User
	// Request is set for JoinPending. Duplicate marks a repeated request for the same room.
	Request   *domain.PendingJoinRequest
	Duplicate bool
}

type LeaveResult struct {
	Room    domain.RoomID
	Member  domain.Member
	WasHost bool
	// Remaining are the members still in the room, or the evicted members when WasHost.
	Remaining   []domain.Member
	Pending     []domain.PendingJoinRequest
	RoomDeleted bool
	CreatedAt   time.Time
}

type EndResult struct {
	Room      domain.RoomID
	Members   []domain.Member
	Pending   []domain.PendingJoinRequest
	CreatedAt time.Time
}

func (r *Registry) Bind(sid core.SessionID, user domain.User, conn core.SignalConnection, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sid] = &sessionEntry{User: user, Signal: conn, Cancel: cancel}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("bound session")
}

func (r *Registry) Unbind(sid core.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sid)
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("unbind session")
}

func (r *Registry) Signal(sid core.SessionID) (core.SignalConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[sid]; ok && e.Signal != nil {
		return e.Signal, true
	}
	return nil, false
}

func (r *Registry) User(sid core.SessionID) (domain.User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[sid]; ok {
		return e.User, true
	}
	return domain.User{}, false
}

// Cancel ends the session's context; the transport then reports the disconnect.
func (r *Registry) Cancel(sid core.SessionID) bool {
	r.mu.RLock()
	e, ok := r.sessions[sid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("canceled session")
	return true
}

// Join admits sid to roomID directly or queues a pending request when the room is locked.
func (r *Registry) Join(roomID domain.RoomID, sid core.SessionID, displayName string, lockedCreation bool) (JoinResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.sessions[sid]
	if !ok {
		return JoinResult{}, errors.Wrap(ErrNoSuchSession, string(sid))
	}
	if entry.Room != "" && entry.Room != roomID {
		return JoinResult{}, errors.Wrapf(ErrInAnotherRoom, "%s is in %s", sid, entry.Room)
	}
	if err := entry.User.SetUsername(displayName); err != nil {
		return JoinResult{}, errors.Wrap(ErrBadRequest, err.Error())
	}
	uid := sid.UserID()

	room, exists := r.rooms[roomID]
	if !exists {
		room = newRoomState(roomID, uid, lockedCreation)
		r.rooms[roomID] = room
		r.admitLocked(room, entry)
		log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("room", string(roomID)).Bool("locked", lockedCreation).Msg("created room")
		return JoinResult{Outcome: JoinAdmitted, Created: true, Room: room.info(true), User: entry.User}, nil
	}

	if _, member := room.members.Get(uid); member {
		return JoinResult{Outcome: JoinAlreadyMember, Room: room.info(true), User: entry.User}, nil
	}

	if room.locked && room.host != uid {
		if req, dup := room.pending.Get(uid); dup {
			req.Requester = entry.User
			cp := *req
			return JoinResult{Outcome: JoinPending, Room: room.info(false), User: entry.User, Request: &cp, Duplicate: true}, nil
		}
		req := &domain.PendingJoinRequest{
			Room:      roomID,
			Requester: entry.User,
			CreatedAt: time.Now(),
			State:     domain.RequestRequested,
		}
		room.pending.Set(uid, req)
		log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("room", string(roomID)).Msg("queued join request")
		cp := *req
		return JoinResult{Outcome: JoinPending, Room: room.info(false), User: entry.User, Request: &cp}, nil
	}

	r.admitLocked(room, entry)
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("room", string(roomID)).Msg("added to room")
	return JoinResult{Outcome: JoinAdmitted, Room: room.info(true), User: entry.User}, nil
}

func (r *Registry) admitLocked(room *roomState, entry *sessionEntry) {
	room.members.Set(entry.User.ID, domain.NewMember(entry.User))
	room.pending.Delete(entry.User.ID)
	entry.Room = room.id
}

// Leave removes sid from its room. A leaving host terminates the room.
func (r *Registry) Leave(sid core.SessionID) (LeaveResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.sessions[sid]
	if !ok || entry.Room == "" {
		return LeaveResult{}, ErrNotInRoom
	}
	room, ok := r.rooms[entry.Room]
	if !ok {
		entry.Room = ""
		return LeaveResult{}, ErrNotInRoom
	}
	uid := sid.UserID()
	member, _ := room.members.Get(uid)
	room.members.Delete(uid)
	entry.Room = ""

	res := LeaveResult{Room: room.id, Member: member, CreatedAt: room.createdAt}
	if room.host == uid {
		res.WasHost = true
		res.Remaining = room.memberList()
		res.Pending = room.pendingList()
		r.deleteRoomLocked(room)
		res.RoomDeleted = true
		log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("room", string(room.id)).Msg("host left, room terminated")
		return res, nil
	}

	res.Remaining = room.memberList()
	if room.members.Len() == 0 {
		res.Pending = room.pendingList()
		r.deleteRoomLocked(room)
		res.RoomDeleted = true
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("room", string(room.id)).Bool("deleted", res.RoomDeleted).Msg("left room")
	return res, nil
}

// EndRoom terminates roomID on behalf of its host.
func (r *Registry) EndRoom(roomID domain.RoomID, sid core.SessionID) (EndResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return EndResult{}, errors.Wrap(ErrNoSuchRoom, string(roomID))
	}
	if room.host != sid.UserID() {
		return EndResult{}, ErrNotHost
	}
	res := EndResult{Room: roomID, Members: room.memberList(), Pending: room.pendingList(), CreatedAt: room.createdAt}
	r.deleteRoomLocked(room)
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("room", string(roomID)).Msg("host ended room")
	return res, nil
}

func (r *Registry) deleteRoomLocked(room *roomState) {
	for el := room.members.Front(); el != nil; el = el.Next() {
		if e, ok := r.sessions[core.SessionOf(el.Key)]; ok && e.Room == room.id {
			e.Room = ""
		}
	}
	delete(r.rooms, room.id)
}

// AbandonPending drops every pending request owned by sid, except the one in keep.
func (r *Registry) AbandonPending(sid core.SessionID, keep domain.RoomID) []domain.PendingJoinRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	uid := sid.UserID()
	var out []domain.PendingJoinRequest
	for id, room := range r.rooms {
		if id == keep {
			continue
		}
		if req, ok := room.pending.Get(uid); ok {
			room.pending.Delete(uid)
			req.State = domain.RequestAbandoned
			out = append(out, *req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Room < out[j].Room })
	if len(out) > 0 {
		log.Info().Str("module", "app.registry").Str("sid", string(sid)).Int("count", len(out)).Msg("abandoned join requests")
	}
	return out
}

func (r *Registry) Members(roomID domain.RoomID) []domain.Member {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	return room.memberList()
}

func (r *Registry) Pending(roomID domain.RoomID) []domain.PendingJoinRequest {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	return room.pendingList()
}

func (r *Registry) RoomOf(sid core.SessionID) (domain.RoomID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.sessions[sid]
	if !ok || entry.Room == "" {
		return "", false
	}
	return entry.Room, true
}

func (r *Registry) HostOf(roomID domain.RoomID) (core.SessionID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return "", false
	}
	return core.SessionOf(room.host), true
}

func (r *Registry) IsHost(roomID domain.RoomID, sid core.SessionID) bool {
	host, ok := r.HostOf(roomID)
	return ok && host == sid
}

func (r *Registry) IsMember(roomID domain.RoomID, sid core.SessionID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return false
	}
	_, member := room.members.Get(sid.UserID())
	return member
}

func (r *Registry) Room(roomID domain.RoomID) (domain.RoomInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return domain.RoomInfo{}, false
	}
	return room.info(true), true
}

// List returns every room ordered by creation time.
func (r *Registry) List() []domain.RoomInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.RoomInfo, 0, len(r.rooms))
	for _, room := range r.rooms {
		out = append(out, room.info(false))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
