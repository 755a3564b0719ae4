package orch

import (
	"time"

	"github.com/dkeye/Meet/internal/app"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/dkeye/Meet/internal/metrics"
	"github.com/dkeye/Meet/internal/protocol"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	msgWaiting  = "Waiting for the host to let you in."
	msgDenied   = "The host has denied your request to join."
	msgEnded    = "The host has ended the meeting."
	msgHostLeft = "The host has left the meeting. The meeting has ended."
	msgRoomGone = "The meeting has ended."
)

func (o *Orchestrator) onConnected(c Connected) {
	user, err := domain.NewUser(c.SID.UserID(), c.DisplayName)
	if err != nil {
		user, _ = domain.NewUser(c.SID.UserID(), "")
	}
	o.Registry.Bind(c.SID, *user, c.Conn, c.Cancel)
	o.Send(c.SID, &protocol.ConnectionSuccess{SID: c.SID.UserID()})
}

func (o *Orchestrator) onDisconnected(sid core.SessionID) {
	o.leave(sid)
	o.abandonPending(sid, "")
	if o.Analysis != nil {
		o.Analysis.MemberGone(sid)
	}
	o.Registry.Unbind(sid)
}

func (o *Orchestrator) abandonPending(sid core.SessionID, keep domain.RoomID) {
	for _, req := range o.Registry.AbandonPending(sid, keep) {
		metrics.PendingResolved(string(domain.DecisionAbandoned))
		if host, ok := o.Registry.HostOf(req.Room); ok {
			o.Send(host, &protocol.JoinRequestProcessed{
				RequesterID: req.Requester.ID,
				RoomID:      req.Room,
				Decision:    domain.DecisionAbandoned,
			})
		}
	}
}

func (o *Orchestrator) join(sid core.SessionID, m *protocol.JoinRoom) {
	roomID, err := domain.ParseRoomID(string(m.RoomID))
	if err != nil {
		o.replyError(sid, m.Kind(), errors.Wrap(app.ErrBadRequest, err.Error()))
		return
	}
	if cur, ok := o.Registry.RoomOf(sid); ok && cur != roomID {
		log.Info().Str("module", "orch").Str("sid", string(sid)).Str("from_room", string(cur)).Msg("leaving room before join")
		o.leave(sid)
	}
	o.abandonPending(sid, roomID)

	name := m.DisplayName
	if name == "" {
		if u, ok := o.Registry.User(sid); ok {
			name = u.Username
		}
	}
	res, err := o.Registry.Join(roomID, sid, name, m.CreateLocked)
	if err != nil {
		o.replyError(sid, m.Kind(), err)
		return
	}

	switch res.Outcome {
	case app.JoinAdmitted:
		if res.Created {
			metrics.RoomStarted()
		}
		o.admitted(sid, res.Room, res.User)
	case app.JoinAlreadyMember:
		o.Send(sid, roomJoined(sid, res.Room))
	case app.JoinPending:
		o.Send(sid, &protocol.WaitingForApproval{RoomID: roomID, Message: msgWaiting})
		if res.Duplicate {
			return
		}
		metrics.PendingAdded()
		if host, ok := o.Registry.HostOf(roomID); ok {
			o.Send(host, &protocol.JoinRequestReceived{
				RequesterID:   res.User.ID,
				RequesterName: res.User.Username,
				RoomID:        roomID,
			})
		}
	}
}

func roomJoined(sid core.SessionID, info domain.RoomInfo) *protocol.RoomJoined {
	return &protocol.RoomJoined{
		RoomID:  info.ID,
		SelfID:  sid.UserID(),
		HostID:  info.Host,
		Members: app.Users(info.Members),
	}
}

// admitted announces a new member and opens its links. Existing members offer to the newcomer.
func (o *Orchestrator) admitted(sid core.SessionID, info domain.RoomInfo, user domain.User) {
	metrics.MemberJoined()
	o.Send(sid, roomJoined(sid, info))

	var existing []domain.UserID
	for _, id := range app.UserIDs(info.Members) {
		if id != user.ID {
			existing = append(existing, id)
		}
	}
	if len(existing) == 0 {
		return
	}
	o.broadcast(info.ID, &protocol.MemberJoined{
		RoomID:  info.ID,
		Member:  user,
		Members: app.Users(info.Members),
	}, sid)
	o.broadcast(info.ID, &protocol.NewMessage{ChatMessage: domain.SystemJoined(info.ID, user.Username)})

	opened := o.Links.Open(info.ID, user.ID, existing)
	metrics.LinksOpened(len(opened))
}

func (o *Orchestrator) leaveRequest(sid core.SessionID, m *protocol.LeaveRoom) {
	if cur, ok := o.Registry.RoomOf(sid); !ok || cur != m.RoomID {
		o.abandonPending(sid, "")
		return
	}
	o.leave(sid)
}

func (o *Orchestrator) leave(sid core.SessionID) {
	res, err := o.Registry.Leave(sid)
	if err != nil {
		return
	}
	metrics.MemberLeft(1)
	metrics.LinksClosed(len(o.Links.CloseMember(res.Room, sid.UserID())))
	if o.Analysis != nil {
		o.Analysis.MemberGone(sid)
	}

	if res.WasHost {
		o.terminate(res.Room, res.Remaining, res.Pending, res.CreatedAt,
			&protocol.HostLeft{RoomID: res.Room, Message: msgHostLeft})
		return
	}

	o.broadcast(res.Room, &protocol.MemberLeft{
		RoomID:  res.Room,
		Member:  res.Member.User,
		Members: app.Users(res.Remaining),
	})
	o.broadcast(res.Room, &protocol.NewMessage{ChatMessage: domain.SystemLeft(res.Room, res.Member.User.Username)})
	if res.RoomDeleted {
		o.terminate(res.Room, nil, res.Pending, res.CreatedAt, nil)
	}
}

// terminate notifies evicted members and pending requesters of a room that no longer exists
// and tears down its links and analysis sessions.
func (o *Orchestrator) terminate(room domain.RoomID, members []domain.Member, pending []domain.PendingJoinRequest, createdAt time.Time, notice protocol.Message) {
	if notice != nil && len(members) > 0 {
		o.sendTo(room, members, notice)
	}
	for _, req := range pending {
		metrics.PendingResolved(string(domain.DecisionDeny))
		o.Send(core.SessionOf(req.Requester.ID), &protocol.AdmissionDenied{RoomID: room, Message: msgRoomGone})
	}
	metrics.LinksClosed(len(o.Links.CloseRoom(room)))
	if o.Analysis != nil {
		o.Analysis.RoomClosed(room)
	}
	metrics.MemberLeft(len(members))
	metrics.RoomEnded(createdAt)
	log.Info().Str("module", "orch").Str("room", string(room)).Int("evicted", len(members)).Int("pending", len(pending)).Msg("room terminated")
}

func (o *Orchestrator) endMeeting(sid core.SessionID, m *protocol.HostEndMeeting) {
	res, err := o.Registry.EndRoom(m.RoomID, sid)
	if err != nil {
		o.replyError(sid, m.Kind(), err)
		return
	}
	o.terminate(res.Room, res.Members, res.Pending, res.CreatedAt,
		&protocol.MeetingEnded{RoomID: res.Room, Message: msgEnded})
}

func (o *Orchestrator) decide(sid core.SessionID, m *protocol.AdmissionDecision) {
	requester := core.SessionOf(m.RequesterID)
	res, err := o.Admission.Decide(m.RoomID, sid, requester, m.Decision)
	if err != nil {
		o.replyError(sid, m.Kind(), err)
		return
	}
	// The host may accept a requester that is already gone; report what really happened.
	outcome := res.Request.Outcome()
	metrics.PendingResolved(string(outcome))
	o.Send(sid, &protocol.JoinRequestProcessed{RequesterID: m.RequesterID, RoomID: m.RoomID, Decision: outcome})

	if res.Request.State == domain.RequestApproved {
		o.admitted(requester, res.Room, res.Request.Requester)
		return
	}
	o.Send(requester, &protocol.AdmissionDenied{RoomID: m.RoomID, Message: msgDenied})
}

func (o *Orchestrator) chat(sid core.SessionID, m *protocol.SendMessage) {
	room, ok := o.Registry.RoomOf(sid)
	if !ok || room != m.RoomID {
		o.replyError(sid, m.Kind(), errors.Wrap(app.ErrNoSuchRoom, string(m.RoomID)))
		return
	}
	user, _ := o.Registry.User(sid)
	msg, err := domain.NewChatMessage(room, user, m.Text)
	if err != nil {
		o.replyError(sid, m.Kind(), errors.Wrap(app.ErrBadRequest, err.Error()))
		return
	}
	metrics.ChatMessage()
	o.broadcast(room, &protocol.NewMessage{ChatMessage: msg})
}
