package app

import (
	"time"

	"github.com/dkeye/Meet/internal/domain"
	"github.com/elliotchance/orderedmap/v2"
)

// roomState is guarded by Registry.mu.
type roomState struct {
	id        domain.RoomID
	host      domain.UserID
	locked    bool
	createdAt time.Time
	members   *orderedmap.OrderedMap[domain.UserID, domain.Member]
	pending   *orderedmap.OrderedMap[domain.UserID, *domain.PendingJoinRequest]
}

func newRoomState(id domain.RoomID, host domain.UserID, locked bool) *roomState {
	return &roomState{
		id:        id,
		host:      host,
		locked:    locked,
		createdAt: time.Now(),
		members:   orderedmap.NewOrderedMap[domain.UserID, domain.Member](),
		pending:   orderedmap.NewOrderedMap[domain.UserID, *domain.PendingJoinRequest](),
	}
}

func (rs *roomState) memberList() []domain.Member {
	out := make([]domain.Member, 0, rs.members.Len())
	for el := rs.members.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value)
	}
	return out
}

func (rs *roomState) pendingList() []domain.PendingJoinRequest {
	out := make([]domain.PendingJoinRequest, 0, rs.pending.Len())
	for el := rs.pending.Front(); el != nil; el = el.Next() {
		out = append(out, *el.Value)
	}
	return out
}

func (rs *roomState) info(withMembers bool) domain.RoomInfo {
	info := domain.RoomInfo{
		ID:           rs.id,
		Host:         rs.host,
		Locked:       rs.locked,
		CreatedAt:    rs.createdAt,
		MemberCount:  rs.members.Len(),
		PendingCount: rs.pending.Len(),
	}
	if withMembers {
		info.Members = rs.memberList()
	}
	return info
}

// Users lists the users of members in order.
func Users(members []domain.Member) []domain.User {
	out := make([]domain.User, 0, len(members))
	for _, m := range members {
		out = append(out, m.User)
	}
	return out
}

func UserIDs(members []domain.Member) []domain.UserID {
	out := make([]domain.UserID, 0, len(members))
	for _, m := range members {
		out = append(out, m.ID())
	}
	return out
}
