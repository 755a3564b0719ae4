package app

import (
	"slices"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/dkeye/Meet/internal/protocol"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type BroadcastResult struct {
	Delivered int
	// Dropped lists sessions whose send queue was full.
	Dropped []core.SessionID
}

// Bus fans room events out to members. Order follows the member order of the room and
// each connection keeps FIFO order, so every member observes events in raise order.
type Bus struct {
	Registry *Registry
}

// Send delivers m to one session. A closed connection is not an error.
func (b *Bus) Send(sid core.SessionID, m protocol.Message) error {
	frame, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	return b.sendFrame(sid, frame)
}

func (b *Bus) sendFrame(sid core.SessionID, frame core.Frame) error {
	conn, ok := b.Registry.Signal(sid)
	if !ok {
		return nil
	}
	err := conn.TrySend(frame)
	if errors.Is(err, core.ErrConnClosed) {
		return nil
	}
	return err
}

// Broadcast delivers m to every current member of room except the given sessions.
func (b *Bus) Broadcast(room domain.RoomID, m protocol.Message, except ...core.SessionID) BroadcastResult {
	return b.SendTo(b.Registry.Members(room), m, except...)
}

// SendTo delivers m to an explicit member list, used once a room is already gone.
func (b *Bus) SendTo(members []domain.Member, m protocol.Message, except ...core.SessionID) BroadcastResult {
	var res BroadcastResult
	frame, err := protocol.Encode(m)
	if err != nil {
		log.Error().Err(err).Str("module", "app.bus").Str("type", string(m.Kind())).Msg("encode")
		return res
	}
	for _, member := range members {
		sid := core.SessionOf(member.ID())
		if slices.Contains(except, sid) {
			continue
		}
		switch err := b.sendFrame(sid, frame); {
		case err == nil:
			res.Delivered++
		case errors.Is(err, core.ErrBackpressure):
			res.Dropped = append(res.Dropped, sid)
		default:
			log.Warn().Err(err).Str("module", "app.bus").Str("sid", string(sid)).Msg("send failed")
		}
	}
	return res
}
