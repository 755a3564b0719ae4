package peer

import (
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/dkeye/Meet/internal/mesh"
	"github.com/gammazero/deque"
	"github.com/pion/webrtc/v4"
)

// Link is this participant's side of the connection to one remote member.
type Link struct {
	*mesh.Link
	Remote  domain.UserID
	conn    core.MediaConnection
	pending deque.Deque[webrtc.ICECandidateInit]
	senders map[webrtc.RTPCodecType]core.TrackSender
	// renegotiate asks for a fresh offer once the negotiation in flight settles.
	renegotiate bool
}

func newLink(room domain.RoomID, self, remote domain.UserID, offerer domain.UserID, conn core.MediaConnection) *Link {
	key := mesh.PairKey{Room: room, Local: self, Remote: remote}
	return &Link{
		Link:    mesh.NewLink(key, offerer),
		Remote:  remote,
		conn:    conn,
		senders: make(map[webrtc.RTPCodecType]core.TrackSender),
	}
}

// addCandidate applies c now or buffers it until a remote description is set.
func (l *Link) addCandidate(c webrtc.ICECandidateInit) error {
	if !l.conn.HasRemoteDescription() {
		l.pending.PushBack(c)
		return nil
	}
	return l.conn.AddICECandidate(c)
}

// flush applies candidates buffered before the remote description arrived.
func (l *Link) flush() error {
	var first error
	for l.pending.Len() > 0 {
		if err := l.conn.AddICECandidate(l.pending.PopFront()); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (l *Link) Buffered() int { return l.pending.Len() }

func (l *Link) attach(t *LocalTrack) error {
	if s, ok := l.senders[t.Kind()]; ok {
		return s.ReplaceTrack(t.Track)
	}
	s, err := l.conn.AddLocalTrack(t.Track)
	if err != nil {
		return err
	}
	l.senders[t.Kind()] = s
	return nil
}

// settle moves the link to AnswerExchanged, and on to Connected for a renegotiation of a
// link that was already up.
func (l *Link) settle() error {
	if err := l.Transition(mesh.AnswerExchanged); err != nil {
		return err
	}
	if l.WasConnected() {
		return l.Transition(mesh.Connected)
	}
	return nil
}
