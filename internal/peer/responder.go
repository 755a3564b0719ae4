package peer

import (
	"context"
	"sync"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/dkeye/Meet/internal/protocol"
	"github.com/pion/webrtc/v4"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var ErrNoVideo = errors.New("no local video track")

// Responder answers the server's analysis offer by sending the local video track.
type Responder struct {
	Signal  Signaler
	NewConn func() (core.MediaConnection, error)
	Local   *LocalMedia

	mu   sync.Mutex
	ctx  context.Context
	self func() domain.UserID
	conn core.MediaConnection
}

func NewResponder(ctx context.Context, signal Signaler, newConn func() (core.MediaConnection, error), local *LocalMedia, self func() domain.UserID) *Responder {
	return &Responder{Signal: signal, NewConn: newConn, Local: local, ctx: ctx, self: self}
}

func (r *Responder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conn != nil
}

func (r *Responder) HandleOffer(m *protocol.ServerOffer) error {
	logger := log.With().Str("module", "peer.analysis").Logger()
	self := r.self()
	if m.TargetID != self {
		logger.Debug().Str("target", string(m.TargetID)).Msg("analysis offer for someone else")
		return nil
	}
	video, ok := r.Local.Get(webrtc.RTPCodecTypeVideo)
	if !ok {
		logger.Warn().Msg("no video track, ignoring analysis offer")
		return ErrNoVideo
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeLocked()

	conn, err := r.NewConn()
	if err != nil {
		return errors.Wrap(err, "new analysis connection")
	}
	conn.OnICECandidate(func(c webrtc.ICECandidateInit) {
		if err := r.Signal.Send(&protocol.ClientCandidate{Candidate: c, TargetID: self}); err != nil {
			logger.Debug().Err(err).Msg("send analysis candidate")
		}
	})
	if err := conn.Start(r.ctx); err != nil {
		conn.Close()
		return errors.Wrap(err, "start analysis connection")
	}
	if _, err := conn.AddLocalTrack(video.Track); err != nil {
		conn.Close()
		return errors.Wrap(err, "attach video")
	}
	answer, err := conn.ApplyOfferAndCreateAnswer(m.Offer)
	if err != nil {
		conn.Close()
		return errors.Wrap(err, "answer analysis offer")
	}
	r.conn = conn
	logger.Info().Msg("answering analysis offer")
	return r.Signal.Send(&protocol.ClientAnswer{Answer: *answer, TargetID: self})
}

func (r *Responder) HandleCandidate(m *protocol.ServerCandidate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return nil
	}
	return r.conn.AddICECandidate(m.Candidate)
}

// HandleStopped closes the analysis connection.
func (r *Responder) HandleStopped() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeLocked()
}

func (r *Responder) closeLocked() {
	if r.conn != nil {
		r.conn.Close()
		r.conn = nil
	}
}
