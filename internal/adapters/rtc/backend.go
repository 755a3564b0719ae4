package rtc

import (
	"context"
	"sync"

	"github.com/dkeye/Meet/internal/analyzer"
	"github.com/dkeye/Meet/internal/app/analysis"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/gammazero/deque"
	"github.com/pion/webrtc/v4"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var _ analysis.Backend = (*AnalysisBackend)(nil)

// analysisConn is the part of the server-side connection the backend drives after Start.
type analysisConn interface {
	ApplyAnswer(webrtc.SessionDescription) error
	AddICECandidate(webrtc.ICECandidateInit) error
	Close()
}

type analysisPeer struct {
	conn    analysisConn
	monitor *analyzer.Monitor

	// Candidates that arrive before the answer are held until it is applied.
	mu       sync.Mutex
	answered bool
	pending  deque.Deque[webrtc.ICECandidateInit]
}

func (p *analysisPeer) answer(answer webrtc.SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.conn.ApplyAnswer(answer); err != nil {
		return err
	}
	p.answered = true
	var first error
	for p.pending.Len() > 0 {
		if err := p.conn.AddICECandidate(p.pending.PopFront()); err != nil && first == nil {
			first = errors.Wrap(err, "buffered candidate")
		}
	}
	return first
}

func (p *analysisPeer) addCandidate(c webrtc.ICECandidateInit) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.answered {
		p.pending.PushBack(c)
		return nil
	}
	return p.conn.AddICECandidate(c)
}

// AnalysisBackend receives a target's video on a server-side peer connection and scores it.
type AnalysisBackend struct {
	API      *webrtc.API
	Config   webrtc.Configuration
	Observer analyzer.FrameObserver

	mu    sync.Mutex
	peers map[core.SessionID]*analysisPeer
}

func NewAnalysisBackend(api *webrtc.API, cfg webrtc.Configuration, observer analyzer.FrameObserver) *AnalysisBackend {
	if observer == nil {
		observer = analyzer.NeutralObserver{}
	}
	return &AnalysisBackend{
		API:      api,
		Config:   cfg,
		Observer: observer,
		peers:    make(map[core.SessionID]*analysisPeer),
	}
}

func (b *AnalysisBackend) Start(target core.SessionID, token string, sink func(analysis.Event)) (webrtc.SessionDescription, error) {
	conn, err := NewWebRTCConnection(b.API, b.Config, "analysis:"+string(target))
	if err != nil {
		return webrtc.SessionDescription{}, errors.Wrap(err, "new analysis pc")
	}
	if err := conn.AddRecvOnly(webrtc.RTPCodecTypeVideo); err != nil {
		conn.Close()
		return webrtc.SessionDescription{}, errors.Wrap(err, "add recvonly video")
	}
	peer := &analysisPeer{conn: conn, monitor: analyzer.NewMonitor()}
	logger := log.With().Str("module", "analysis.backend").Str("target", string(target)).Logger()

	conn.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		sink(analysis.NewLocalCandidate(target, token, ci))
	})
	conn.OnTrack(func(ctx context.Context, track core.RemoteTrack) {
		if track.Kind() != webrtc.RTPCodecTypeVideo {
			return
		}
		sink(analysis.NewTrackArrived(target, token))
		go func() {
			if err := analyzer.Consume(ctx, track, b.Observer, peer.monitor, &logger); err != nil && ctx.Err() == nil {
				sink(analysis.NewTransportFailed(target, token, err))
				return
			}
			sink(analysis.NewTrackEnded(target, token))
		}()
	})
	conn.OnStateChange(func(s core.MediaState) {
		if s == core.MediaFailed {
			sink(analysis.NewTransportFailed(target, token, errors.New("peer connection failed")))
		}
	})

	if err := conn.Start(context.Background()); err != nil {
		conn.Close()
		return webrtc.SessionDescription{}, err
	}
	offer, err := conn.CreateOffer()
	if err != nil {
		conn.Close()
		return webrtc.SessionDescription{}, errors.Wrap(err, "create analysis offer")
	}

	b.mu.Lock()
	if old, ok := b.peers[target]; ok {
		old.conn.Close()
	}
	b.peers[target] = peer
	b.mu.Unlock()
	logger.Info().Msg("analysis connection created")
	return *offer, nil
}

func (b *AnalysisBackend) peer(target core.SessionID) (*analysisPeer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.peers[target]
	if !ok {
		return nil, errors.Errorf("no analysis connection for %s", target)
	}
	return p, nil
}

func (b *AnalysisBackend) Answer(target core.SessionID, answer webrtc.SessionDescription) error {
	p, err := b.peer(target)
	if err != nil {
		return err
	}
	return p.answer(answer)
}

func (b *AnalysisBackend) AddCandidate(target core.SessionID, candidate webrtc.ICECandidateInit) error {
	p, err := b.peer(target)
	if err != nil {
		return err
	}
	return p.addCandidate(candidate)
}

func (b *AnalysisBackend) Stop(target core.SessionID) *domain.Conclusion {
	b.mu.Lock()
	p, ok := b.peers[target]
	delete(b.peers, target)
	b.mu.Unlock()
	if !ok {
		return nil
	}
	p.conn.Close()
	if p.monitor.Frames() == 0 {
		return nil
	}
	c := p.monitor.Conclude()
	return &c
}

// Close stops every connection still open.
func (b *AnalysisBackend) Close() {
	b.mu.Lock()
	peers := b.peers
	b.peers = make(map[core.SessionID]*analysisPeer)
	b.mu.Unlock()
	for _, p := range peers {
		p.conn.Close()
	}
}
