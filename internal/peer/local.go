package peer

import (
	"io"
	"sync"
	"sync/atomic"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

type TrackState int32

const (
	TrackStateOk TrackState = iota
	TrackStateMuted
	TrackStateDelete
)

// LocalTrack is an outgoing track shared by every link. Muting drops packets in place,
// so it never needs a renegotiation.
type LocalTrack struct {
	Track *webrtc.TrackLocalStaticRTP
	state atomic.Int32 // Zero by default (TrackStateOk)
}

func NewLocalTrack(kind webrtc.RTPCodecType, id, streamID string) (*LocalTrack, error) {
	codec := webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}
	if kind == webrtc.RTPCodecTypeAudio {
		codec = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}
	}
	t, err := webrtc.NewTrackLocalStaticRTP(codec, id, streamID)
	if err != nil {
		return nil, err
	}
	return &LocalTrack{Track: t}, nil
}

func (lt *LocalTrack) Kind() webrtc.RTPCodecType { return lt.Track.Kind() }

func (lt *LocalTrack) GetState() TrackState {
	return TrackState(lt.state.Load())
}

func (lt *LocalTrack) SetMuted(muted bool) {
	if muted {
		lt.state.CompareAndSwap(int32(TrackStateOk), int32(TrackStateMuted))
		return
	}
	lt.state.CompareAndSwap(int32(TrackStateMuted), int32(TrackStateOk))
}

func (lt *LocalTrack) MarkDelete() {
	lt.state.Store(int32(TrackStateDelete))
}

func (lt *LocalTrack) WriteRTP(pkt *rtp.Packet) error {
	switch lt.GetState() {
	case TrackStateMuted:
		return nil
	case TrackStateDelete:
		return io.ErrClosedPipe
	}
	return lt.Track.WriteRTP(pkt)
}

// LocalMedia holds the current outgoing track of each kind.
type LocalMedia struct {
	mu     sync.RWMutex
	tracks map[webrtc.RTPCodecType]*LocalTrack
}

func NewLocalMedia() *LocalMedia {
	return &LocalMedia{tracks: make(map[webrtc.RTPCodecType]*LocalTrack)}
}

// Set installs t for its kind and returns the track it replaces.
func (m *LocalMedia) Set(t *LocalTrack) *LocalTrack {
	m.mu.Lock()
	defer m.mu.Unlock()
	old := m.tracks[t.Kind()]
	m.tracks[t.Kind()] = t
	return old
}

func (m *LocalMedia) Get(kind webrtc.RTPCodecType) (*LocalTrack, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tracks[kind]
	return t, ok
}

func (m *LocalMedia) Tracks() []*LocalTrack {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*LocalTrack, 0, len(m.tracks))
	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
		if t, ok := m.tracks[kind]; ok {
			out = append(out, t)
		}
	}
	return out
}

// Stop marks every track deleted so pumps writing into them stop.
func (m *LocalMedia) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tracks {
		t.MarkDelete()
	}
}
