package core

import (
	"context"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

type MediaState int

const (
	MediaNew MediaState = iota
	MediaConnecting
	MediaConnected
	MediaDisconnected
	MediaFailed
	MediaClosed
)

func (s MediaState) String() string {
	switch s {
	case MediaNew:
		return "new"
	case MediaConnecting:
		return "connecting"
	case MediaConnected:
		return "connected"
	case MediaDisconnected:
		return "disconnected"
	case MediaFailed:
		return "failed"
	case MediaClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// RemoteTrack is the read side of an incoming media track. *webrtc.TrackRemote satisfies it.
type RemoteTrack interface {
	ID() string
	Kind() webrtc.RTPCodecType
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

// TrackSender is the send side of an attached local track. *webrtc.RTPSender satisfies it.
type TrackSender interface {
	ReplaceTrack(track webrtc.TrackLocal) error
}

type MediaConnection interface {
	// Start configures internal callbacks and binds the connection lifetime to ctx.
	Start(ctx context.Context) error
	// Close should stop all underlying media resources.
	Close()
	IsClosed() bool
	// CreateOffer creates an offer and sets it as local description.
	// Candidates trickle through OnICECandidate.
	CreateOffer() (*webrtc.SessionDescription, error)
	ApplyOfferAndCreateAnswer(webrtc.SessionDescription) (*webrtc.SessionDescription, error)
	ApplyAnswer(webrtc.SessionDescription) error
	// RollbackOffer discards a local offer that was not answered.
	RollbackOffer() error
	HasRemoteDescription() bool
	// AddICECandidate applies a remote ICE candidate.
	AddICECandidate(webrtc.ICECandidateInit) error
	// OnICECandidate sets a callback for newly gathered local ICE candidates.
	OnICECandidate(func(webrtc.ICECandidateInit))
	// OnTrack sets a callback that will be invoked when a new remote track arrives.
	OnTrack(func(ctx context.Context, track RemoteTrack))
	OnStateChange(func(MediaState))
	// AddLocalTrack attaches a local track to the underlying PeerConnection.
	AddLocalTrack(track webrtc.TrackLocal) (TrackSender, error)
	// AddRecvOnly adds a receive-only transceiver of the given kind.
	AddRecvOnly(kind webrtc.RTPCodecType) error
}
