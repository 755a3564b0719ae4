package analyzer

import (
	"context"
	"io"

	"github.com/dkeye/Meet/internal/core"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// maxFrameBytes bounds a frame that never sees its marker bit.
const maxFrameBytes = 4 << 20

// Consume reads RTP from track, reassembles frames on the marker bit and feeds them through
// observer into monitor. It returns nil when the track ends.
func Consume(ctx context.Context, track core.RemoteTrack, observer FrameObserver, monitor *Monitor, logger *zerolog.Logger) error {
	var (
		buf     []byte
		packets int
		ts      uint32
	)
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("analysis consumer ctx done")
			return ctx.Err()
		default:
		}
		pkt, _, err := track.ReadRTP()
		if err != nil {
			if errors.Is(err, io.EOF) {
				logger.Info().Int("frames", monitor.Frames()).Msg("analysis track ended")
				return nil
			}
			logger.Warn().Err(err).Msg("analysis read RTP error, stopping")
			return err
		}
		if packets > 0 && pkt.Timestamp != ts {
			// Lost the marker of the previous frame.
			buf, packets = buf[:0], 0
		}
		ts = pkt.Timestamp
		packets++
		if len(buf)+len(pkt.Payload) <= maxFrameBytes {
			buf = append(buf, pkt.Payload...)
		}
		if !pkt.Marker {
			continue
		}
		frame := Frame{Timestamp: ts, Payload: append([]byte(nil), buf...), Packets: packets}
		monitor.Observe(observer.Observe(frame))
		buf, packets = buf[:0], 0
	}
}
