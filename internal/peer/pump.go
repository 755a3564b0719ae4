package peer

import (
	"context"
	"io"
	"net"

	"github.com/pion/rtp"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// PumpRTP reads RTP datagrams from src (for example an ffmpeg or gstreamer rtp sink) and
// writes them into dst until ctx ends or dst is deleted.
func PumpRTP(ctx context.Context, src net.PacketConn, dst *LocalTrack, logger *zerolog.Logger) error {
	go func() {
		<-ctx.Done()
		_ = src.Close()
	}()
	buf := make([]byte, 1600)
	for {
		n, _, err := src.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info().Msg("rtp pump ctx done")
				return nil
			}
			logger.Error().Err(err).Msg("rtp pump read error, stopping")
			return err
		}
		pkt := &rtp.Packet{}
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			logger.Debug().Err(err).Msg("rtp pump dropped non-RTP datagram")
			continue
		}
		if err := dst.WriteRTP(pkt); err != nil {
			if errors.Is(err, io.ErrClosedPipe) {
				logger.Info().Msg("rtp pump track deleted")
				return nil
			}
			logger.Error().Err(err).Msg("rtp pump write error, stopping")
			return err
		}
	}
}
