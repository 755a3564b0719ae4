package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/dkeye/Meet/internal/adapters/rtc"
	"github.com/dkeye/Meet/internal/client"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/dkeye/Meet/internal/peer"
)

var flags = []cli.Flag{
	&cli.StringFlag{
		Name:    "server",
		Usage:   "signaling endpoint",
		Value:   "ws://localhost:8080/api/ws/signal",
		EnvVars: []string{"MEET_SERVER"},
	},
	&cli.StringFlag{
		Name:     "room",
		Usage:    "room to join or create",
		Required: true,
		EnvVars:  []string{"MEET_ROOM"},
	},
	&cli.StringFlag{
		Name:    "name",
		Usage:   "display name",
		EnvVars: []string{"MEET_NAME"},
	},
	&cli.BoolFlag{
		Name:  "locked",
		Usage: "require host approval when creating the room",
	},
	&cli.BoolFlag{
		Name:  "admit",
		Usage: "accept every join request while hosting",
	},
	&cli.BoolFlag{
		Name:  "analyze",
		Usage: "analyze every member that joins while hosting",
	},
	&cli.StringFlag{
		Name:  "rtp-video",
		Usage: "UDP `address` to read VP8 RTP from, e.g. 127.0.0.1:5004",
	},
	&cli.StringFlag{
		Name:  "rtp-audio",
		Usage: "UDP `address` to read Opus RTP from",
	},
	&cli.StringSliceFlag{
		Name:    "ice-server",
		Usage:   "STUN/TURN url, use flag multiple times to specify multiple servers",
		EnvVars: []string{"MEET_ICE_SERVERS"},
	},
	&cli.StringFlag{
		Name:    "log-level",
		Value:   "info",
		EnvVars: []string{"MEET_LOG_LEVEL"},
	},
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	app := &cli.App{
		Name:   "meet-participant",
		Usage:  "headless mesh participant",
		Flags:  flags,
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	if lvl, err := zerolog.ParseLevel(c.String("log-level")); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
	ctx, cancel := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	api, err := rtc.NewAPI()
	if err != nil {
		return err
	}
	cfg := rtc.DefaultWebRTCConfig()
	if servers := c.StringSlice("ice-server"); len(servers) > 0 {
		cfg = rtc.Config(servers)
	}

	g, gctx := errgroup.WithContext(ctx)
	local := peer.NewLocalMedia()
	if err := openSource(gctx, g, local, webrtc.RTPCodecTypeVideo, c.String("rtp-video")); err != nil {
		return err
	}
	if err := openSource(gctx, g, local, webrtc.RTPCodecTypeAudio, c.String("rtp-audio")); err != nil {
		return err
	}

	conn, err := client.Dial(ctx, c.String("server"), nil)
	if err != nil {
		return err
	}

	newConn := func(remote domain.UserID) (core.MediaConnection, error) {
		return rtc.NewWebRTCConnection(api, cfg, "peer:"+string(remote))
	}
	mesh := peer.NewOrchestrator(gctx, conn, newConn, local)
	responder := peer.NewResponder(gctx, conn, func() (core.MediaConnection, error) {
		return rtc.NewWebRTCConnection(api, cfg, "analysis")
	}, local, mesh.Self)

	p := client.NewParticipant(conn, mesh, responder, client.Options{
		Room:      domain.RoomID(c.String("room")),
		Name:      c.String("name"),
		Locked:    c.Bool("locked"),
		AutoAdmit: c.Bool("admit"),
		Analyze:   c.Bool("analyze"),
	})

	g.Go(func() error {
		return conn.Run(gctx, p.Handle)
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
			if mesh.Room() != "" {
				_ = mesh.Leave()
			}
		case <-p.Done():
			log.Info().Str("reason", p.Reason()).Msg("left the meeting")
		case <-conn.Done():
		}
		responder.HandleStopped()
		mesh.CloseAll()
		local.Stop()
		conn.Close()
		cancel()
		return nil
	})
	return g.Wait()
}

// openSource starts an RTP pump for kind when addr is set.
func openSource(ctx context.Context, g *errgroup.Group, local *peer.LocalMedia, kind webrtc.RTPCodecType, addr string) error {
	if addr == "" {
		return nil
	}
	track, err := peer.NewLocalTrack(kind, kind.String(), "meet")
	if err != nil {
		return err
	}
	pc, err := net.ListenPacket("udp", addr)
	if err != nil {
		return err
	}
	local.Set(track)
	logger := log.With().Str("module", "participant").Str("kind", kind.String()).Str("addr", addr).Logger()
	g.Go(func() error {
		return peer.PumpRTP(ctx, pc, track, &logger)
	})
	return nil
}
