// Package app contains the top-level orchestration for the offer and answer
// roles.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/pterm/pterm"

	"github.com/1ureka/telepeer/internal/config"
	"github.com/1ureka/telepeer/internal/negotiation"
	"github.com/1ureka/telepeer/internal/rtc"
	"github.com/1ureka/telepeer/internal/signaling"
	"github.com/1ureka/telepeer/internal/util"
)

const pinLength = 4

// Run orchestrates one media session:
//  1. Dial (offer) or accept (answer) the signaling channel
//  2. Start the negotiation session on it
//  3. Consume every received track until shutdown
//
// It returns when ctx is cancelled, the signaling channel ends, or the
// session reports a fatal error.
func Run(ctx context.Context, cfg config.Config) error {
	factory, err := rtc.NewFactory(rtc.Config{ICEServers: cfg.ICEServers, Codec: cfg.Codec})
	if err != nil {
		return err
	}

	// ── 1. Signaling channel ───────────────────────────────────────────
	conn, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	// ── 2. Negotiation ─────────────────────────────────────────────────
	var consumers sync.WaitGroup
	sess := negotiation.NewSession(conn, negotiation.Options{
		Role:               cfg.Role,
		Codec:              cfg.Codec,
		NewPeer:            factory.NewPeer,
		NegotiationTimeout: cfg.Timeout,
		OnStream: func(s negotiation.Stream) {
			consumers.Add(1)
			go func() {
				defer consumers.Done()
				consume(ctx, cfg.RecordDir, s)
			}()
		},
		OnError: func(err error) { cancel(err) },
		OnConnectionState: func(state webrtc.PeerConnectionState) {
			switch state {
			case webrtc.PeerConnectionStateConnected:
				util.LogSuccess("media connection established")
			case webrtc.PeerConnectionStateFailed:
				util.LogWarning("media connection failed, waiting for a new offer")
			}
		},
	})

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		sess.Run(ctx)
	}()

	util.StartStatsReporter(ctx)

	// ── 3. Block until the channel ends ────────────────────────────────
	serveErr := conn.Serve(ctx, sess)
	cancel(serveErr)
	<-runDone
	consumers.Wait()

	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
		return cause
	}
	return nil
}

// connect returns the signaling channel for cfg.Role.
func connect(ctx context.Context, cfg config.Config) (*signaling.Conn, error) {
	if cfg.Role == negotiation.Initiator {
		return dial(ctx, cfg.URL, cfg.PIN)
	}
	return accept(ctx, cfg.Listen, cfg.PIN)
}

func dial(ctx context.Context, rawURL, pin string) (*signaling.Conn, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid WebSocket URL: %w", err)
	}
	if pin != "" {
		q := u.Query()
		q.Set("pin", pin)
		u.RawQuery = q.Encode()
	}

	util.LogInfo("connecting to %s://%s%s", u.Scheme, u.Host, u.Path)
	conn, err := signaling.Dial(ctx, u.String())
	if err != nil {
		return nil, err
	}
	util.LogInfo("signaling channel connected")
	return conn, nil
}

func accept(ctx context.Context, addr, pin string) (*signaling.Conn, error) {
	if pin == "" {
		pin = signaling.GeneratePIN(pinLength)
	}

	server := signaling.NewServer(pin)
	port, err := server.Start(addr)
	if err != nil {
		return nil, err
	}
	defer server.Close()

	pterm.DefaultBox.WithTitle("Signaling Server").Println(
		fmt.Sprintf("Port : %d\nPIN  : %s", port, pin),
	)
	util.LogInfo("waiting for the offering peer...")

	conn, err := server.Accept(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to wait for peer: %w", err)
	}
	util.LogInfo("peer connected")
	return conn, nil
}

// consume feeds one remote track into the stats counters and, when dir is
// set, into a recording file.
func consume(ctx context.Context, dir string, s negotiation.Stream) {
	var sink rtc.Sink
	if dir != "" {
		name := fmt.Sprintf("%s-%d", s.Track.Kind(), s.Track.SSRC())
		rec, err := rtc.NewRecorder(dir, s.Track.Codec().MimeType, name)
		if err != nil {
			util.LogWarning("not recording %s: %v", name, err)
		} else {
			util.LogInfo("recording %s to %s", name, rtc.RecordingPath(dir, s.Track.Codec().MimeType, name))
			sink = rec
		}
	}

	if err := rtc.Consume(ctx, s, sink); err != nil {
		util.LogError("%v", err)
	}
}
