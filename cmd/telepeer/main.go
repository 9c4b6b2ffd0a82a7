// Telepeer is the CLI entry point.
//
// This tool negotiates a receive-only WebRTC media session with a remote
// peer (typically a camera robot) over a WebSocket signaling channel, and
// optionally records the received tracks and forwards drive commands to the
// robot's motor controller.
//
// It can be launched interactively (no flags) or non-interactively via CLI
// flags (-role, -url, -listen, -pin, -codec, ...).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/pterm/pterm"

	"github.com/1ureka/telepeer/internal/app"
	"github.com/1ureka/telepeer/internal/codec"
	"github.com/1ureka/telepeer/internal/config"
	"github.com/1ureka/telepeer/internal/control"
	"github.com/1ureka/telepeer/internal/negotiation"
	"github.com/1ureka/telepeer/internal/util"
)

var version = "dev"

func main() {
	// Root context, cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// CLI flags.
	role := flag.String("role", "", "Role: offer (dial and send the offer) or answer (listen and answer)")
	wsURL := flag.String("url", "", "WebSocket signaling URL to dial (offer only)")
	listen := flag.String("listen", "127.0.0.1:0", "Signaling server listen address (answer only)")
	pin := flag.String("pin", "", "Signaling PIN (generated for answer when empty)")
	codecName := flag.String("codec", "", "Preferred video codec: H264, VP8 or VP9 (empty keeps all)")
	stun := flag.String("stun", "", "Comma-separated ICE server URLs")
	controller := flag.String("controller", "", "Motor controller base URL, enables the drive prompt")
	record := flag.String("record", "", "Directory to record received tracks into")
	timeout := flag.Duration("timeout", 0, "Report a negotiation that is not stable after this long (0 waits forever)")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	traceMode := flag.Bool("trace", false, "Enable debug logging including pion internals")
	flag.Parse()

	switch {
	case *traceMode:
		util.EnableTrace()
	case *debugMode:
		util.EnableDebug()
	}

	pterm.Info.Println(fmt.Sprintf("Telepeer — v%s", version))
	pterm.Println()

	var cfg config.Config
	if *role == "" {
		// No -role flag → interactive mode.
		cfg = askConfig()
	} else {
		preference, err := codec.ParsePreference(*codecName)
		if err != nil {
			util.LogError("%v", err)
			os.Exit(1)
		}
		cfg = config.Config{
			Role:          negotiation.Role(*role),
			Codec:         preference,
			URL:           *wsURL,
			Listen:        *listen,
			PIN:           *pin,
			ICEServers:    splitList(*stun),
			ControllerURL: *controller,
			RecordDir:     *record,
			Timeout:       *timeout,
		}
	}

	if err := cfg.Validate(); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}

	if cfg.ControllerURL != "" {
		startDriving(ctx, cfg.ControllerURL)
	}

	if err := app.Run(ctx, cfg); err != nil {
		util.LogError("session ended: %v", err)
		os.Exit(1)
	}

	util.LogInfo("successfully closed media session")
}

// startDriving forwards stdin lines to the motor controller in the background.
func startDriving(ctx context.Context, baseURL string) {
	client, err := control.NewClient(baseURL)
	if err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}

	go func() {
		if err := app.Drive(ctx, client, os.Stdin); err != nil {
			util.LogWarning("drive input closed: %v", err)
		}
	}()
}

// ---------------------------------------------------------------------------
// Interactive prompts
// ---------------------------------------------------------------------------

// askConfig falls back to interactive prompts when no -role flag is provided.
func askConfig() config.Config {
	role, _ := pterm.DefaultInteractiveSelect.
		WithOptions([]string{"Offer  — Dial a peer and request its media", "Answer — Wait for a peer to connect"}).
		WithDefaultText("Select your role").
		Show()
	pterm.Println()

	cfg := config.Config{Listen: "127.0.0.1:0"}
	if strings.HasPrefix(role, "Offer") {
		cfg.Role = negotiation.Initiator
		cfg.URL = askURL()
		cfg.PIN = askText("PIN shown by the answering peer")
	} else {
		cfg.Role = negotiation.Responder
	}

	preference, _ := pterm.DefaultInteractiveSelect.
		WithOptions([]string{"any", string(codec.H264), string(codec.VP8), string(codec.VP9)}).
		WithDefaultText("Preferred video codec").
		Show()
	pterm.Println()
	if preference != "any" {
		cfg.Codec, _ = codec.ParsePreference(preference)
	}

	return cfg
}

// askURL prompts the user for a valid WebSocket URL until one is entered.
func askURL() string {
	for {
		raw := askText("WebSocket URL (e.g. wss://***.asse.devtunnels.ms/ws)")

		wsURL, err := config.NormalizeWSURL(raw)
		if err == nil {
			return wsURL
		}

		util.LogWarning("invalid input: please enter a valid host or URL")
	}
}

func askText(prompt string) string {
	raw, _ := pterm.DefaultInteractiveTextInput.
		WithDefaultText(prompt).
		Show()
	pterm.Println()
	return strings.TrimSpace(raw)
}

func splitList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
