// Package config holds the CLI configuration types.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/1ureka/telepeer/internal/codec"
	"github.com/1ureka/telepeer/internal/negotiation"
)

// Config stores all parameters gathered from flags or the interactive prompts.
type Config struct {
	Role  negotiation.Role
	Codec codec.Preference

	URL    string // Initiator: signaling WebSocket URL to dial
	Listen string // Responder: address for the signaling server
	PIN    string // Responder: required PIN (generated when empty); Initiator: PIN to present

	ICEServers    []string
	ControllerURL string        // optional motor controller base URL
	RecordDir     string        // optional directory for track recordings
	Timeout       time.Duration // negotiation timeout, zero waits forever
}

// Validate checks that the fields required by the chosen role are present
// and normalizes the signaling URL.
func (c *Config) Validate() error {
	var errs []error

	switch c.Role {
	case negotiation.Initiator:
		u, err := NormalizeWSURL(c.URL)
		if err != nil {
			errs = append(errs, err)
		}
		c.URL = u
	case negotiation.Responder:
		if _, _, err := net.SplitHostPort(c.Listen); err != nil {
			errs = append(errs, fmt.Errorf("invalid listen address %q: %w", c.Listen, err))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid role %q: must be 'offer' or 'answer'", c.Role))
	}

	for _, s := range c.ICEServers {
		if !strings.HasPrefix(s, "stun:") && !strings.HasPrefix(s, "turn:") && !strings.HasPrefix(s, "turns:") {
			errs = append(errs, fmt.Errorf("invalid ICE server %q", s))
		}
	}

	if c.Timeout < 0 {
		errs = append(errs, errors.New("timeout must not be negative"))
	}

	return errors.Join(errs...)
}

// NormalizeWSURL validates a WebSocket URL and defaults its path to /ws.
// A bare host is treated as wss.
func NormalizeWSURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		raw = "wss://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid WebSocket URL: %q", raw)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid WebSocket URL scheme: %q", u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/ws"
	}
	return u.String(), nil
}
