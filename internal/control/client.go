// Package control sends drive commands to the robot's motor controller.
package control

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/1ureka/telepeer/internal/util"
)

// Command is one motor instruction understood by the controller.
type Command string

const (
	Forward  Command = "forward"
	Backward Command = "backward"
	Left     Command = "left"
	Right    Command = "right"
	Stop     Command = "stop"
)

// Commands lists every command in menu order.
var Commands = []Command{Forward, Backward, Left, Right, Stop}

// ParseCommand maps user input to a Command.
func ParseCommand(raw string) (Command, error) {
	name := Command(strings.ToLower(strings.TrimSpace(raw)))
	for _, c := range Commands {
		if c == name {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown command %q", raw)
}

const requestTimeout = 5 * time.Second

// Client issues commands against a controller base URL such as
// http://raspberrypi.local:8000.
type Client struct {
	base *url.URL
	http *http.Client
}

// NewClient validates baseURL and returns a Client for it.
func NewClient(baseURL string) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("invalid controller URL: %s", baseURL)
	}
	return &Client{
		base: u,
		http: &http.Client{Timeout: requestTimeout},
	}, nil
}

type reply struct {
	Status string `json:"status"`
}

// Send issues GET <base>/cmd/<cmd> and checks the controller acknowledged it.
func (c *Client) Send(ctx context.Context, cmd Command) error {
	endpoint := c.base.JoinPath("cmd", string(cmd))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send %s: %w", cmd, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return fmt.Errorf("failed to read %s reply: %w", cmd, err)
	}

	var r reply
	_ = json.Unmarshal(body, &r)

	if resp.StatusCode != http.StatusOK || r.Status != "ok" {
		return fmt.Errorf("controller rejected %s (HTTP %d, status %q)", cmd, resp.StatusCode, r.Status)
	}

	util.LogDebug("controller accepted %s", cmd)
	return nil
}
