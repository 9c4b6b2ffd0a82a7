package app

import (
	"bufio"
	"context"
	"io"
	"strings"

	"github.com/1ureka/telepeer/internal/control"
	"github.com/1ureka/telepeer/internal/util"
)

// keyBindings lets the operator drive with single keys as well as full names.
var keyBindings = map[string]control.Command{
	"w": control.Forward,
	"s": control.Backward,
	"a": control.Left,
	"d": control.Right,
	"x": control.Stop,
}

// Drive reads one command per line from r and forwards it to the controller
// until r is exhausted or ctx is cancelled. Rejected commands are logged and
// do not stop the loop.
func Drive(ctx context.Context, client *control.Client, r io.Reader) error {
	lines := make(chan string)
	readErr := make(chan error, 1)

	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	util.LogInfo("drive with w/a/s/d, x to stop (or type forward, backward, left, right, stop)")
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-readErr:
					return err
				default:
					return nil
				}
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}

			cmd, found := keyBindings[strings.ToLower(line)]
			if !found {
				var err error
				if cmd, err = control.ParseCommand(line); err != nil {
					util.LogWarning("%v", err)
					continue
				}
			}
			if err := client.Send(ctx, cmd); err != nil {
				util.LogWarning("%v", err)
			}
		case <-ctx.Done():
			return nil
		}
	}
}
