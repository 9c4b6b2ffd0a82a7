package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1ureka/telepeer/internal/control"
)

func TestDriveForwardsCommands(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []string
	)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.URL.Path)
		mu.Unlock()
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer ts.Close()

	client, err := control.NewClient(ts.URL)
	require.NoError(t, err)

	input := strings.NewReader("w\n\nLeft\njump\nx\n")
	require.NoError(t, Drive(context.Background(), client, input))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"/cmd/forward", "/cmd/left", "/cmd/stop"}, seen)
}

func TestDriveSurvivesRejectedCommand(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	client, err := control.NewClient(ts.URL)
	require.NoError(t, err)

	require.NoError(t, Drive(context.Background(), client, strings.NewReader("forward\nstop\n")))
	assert.Equal(t, int32(2), calls.Load())
}
