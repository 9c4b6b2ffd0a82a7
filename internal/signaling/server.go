package signaling

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/1ureka/telepeer/internal/util"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server is the answering peer's signaling endpoint. The first request on
// /ws that presents the PIN claims the server and is handed to Accept; later
// requests are refused with 409 before any upgrade happens.
type Server struct {
	pin     string
	claimed atomic.Bool
	peer    chan *Conn
	http    *http.Server
}

// NewServer creates a signaling server. An empty pin admits anyone.
func NewServer(pin string) *Server {
	return &Server{
		pin:  pin,
		peer: make(chan *Conn, 1),
	}
}

// Handler returns the HTTP handler serving GET /ws.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.upgrade)
	return mux
}

// Start listens on addr (":0" picks a free port) and returns the bound port.
func (s *Server) Start(addr string) (int, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return 0, fmt.Errorf("failed to start signaling server: %w", err)
	}

	s.http = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			util.LogWarning("signaling server stopped: %v", err)
		}
	}()

	return ln.Addr().(*net.TCPAddr).Port, nil
}

func (s *Server) authorized(r *http.Request) bool {
	if s.pin == "" {
		return true
	}
	got := r.URL.Query().Get("pin")
	return subtle.ConstantTimeCompare([]byte(got), []byte(s.pin)) == 1
}

func (s *Server) upgrade(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		util.LogWarning("rejected signaling peer %s: invalid PIN", r.RemoteAddr)
		http.Error(w, "invalid PIN", http.StatusUnauthorized)
		return
	}
	if !s.claimed.CompareAndSwap(false, true) {
		http.Error(w, "a peer is already connected", http.StatusConflict)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied; let the peer retry.
		s.claimed.Store(false)
		util.LogDebug("signaling upgrade from %s failed: %v", r.RemoteAddr, err)
		return
	}

	util.LogDebug("signaling peer %s connected", r.RemoteAddr)
	s.peer <- NewConn(ws)
}

// Accept blocks until the peer connects or ctx is cancelled.
func (s *Server) Accept(ctx context.Context) (*Conn, error) {
	select {
	case conn := <-s.peer:
		return conn, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops the listener. An accepted Conn stays open.
func (s *Server) Close() {
	if s.http != nil {
		s.http.Close()
	}
}

// GeneratePIN returns length random decimal digits. Bytes of 250 and above
// are discarded so every digit is equally likely.
func GeneratePIN(length int) string {
	pin := make([]byte, 0, length)
	buf := make([]byte, length)
	for len(pin) < length {
		rand.Read(buf)
		for _, b := range buf {
			if b < 250 && len(pin) < length {
				pin = append(pin, '0'+b%10)
			}
		}
	}
	return string(pin)
}
