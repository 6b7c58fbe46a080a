// Package streamtest provides an in-process vault stream server for tests.
package streamtest

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// Server accepts websocket connections on /vaults/{id}/events and lets tests
// push frames to, and drop, the connections of a given vault.
type Server struct {
	*httptest.Server

	upgrader websocket.Upgrader

	mu      sync.Mutex
	conns   map[string][]*serverConn
	backlog map[string]string
	total   map[string]int
	changed chan struct{}
}

type serverConn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *serverConn) write(frame string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, []byte(frame))
}

// NewServer starts a server that is closed when the test ends.
func NewServer(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
		conns:   make(map[string][]*serverConn),
		backlog: make(map[string]string),
		total:   make(map[string]int),
		changed: make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/vaults/{id}/events", s.handle)
	s.Server = httptest.NewServer(mux)
	t.Cleanup(func() {
		s.mu.Lock()
		ids := make([]string, 0, len(s.conns))
		for id := range s.conns {
			ids = append(ids, id)
		}
		s.mu.Unlock()
		for _, id := range ids {
			s.Kill(id)
		}
		s.Close()
	})

	return s
}

// SetBacklog makes every new connection for id receive frame first.
func (s *Server) SetBacklog(id, frame string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backlog[id] = frame
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	conn := &serverConn{ws: ws}

	s.mu.Lock()
	backlog, hasBacklog := s.backlog[id]
	s.mu.Unlock()

	if hasBacklog {
		if err := conn.write(backlog); err != nil {
			_ = ws.Close()
			return
		}
	}

	s.mu.Lock()
	s.conns[id] = append(s.conns[id], conn)
	s.total[id]++
	close(s.changed)
	s.changed = make(chan struct{})
	s.mu.Unlock()

	// Drain until the client goes away so close frames are processed.
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			break
		}
	}

	s.mu.Lock()
	list := s.conns[id]
	for i, c := range list {
		if c == conn {
			s.conns[id] = append(list[:i], list[i+1:]...)
			break
		}
	}
	close(s.changed)
	s.changed = make(chan struct{})
	s.mu.Unlock()
}

// Connections returns how many connections for id have ever been accepted.
func (s *Server) Connections(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total[id]
}

// Active returns how many connections for id are currently open.
func (s *Server) Active(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns[id])
}

// WaitConnections blocks until at least n connections for id have been
// accepted, failing the test after timeout.
func (s *Server) WaitConnections(t testing.TB, id string, n int, timeout time.Duration) {
	t.Helper()
	s.waitFor(t, timeout, func() bool { return s.total[id] >= n }, "connections for "+id)
}

// WaitActive blocks until exactly n connections for id are open.
func (s *Server) WaitActive(t testing.TB, id string, n int, timeout time.Duration) {
	t.Helper()
	s.waitFor(t, timeout, func() bool { return len(s.conns[id]) == n }, "active connections for "+id)
}

func (s *Server) waitFor(t testing.TB, timeout time.Duration, cond func() bool, what string) {
	t.Helper()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		s.mu.Lock()
		ok := cond()
		ch := s.changed
		s.mu.Unlock()
		if ok {
			return
		}

		select {
		case <-ch:
		case <-deadline.C:
			t.Fatalf("timed out waiting for %s", what)
			return
		}
	}
}

// Send writes frame to the newest open connection for id.
func (s *Server) Send(t testing.TB, id, frame string) {
	t.Helper()

	s.mu.Lock()
	list := s.conns[id]
	var conn *serverConn
	if len(list) > 0 {
		conn = list[len(list)-1]
	}
	s.mu.Unlock()

	if conn == nil {
		t.Fatalf("no open connection for %s", id)
		return
	}
	if err := conn.write(frame); err != nil {
		t.Fatalf("write frame to %s: %v", id, err)
	}
}

// Drop closes every open connection for id with a normal close frame.
func (s *Server) Drop(id string) {
	s.mu.Lock()
	list := append([]*serverConn(nil), s.conns[id]...)
	s.mu.Unlock()

	for _, c := range list {
		c.mu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
			time.Now().Add(time.Second))
		c.mu.Unlock()
		_ = c.ws.Close()
	}
}

// Kill closes every open connection for id without a close frame.
func (s *Server) Kill(id string) {
	s.mu.Lock()
	list := append([]*serverConn(nil), s.conns[id]...)
	s.mu.Unlock()

	for _, c := range list {
		_ = c.ws.Close()
	}
}
