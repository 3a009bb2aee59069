package game

import (
	"context"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"golang.org/x/sync/errgroup"
)

// Registry tracks live websockets and the session joined on each. It is the
// broadcast fan-out target and is never persisted; participants re-join
// after a reconnect.
//
// Multiple goroutines may invoke methods on a Registry simultaneously.
type Registry struct {
	mu sync.Mutex

	// sessions holds all live websockets. A nil Session means the conn
	// has not issued the join request yet.
	sessions map[*websocket.Conn]*Session
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: map[*websocket.Conn]*Session{},
	}
}

// AddConn registers a websocket that has not joined yet.
func (r *Registry) AddConn(conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[conn] = nil
}

// Join associates a session with a registered websocket.
func (r *Registry) Join(conn *websocket.Conn, session *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[conn] = session
}

// Get returns the session joined on a websocket, if any.
func (r *Registry) Get(conn *websocket.Conn) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[conn]
	if !ok || s == nil {
		return nil, false
	}
	return s, true
}

// Remove drops a websocket and its session.
func (r *Registry) Remove(conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, conn)
}

// Count returns the number of live websockets.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Broadcast sends a JSON message to every live websocket, joined or not.
func (r *Registry) Broadcast(ctx context.Context, v any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	errs := errgroup.Group{}
	for conn := range r.sessions {
		errs.Go(func() error {
			return wsjson.Write(ctx, conn, v)
		})
	}
	return errs.Wait()
}

// Close closes every registered websocket.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for conn := range r.sessions {
		conn.Close(websocket.StatusNormalClosure, "server closes")
	}
	clear(r.sessions)
}
