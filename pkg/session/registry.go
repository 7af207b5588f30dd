// ABOUTME: Session registry keyed by session uuid and device
// ABOUTME: Creates sessions on first join and destroys them on last release
package session

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	// ErrSessionReleased is returned by calls through a released handle
	ErrSessionReleased = errors.New("session handle released")
	// ErrInvalidArgument is returned for out of range channel indices or levels
	ErrInvalidArgument = errors.New("invalid argument")
)

type key struct {
	id     uuid.UUID
	device string
}

// Registry owns every live session of one engine instance
type Registry struct {
	mu       sync.Mutex
	sessions map[key]*Session
	closed   bool
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[key]*Session)}
}

// Join attaches a client with the given channel count to the session
// (id, device), creating it when needed. uuid.Nil always creates a new
// private session.
func (r *Registry) Join(id uuid.UUID, device string, channels int) (*Handle, error) {
	if channels <= 0 {
		return nil, ErrInvalidArgument
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrSessionReleased
	}

	k := key{id: id, device: device}
	if id == uuid.Nil {
		// private sessions never match a later join
		k.id = uuid.New()
	}

	s, ok := r.sessions[k]
	if !ok {
		s = newSession(id, device, k, channels)
		r.sessions[k] = s
		logrus.WithFields(logrus.Fields{
			"session":  id,
			"device":   device,
			"channels": channels,
		}).Debug("Session created")
	}

	s.join(channels)
	return &Handle{session: s, registry: r}, nil
}

// Len returns the number of live sessions
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// release drops one member and destroys the session with the last one
func (r *Registry) release(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s.leave() > 0 {
		return
	}
	if r.sessions[s.key] == s {
		delete(r.sessions, s.key)
	}
	logrus.WithFields(logrus.Fields{
		"session": s.id,
		"device":  s.device,
	}).Debug("Session destroyed")
}

// Close destroys every session; outstanding handles report ErrSessionReleased
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for k, s := range r.sessions {
		s.destroy()
		delete(r.sessions, k)
	}
	r.closed = true
}
