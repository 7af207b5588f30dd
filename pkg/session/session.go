// ABOUTME: Shared volume context of one audio session
// ABOUTME: Master volume, mute and a per-channel vector that only grows
package session

import (
	"sync"

	"github.com/google/uuid"
)

// Session is the state shared by every client in one (uuid, device) group
type Session struct {
	mu sync.Mutex

	id     uuid.UUID
	device string
	key    key

	master    float32
	muted     bool
	channels  []float32
	members   int
	destroyed bool
}

// Snapshot is a consistent copy of the session volume state
type Snapshot struct {
	Master   float32
	Muted    bool
	Channels []float32
}

// Gain returns the effective session gain for channel ch
func (s Snapshot) Gain(ch int) float32 {
	if s.Muted {
		return 0
	}
	g := s.Master
	if ch < len(s.Channels) {
		g *= s.Channels[ch]
	}
	return g
}

func newSession(id uuid.UUID, device string, k key, channels int) *Session {
	return &Session{
		id:       id,
		device:   device,
		key:      k,
		master:   1.0,
		channels: unity(channels),
	}
}

func unity(n int) []float32 {
	v := make([]float32, n)
	for i := range v {
		v[i] = 1.0
	}
	return v
}

func (s *Session) join(channels int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if channels > len(s.channels) {
		s.channels = append(s.channels, unity(channels-len(s.channels))...)
	}
	s.members++
}

func (s *Session) leave() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.members--
	if s.members <= 0 {
		s.members = 0
		s.destroyed = true
	}
	return s.members
}

func (s *Session) destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.destroyed = true
	s.members = 0
}
