// ABOUTME: Client-side reference to a shared session
// ABOUTME: Volume and mute accessors, released exactly once
package session

import (
	"sync"

	"github.com/google/uuid"
)

// Handle is one client's membership in a session
type Handle struct {
	mu       sync.Mutex
	session  *Session
	registry *Registry
	released bool
}

// lock returns the session locked, or ErrSessionReleased
func (h *Handle) lock() (*Session, error) {
	h.mu.Lock()
	released := h.released
	h.mu.Unlock()
	if released {
		return nil, ErrSessionReleased
	}

	s := h.session
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return nil, ErrSessionReleased
	}
	return s, nil
}

// ID returns the session uuid, uuid.Nil for private sessions
func (h *Handle) ID() uuid.UUID { return h.session.id }

// Device returns the device the session belongs to
func (h *Handle) Device() string { return h.session.device }

// MasterVolume returns the session master level
func (h *Handle) MasterVolume() (float32, error) {
	s, err := h.lock()
	if err != nil {
		return 0, err
	}
	defer s.mu.Unlock()
	return s.master, nil
}

// SetMasterVolume sets the session master level in [0,1]
func (h *Handle) SetMasterVolume(level float32) error {
	if level < 0 || level > 1 {
		return ErrInvalidArgument
	}
	s, err := h.lock()
	if err != nil {
		return err
	}
	defer s.mu.Unlock()
	s.master = level
	return nil
}

// Muted reports the session mute state
func (h *Handle) Muted() (bool, error) {
	s, err := h.lock()
	if err != nil {
		return false, err
	}
	defer s.mu.Unlock()
	return s.muted, nil
}

// SetMute sets the session mute state
func (h *Handle) SetMute(muted bool) error {
	s, err := h.lock()
	if err != nil {
		return err
	}
	defer s.mu.Unlock()
	s.muted = muted
	return nil
}

// ChannelCount returns the length of the session channel vector
func (h *Handle) ChannelCount() (int, error) {
	s, err := h.lock()
	if err != nil {
		return 0, err
	}
	defer s.mu.Unlock()
	return len(s.channels), nil
}

// ChannelVolume returns the session level of one channel
func (h *Handle) ChannelVolume(index int) (float32, error) {
	s, err := h.lock()
	if err != nil {
		return 0, err
	}
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.channels) {
		return 0, ErrInvalidArgument
	}
	return s.channels[index], nil
}

// SetChannelVolume sets the session level of one channel in [0,1]
func (h *Handle) SetChannelVolume(index int, level float32) error {
	if level < 0 || level > 1 {
		return ErrInvalidArgument
	}
	s, err := h.lock()
	if err != nil {
		return err
	}
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.channels) {
		return ErrInvalidArgument
	}
	s.channels[index] = level
	return nil
}

// Members returns how many handles share the session
func (h *Handle) Members() (int, error) {
	s, err := h.lock()
	if err != nil {
		return 0, err
	}
	defer s.mu.Unlock()
	return s.members, nil
}

// Snapshot copies the volume state in one lock
func (h *Handle) Snapshot() (Snapshot, error) {
	s, err := h.lock()
	if err != nil {
		return Snapshot{}, err
	}
	defer s.mu.Unlock()

	return Snapshot{
		Master:   s.master,
		Muted:    s.muted,
		Channels: append([]float32(nil), s.channels...),
	}, nil
}

// Release drops this membership; the last release destroys the session
func (h *Handle) Release() error {
	h.mu.Lock()
	if h.released {
		h.mu.Unlock()
		return ErrSessionReleased
	}
	h.released = true
	h.mu.Unlock()

	h.registry.release(h.session)
	return nil
}
