package clicker

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/ryanhamamura/clicker/h"
)

// Signal is a value that lives in the browser and is mirrored on the
// server. The browser copy is sent back right before every action runs.
type Signal struct {
	mu      sync.RWMutex
	id      string
	val     any
	changed bool
	err     error
}

// ID returns the signal name as seen by Datastar expressions ($ID).
func (s *Signal) ID() string {
	return s.id
}

// Err reports a signal that could not be created.
func (s *Signal) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Bind two-way binds the signal to an input element.
func (s *Signal) Bind() h.H {
	return h.Data("bind", s.id)
}

// Text renders a span showing the live value.
func (s *Signal) Text() h.H {
	return h.Span(h.Data("text", "$"+s.id))
}

// SetValue updates the value and marks it for the next push.
func (s *Signal) SetValue(v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.val = v
	s.changed = true
	s.err = nil
}

func (s *Signal) inject(v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.val = v
	s.changed = false
}

func (s *Signal) snapshot() (any, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.val, s.changed, s.err
}

func (s *Signal) String() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fmt.Sprintf("%v", s.val)
}

// Bool reads the value as a bool; anything unrecognised is false.
func (s *Signal) Bool() bool {
	switch strings.ToLower(s.String()) {
	case "true", "1", "yes", "on":
		return true
	}
	return false
}

// Int reads the value as an int, 0 on failure. JSON numbers arrive as
// float64 and are truncated.
func (s *Signal) Int() int {
	str := s.String()
	if n, err := strconv.Atoi(str); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(str, 64); err == nil {
		return int(f)
	}
	return 0
}
