package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrSessionNotFound = errors.New("app: session not found")

// Sessions keeps one controller per session.
type Sessions struct {
	debug    bool
	lck      sync.Mutex
	sessions map[string]*Controller
	create   func(id string) *Config
	now      func() time.Time
}

// NewSessions creates a session registry. The create function returns the
// controller config for a new session id.
func NewSessions(debug bool, create func(id string) *Config) *Sessions {
	return &Sessions{
		debug:    debug,
		sessions: map[string]*Controller{},
		create:   create,
		now:      time.Now,
	}
}

func (s *Sessions) New() (string, *Controller) {
	id := uuid.New().String()
	cfg := s.create(id)
	cfg.Session = id
	c := New(cfg)
	s.lck.Lock()
	s.sessions[id] = c
	s.lck.Unlock()
	if s.debug {
		log.Printf("app: session %s created\n", id)
	}
	return id, c
}

func (s *Sessions) Get(id string) (*Controller, error) {
	s.lck.Lock()
	defer s.lck.Unlock()
	c, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return c, nil
}

// Delete closes the session and releases its handles.
func (s *Sessions) Delete(ctx context.Context, id string) error {
	s.lck.Lock()
	c, ok := s.sessions[id]
	delete(s.sessions, id)
	s.lck.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	c.Close(ctx)
	return nil
}

// Sweep closes the sessions without changes for longer than maxIdle.
// Sessions with a remix in progress are kept.
func (s *Sessions) Sweep(ctx context.Context, maxIdle time.Duration) int {
	now := s.now()
	var stale []*Controller
	s.lck.Lock()
	for id, c := range s.sessions {
		if c.State().Phase == Processing {
			continue
		}
		if now.Sub(c.Updated()) < maxIdle {
			continue
		}
		delete(s.sessions, id)
		stale = append(stale, c)
	}
	s.lck.Unlock()
	for _, c := range stale {
		c.Close(ctx)
	}
	if len(stale) > 0 {
		log.Printf("app: swept %d idle sessions\n", len(stale))
	}
	return len(stale)
}

// Close closes every session.
func (s *Sessions) Close(ctx context.Context) {
	s.lck.Lock()
	all := s.sessions
	s.sessions = map[string]*Controller{}
	s.lck.Unlock()
	for _, c := range all {
		c.Close(ctx)
	}
}

func (s *Sessions) Len() int {
	s.lck.Lock()
	defer s.lck.Unlock()
	return len(s.sessions)
}
