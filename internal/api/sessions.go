package api

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"giteakit/internal/errors"
	"giteakit/internal/file"
)

const maxEvents = 32

// Session is one editing session: an orchestrator plus the events it
// pushed, kept for polling clients.
type Session struct {
	ID        string
	Owner     string
	Repo      string
	CreatedAt time.Time

	File *file.Session

	mu          sync.Mutex
	events      []file.Event
	unsubscribe func()
}

func newSession(id, owner, repo string, fs *file.Session) *Session {
	s := &Session{
		ID:        id,
		Owner:     owner,
		Repo:      repo,
		CreatedAt: time.Now().UTC(),
		File:      fs,
	}
	s.unsubscribe = fs.Subscribe(s.record)
	return s
}

func (s *Session) record(e file.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	if len(s.events) > maxEvents {
		s.events = s.events[len(s.events)-maxEvents:]
	}
}

func (s *Session) Events() []file.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]file.Event(nil), s.events...)
}

func (s *Session) close() {
	s.File.Close()
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

// SessionBox holds the open sessions in memory.
type SessionBox struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewSessionBox() *SessionBox {
	return &SessionBox{
		sessions: make(map[string]*Session),
	}
}

func (b *SessionBox) Create(s *Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.sessions[s.ID]; ok {
		return fmt.Errorf("session already exists: %s", s.ID)
	}
	b.sessions[s.ID] = s
	return nil
}

func (b *SessionBox) Get(id string) (*Session, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if s, ok := b.sessions[id]; ok {
		return s, nil
	}
	return nil, errors.NotFound("session not found: " + id)
}

// Delete closes the session and forgets it.
func (b *SessionBox) Delete(id string) error {
	b.mu.Lock()
	s, ok := b.sessions[id]
	delete(b.sessions, id)
	b.mu.Unlock()

	if !ok {
		return errors.NotFound("session not found: " + id)
	}
	s.close()
	return nil
}

// List returns the sessions oldest first.
func (b *SessionBox) List() []*Session {
	b.mu.RLock()
	defer b.mu.RUnlock()
	list := make([]*Session, 0, len(b.sessions))
	for _, s := range b.sessions {
		list = append(list, s)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })
	return list
}

// CloseAll closes every session, for shutdown.
func (b *SessionBox) CloseAll() {
	b.mu.Lock()
	sessions := b.sessions
	b.sessions = make(map[string]*Session)
	b.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}
}
