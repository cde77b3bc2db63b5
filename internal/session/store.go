// Package session keeps per-client conversation histories in memory.
package session

import (
	"log"
	"sync"
	"time"

	"github.com/pocketomega/reasonloop/internal/conversation"
)

// minCleanupInterval is the smallest allowed TTL to prevent degenerate ticker intervals.
const minCleanupInterval = time.Millisecond

// Session holds the history of one client (browser tab or terminal run).
type Session struct {
	ID       string
	Messages []conversation.Message
	LastUsed time.Time
}

// Store is a thread-safe in-memory session registry with TTL eviction.
// Histories do not survive a restart.
type Store struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	ttl         time.Duration // inactivity TTL, e.g. 30 minutes
	maxMessages int           // max messages retained per session; 0 keeps everything
	done        chan struct{} // closed by Close() to stop the cleanup goroutine
}

// NewStore creates a new Store with the given TTL and maxMessages limit.
// A background goroutine is started to periodically evict expired sessions.
// Call Close() when the store is no longer needed to stop the goroutine.
func NewStore(ttl time.Duration, maxMessages int) *Store {
	if ttl < minCleanupInterval {
		ttl = minCleanupInterval
	}
	s := &Store{
		sessions:    make(map[string]*Session),
		ttl:         ttl,
		maxMessages: maxMessages,
		done:        make(chan struct{}),
	}
	go s.cleanupLoop()
	return s
}

// Conversation returns a private copy of the session history. Unknown
// sessions yield an empty conversation.
func (s *Store) Conversation(id string) *conversation.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return conversation.New()
	}
	return conversation.New(sess.Messages...)
}

// Append adds finished messages to the session, enforcing maxMessages.
// If the session does not yet exist it is created automatically.
func (s *Store) Append(id string, msgs ...conversation.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		sess = &Session{ID: id}
		s.sessions[id] = sess
	}
	sess.Messages = append(sess.Messages, msgs...)
	if s.maxMessages > 0 && len(sess.Messages) > s.maxMessages {
		dropped := len(sess.Messages) - s.maxMessages
		sess.Messages = append([]conversation.Message(nil), sess.Messages[dropped:]...)
		log.Printf("[Session] %s: trimmed %d oldest messages", id, dropped)
	}
	sess.LastUsed = time.Now()
}

// Delete explicitly removes a session (e.g., user clicks "Clear Chat").
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// Count returns the number of active sessions.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Close stops the background cleanup goroutine. Safe to call multiple times.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}

// cleanupLoop periodically removes sessions that have exceeded the TTL.
func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(s.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.evictBefore(time.Now().Add(-s.ttl))
		}
	}
}

func (s *Store) evictBefore(cutoff time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.sessions {
		if sess.LastUsed.Before(cutoff) {
			delete(s.sessions, id)
		}
	}
}
