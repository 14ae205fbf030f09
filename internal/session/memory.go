package session

import (
	"context"
	"maps"
	"sync"

	"github.com/iyulab/siem-analyst/internal/model"
)

type memorySession struct {
	mu       sync.Mutex
	messages []model.Message
	context  model.ConversationContext
}

// MemoryStore keeps sessions in process memory for the process lifetime.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*memorySession
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*memorySession)}
}

// session returns the state for id, creating it on first reference.
func (s *MemoryStore) session(id string) (*memorySession, error) {
	if id == "" {
		return nil, ErrInvalidSession
	}
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if ok {
		return sess, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok = s.sessions[id]; !ok {
		sess = &memorySession{context: model.ConversationContext{SessionID: id, Values: map[string]any{}}}
		s.sessions[id] = sess
	}
	return sess, nil
}

// AddMessage implements Store.
func (s *MemoryStore) AddMessage(_ context.Context, sessionID string, typ model.MessageType, content string, metadata map[string]any) (model.Message, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return model.Message{}, err
	}
	msg := newMessage(typ, content, metadata)

	sess.mu.Lock()
	sess.messages = append(sess.messages, msg)
	sess.mu.Unlock()
	return msg, nil
}

// GetContext implements Store.
func (s *MemoryStore) GetContext(_ context.Context, sessionID string) (model.ConversationContext, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return model.ConversationContext{}, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	cc := sess.context
	cc.LastEntities = append([]model.Entity(nil), cc.LastEntities...)
	cc.Values = maps.Clone(cc.Values)
	cc.MessageCount = len(sess.messages)
	return cc, nil
}

// UpdateContext implements Store.
func (s *MemoryStore) UpdateContext(_ context.Context, sessionID string, patch map[string]any) error {
	sess, err := s.session(sessionID)
	if err != nil {
		return err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	next := sess.context
	next.Values = maps.Clone(next.Values)
	if err := applyPatch(&next, patch); err != nil {
		return err
	}
	sess.context = next
	return nil
}

// GetHistory implements Store.
func (s *MemoryStore) GetHistory(_ context.Context, sessionID string, limit int) ([]model.Message, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	return tail(sess.messages, limit), nil
}

// CreateSession implements Store.
func (s *MemoryStore) CreateSession(_ context.Context, sessionID string) error {
	sess, err := s.session(sessionID)
	if err != nil {
		return err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.messages = nil
	sess.context = model.ConversationContext{SessionID: sessionID, Values: map[string]any{}}
	return nil
}

// Len returns the number of sessions seen so far.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }
