package conversation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("thread not found")

// Store persists conversation context across webhook invocations.
// Appending to an unknown thread creates it; message sequence numbers
// are assigned by the store so context length only ever grows.
type Store interface {
	Get(ctx context.Context, threadID string) (*Thread, error)
	Append(ctx context.Context, threadID string, msg *Message) error
	Tracked(ctx context.Context, threadID string) (bool, error)
}

// InMemoryStore is a threadsafe in-memory store used by tests and
// database-less runs.
type InMemoryStore struct {
	mu      sync.RWMutex
	threads map[string]*Thread
	now     func() time.Time
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		threads: make(map[string]*Thread),
		now:     time.Now,
	}
}

func (s *InMemoryStore) Get(ctx context.Context, threadID string) (*Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	th, ok := s.threads[threadID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneThread(th), nil
}

func (s *InMemoryStore) Append(ctx context.Context, threadID string, msg *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	th, ok := s.threads[threadID]
	if !ok {
		th = &Thread{ID: threadID, CreatedAt: now}
		s.threads[threadID] = th
	}
	th.UpdatedAt = now

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.ThreadID = threadID
	msg.Seq = len(th.Messages) + 1
	msg.CreatedAt = now

	th.Messages = append(th.Messages, *msg)
	return nil
}

func (s *InMemoryStore) Tracked(ctx context.Context, threadID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.threads[threadID]
	return ok, nil
}

func cloneThread(th *Thread) *Thread {
	if th == nil {
		return nil
	}
	cp := *th
	cp.Messages = append([]Message(nil), th.Messages...)
	return &cp
}
