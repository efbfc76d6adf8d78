package session

import (
	"context"
	"sync"
	"time"

	"github.com/soyeahso/parley/internal/memory"
)

// MemoryStore is an in-process Store for tests and single-shot CLI use.
// Records expire the same way as the durable backends, checked lazily.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	limits  memory.Limits
	records map[string]memoryRecord
}

type memoryRecord struct {
	recs      []memory.Record
	expiresAt time.Time
}

// NewMemoryStore creates an in-memory session store.
func NewMemoryStore(ttl time.Duration, limits memory.Limits) *MemoryStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &MemoryStore{
		ttl:     ttl,
		limits:  limits,
		records: make(map[string]memoryRecord),
	}
}

func (s *MemoryStore) Load(ctx context.Context, sessionID string) (*memory.Conversation, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[sessionID]
	if !ok || time.Now().After(rec.expiresAt) {
		delete(s.records, sessionID)
		return memory.New(sessionID, s.limits), nil
	}
	return memory.FromRecords(sessionID, rec.recs, s.limits), nil
}

func (s *MemoryStore) Save(ctx context.Context, conv *memory.Conversation) error {
	if err := ValidateSessionID(conv.SessionID()); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[conv.SessionID()] = memoryRecord{
		recs:      conv.Records(),
		expiresAt: time.Now().Add(s.ttl),
	}
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, sessionID string) (bool, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[sessionID]
	if ok && time.Now().After(rec.expiresAt) {
		ok = false
	}
	delete(s.records, sessionID)
	return ok, nil
}
