package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/i474232898/sunsavvy/internal/solar"
)

type sessionEntry struct {
	payload   []byte
	expiresAt time.Time
}

// MemoryStore is a concurrency-safe in-memory implementation of the session,
// record and rate stores.
type MemoryStore struct {
	mu sync.RWMutex

	// key: owner
	sessions map[string]sessionEntry
	records  map[string][]solar.EstimationRecord
	// key: service provider id
	providers map[string]solar.ServiceProvider

	// retention configuration
	sessionTTL time.Duration // idle sessions older than this are swept; 0 keeps them
	maxRecords int           // max records per owner; <= 0 is unlimited

	clock clockwork.Clock
}

// NewMemoryStore creates a new MemoryStore with optional limits.
func NewMemoryStore(sessionTTL time.Duration, maxRecords int, clock clockwork.Clock) *MemoryStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryStore{
		sessions:   make(map[string]sessionEntry),
		records:    make(map[string][]solar.EstimationRecord),
		providers:  make(map[string]solar.ServiceProvider),
		sessionTTL: sessionTTL,
		maxRecords: maxRecords,
		clock:      clock,
	}
}

// Load returns a copy of the owner's session. Sessions are kept serialized so
// callers never share state with the store.
func (s *MemoryStore) Load(_ context.Context, owner string) (*solar.Session, error) {
	s.mu.RLock()
	entry, ok := s.sessions[owner]
	s.mu.RUnlock()

	if !ok || s.expired(entry) {
		return nil, solar.ErrSessionNotFound
	}

	var sess solar.Session
	if err := json.Unmarshal(entry.payload, &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &sess, nil
}

func (s *MemoryStore) Save(_ context.Context, sess *solar.Session) error {
	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	entry := sessionEntry{payload: payload}
	if s.sessionTTL > 0 {
		entry.expiresAt = s.clock.Now().Add(s.sessionTTL)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.Owner] = entry
	return nil
}

func (s *MemoryStore) Take(_ context.Context, owner string) (*solar.Session, error) {
	s.mu.Lock()
	entry, ok := s.sessions[owner]
	delete(s.sessions, owner)
	s.mu.Unlock()

	if !ok || s.expired(entry) {
		return nil, solar.ErrSessionNotFound
	}

	var sess solar.Session
	if err := json.Unmarshal(entry.payload, &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &sess, nil
}

// Sweep drops expired sessions and reports how many were removed.
func (s *MemoryStore) Sweep(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for owner, entry := range s.sessions {
		if s.expired(entry) {
			delete(s.sessions, owner)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) expired(e sessionEntry) bool {
	return !e.expiresAt.IsZero() && !s.clock.Now().Before(e.expiresAt)
}

// SaveRecord appends a record and enforces per-owner retention.
func (s *MemoryStore) SaveRecord(_ context.Context, rec solar.EstimationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := append(s.records[rec.Owner], rec)
	if s.maxRecords > 0 && len(history) > s.maxRecords {
		over := len(history) - s.maxRecords
		history = history[over:]
	}
	s.records[rec.Owner] = history
	return nil
}

func (s *MemoryStore) GetRecord(_ context.Context, owner, id string) (solar.EstimationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.records[owner] {
		if rec.ID == id {
			return rec, nil
		}
	}
	return solar.EstimationRecord{}, solar.ErrRecordNotFound
}

// ListRecords returns the owner's records, newest first. limit <= 0 returns all.
func (s *MemoryStore) ListRecords(_ context.Context, owner string, limit int) ([]solar.EstimationRecord, error) {
	s.mu.RLock()
	history := s.records[owner]
	result := make([]solar.EstimationRecord, len(history))
	copy(result, history)
	s.mu.RUnlock()

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *MemoryStore) Summary(_ context.Context, owner string) (solar.RecordSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sum solar.RecordSummary
	for _, rec := range s.records[owner] {
		sum.Count++
		sum.TotalAnnualSavings += rec.AnnualSavings
	}
	return sum, nil
}

func (s *MemoryStore) UpsertProvider(_ context.Context, p solar.ServiceProvider) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.providers[p.ID] = p
	return nil
}

// ListProviders returns every provider ordered by id.
func (s *MemoryStore) ListProviders(_ context.Context) ([]solar.ServiceProvider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]solar.ServiceProvider, 0, len(s.providers))
	for _, p := range s.providers {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *MemoryStore) CostPerWatt(_ context.Context, providerID string) (float64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.providers[providerID]
	return p.CostPerWatt, ok, nil
}
