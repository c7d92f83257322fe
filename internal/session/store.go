package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agrisense/crop-advisory-service/internal/models"
	"github.com/agrisense/crop-advisory-service/internal/profit"
)

// Session carries the per-farmer working state between requests: the last
// resolved location and analysis, the prediction table, and the expense
// ledger the profit view runs against.
type Session struct {
	mu sync.Mutex

	id         string
	lastAccess time.Time

	location    *models.Location
	analysis    *models.AnalysisResult
	predictions []models.CropPrediction
	totalIncome float64
	expenses    *profit.Ledger
}

func (s *Session) ID() string { return s.id }

func (s *Session) SetAnalysis(loc models.Location, result models.AnalysisResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.location = &loc
	s.analysis = &result
}

// Analysis returns the stored analysis, or false if none has been run yet.
func (s *Session) Analysis() (models.AnalysisResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.analysis == nil {
		return models.AnalysisResult{}, false
	}
	return *s.analysis, true
}

// SetPredictions replaces the prediction table. Revenue for the profit view
// sums only the determined rows.
func (s *Session) SetPredictions(predictions []models.CropPrediction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.predictions = predictions
	var total float64
	for _, p := range predictions {
		if p.Determined() {
			total += p.TotalIncome
		}
	}
	s.totalIncome = total
}

func (s *Session) Predictions() []models.CropPrediction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.CropPrediction, len(s.predictions))
	copy(out, s.predictions)
	return out
}

// TotalIncome is the revenue figure the profit summary runs against.
func (s *Session) TotalIncome() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalIncome
}

func (s *Session) Expenses() *profit.Ledger {
	return s.expenses
}

// Store holds sessions keyed by opaque IDs. Idle sessions are evicted lazily
// on access; there is no background reaper goroutine to manage.
type Store struct {
	mu      sync.Mutex
	idleTTL time.Duration
	entries map[string]*Session
}

func NewStore(idleTTL time.Duration) *Store {
	return &Store{
		idleTTL: idleTTL,
		entries: make(map[string]*Session),
	}
}

// Get returns the session for id, minting a fresh one when id is empty,
// unknown, or expired. Every access resets the idle clock.
func (st *Store) Get(id string) *Session {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.evictIdle()

	if s, ok := st.entries[id]; ok {
		s.lastAccess = time.Now()
		return s
	}

	s := &Session{
		id:         uuid.New().String(),
		lastAccess: time.Now(),
		expenses:   profit.NewLedger(),
	}
	st.entries[s.id] = s
	return s
}

// Len reports the live session count after eviction.
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.evictIdle()
	return len(st.entries)
}

// evictIdle drops sessions idle past the TTL. Held under mu.
func (st *Store) evictIdle() {
	if st.idleTTL <= 0 {
		return
	}
	cutoff := time.Now().Add(-st.idleTTL)
	for id, s := range st.entries {
		if s.lastAccess.Before(cutoff) {
			delete(st.entries, id)
		}
	}
}
