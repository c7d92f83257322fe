package profit

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/agrisense/crop-advisory-service/internal/models"
)

// ErrCategoryEmpty is returned for a blank category name.
var ErrCategoryEmpty = errors.New("category name is required")

// ErrCategoryExists is returned when the category is already on the list.
var ErrCategoryExists = errors.New("category already exists")

// DefaultCategories are the expense categories offered to every session.
var DefaultCategories = []string{
	"Seeds",
	"Fertilizers",
	"Pesticides",
	"Labor",
	"Equipment",
	"Irrigation",
	"Transportation",
	"Others",
}

// Ledger is a per-session expense ledger. Rows are append-only; the only
// removal operation clears the whole ledger. The category list starts from
// DefaultCategories and grows through AddCategory.
type Ledger struct {
	mu         sync.Mutex
	records    []models.ExpenseRecord
	categories []string
	catSet     map[string]struct{}
}

func NewLedger() *Ledger {
	catSet := make(map[string]struct{}, len(DefaultCategories))
	for _, c := range DefaultCategories {
		catSet[c] = struct{}{}
	}
	return &Ledger{
		categories: append([]string(nil), DefaultCategories...),
		catSet:     catSet,
	}
}

// AddCategory extends the category list with a user-named category. Names are
// trimmed; blanks and duplicates are rejected.
func (l *Ledger) AddCategory(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrCategoryEmpty
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.catSet[name]; ok {
		return ErrCategoryExists
	}
	l.categories = append(l.categories, name)
	l.catSet[name] = struct{}{}
	return nil
}

// Categories returns the defaults plus user-added categories, in the order
// they were added.
func (l *Ledger) Categories() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.categories))
	copy(out, l.categories)
	return out
}

// Add appends the valid rows from batch and reports how many were kept. Rows
// with an unknown category or a non-positive amount are dropped silently, the
// rest of the batch still lands.
func (l *Ledger) Add(batch []models.ExpenseRecord) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	added := 0
	now := time.Now().UTC()
	for _, r := range batch {
		if !l.valid(r) {
			continue
		}
		if r.RecordedAt.IsZero() {
			r.RecordedAt = now
		}
		r.Description = strings.TrimSpace(r.Description)
		l.records = append(l.records, r)
		added++
	}
	return added
}

func (l *Ledger) valid(r models.ExpenseRecord) bool {
	if r.Amount <= 0 {
		return false
	}
	_, ok := l.catSet[r.Category]
	return ok
}

// Records returns a copy of all rows in insertion order.
func (l *Ledger) Records() []models.ExpenseRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.ExpenseRecord, len(l.records))
	copy(out, l.records)
	return out
}

// Clear removes every row. There is no per-row removal.
func (l *Ledger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = nil
}

// Summary aggregates the ledger against revenue. A zero revenue yields a zero
// margin rather than a division error.
func (l *Ledger) Summary(revenue float64) models.ProfitSummary {
	l.mu.Lock()
	defer l.mu.Unlock()

	byCategory := make(map[string]float64)
	var total float64
	for _, r := range l.records {
		byCategory[r.Category] += r.Amount
		total += r.Amount
	}

	s := models.ProfitSummary{
		Revenue:       revenue,
		TotalExpenses: total,
		Profit:        revenue - total,
		ByCategory:    byCategory,
	}
	if revenue != 0 {
		s.ProfitMarginPct = s.Profit / revenue * 100
	}
	return s
}
