package persistence

import (
	"context"
	"sync"
	"time"

	"github.com/fixora/pim/internal/domain"
	"github.com/fixora/pim/internal/ports"
)

// MemoryAuditRepository is an append-only audit log held in process memory.
// Entries are kept in append order.
type MemoryAuditRepository struct {
	mu      sync.RWMutex
	entries []domain.AuditTrailEntry
	index   map[string]int
}

// NewMemoryAuditRepository creates an empty in-memory audit log
func NewMemoryAuditRepository() *MemoryAuditRepository {
	return &MemoryAuditRepository{index: make(map[string]int)}
}

var _ ports.AuditRepository = (*MemoryAuditRepository)(nil)

// Append stores a new entry at the end of the log
func (r *MemoryAuditRepository) Append(ctx context.Context, entry domain.AuditTrailEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.index[entry.ID]; exists {
		return domain.ErrAuditEntryExists
	}
	r.index[entry.ID] = len(r.entries)
	r.entries = append(r.entries, entry.Clone())
	return nil
}

// FindByID retrieves an entry by its ID
func (r *MemoryAuditRepository) FindByID(ctx context.Context, id string) (domain.AuditTrailEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.index[id]
	if !ok {
		return domain.AuditTrailEntry{}, domain.ErrAuditEntryNotFound
	}
	return r.entries[i].Clone(), nil
}

// FindByChainHash retrieves the entry of a tenant chain with the given chain hash
func (r *MemoryAuditRepository) FindByChainHash(ctx context.Context, tenantID, hash string) (domain.AuditTrailEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := len(r.entries) - 1; i >= 0; i-- {
		e := r.entries[i]
		if e.TenantID == tenantID && e.ChainHash == hash {
			return e.Clone(), nil
		}
	}
	return domain.AuditTrailEntry{}, domain.ErrAuditEntryNotFound
}

// Latest returns the last appended entry of a tenant chain
func (r *MemoryAuditRepository) Latest(ctx context.Context, tenantID string) (domain.AuditTrailEntry, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := len(r.entries) - 1; i >= 0; i-- {
		if r.entries[i].TenantID == tenantID {
			return r.entries[i].Clone(), true, nil
		}
	}
	return domain.AuditTrailEntry{}, false, nil
}

// Query returns the page of entries matching filter and the total match count
func (r *MemoryAuditRepository) Query(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditTrailEntry, int, error) {
	r.mu.RLock()
	matches := []domain.AuditTrailEntry{}
	for _, e := range r.entries {
		if filter.Matches(e) {
			matches = append(matches, e.Clone())
		}
	}
	r.mu.RUnlock()

	domain.SortAuditEntries(matches, filter.SortBy, filter.SortOrder)
	total := len(matches)

	if filter.Offset > 0 {
		if filter.Offset >= len(matches) {
			return []domain.AuditTrailEntry{}, total, nil
		}
		matches = matches[filter.Offset:]
	}
	if filter.Limit > 0 && len(matches) > filter.Limit {
		matches = matches[:filter.Limit]
	}
	return matches, total, nil
}

// Archive flags unarchived entries older than cutoff
func (r *MemoryAuditRepository) Archive(ctx context.Context, cutoff, archivedAt time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for i := range r.entries {
		e := &r.entries[i]
		if e.Archived || !e.Timestamp.Before(cutoff) {
			continue
		}
		at := archivedAt
		e.Archived = true
		e.ArchivedAt = &at
		n++
	}
	return n, nil
}

// Purge removes the expired head of every tenant chain
func (r *MemoryAuditRepository) Purge(ctx context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	blocked := make(map[string]bool)
	return r.removeWhere(func(e domain.AuditTrailEntry) bool {
		if !blocked[e.TenantID] && e.ExpiresAt.Before(now) {
			return true
		}
		blocked[e.TenantID] = true
		return false
	}), nil
}

// PurgeAll removes every expired entry
func (r *MemoryAuditRepository) PurgeAll(ctx context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.removeWhere(func(e domain.AuditTrailEntry) bool {
		return e.ExpiresAt.Before(now)
	}), nil
}

// removeWhere drops matching entries in order and rebuilds the index; callers hold mu
func (r *MemoryAuditRepository) removeWhere(drop func(domain.AuditTrailEntry) bool) int {
	kept := r.entries[:0]
	removed := 0
	for _, e := range r.entries {
		if drop(e) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	r.entries = kept
	r.index = make(map[string]int, len(kept))
	for i, e := range r.entries {
		r.index[e.ID] = i
	}
	return removed
}

// Len returns the number of stored entries
func (r *MemoryAuditRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
