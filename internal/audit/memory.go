package audit

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/campusfair/gatekeeper/internal/models"
)

// MemoryRepository keeps audit entries in memory. It mirrors the SQL
// repository's filter semantics and backs the unit tests.
type MemoryRepository struct {
	mu      sync.RWMutex
	entries []*models.AuditLog
}

// NewMemoryRepository creates an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) Insert(ctx context.Context, entry *models.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *entry
	r.entries = append(r.entries, &stored)
	return nil
}

func (r *MemoryRepository) Query(ctx context.Context, filter models.AuditFilter) ([]*models.AuditLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]*models.AuditLog, 0)
	for _, e := range r.entries {
		if filter.Action != nil && e.Action != *filter.Action {
			continue
		}
		if filter.ActorID != nil && (e.ActorID == nil || *e.ActorID != *filter.ActorID) {
			continue
		}
		if filter.IPAddress != nil && e.IPAddress != *filter.IPAddress {
			continue
		}
		if filter.Success != nil && e.Success != *filter.Success {
			continue
		}
		copied := *e
		matched = append(matched, &copied)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if filter.Offset >= len(matched) {
		return []*models.AuditLog{}, nil
	}
	matched = matched[filter.Offset:]
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

func (r *MemoryRepository) CountByActionAndIP(ctx context.Context, action, ipAddress string, success bool, since time.Time) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, e := range r.entries {
		if e.Action == action && e.IPAddress == ipAddress && e.Success == success && !e.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (r *MemoryRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.entries[:0]
	var removed int64
	for _, e := range r.entries {
		if e.CreatedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	r.entries = kept
	return removed, nil
}

// Len reports the number of stored entries.
func (r *MemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.entries)
}
