package session

import (
	"sync"
	"time"

	"github.com/campusfair/gatekeeper/internal/clock"
)

// revocationList tracks destroyed token IDs until their natural expiry, after
// which signature validation rejects them anyway. Purged opportunistically on
// lookup.
type revocationList struct {
	mu        sync.Mutex
	clock     clock.Clock
	byID      map[string]time.Time
	lastPurge time.Time
}

const purgeInterval = 5 * time.Minute

func newRevocationList(clk clock.Clock) *revocationList {
	return &revocationList{
		clock: clk,
		byID:  make(map[string]time.Time),
	}
}

func (l *revocationList) add(tokenID string, expiresAt time.Time) {
	if tokenID == "" {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.byID[tokenID] = expiresAt
}

func (l *revocationList) contains(tokenID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if now.Sub(l.lastPurge) > purgeInterval {
		for id, exp := range l.byID {
			if now.After(exp) {
				delete(l.byID, id)
			}
		}
		l.lastPurge = now
	}

	exp, ok := l.byID[tokenID]
	if !ok {
		return false
	}
	if now.After(exp) {
		delete(l.byID, tokenID)
		return false
	}
	return true
}
