// Package audit is the append-only record of security-relevant events.
// Writes are best-effort: a persistence failure never propagates to the
// request path, it is counted and logged internally instead.
package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/campusfair/gatekeeper/internal/clock"
	"github.com/campusfair/gatekeeper/internal/metrics"
	"github.com/campusfair/gatekeeper/internal/models"
)

// Default detection parameters for abusive-IP behavior on the student-ID
// validator.
const (
	DefaultSuspicionWindow    = 5 * time.Minute
	DefaultSuspicionThreshold = 50
)

// Repository is the storage contract for audit entries.
type Repository interface {
	Insert(ctx context.Context, entry *models.AuditLog) error
	Query(ctx context.Context, filter models.AuditFilter) ([]*models.AuditLog, error)
	CountByActionAndIP(ctx context.Context, action, ipAddress string, success bool, since time.Time) (int, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Config holds trail tuning.
type Config struct {
	WriteTimeout time.Duration
	Retention    time.Duration
}

// DefaultConfig returns the default trail settings.
func DefaultConfig() Config {
	return Config{
		WriteTimeout: 5 * time.Second,
		Retention:    90 * 24 * time.Hour,
	}
}

// Trail writes and queries security audit events.
type Trail struct {
	repo   Repository
	cfg    Config
	clock  clock.Clock
	logger *slog.Logger

	wg sync.WaitGroup
}

// NewTrail creates a Trail.
func NewTrail(repo Repository, cfg Config, clk clock.Clock, logger *slog.Logger) *Trail {
	return &Trail{
		repo:   repo,
		cfg:    cfg,
		clock:  clk,
		logger: logger,
	}
}

// Log records one security event. It never blocks on storage and never
// returns an error: the write happens on its own goroutine under a bounded
// timeout, and failures go to the internal log and metrics stream only.
func (t *Trail) Log(entry models.AuditLog) {
	if !t.prepare(&entry) {
		return
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.persist(context.Background(), &entry)
	}()
}

// LogNow records one security event inline on the caller's goroutine. The
// student-ID validator uses it so the probe being recorded already counts
// when DetectSuspiciousPattern runs right after. Write failures still stay
// internal.
func (t *Trail) LogNow(ctx context.Context, entry models.AuditLog) {
	if !t.prepare(&entry) {
		return
	}
	t.persist(ctx, &entry)
}

// prepare validates the action, stamps generated fields, and mirrors the
// event onto the structured log. A false return means the entry was dropped.
func (t *Trail) prepare(entry *models.AuditLog) bool {
	if !models.ValidAuditAction(entry.Action) {
		t.logger.Error("dropping audit entry with unknown action",
			slog.String("action", entry.Action))
		metrics.AuditWriteFailuresTotal.Inc()
		return false
	}

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = t.clock.Now()
	}

	level := slog.LevelInfo
	if !entry.Success {
		level = slog.LevelWarn
	}
	t.logger.LogAttrs(context.Background(), level, "audit event",
		slog.String("action", entry.Action),
		slog.Bool("success", entry.Success),
		slog.String("ip_address", entry.IPAddress),
	)
	return true
}

func (t *Trail) persist(ctx context.Context, entry *models.AuditLog) {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.WriteTimeout)
	defer cancel()

	if err := t.repo.Insert(ctx, entry); err != nil {
		metrics.AuditWriteFailuresTotal.Inc()
		t.logger.Error("failed to persist audit entry",
			slog.String("action", entry.Action),
			slog.Any("error", err),
		)
	}
}

// Flush waits for in-flight writes. Used on shutdown and in tests.
func (t *Trail) Flush() {
	t.wg.Wait()
}

// DetectSuspiciousPattern counts failed validate actions from the IP within
// the trailing window. On a threshold crossing it emits one
// suspicious_activity entry; re-querying without new failures re-reads the
// log and finds the existing entry instead of emitting a duplicate. Query
// errors report no suspicion: detection only ever adds friction, it is not
// itself a security gate.
func (t *Trail) DetectSuspiciousPattern(ctx context.Context, ipAddress string, window time.Duration, threshold int) bool {
	if window <= 0 {
		window = DefaultSuspicionWindow
	}
	if threshold <= 0 {
		threshold = DefaultSuspicionThreshold
	}
	since := t.clock.Now().Add(-window)

	failures, err := t.repo.CountByActionAndIP(ctx, models.AuditActionValidate, ipAddress, false, since)
	if err != nil {
		t.logger.Error("suspicious pattern query failed", slog.Any("error", err))
		return false
	}
	if failures < threshold {
		return false
	}

	flagged, err := t.repo.CountByActionAndIP(ctx, models.AuditActionSuspiciousActivity, ipAddress, false, since)
	if err != nil {
		t.logger.Error("suspicious pattern dedup query failed", slog.Any("error", err))
		return true
	}
	if flagged > 0 {
		return true
	}

	metrics.SuspiciousActivityTotal.Inc()
	entry := &models.AuditLog{
		ID:        uuid.New(),
		Action:    models.AuditActionSuspiciousActivity,
		IPAddress: ipAddress,
		Success:   false,
		Details: models.AuditMetadata{
			"failed_validations": failures,
			"window_minutes":     int(window.Minutes()),
		},
		CreatedAt: t.clock.Now(),
	}
	// Written inline so an immediate re-query sees the marker.
	if err := t.repo.Insert(ctx, entry); err != nil {
		metrics.AuditWriteFailuresTotal.Inc()
		t.logger.Error("failed to persist suspicious activity entry", slog.Any("error", err))
	}
	return true
}

// Query serves the dashboard read surface: filtered, most-recent-first,
// bounded page size.
func (t *Trail) Query(ctx context.Context, filter models.AuditFilter) ([]*models.AuditLog, error) {
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return t.repo.Query(ctx, filter)
}

// DeleteExpired removes entries older than the retention horizon. Called by
// the background cleanup manager.
func (t *Trail) DeleteExpired(ctx context.Context) (int64, error) {
	cutoff := t.clock.Now().Add(-t.cfg.Retention)
	return t.repo.DeleteOlderThan(ctx, cutoff)
}
