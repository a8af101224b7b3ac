package usecase

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fixora/pim/internal/domain"
	"github.com/fixora/pim/internal/logger"
	"github.com/fixora/pim/internal/ports"
)

// TamperAlert is raised when a scheduled verification finds a broken chain
type TamperAlert struct {
	TenantID string                       `json:"tenantId"`
	Chain    ChainVerification            `json:"chain"`
	Finding  domain.TamperDetectionResult `json:"finding"`
	RaisedAt time.Time                    `json:"raisedAt"`
}

// VerifierOptions configures the periodic verification and retention pass
type VerifierOptions struct {
	Interval time.Duration
	// ArchiveAfterDays soft-archives older entries on every pass; zero disables archiving
	ArchiveAfterDays int
	// Purge removes entries past their retention on every pass
	Purge bool
}

// IntegrityVerifier periodically verifies every tenant chain and applies retention
type IntegrityVerifier struct {
	audit     *ImmutableAuditTrailService
	repo      ports.AuditRepository
	publisher ports.EventPublisher
	logger    logger.Logger
	opts      VerifierOptions

	mu     sync.Mutex
	alerts []TamperAlert
	// open holds the finding last alerted per tenant; a chain that verifies again clears it
	open map[string]string
}

// NewIntegrityVerifier creates a worker. publisher may be nil.
func NewIntegrityVerifier(audit *ImmutableAuditTrailService, repo ports.AuditRepository, publisher ports.EventPublisher, log logger.Logger, opts VerifierOptions) *IntegrityVerifier {
	if log == nil {
		log = logger.NewNopLogger()
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Hour
	}
	return &IntegrityVerifier{
		audit:     audit,
		repo:      repo,
		publisher: publisher,
		logger:    log,
		opts:      opts,
		open:      make(map[string]string),
	}
}

// Run starts the worker. It runs until the context is cancelled.
func (v *IntegrityVerifier) Run(ctx context.Context) {
	if v.audit == nil || v.repo == nil {
		v.logger.Info(ctx, "Integrity verifier disabled", nil)
		return
	}

	ticker := time.NewTicker(v.opts.Interval)
	defer ticker.Stop()

	v.logger.Info(ctx, "Integrity verifier started", map[string]interface{}{
		"interval":           v.opts.Interval.String(),
		"archive_after_days": v.opts.ArchiveAfterDays,
		"purge":              v.opts.Purge,
	})

	for {
		select {
		case <-ctx.Done():
			v.logger.Info(context.Background(), "Integrity verifier stopped", nil)
			return
		case <-ticker.C:
			if _, err := v.RunOnce(ctx); err != nil {
				v.logger.Error(ctx, "Integrity verifier pass failed", err, nil)
			}
		}
	}
}

// RunOnce verifies every tenant chain, then archives and purges. Retention is
// skipped while the trail is read-only. It returns the alerts raised by this pass; a
// finding already alerted for a tenant is not raised again until its chain verifies.
func (v *IntegrityVerifier) RunOnce(ctx context.Context) ([]TamperAlert, error) {
	tenants, err := v.tenants(ctx)
	if err != nil {
		return nil, err
	}

	var raised []TamperAlert
	for _, tenantID := range tenants {
		chain, err := v.audit.VerifyChain(ctx, tenantID)
		if err != nil {
			return raised, err
		}
		if chain.Valid {
			v.resolve(tenantID)
			continue
		}
		if !v.claim(tenantID, chain) {
			continue
		}
		alert, err := v.raise(ctx, tenantID, chain)
		if err != nil {
			v.resolve(tenantID)
			return raised, err
		}
		raised = append(raised, alert)
	}

	if v.audit.IsReadOnly() {
		return raised, nil
	}
	if v.opts.ArchiveAfterDays > 0 {
		if _, err := v.audit.ArchiveOldEntries(ctx, v.opts.ArchiveAfterDays); err != nil {
			return raised, err
		}
	}
	if v.opts.Purge {
		if _, err := v.audit.CleanupExpiredEntries(ctx); err != nil {
			return raised, err
		}
	}
	return raised, nil
}

// claim reports whether chain is a new finding for tenantID and marks it alerted
func (v *IntegrityVerifier) claim(tenantID string, chain ChainVerification) bool {
	key := chain.ErrorEntry + "|" + chain.Error
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.open[tenantID] == key {
		return false
	}
	v.open[tenantID] = key
	return true
}

func (v *IntegrityVerifier) resolve(tenantID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.open, tenantID)
}

// Alerts returns every alert raised since the worker was created
func (v *IntegrityVerifier) Alerts() []TamperAlert {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]TamperAlert(nil), v.alerts...)
}

func (v *IntegrityVerifier) tenants(ctx context.Context) ([]string, error) {
	entries, _, err := v.repo.Query(ctx, domain.AuditFilter{IncludeArchived: true})
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var tenants []string
	for _, e := range entries {
		if !seen[e.TenantID] {
			seen[e.TenantID] = true
			tenants = append(tenants, e.TenantID)
		}
	}
	sort.Strings(tenants)
	return tenants, nil
}

func (v *IntegrityVerifier) raise(ctx context.Context, tenantID string, chain ChainVerification) (TamperAlert, error) {
	alert := TamperAlert{
		TenantID: tenantID,
		Chain:    chain,
		Finding: domain.TamperDetectionResult{
			EntryID:    chain.ErrorEntry,
			IsTampered: true,
			Type:       domain.TamperChainBroken,
			Severity:   domain.TamperSeverityHigh,
			Details:    chain.Error,
		},
		RaisedAt: time.Now().UTC(),
	}

	if chain.ErrorEntry != "" {
		entry, err := v.repo.FindByID(ctx, chain.ErrorEntry)
		if err == nil {
			finding, err := v.audit.DetectTampering(ctx, entry)
			if err != nil {
				return alert, err
			}
			if finding.IsTampered {
				alert.Finding = finding
			}
		}
	}

	v.mu.Lock()
	v.alerts = append(v.alerts, alert)
	v.mu.Unlock()

	logger.LogSecurityEvent(ctx, v.logger, "audit_tamper_detected", string(alert.Finding.Severity), map[string]interface{}{
		"tenant_id": tenantID,
		"entry_id":  alert.Finding.EntryID,
		"type":      alert.Finding.Type,
		"details":   alert.Finding.Details,
	})

	if v.publisher != nil {
		event := ports.NewEvent(ports.EventTypeTamperDetected, ports.AggregateAudit, alert.Finding.EntryID, map[string]interface{}{
			"type":     alert.Finding.Type,
			"severity": alert.Finding.Severity,
			"details":  alert.Finding.Details,
		}, 1).WithActor("system", tenantID)
		if err := v.publisher.Publish(ctx, *event); err != nil {
			v.logger.Warn(ctx, "Failed to publish tamper alert", map[string]interface{}{
				"tenant_id": tenantID,
				"entry_id":  alert.Finding.EntryID,
				"error":     err.Error(),
			})
		}
	}
	return alert, nil
}
