package usecase

import (
	"context"
	"fmt"
	"strconv"

	"github.com/fixora/pim/internal/domain"
	"github.com/fixora/pim/internal/logger"
)

// AlertSource exposes tamper alerts raised by background verification
type AlertSource interface {
	Alerts() []TamperAlert
}

// AuditUseCase is the caller-facing surface of the audit trail: it scopes every
// query to the actor's tenant, checks audit permissions and records the
// administrative operations themselves.
type AuditUseCase struct {
	audit            *ImmutableAuditTrailService
	validator        *ValidationMiddleware
	alerts           AlertSource
	archiveAfterDays int
	logger           logger.Logger
}

// NewAuditUseCase creates an audit use case. alerts may be nil when no verifier runs.
func NewAuditUseCase(audit *ImmutableAuditTrailService, validator *ValidationMiddleware, alerts AlertSource, archiveAfterDays int, log logger.Logger) *AuditUseCase {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &AuditUseCase{
		audit:            audit,
		validator:        validator,
		alerts:           alerts,
		archiveAfterDays: archiveAfterDays,
		logger:           log,
	}
}

func (uc *AuditUseCase) check(ctx context.Context, actor domain.Actor, action domain.WorkflowAction) error {
	return uc.validator.Check(ctx, ValidationContext{
		UserID:    actor.UserID,
		UserRole:  actor.Role,
		UserEmail: actor.Email,
		Action:    action,
	})
}

// recordAdmin records an administrative audit operation. Failures are logged, the
// operation itself already happened.
func (uc *AuditUseCase) recordAdmin(ctx context.Context, actor domain.Actor, action domain.AuditAction, metadata map[string]string) {
	if uc.audit.IsReadOnly() {
		return
	}
	in := AuditInputFor(actor, action, SubjectAudit, "")
	in.Metadata = metadata
	if _, err := uc.audit.Record(ctx, in); err != nil {
		uc.logger.Warn(ctx, "Failed to record audit operation", map[string]interface{}{
			"action": action,
			"error":  err.Error(),
		})
	}
}

// ListEntries returns a page of the actor's tenant entries
func (uc *AuditUseCase) ListEntries(ctx context.Context, actor domain.Actor, filter domain.AuditFilter) (AuditPage, error) {
	if err := uc.check(ctx, actor, domain.ActionViewAudit); err != nil {
		return AuditPage{}, err
	}
	filter.TenantID = actor.TenantID
	return uc.audit.GetAuditEntries(ctx, filter)
}

// GetEntry returns one entry of the actor's tenant
func (uc *AuditUseCase) GetEntry(ctx context.Context, actor domain.Actor, id string) (domain.AuditTrailEntry, error) {
	if err := uc.check(ctx, actor, domain.ActionViewAudit); err != nil {
		return domain.AuditTrailEntry{}, err
	}
	return uc.tenantEntry(ctx, actor, id)
}

func (uc *AuditUseCase) tenantEntry(ctx context.Context, actor domain.Actor, id string) (domain.AuditTrailEntry, error) {
	entry, err := uc.audit.GetAuditEntry(ctx, id)
	if err != nil {
		return domain.AuditTrailEntry{}, fmt.Errorf("failed to get audit entry: %w", err)
	}
	if entry.TenantID != actor.TenantID {
		return domain.AuditTrailEntry{}, fmt.Errorf("failed to get audit entry: %w", domain.ErrAuditEntryNotFound)
	}
	return entry, nil
}

// ProductTrail returns the entries whose subject is productID
func (uc *AuditUseCase) ProductTrail(ctx context.Context, actor domain.Actor, productID string, filter domain.AuditFilter) (AuditPage, error) {
	if err := uc.check(ctx, actor, domain.ActionViewAudit); err != nil {
		return AuditPage{}, err
	}
	filter.TenantID = actor.TenantID
	return uc.audit.GetProductAuditTrail(ctx, productID, filter)
}

// UserTrail returns the entries performed by userID
func (uc *AuditUseCase) UserTrail(ctx context.Context, actor domain.Actor, userID string, filter domain.AuditFilter) (AuditPage, error) {
	if err := uc.check(ctx, actor, domain.ActionViewAudit); err != nil {
		return AuditPage{}, err
	}
	filter.TenantID = actor.TenantID
	return uc.audit.GetUserAuditTrail(ctx, userID, filter)
}

// Export renders the tenant's matching entries and records the export
func (uc *AuditUseCase) Export(ctx context.Context, actor domain.Actor, filter domain.AuditFilter, format string) ([]byte, error) {
	if err := uc.check(ctx, actor, domain.ActionExportAudit); err != nil {
		return nil, err
	}
	filter.TenantID = actor.TenantID
	data, err := uc.audit.ExportEntries(ctx, filter, format)
	if err != nil {
		return nil, err
	}
	if format == "" {
		format = ExportFormatJSON
	}
	uc.recordAdmin(ctx, actor, domain.AuditActionAuditExport, map[string]string{
		"format": format,
		"bytes":  strconv.Itoa(len(data)),
	})
	return data, nil
}

// Statistics summarizes the tenant's matching entries
func (uc *AuditUseCase) Statistics(ctx context.Context, actor domain.Actor, filter domain.AuditFilter) (AuditStatistics, error) {
	if err := uc.check(ctx, actor, domain.ActionViewAudit); err != nil {
		return AuditStatistics{}, err
	}
	filter.TenantID = actor.TenantID
	return uc.audit.GetStatistics(ctx, filter)
}

// VerifyEntry checks the digest and chain link of one entry
func (uc *AuditUseCase) VerifyEntry(ctx context.Context, actor domain.Actor, id string) (domain.IntegrityReport, error) {
	if err := uc.check(ctx, actor, domain.ActionViewAudit); err != nil {
		return domain.IntegrityReport{}, err
	}
	if _, err := uc.tenantEntry(ctx, actor, id); err != nil {
		return domain.IntegrityReport{}, err
	}
	return uc.audit.VerifyEntryIntegrity(ctx, id)
}

// DetectTampering classifies the stored entry id
func (uc *AuditUseCase) DetectTampering(ctx context.Context, actor domain.Actor, id string) (domain.TamperDetectionResult, error) {
	if err := uc.check(ctx, actor, domain.ActionViewAudit); err != nil {
		return domain.TamperDetectionResult{}, err
	}
	entry, err := uc.tenantEntry(ctx, actor, id)
	if err != nil {
		return domain.TamperDetectionResult{}, err
	}
	return uc.audit.DetectTampering(ctx, entry)
}

// VerifyChain walks the actor's tenant chain
func (uc *AuditUseCase) VerifyChain(ctx context.Context, actor domain.Actor) (ChainVerification, error) {
	if err := uc.check(ctx, actor, domain.ActionViewAudit); err != nil {
		return ChainVerification{}, err
	}
	return uc.audit.VerifyChain(ctx, actor.TenantID)
}

// Alerts returns the tamper alerts raised for the actor's tenant
func (uc *AuditUseCase) Alerts(ctx context.Context, actor domain.Actor) ([]TamperAlert, error) {
	if err := uc.check(ctx, actor, domain.ActionManageAudit); err != nil {
		return nil, err
	}
	alerts := []TamperAlert{}
	if uc.alerts == nil {
		return alerts, nil
	}
	for _, a := range uc.alerts.Alerts() {
		if a.TenantID == actor.TenantID {
			alerts = append(alerts, a)
		}
	}
	return alerts, nil
}

// Archive soft-archives entries older than days; zero uses the configured default
func (uc *AuditUseCase) Archive(ctx context.Context, actor domain.Actor, days int) (int, error) {
	if err := uc.check(ctx, actor, domain.ActionManageAudit); err != nil {
		return 0, err
	}
	if days == 0 {
		days = uc.archiveAfterDays
	}
	n, err := uc.audit.ArchiveOldEntries(ctx, days)
	if err != nil {
		return 0, err
	}
	uc.recordAdmin(ctx, actor, domain.AuditActionAuditArchive, map[string]string{
		"days":     strconv.Itoa(days),
		"archived": strconv.Itoa(n),
	})
	return n, nil
}

// Cleanup removes entries past their retention
func (uc *AuditUseCase) Cleanup(ctx context.Context, actor domain.Actor) (int, error) {
	if err := uc.check(ctx, actor, domain.ActionManageAudit); err != nil {
		return 0, err
	}
	n, err := uc.audit.CleanupExpiredEntries(ctx)
	if err != nil {
		return 0, err
	}
	uc.recordAdmin(ctx, actor, domain.AuditActionAuditCleanup, map[string]string{
		"removed": strconv.Itoa(n),
	})
	return n, nil
}

// SetReadOnly switches the trail in or out of read-only mode
func (uc *AuditUseCase) SetReadOnly(ctx context.Context, actor domain.Actor, enabled bool) (bool, error) {
	if err := uc.check(ctx, actor, domain.ActionManageAudit); err != nil {
		return uc.audit.IsReadOnly(), err
	}
	if enabled {
		uc.audit.EnableReadOnlyMode()
	} else {
		uc.audit.DisableReadOnlyMode()
	}
	logger.LogSecurityEvent(ctx, uc.logger, "audit_read_only_changed", "HIGH", map[string]interface{}{
		"user_id":   actor.UserID,
		"tenant_id": actor.TenantID,
		"read_only": enabled,
	})
	return uc.audit.IsReadOnly(), nil
}

// ReadOnly reports the current mode
func (uc *AuditUseCase) ReadOnly() bool {
	return uc.audit.IsReadOnly()
}
