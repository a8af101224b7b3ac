package usecase

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fixora/pim/internal/domain"
	"github.com/fixora/pim/internal/integrity"
	"github.com/fixora/pim/internal/logger"
	"github.com/fixora/pim/internal/ports"
)

// Audit query pagination limits
const (
	DefaultAuditLimit = 50
	MaxAuditLimit     = 500
)

// Audit subject types
const (
	SubjectProduct = "product"
	SubjectUser    = "user"
	SubjectAudit   = "audit"
)

// Export formats
const (
	ExportFormatJSON = "json"
	ExportFormatCSV  = "csv"
)

// AuditInput describes a permitted action to be recorded
type AuditInput struct {
	TenantID     string               `json:"tenantId,omitempty"`
	ActorID      string               `json:"actorId"`
	ActorRole    domain.UserRole      `json:"actorRole"`
	ActorEmail   string               `json:"actorEmail"`
	Action       domain.AuditAction   `json:"action"`
	SubjectType  string               `json:"subjectType,omitempty"`
	SubjectID    string               `json:"subjectId,omitempty"`
	FieldChanges []domain.FieldChange `json:"fieldChanges,omitempty"`
	Reason       string               `json:"reason,omitempty"`
	Metadata     map[string]string    `json:"metadata,omitempty"`
}

// AuditInputFor starts an input attributed to actor
func AuditInputFor(actor domain.Actor, action domain.AuditAction, subjectType, subjectID string) AuditInput {
	return AuditInput{
		TenantID:    actor.TenantID,
		ActorID:     actor.UserID,
		ActorRole:   actor.Role,
		ActorEmail:  actor.Email,
		Action:      action,
		SubjectType: subjectType,
		SubjectID:   subjectID,
	}
}

// AuditRecorder is implemented by both audit services; use cases record through it
type AuditRecorder interface {
	Record(ctx context.Context, in AuditInput) (domain.AuditTrailEntry, error)
}

// AuditPage is one page of audit query results
type AuditPage struct {
	Entries []domain.AuditTrailEntry `json:"entries"`
	Total   int                      `json:"total"`
	Limit   int                      `json:"limit"`
	Offset  int                      `json:"offset"`
}

// AuditStatistics summarizes the entries matching a filter
type AuditStatistics struct {
	Total      int                          `json:"total"`
	Archived   int                          `json:"archived"`
	ByAction   map[domain.AuditAction]int   `json:"byAction"`
	ByPriority map[domain.AuditPriority]int `json:"byPriority"`
	ByActor    map[string]int               `json:"byActor"`
	Oldest     *time.Time                   `json:"oldest,omitempty"`
	Newest     *time.Time                   `json:"newest,omitempty"`
}

// IntegrityScanResult is the outcome of a full digest recomputation
type IntegrityScanResult struct {
	Algorithm  string    `json:"algorithm"`
	Checked    int       `json:"checked"`
	Valid      int       `json:"valid"`
	InvalidIDs []string  `json:"invalidIds"`
	CheckedAt  time.Time `json:"checkedAt"`
}

// AuditTrailService records and queries audit entries
type AuditTrailService struct {
	repo      ports.AuditRepository
	digester  integrity.Digester
	retention domain.RetentionPolicy
	logger    logger.Logger
	now       func() time.Time
}

// NewAuditTrailService creates an audit trail service over repo
func NewAuditTrailService(repo ports.AuditRepository, digester integrity.Digester, retention domain.RetentionPolicy, log logger.Logger) *AuditTrailService {
	if digester == nil {
		digester = integrity.SHA256Digester{}
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	if !digester.Cryptographic() {
		log.Warn(context.Background(), "Audit digest algorithm is not tamper resistant", map[string]interface{}{
			"algorithm": digester.Name(),
		})
	}
	return &AuditTrailService{
		repo:      repo,
		digester:  digester,
		retention: retention,
		logger:    log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Digester returns the configured digest algorithm
func (s *AuditTrailService) Digester() integrity.Digester {
	return s.digester
}

// Record implements AuditRecorder
func (s *AuditTrailService) Record(ctx context.Context, in AuditInput) (domain.AuditTrailEntry, error) {
	return s.CreateAuditEntry(ctx, in)
}

// CreateAuditEntry assigns id, timestamp, priority, retention and integrity hash, then appends.
// It performs no permission or legality checks.
func (s *AuditTrailService) CreateAuditEntry(ctx context.Context, in AuditInput) (domain.AuditTrailEntry, error) {
	entry, err := s.newEntry(in)
	if err != nil {
		return domain.AuditTrailEntry{}, err
	}
	entry.IntegrityHash = s.digester.Digest(entry.DigestInput())

	if err := s.repo.Append(ctx, entry); err != nil {
		return domain.AuditTrailEntry{}, fmt.Errorf("failed to append audit entry: %w", err)
	}
	s.logCreated(ctx, entry)
	return entry.Clone(), nil
}

func (s *AuditTrailService) newEntry(in AuditInput) (domain.AuditTrailEntry, error) {
	if in.Action == "" {
		return domain.AuditTrailEntry{}, newValidationError(domain.ErrValidationFailed, "Audit action is required")
	}
	if strings.TrimSpace(in.ActorID) == "" {
		return domain.AuditTrailEntry{}, newValidationError(domain.ErrValidationFailed, "Audit actor is required")
	}

	// stores keep microsecond precision; the digest must survive a round trip
	now := s.now().Truncate(time.Microsecond)
	priority := domain.ClassifyPriority(in.Action, in.FieldChanges)
	days := s.retention.Days(priority)

	var metadata map[string]string
	if len(in.Metadata) > 0 {
		metadata = make(map[string]string, len(in.Metadata))
		for k, v := range in.Metadata {
			metadata[k] = v
		}
	}

	return domain.AuditTrailEntry{
		ID:            uuid.NewString(),
		TenantID:      in.TenantID,
		Timestamp:     now,
		ActorID:       in.ActorID,
		ActorRole:     in.ActorRole,
		ActorEmail:    in.ActorEmail,
		Action:        in.Action,
		SubjectType:   in.SubjectType,
		SubjectID:     in.SubjectID,
		FieldChanges:  append([]domain.FieldChange{}, in.FieldChanges...),
		Reason:        strings.TrimSpace(in.Reason),
		Priority:      priority,
		Metadata:      metadata,
		RetentionDays: days,
		ExpiresAt:     now.AddDate(0, 0, days),
	}, nil
}

func (s *AuditTrailService) logCreated(ctx context.Context, entry domain.AuditTrailEntry) {
	s.logger.Debug(ctx, "Audit entry created", map[string]interface{}{
		"entry_id":   entry.ID,
		"action":     entry.Action,
		"priority":   entry.Priority,
		"actor_id":   entry.ActorID,
		"subject_id": entry.SubjectID,
	})
}

// GetAuditEntries returns one page of entries matching filter
func (s *AuditTrailService) GetAuditEntries(ctx context.Context, filter domain.AuditFilter) (AuditPage, error) {
	if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
		return AuditPage{}, domain.ErrInvalidDateRange
	}
	if filter.Limit <= 0 {
		filter.Limit = DefaultAuditLimit
	}
	if filter.Limit > MaxAuditLimit {
		filter.Limit = MaxAuditLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	entries, total, err := s.repo.Query(ctx, filter)
	if err != nil {
		return AuditPage{}, fmt.Errorf("failed to query audit entries: %w", err)
	}
	return AuditPage{Entries: entries, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

// GetAuditEntry returns a single entry, including archived ones
func (s *AuditTrailService) GetAuditEntry(ctx context.Context, id string) (domain.AuditTrailEntry, error) {
	entry, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return domain.AuditTrailEntry{}, err
	}
	return entry, nil
}

// GetProductAuditTrail returns entries whose subject is the product
func (s *AuditTrailService) GetProductAuditTrail(ctx context.Context, productID string, filter domain.AuditFilter) (AuditPage, error) {
	if productID == "" {
		return AuditPage{}, fmt.Errorf("product ID is required")
	}
	filter.SubjectID = productID
	filter.SubjectType = SubjectProduct
	return s.GetAuditEntries(ctx, filter)
}

// GetUserAuditTrail returns entries performed by the user
func (s *AuditTrailService) GetUserAuditTrail(ctx context.Context, userID string, filter domain.AuditFilter) (AuditPage, error) {
	if userID == "" {
		return AuditPage{}, fmt.Errorf("user ID is required")
	}
	filter.ActorID = userID
	return s.GetAuditEntries(ctx, filter)
}

// ExportEntries renders every entry matching filter as json or csv. A positive
// filter.Limit caps the export.
func (s *AuditTrailService) ExportEntries(ctx context.Context, filter domain.AuditFilter, format string) ([]byte, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = ExportFormatJSON
	}
	if format != ExportFormatJSON && format != ExportFormatCSV {
		return nil, domain.ErrUnsupportedFormat
	}
	if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
		return nil, domain.ErrInvalidDateRange
	}

	entries, _, err := s.repo.Query(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}

	if format == ExportFormatJSON {
		data, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to encode audit export: %w", err)
		}
		return data, nil
	}
	return encodeAuditCSV(entries)
}

var auditCSVHeader = []string{
	"id", "timestamp", "tenant_id", "actor_id", "actor_role", "actor_email", "action",
	"subject_type", "subject_id", "priority", "reason", "field_changes", "archived", "integrity_hash", "chain_hash",
}

func encodeAuditCSV(entries []domain.AuditTrailEntry) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(auditCSVHeader); err != nil {
		return nil, err
	}
	for _, e := range entries {
		changes, err := json.Marshal(e.FieldChanges)
		if err != nil {
			return nil, fmt.Errorf("failed to encode field changes for %s: %w", e.ID, err)
		}
		record := []string{
			e.ID,
			e.Timestamp.UTC().Format(time.RFC3339Nano),
			e.TenantID,
			e.ActorID,
			string(e.ActorRole),
			e.ActorEmail,
			string(e.Action),
			e.SubjectType,
			e.SubjectID,
			string(e.Priority),
			e.Reason,
			string(changes),
			fmt.Sprintf("%t", e.Archived),
			e.IntegrityHash,
			e.ChainHash,
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GetStatistics counts the entries matching filter, archived ones included
func (s *AuditTrailService) GetStatistics(ctx context.Context, filter domain.AuditFilter) (AuditStatistics, error) {
	filter.IncludeArchived = true
	filter.Limit = 0
	filter.Offset = 0

	entries, _, err := s.repo.Query(ctx, filter)
	if err != nil {
		return AuditStatistics{}, fmt.Errorf("failed to query audit entries: %w", err)
	}

	stats := AuditStatistics{
		ByAction:   make(map[domain.AuditAction]int),
		ByPriority: make(map[domain.AuditPriority]int),
		ByActor:    make(map[string]int),
	}
	for i := range entries {
		e := entries[i]
		stats.Total++
		if e.Archived {
			stats.Archived++
		}
		stats.ByAction[e.Action]++
		stats.ByPriority[e.Priority]++
		stats.ByActor[e.ActorID]++
		if stats.Oldest == nil || e.Timestamp.Before(*stats.Oldest) {
			t := e.Timestamp
			stats.Oldest = &t
		}
		if stats.Newest == nil || e.Timestamp.After(*stats.Newest) {
			t := e.Timestamp
			stats.Newest = &t
		}
	}
	return stats, nil
}

// ArchiveOldEntries soft-archives entries older than days. Already archived entries are
// left alone, so a repeated call returns 0.
func (s *AuditTrailService) ArchiveOldEntries(ctx context.Context, days int) (int, error) {
	if days <= 0 {
		return 0, domain.ErrInvalidRetention
	}
	now := s.now()
	cutoff := now.AddDate(0, 0, -days)

	n, err := s.repo.Archive(ctx, cutoff, now)
	if err != nil {
		return 0, fmt.Errorf("failed to archive audit entries: %w", err)
	}
	s.logger.Info(ctx, "Audit entries archived", map[string]interface{}{
		"archived": n,
		"cutoff":   cutoff.Format(time.RFC3339),
	})
	return n, nil
}

// CleanupExpiredEntries physically removes every entry past its retention
func (s *AuditTrailService) CleanupExpiredEntries(ctx context.Context) (int, error) {
	return s.cleanup(ctx, s.repo.PurgeAll)
}

func (s *AuditTrailService) cleanup(ctx context.Context, purge func(context.Context, time.Time) (int, error)) (int, error) {
	n, err := purge(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to purge audit entries: %w", err)
	}
	if n > 0 {
		s.logger.Info(ctx, "Expired audit entries removed", map[string]interface{}{
			"removed": n,
		})
	}
	return n, nil
}

// VerifyIntegrity recomputes the digest of every stored entry
func (s *AuditTrailService) VerifyIntegrity(ctx context.Context) (IntegrityScanResult, error) {
	start := time.Now()
	entries, _, err := s.repo.Query(ctx, domain.AuditFilter{IncludeArchived: true})
	if err != nil {
		return IntegrityScanResult{}, fmt.Errorf("failed to load audit entries: %w", err)
	}

	result := IntegrityScanResult{
		Algorithm:  s.digester.Name(),
		InvalidIDs: []string{},
		CheckedAt:  s.now(),
	}
	for i := range entries {
		result.Checked++
		if s.hashMatches(entries[i]) {
			result.Valid++
			continue
		}
		result.InvalidIDs = append(result.InvalidIDs, entries[i].ID)
	}
	sort.Strings(result.InvalidIDs)

	logger.LogPerformance(ctx, s.logger, "audit_verify_integrity", time.Since(start), map[string]interface{}{
		"checked": result.Checked,
		"invalid": len(result.InvalidIDs),
	})
	return result, nil
}

func (s *AuditTrailService) hashMatches(entry domain.AuditTrailEntry) bool {
	return entry.IntegrityHash != "" && s.digester.Digest(entry.DigestInput()) == entry.IntegrityHash
}
