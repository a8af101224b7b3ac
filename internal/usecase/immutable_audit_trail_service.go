package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fixora/pim/internal/domain"
	"github.com/fixora/pim/internal/integrity"
	"github.com/fixora/pim/internal/logger"
)

// ChainVerification is the outcome of walking one tenant's hash chain
type ChainVerification struct {
	TenantID   string   `json:"tenantId"`
	Valid      bool     `json:"valid"`
	Entries    int      `json:"entries"`
	Error      string   `json:"error,omitempty"`
	ErrorEntry string   `json:"errorEntry,omitempty"`
	Warnings   []string `json:"warnings"`
}

// ImmutableOptions tunes timestamp anomaly detection
type ImmutableOptions struct {
	// ClockSkew is how far in the future a timestamp may lie before it is flagged
	ClockSkew time.Duration
	// MinEntryInterval flags entries appended closer together than this; zero disables it
	MinEntryInterval time.Duration
	ReadOnly         bool
}

// ImmutableAuditTrailService seals every entry into a per-tenant hash chain:
// chainHash = H(previousChainHash ":" integrityHash ":" id), starting from GENESIS.
type ImmutableAuditTrailService struct {
	*AuditTrailService

	mu       sync.Mutex
	readOnly atomic.Bool
	opts     ImmutableOptions
}

// NewImmutableAuditTrailService wraps base with hash chaining
func NewImmutableAuditTrailService(base *AuditTrailService, opts ImmutableOptions) *ImmutableAuditTrailService {
	s := &ImmutableAuditTrailService{AuditTrailService: base, opts: opts}
	s.readOnly.Store(opts.ReadOnly)
	return s
}

// Record implements AuditRecorder
func (s *ImmutableAuditTrailService) Record(ctx context.Context, in AuditInput) (domain.AuditTrailEntry, error) {
	return s.CreateImmutableEntry(ctx, in)
}

// CreateImmutableEntry creates an entry linked to the tail of its tenant chain
func (s *ImmutableAuditTrailService) CreateImmutableEntry(ctx context.Context, in AuditInput) (domain.AuditTrailEntry, error) {
	if s.IsReadOnly() {
		return domain.AuditTrailEntry{}, domain.ErrReadOnlyMode
	}

	entry, err := s.newEntry(in)
	if err != nil {
		return domain.AuditTrailEntry{}, err
	}
	entry.IntegrityHash = s.digester.Digest(entry.DigestInput())

	s.mu.Lock()
	defer s.mu.Unlock()
	// the mode may have flipped while the entry was being built
	if s.IsReadOnly() {
		return domain.AuditTrailEntry{}, domain.ErrReadOnlyMode
	}

	prev, ok, err := s.repo.Latest(ctx, entry.TenantID)
	if err != nil {
		return domain.AuditTrailEntry{}, fmt.Errorf("failed to read chain tail: %w", err)
	}
	entry.PreviousHash = integrity.GenesisHash
	if ok {
		entry.PreviousHash = prev.ChainHash
	}
	entry.ChainHash = s.chainHash(entry.PreviousHash, entry.IntegrityHash, entry.ID)

	if err := s.repo.Append(ctx, entry); err != nil {
		return domain.AuditTrailEntry{}, fmt.Errorf("failed to append audit entry: %w", err)
	}
	s.logCreated(ctx, entry)
	return entry.Clone(), nil
}

func (s *ImmutableAuditTrailService) chainHash(previous, integrityHash, id string) string {
	return s.digester.Digest(integrity.ChainInput(previous, integrityHash, id))
}

// ArchiveOldEntries is refused in read-only mode
func (s *ImmutableAuditTrailService) ArchiveOldEntries(ctx context.Context, days int) (int, error) {
	if s.IsReadOnly() {
		return 0, domain.ErrReadOnlyMode
	}
	return s.AuditTrailService.ArchiveOldEntries(ctx, days)
}

// CleanupExpiredEntries removes expired entries from the head of each chain only, so
// verification never meets a gap. It is refused in read-only mode.
func (s *ImmutableAuditTrailService) CleanupExpiredEntries(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.IsReadOnly() {
		return 0, domain.ErrReadOnlyMode
	}
	return s.cleanup(ctx, s.repo.Purge)
}

// EnableReadOnlyMode rejects further writes. It waits for an in-flight append, so no entry
// lands after it returns.
func (s *ImmutableAuditTrailService) EnableReadOnlyMode() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.readOnly.Swap(true) {
		s.logger.Warn(context.Background(), "Audit trail switched to read-only mode", nil)
	}
}

// DisableReadOnlyMode accepts writes again
func (s *ImmutableAuditTrailService) DisableReadOnlyMode() {
	if s.readOnly.Swap(false) {
		s.logger.Info(context.Background(), "Audit trail read-only mode disabled", nil)
	}
}

// IsReadOnly reports whether writes are rejected
func (s *ImmutableAuditTrailService) IsReadOnly() bool {
	return s.readOnly.Load()
}

// linkCheck is the result of resolving an entry's predecessor
type linkCheck struct {
	previous   *domain.AuditTrailEntry
	chainError string
	warning    string
}

// checkLink recomputes the chain hash and resolves the predecessor of entry
func (s *ImmutableAuditTrailService) checkLink(ctx context.Context, entry domain.AuditTrailEntry) (linkCheck, error) {
	var lc linkCheck
	if entry.ChainHash == "" || entry.PreviousHash == "" {
		lc.chainError = "chain hash mismatch: entry is not sealed into a chain"
		return lc, nil
	}
	if s.chainHash(entry.PreviousHash, entry.IntegrityHash, entry.ID) != entry.ChainHash {
		lc.chainError = "chain hash mismatch"
		return lc, nil
	}

	first, err := s.firstInChain(ctx, entry.TenantID)
	if err != nil {
		return lc, err
	}

	if entry.PreviousHash == integrity.GenesisHash {
		if first != entry.ID {
			lc.chainError = "chain hash mismatch: genesis link on an entry that does not start the chain"
		}
		return lc, nil
	}

	prev, err := s.repo.FindByChainHash(ctx, entry.TenantID, entry.PreviousHash)
	switch {
	case errors.Is(err, domain.ErrAuditEntryNotFound):
		if first == entry.ID {
			lc.warning = "previous entry is no longer retained"
		} else {
			lc.chainError = "chain hash mismatch: previous entry not found"
		}
		return lc, nil
	case err != nil:
		return lc, fmt.Errorf("failed to load previous entry: %w", err)
	}
	lc.previous = &prev
	return lc, nil
}

// chainEntries returns a tenant's entries in append order. An empty tenant ID is its
// own chain, so entries are matched exactly rather than through the filter.
func (s *ImmutableAuditTrailService) chainEntries(ctx context.Context, tenantID string) ([]domain.AuditTrailEntry, error) {
	all, _, err := s.repo.Query(ctx, domain.AuditFilter{TenantID: tenantID, IncludeArchived: true})
	if err != nil {
		return nil, err
	}
	entries := all[:0]
	for _, e := range all {
		if e.TenantID == tenantID {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

func (s *ImmutableAuditTrailService) firstInChain(ctx context.Context, tenantID string) (string, error) {
	entries, err := s.chainEntries(ctx, tenantID)
	if err != nil {
		return "", fmt.Errorf("failed to load chain head: %w", err)
	}
	if len(entries) == 0 {
		return "", nil
	}
	return entries[0].ID, nil
}

// timestampFindings returns warnings about the entry's timestamp relative to now and its predecessor
func (s *ImmutableAuditTrailService) timestampFindings(entry domain.AuditTrailEntry, prev *domain.AuditTrailEntry) []string {
	var findings []string
	if entry.Timestamp.After(s.now().Add(s.opts.ClockSkew)) {
		findings = append(findings, fmt.Sprintf("timestamp %s is in the future", entry.Timestamp.Format(time.RFC3339Nano)))
	}
	if prev != nil {
		gap := entry.Timestamp.Sub(prev.Timestamp)
		if gap < 0 {
			findings = append(findings, fmt.Sprintf("timestamp precedes previous entry %s", prev.ID))
		} else if s.opts.MinEntryInterval > 0 && gap < s.opts.MinEntryInterval {
			findings = append(findings, fmt.Sprintf("entry created %s after previous entry, below the %s minimum", gap, s.opts.MinEntryInterval))
		}
	}
	return findings
}

// VerifyEntryIntegrity recomputes the digest and chain link of a stored entry
func (s *ImmutableAuditTrailService) VerifyEntryIntegrity(ctx context.Context, id string) (domain.IntegrityReport, error) {
	entry, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return domain.IntegrityReport{}, err
	}

	report := domain.IntegrityReport{EntryID: id, IsValid: true, Errors: []string{}, Warnings: []string{}}
	if !s.hashMatches(entry) {
		report.Errors = append(report.Errors, "hash mismatch")
	}

	lc, err := s.checkLink(ctx, entry)
	if err != nil {
		return domain.IntegrityReport{}, err
	}
	if lc.chainError != "" {
		report.Errors = append(report.Errors, lc.chainError)
	}
	if lc.warning != "" {
		report.Warnings = append(report.Warnings, lc.warning)
	}
	report.Warnings = append(report.Warnings, s.timestampFindings(entry, lc.previous)...)

	report.IsValid = len(report.Errors) == 0
	return report, nil
}

// DetectTampering compares entry against what its hashes promise. The stored copy's
// integrity hash is authoritative when the entry exists in the store.
// Severity order: hash mismatch > timestamp anomaly > broken chain.
func (s *ImmutableAuditTrailService) DetectTampering(ctx context.Context, entry domain.AuditTrailEntry) (domain.TamperDetectionResult, error) {
	result := domain.TamperDetectionResult{
		EntryID:    entry.ID,
		Type:       domain.TamperNone,
		Severity:   domain.TamperSeverityNone,
		DetectedAt: s.now(),
	}

	expected := entry.IntegrityHash
	stored, err := s.repo.FindByID(ctx, entry.ID)
	switch {
	case err == nil:
		expected = stored.IntegrityHash
	case !errors.Is(err, domain.ErrAuditEntryNotFound):
		return result, err
	}

	if actual := s.digester.Digest(entry.DigestInput()); expected == "" || actual != expected {
		result.IsTampered = true
		result.Type = domain.TamperHashMismatch
		result.Severity = domain.TamperSeverityCritical
		result.Details = fmt.Sprintf("recomputed digest %s does not match recorded %s", actual, expected)
		return result, nil
	}

	lc, err := s.checkLink(ctx, entry)
	if err != nil {
		return result, err
	}

	if findings := s.timestampFindings(entry, lc.previous); len(findings) > 0 && !s.onlyIntervalFinding(entry, lc.previous) {
		result.IsTampered = true
		result.Type = domain.TamperTimestampAnomaly
		result.Severity = domain.TamperSeverityHigh
		result.Details = findings[0]
		return result, nil
	}

	if lc.chainError != "" {
		result.IsTampered = true
		result.Type = domain.TamperChainBroken
		result.Severity = domain.TamperSeverityHigh
		result.Details = lc.chainError
	}
	return result, nil
}

// onlyIntervalFinding reports whether the sole timestamp finding is a short interval,
// which is suspicious but not evidence of tampering
func (s *ImmutableAuditTrailService) onlyIntervalFinding(entry domain.AuditTrailEntry, prev *domain.AuditTrailEntry) bool {
	if entry.Timestamp.After(s.now().Add(s.opts.ClockSkew)) {
		return false
	}
	return prev == nil || !entry.Timestamp.Before(prev.Timestamp)
}

// VerifyChain walks a tenant's chain in append order and reports the first broken link
func (s *ImmutableAuditTrailService) VerifyChain(ctx context.Context, tenantID string) (ChainVerification, error) {
	start := time.Now()
	entries, err := s.chainEntries(ctx, tenantID)
	if err != nil {
		return ChainVerification{}, fmt.Errorf("failed to load chain: %w", err)
	}

	result := ChainVerification{TenantID: tenantID, Warnings: []string{}}
	prevHash := integrity.GenesisHash
	for i := range entries {
		e := entries[i]
		result.Entries++

		if i == 0 && e.PreviousHash != integrity.GenesisHash && e.PreviousHash != "" {
			result.Warnings = append(result.Warnings, "chain starts after entries that are no longer retained")
			prevHash = e.PreviousHash
		}
		if !s.hashMatches(e) {
			return s.chainFailure(result, e.ID, "hash mismatch"), nil
		}
		if e.PreviousHash != prevHash {
			return s.chainFailure(result, e.ID, fmt.Sprintf("chain hash mismatch: expected previous %s, got %s", prevHash, e.PreviousHash)), nil
		}
		if s.chainHash(prevHash, e.IntegrityHash, e.ID) != e.ChainHash {
			return s.chainFailure(result, e.ID, "chain hash mismatch"), nil
		}
		prevHash = e.ChainHash
	}

	result.Valid = true
	logger.LogPerformance(ctx, s.logger, "audit_verify_chain", time.Since(start), map[string]interface{}{
		"tenant_id": tenantID,
		"entries":   result.Entries,
	})
	return result, nil
}

func (s *ImmutableAuditTrailService) chainFailure(result ChainVerification, entryID, msg string) ChainVerification {
	result.Valid = false
	result.Error = msg
	result.ErrorEntry = entryID
	return result
}
