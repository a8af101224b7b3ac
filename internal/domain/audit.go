package domain

import (
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// AuditAction identifies what an audit entry records
type AuditAction string

const (
	AuditActionProductCreate      AuditAction = "PRODUCT_CREATE"
	AuditActionProductUpdate      AuditAction = "PRODUCT_UPDATE"
	AuditActionProductDelete      AuditAction = "PRODUCT_DELETE"
	AuditActionWorkflowTransition AuditAction = "WORKFLOW_TRANSITION"
	AuditActionReviewerAssign     AuditAction = "REVIEWER_ASSIGN"
	AuditActionBulkOperation      AuditAction = "BULK_OPERATION"
	AuditActionUserCreate         AuditAction = "USER_CREATE"
	AuditActionUserRoleChange     AuditAction = "USER_ROLE_CHANGE"
	AuditActionUserDelete         AuditAction = "USER_DELETE"
	AuditActionPermissionRevoke   AuditAction = "PERMISSION_REVOKE"
	AuditActionAuditArchive       AuditAction = "AUDIT_ARCHIVE"
	AuditActionAuditCleanup       AuditAction = "AUDIT_CLEANUP"
	AuditActionAuditExport        AuditAction = "AUDIT_EXPORT"
)

// AuditPriority classifies how important an audit entry is
type AuditPriority string

const (
	AuditPriorityCritical AuditPriority = "CRITICAL"
	AuditPriorityHigh     AuditPriority = "HIGH"
	AuditPriorityMedium   AuditPriority = "MEDIUM"
)

// Rank orders priorities; higher is more important
func (p AuditPriority) Rank() int {
	switch p {
	case AuditPriorityCritical:
		return 3
	case AuditPriorityHigh:
		return 2
	case AuditPriorityMedium:
		return 1
	}
	return 0
}

// SensitiveFields are product/user attributes whose change raises an entry to HIGH
var SensitiveFields = map[string]bool{
	"price":         true,
	"status":        true,
	"workflowState": true,
	"sku":           true,
	"role":          true,
}

// ClassifyPriority computes the priority of an entry from its action and field changes
func ClassifyPriority(action AuditAction, changes []FieldChange) AuditPriority {
	switch action {
	case AuditActionProductDelete, AuditActionUserDelete, AuditActionUserRoleChange, AuditActionPermissionRevoke:
		return AuditPriorityCritical
	case AuditActionWorkflowTransition, AuditActionBulkOperation, AuditActionReviewerAssign:
		return AuditPriorityHigh
	}
	for _, c := range changes {
		if SensitiveFields[c.Field] {
			return AuditPriorityHigh
		}
	}
	return AuditPriorityMedium
}

// RetentionPolicy maps priorities to retention windows in days
type RetentionPolicy struct {
	CriticalDays int `json:"criticalDays" yaml:"criticalDays"`
	HighDays     int `json:"highDays" yaml:"highDays"`
	MediumDays   int `json:"mediumDays" yaml:"mediumDays"`
}

// DefaultRetentionPolicy keeps critical entries seven years, high three, medium one
func DefaultRetentionPolicy() RetentionPolicy {
	return RetentionPolicy{CriticalDays: 2555, HighDays: 1095, MediumDays: 365}
}

// Days returns the retention window for a priority
func (r RetentionPolicy) Days(p AuditPriority) int {
	switch p {
	case AuditPriorityCritical:
		return r.CriticalDays
	case AuditPriorityHigh:
		return r.HighDays
	default:
		return r.MediumDays
	}
}

// FieldChange records one mutated attribute
type FieldChange struct {
	Field    string `json:"field"`
	OldValue any    `json:"oldValue"`
	NewValue any    `json:"newValue"`
}

// AuditTrailEntry is an immutable record of one permitted action
type AuditTrailEntry struct {
	ID            string            `json:"id"`
	TenantID      string            `json:"tenantId,omitempty"`
	Timestamp     time.Time         `json:"timestamp"`
	ActorID       string            `json:"actorId"`
	ActorRole     UserRole          `json:"actorRole"`
	ActorEmail    string            `json:"actorEmail"`
	Action        AuditAction       `json:"action"`
	SubjectType   string            `json:"subjectType,omitempty"`
	SubjectID     string            `json:"subjectId,omitempty"`
	FieldChanges  []FieldChange     `json:"fieldChanges"`
	Reason        string            `json:"reason,omitempty"`
	Priority      AuditPriority     `json:"priority"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	IntegrityHash string            `json:"integrityHash,omitempty"`
	ChainHash     string            `json:"chainHash,omitempty"`
	PreviousHash  string            `json:"previousHash,omitempty"`
	Archived      bool              `json:"archived"`
	ArchivedAt    *time.Time        `json:"archivedAt,omitempty"`
	RetentionDays int               `json:"retentionDays"`
	ExpiresAt     time.Time         `json:"expiresAt"`
}

// Clone returns a deep copy so stored entries cannot be mutated through a returned value
func (e AuditTrailEntry) Clone() AuditTrailEntry {
	c := e
	c.FieldChanges = append([]FieldChange(nil), e.FieldChanges...)
	if e.Metadata != nil {
		c.Metadata = make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			c.Metadata[k] = v
		}
	}
	if e.ArchivedAt != nil {
		t := *e.ArchivedAt
		c.ArchivedAt = &t
	}
	return c
}

// DigestInput returns the canonical bytes the integrity hash is computed over.
// Archive state, hashes and retention bookkeeping are excluded.
func (e AuditTrailEntry) DigestInput() []byte {
	payload := struct {
		ID           string            `json:"id"`
		TenantID     string            `json:"tenantId"`
		Timestamp    string            `json:"timestamp"`
		ActorID      string            `json:"actorId"`
		ActorRole    UserRole          `json:"actorRole"`
		ActorEmail   string            `json:"actorEmail"`
		Action       AuditAction       `json:"action"`
		SubjectType  string            `json:"subjectType"`
		SubjectID    string            `json:"subjectId"`
		FieldChanges []FieldChange     `json:"fieldChanges"`
		Reason       string            `json:"reason"`
		Priority     AuditPriority     `json:"priority"`
		Metadata     map[string]string `json:"metadata"`
	}{
		ID:           e.ID,
		TenantID:     e.TenantID,
		Timestamp:    e.Timestamp.UTC().Format(time.RFC3339Nano),
		ActorID:      e.ActorID,
		ActorRole:    e.ActorRole,
		ActorEmail:   e.ActorEmail,
		Action:       e.Action,
		SubjectType:  e.SubjectType,
		SubjectID:    e.SubjectID,
		FieldChanges: e.FieldChanges,
		Reason:       e.Reason,
		Priority:     e.Priority,
		Metadata:     e.Metadata,
	}
	// encoding/json sorts map keys, so the output is deterministic
	b, err := json.Marshal(payload)
	if err != nil {
		return []byte(e.ID)
	}
	return b
}

// SortField names the attribute audit queries may sort by
type SortField string

const (
	SortByTimestamp SortField = "timestamp"
	SortByPriority  SortField = "priority"
	SortByAction    SortField = "action"
	SortByActor     SortField = "actorId"
)

// SortOrder is ascending or descending
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// AuditFilter represents filters for querying the audit trail
type AuditFilter struct {
	TenantID        string        `json:"tenantId,omitempty"`
	ActorID         string        `json:"actorId,omitempty"`
	Actions         []AuditAction `json:"actions,omitempty"`
	SubjectID       string        `json:"subjectId,omitempty"`
	SubjectType     string        `json:"subjectType,omitempty"`
	From            *time.Time    `json:"from,omitempty"`
	To              *time.Time    `json:"to,omitempty"`
	Priority        AuditPriority `json:"priority,omitempty"`
	ReasonContains  string        `json:"reasonContains,omitempty"`
	IncludeArchived bool          `json:"includeArchived"`
	SortBy          SortField     `json:"sortBy,omitempty"`
	SortOrder       SortOrder     `json:"sortOrder,omitempty"`
	Limit           int           `json:"limit"`
	Offset          int           `json:"offset"`
}

// Matches reports whether the entry satisfies every set criterion (sorting and paging ignored)
func (f AuditFilter) Matches(e AuditTrailEntry) bool {
	if f.TenantID != "" && e.TenantID != f.TenantID {
		return false
	}
	if f.ActorID != "" && e.ActorID != f.ActorID {
		return false
	}
	if len(f.Actions) > 0 {
		found := false
		for _, a := range f.Actions {
			if a == e.Action {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.SubjectID != "" && e.SubjectID != f.SubjectID {
		return false
	}
	if f.SubjectType != "" && e.SubjectType != f.SubjectType {
		return false
	}
	if f.From != nil && e.Timestamp.Before(*f.From) {
		return false
	}
	if f.To != nil && e.Timestamp.After(*f.To) {
		return false
	}
	if f.Priority != "" && e.Priority != f.Priority {
		return false
	}
	if f.ReasonContains != "" && !strings.Contains(strings.ToLower(e.Reason), strings.ToLower(f.ReasonContains)) {
		return false
	}
	if !f.IncludeArchived && e.Archived {
		return false
	}
	return true
}

// SortAuditEntries sorts entries in place. An empty field keeps append order.
func SortAuditEntries(entries []AuditTrailEntry, field SortField, order SortOrder) {
	if field == "" {
		if order == SortDesc {
			for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
				entries[i], entries[j] = entries[j], entries[i]
			}
		}
		return
	}
	less := func(a, b AuditTrailEntry) bool {
		switch field {
		case SortByPriority:
			return a.Priority.Rank() < b.Priority.Rank()
		case SortByAction:
			return a.Action < b.Action
		case SortByActor:
			return a.ActorID < b.ActorID
		default:
			return a.Timestamp.Before(b.Timestamp)
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if order == SortDesc {
			return less(entries[j], entries[i])
		}
		return less(entries[i], entries[j])
	})
}

// TamperType classifies a tamper finding
type TamperType string

const (
	TamperNone             TamperType = "NONE"
	TamperHashMismatch     TamperType = "HASH_MISMATCH"
	TamperTimestampAnomaly TamperType = "TIMESTAMP_ANOMALY"
	TamperChainBroken      TamperType = "CHAIN_BROKEN"
)

// TamperSeverity ranks a tamper finding
type TamperSeverity string

const (
	TamperSeverityNone     TamperSeverity = "NONE"
	TamperSeverityHigh     TamperSeverity = "HIGH"
	TamperSeverityCritical TamperSeverity = "CRITICAL"
)

// TamperDetectionResult is derived on demand by comparing recomputed hashes with stored ones
type TamperDetectionResult struct {
	EntryID    string         `json:"entryId"`
	IsTampered bool           `json:"isTampered"`
	Type       TamperType     `json:"type"`
	Severity   TamperSeverity `json:"severity"`
	Details    string         `json:"details,omitempty"`
	DetectedAt time.Time      `json:"detectedAt"`
}

// IntegrityReport is the outcome of verifying one audit entry
type IntegrityReport struct {
	EntryID  string   `json:"entryId"`
	IsValid  bool     `json:"isValid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}
