package domain

import (
	"bytes"
	"testing"
	"time"
)

func TestClassifyPriority(t *testing.T) {
	tests := []struct {
		name     string
		action   AuditAction
		changes  []FieldChange
		expected AuditPriority
	}{
		{"delete is critical", AuditActionProductDelete, nil, AuditPriorityCritical},
		{"role change is critical", AuditActionUserRoleChange, nil, AuditPriorityCritical},
		{"permission revoke is critical", AuditActionPermissionRevoke, nil, AuditPriorityCritical},
		{"user delete is critical", AuditActionUserDelete, nil, AuditPriorityCritical},
		{"transition is high", AuditActionWorkflowTransition, nil, AuditPriorityHigh},
		{"bulk is high", AuditActionBulkOperation, nil, AuditPriorityHigh},
		{"reviewer assign is high", AuditActionReviewerAssign, nil, AuditPriorityHigh},
		{"price change is high", AuditActionProductUpdate, []FieldChange{{Field: "price", OldValue: 1.0, NewValue: 2.0}}, AuditPriorityHigh},
		{"description change is medium", AuditActionProductUpdate, []FieldChange{{Field: "description"}}, AuditPriorityMedium},
		{"create is medium", AuditActionProductCreate, nil, AuditPriorityMedium},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyPriority(tt.action, tt.changes); got != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestRetentionPolicy_Days(t *testing.T) {
	p := DefaultRetentionPolicy()
	if p.Days(AuditPriorityCritical) != 2555 {
		t.Errorf("Expected 2555 critical days, got %d", p.Days(AuditPriorityCritical))
	}
	if p.Days(AuditPriorityHigh) != 1095 {
		t.Errorf("Expected 1095 high days, got %d", p.Days(AuditPriorityHigh))
	}
	if p.Days(AuditPriorityMedium) != 365 {
		t.Errorf("Expected 365 medium days, got %d", p.Days(AuditPriorityMedium))
	}
}

func TestAuditTrailEntry_CloneIsDeep(t *testing.T) {
	e := AuditTrailEntry{
		ID:           "a1",
		FieldChanges: []FieldChange{{Field: "name", OldValue: "a", NewValue: "b"}},
		Metadata:     map[string]string{"k": "v"},
	}
	c := e.Clone()
	c.FieldChanges[0].Field = "price"
	c.Metadata["k"] = "changed"

	if e.FieldChanges[0].Field != "name" {
		t.Error("Expected clone field changes to be independent")
	}
	if e.Metadata["k"] != "v" {
		t.Error("Expected clone metadata to be independent")
	}
}

func TestAuditTrailEntry_DigestInputIgnoresBookkeeping(t *testing.T) {
	e := AuditTrailEntry{ID: "a1", Timestamp: time.Now(), ActorID: "u1", Action: AuditActionProductCreate}
	before := e.DigestInput()

	e.Archived = true
	e.ChainHash = "abc"
	e.IntegrityHash = "def"
	if !bytes.Equal(before, e.DigestInput()) {
		t.Error("Expected archive flag and hashes to be excluded from digest input")
	}

	e.Reason = "changed"
	if bytes.Equal(before, e.DigestInput()) {
		t.Error("Expected reason to be part of digest input")
	}
}

func TestAuditFilter_Matches(t *testing.T) {
	now := time.Now()
	e := AuditTrailEntry{
		ActorID:   "u1",
		Action:    AuditActionWorkflowTransition,
		SubjectID: "p1",
		Timestamp: now,
		Priority:  AuditPriorityHigh,
		Reason:    "Missing certification",
	}
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name     string
		filter   AuditFilter
		expected bool
	}{
		{"empty filter", AuditFilter{}, true},
		{"actor match", AuditFilter{ActorID: "u1"}, true},
		{"actor mismatch", AuditFilter{ActorID: "u2"}, false},
		{"action in list", AuditFilter{Actions: []AuditAction{AuditActionProductCreate, AuditActionWorkflowTransition}}, true},
		{"action not in list", AuditFilter{Actions: []AuditAction{AuditActionProductCreate}}, false},
		{"date range", AuditFilter{From: &past, To: &future}, true},
		{"after range", AuditFilter{To: &past}, false},
		{"priority", AuditFilter{Priority: AuditPriorityCritical}, false},
		{"reason case insensitive", AuditFilter{ReasonContains: "CERTIFICATION"}, true},
		{"reason absent", AuditFilter{ReasonContains: "price"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(e); got != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}

	e.Archived = true
	if (AuditFilter{}).Matches(e) {
		t.Error("Expected archived entries to be hidden by default")
	}
	if !(AuditFilter{IncludeArchived: true}).Matches(e) {
		t.Error("Expected archived entries to be included on request")
	}
}

func TestSortAuditEntries(t *testing.T) {
	base := time.Now()
	entries := []AuditTrailEntry{
		{ID: "1", Timestamp: base, Priority: AuditPriorityMedium, ActorID: "c"},
		{ID: "2", Timestamp: base.Add(time.Second), Priority: AuditPriorityCritical, ActorID: "a"},
		{ID: "3", Timestamp: base.Add(2 * time.Second), Priority: AuditPriorityHigh, ActorID: "b"},
	}

	SortAuditEntries(entries, SortByPriority, SortDesc)
	if entries[0].ID != "2" || entries[1].ID != "3" || entries[2].ID != "1" {
		t.Errorf("Unexpected priority order: %s %s %s", entries[0].ID, entries[1].ID, entries[2].ID)
	}

	SortAuditEntries(entries, SortByActor, SortAsc)
	if entries[0].ActorID != "a" || entries[2].ActorID != "c" {
		t.Error("Unexpected actor order")
	}

	SortAuditEntries(entries, SortByTimestamp, SortDesc)
	if entries[0].ID != "3" {
		t.Errorf("Expected newest first, got %s", entries[0].ID)
	}
}
