package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fixora/pim/internal/domain"
	"github.com/fixora/pim/internal/integrity"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

var auditColumnNames = []string{
	"id", "tenant_id", "occurred_at", "actor_id", "actor_role", "actor_email", "action", "subject_type", "subject_id",
	"field_changes", "reason", "priority", "metadata", "integrity_hash", "chain_hash", "previous_hash", "archived",
	"archived_at", "retention_days", "expires_at",
}

func sampleAuditEntry() domain.AuditTrailEntry {
	ts := time.Date(2025, 3, 1, 9, 0, 0, 123456000, time.UTC)
	e := domain.AuditTrailEntry{
		ID:          "5f0c6f5e-0000-4000-8000-000000000001",
		TenantID:    "acme",
		Timestamp:   ts,
		ActorID:     "editor-1",
		ActorRole:   domain.UserRoleEditor,
		ActorEmail:  "editor@acme.test",
		Action:      domain.AuditActionProductUpdate,
		SubjectType: "product",
		SubjectID:   "product-1",
		FieldChanges: []domain.FieldChange{
			{Field: "price", OldValue: 89.9, NewValue: 79.9},
			{Field: "workflowState", OldValue: domain.WorkflowStateRejected, NewValue: domain.WorkflowStateDraft},
		},
		Reason:        "added size chart",
		Priority:      domain.AuditPriorityHigh,
		RetentionDays: 1095,
		ExpiresAt:     ts.AddDate(0, 0, 1095),
		PreviousHash:  integrity.GenesisHash,
	}
	d := integrity.SHA256Digester{}
	e.IntegrityHash = d.Digest(e.DigestInput())
	e.ChainHash = d.Digest(integrity.ChainInput(e.PreviousHash, e.IntegrityHash, e.ID))
	return e
}

func auditRow(t *testing.T, rows *sqlmock.Rows, e domain.AuditTrailEntry) *sqlmock.Rows {
	t.Helper()
	changes, err := json.Marshal(e.FieldChanges)
	require.NoError(t, err)
	var metadata []byte
	if e.Metadata != nil {
		metadata, err = json.Marshal(e.Metadata)
		require.NoError(t, err)
	}
	var archivedAt interface{}
	if e.ArchivedAt != nil {
		archivedAt = *e.ArchivedAt
	}
	// postgres hands timestamps back in the session time zone
	local := time.FixedZone("CET", 3600)
	return rows.AddRow(
		e.ID, e.TenantID, e.Timestamp.In(local), e.ActorID, string(e.ActorRole), e.ActorEmail, string(e.Action),
		e.SubjectType, e.SubjectID, changes, e.Reason, string(e.Priority), metadata, e.IntegrityHash, e.ChainHash,
		e.PreviousHash, e.Archived, archivedAt, int64(e.RetentionDays), e.ExpiresAt.In(local),
	)
}

func TestPostgresAuditRepository_Append(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresAuditRepository(db)
	e := sampleAuditEntry()

	mock.ExpectExec("INSERT INTO audit_entries").
		WithArgs(e.ID, e.TenantID, sqlmock.AnyArg(), e.ActorID, "EDITOR", e.ActorEmail, "PRODUCT_UPDATE",
			e.SubjectType, e.SubjectID, sqlmock.AnyArg(), e.Reason, "HIGH", sqlmock.AnyArg(), e.IntegrityHash,
			e.ChainHash, e.PreviousHash, false, nil, e.RetentionDays, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.Append(context.Background(), e))

	mock.ExpectExec("INSERT INTO audit_entries").WillReturnError(&pq.Error{Code: "23505"})
	err := repo.Append(context.Background(), e)
	assert.ErrorIs(t, err, domain.ErrAuditEntryExists)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAuditRepository_RoundTripKeepsDigest(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresAuditRepository(db)
	e := sampleAuditEntry()

	mock.ExpectQuery(`SELECT (.+) FROM audit_entries WHERE id = \$1`).
		WithArgs(e.ID).
		WillReturnRows(auditRow(t, sqlmock.NewRows(auditColumnNames), e))

	got, err := repo.FindByID(context.Background(), e.ID)
	require.NoError(t, err)

	assert.Equal(t, e.Timestamp, got.Timestamp)
	assert.Nil(t, got.Metadata)
	assert.Nil(t, got.ArchivedAt)
	d := integrity.SHA256Digester{}
	assert.Equal(t, e.IntegrityHash, d.Digest(got.DigestInput()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAuditRepository_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresAuditRepository(db)

	mock.ExpectQuery(`FROM audit_entries WHERE id = \$1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(auditColumnNames))
	_, err := repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrAuditEntryNotFound)

	mock.ExpectQuery(`FROM audit_entries WHERE tenant_id = \$1 ORDER BY seq DESC LIMIT 1`).
		WithArgs("acme").
		WillReturnRows(sqlmock.NewRows(auditColumnNames))
	_, ok, err := repo.Latest(context.Background(), "acme")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAuditRepository_Query(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresAuditRepository(db)
	e := sampleAuditEntry()

	filter := domain.AuditFilter{
		TenantID:  "acme",
		Actions:   []domain.AuditAction{domain.AuditActionProductUpdate},
		SortOrder: domain.SortDesc,
		Limit:     10,
	}

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM audit_entries WHERE tenant_id = \$1 AND action = ANY\(\$2\) AND archived = FALSE`).
		WithArgs("acme", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`FROM audit_entries WHERE tenant_id = \$1 AND action = ANY\(\$2\) AND archived = FALSE ORDER BY seq DESC LIMIT \$3`).
		WithArgs("acme", sqlmock.AnyArg(), 10).
		WillReturnRows(auditRow(t, sqlmock.NewRows(auditColumnNames), e))

	entries, total, err := repo.Query(context.Background(), filter)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, entries, 1)
	assert.Equal(t, e.ID, entries[0].ID)
	assert.Len(t, entries[0].FieldChanges, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditOrderBy(t *testing.T) {
	assert.Equal(t, " ORDER BY seq ASC", auditOrderBy(domain.AuditFilter{}))
	assert.Equal(t, " ORDER BY action DESC, seq ASC", auditOrderBy(domain.AuditFilter{SortBy: domain.SortByAction, SortOrder: domain.SortDesc}))
	assert.Contains(t, auditOrderBy(domain.AuditFilter{SortBy: domain.SortByPriority}), "WHEN 'CRITICAL' THEN 3")
}

func TestPostgresAuditRepository_Retention(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresAuditRepository(db)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(`UPDATE audit_entries SET archived = TRUE, archived_at = \$1 WHERE archived = FALSE AND occurred_at < \$2`).
		WithArgs(now, now.AddDate(0, 0, -90)).
		WillReturnResult(sqlmock.NewResult(0, 3))
	n, err := repo.Archive(context.Background(), now.AddDate(0, 0, -90), now)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	mock.ExpectExec(`DELETE FROM audit_entries a\s+WHERE a.expires_at < \$1\s+AND NOT EXISTS`).
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 2))
	n, err = repo.Purge(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	mock.ExpectExec(`DELETE FROM audit_entries WHERE expires_at < \$1$`).
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 5))
	n, err = repo.PurgeAll(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	assert.NoError(t, mock.ExpectationsWereMet())
}

var productColumnNames = []string{
	"id", "tenant_id", "name", "sku", "brand", "description", "price", "categories", "keywords", "images",
	"workflow_state", "assigned_reviewer_id", "submitted_by", "created_by", "workflow_history", "created_at",
	"updated_at", "published_at", "version",
}

func TestPostgresProductRepository_CreateDuplicateSKU(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresProductRepository(db)
	p := domain.NewProduct("acme", domain.ProductFields{Name: "Mug", SKU: "MUG-1", Brand: "Acme", Price: 9}, "editor-1", domain.UserRoleEditor)

	mock.ExpectExec("INSERT INTO products").WillReturnError(&pq.Error{Code: "23505"})
	err := repo.Create(context.Background(), p)
	assert.ErrorIs(t, err, domain.ErrDuplicateSKU)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresProductRepository_FindByID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresProductRepository(db)
	created := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	history, _ := json.Marshal([]domain.WorkflowHistoryEntry{{ToState: domain.WorkflowStateDraft, Action: domain.ActionCreate, UserID: "editor-1"}})
	mock.ExpectQuery(`FROM products WHERE id = \$1`).
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows(productColumnNames).AddRow(
			"p1", "acme", "Mug", "MUG-1", "Acme", "", 9.5, []byte(`["kitchen"]`), []byte(`[]`),
			[]byte(`[{"url":"https://cdn.example.com/mug.jpg"}]`), "REVIEW", "reviewer-1", "editor-1", "editor-1",
			history, created, created, nil, 3,
		))

	p, err := repo.FindByID(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, domain.WorkflowStateReview, p.WorkflowState)
	require.NotNil(t, p.AssignedReviewerID)
	assert.Equal(t, "reviewer-1", *p.AssignedReviewerID)
	assert.Equal(t, []string{"kitchen"}, p.Categories)
	assert.Empty(t, p.Keywords)
	assert.Len(t, p.Images, 1)
	assert.Len(t, p.WorkflowHistory, 1)
	assert.Nil(t, p.PublishedAt)
	assert.Equal(t, int64(3), p.Version)

	mock.ExpectQuery(`FROM products WHERE id = \$1`).WithArgs("nope").WillReturnRows(sqlmock.NewRows(productColumnNames))
	_, err = repo.FindByID(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrProductNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresProductRepository_ListAndCount(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresProductRepository(db)
	state := domain.WorkflowStateDraft
	filter := domain.ProductFilter{TenantID: "acme", WorkflowState: &state, Search: "Mug", Limit: 20, Offset: 40}

	mock.ExpectQuery(`FROM products WHERE 1=1 AND tenant_id = \$1 AND workflow_state = \$2 AND \(LOWER\(name\) LIKE \$3 OR LOWER\(sku\) LIKE \$3\) ORDER BY created_at DESC LIMIT \$4 OFFSET \$5`).
		WithArgs("acme", "DRAFT", "%mug%", 20, 40).
		WillReturnRows(sqlmock.NewRows(productColumnNames))
	products, err := repo.List(context.Background(), filter)
	require.NoError(t, err)
	assert.Empty(t, products)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM products WHERE 1=1 AND tenant_id = \$1 AND workflow_state = \$2`).
		WithArgs("acme", "DRAFT", "%mug%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(41))
	count, err := repo.Count(context.Background(), filter)
	require.NoError(t, err)
	assert.Equal(t, 41, count)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresProductRepository_UpdateAndDeleteMissing(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresProductRepository(db)
	p := domain.NewProduct("acme", domain.ProductFields{Name: "Mug", SKU: "MUG-1", Brand: "Acme"}, "editor-1", domain.UserRoleEditor)

	mock.ExpectQuery("UPDATE products").WillReturnRows(sqlmock.NewRows([]string{"version"}))
	mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM products WHERE id = \$1\)`).WithArgs(p.ID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	assert.ErrorIs(t, repo.Update(context.Background(), p), domain.ErrProductNotFound)

	mock.ExpectExec(`DELETE FROM products WHERE id = \$1`).WithArgs(p.ID).WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.Delete(context.Background(), p.ID), domain.ErrProductNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresProductRepository_UpdateChecksVersion(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresProductRepository(db)
	p := domain.NewProduct("acme", domain.ProductFields{Name: "Mug", SKU: "MUG-1", Brand: "Acme"}, "editor-1", domain.UserRoleEditor)
	p.Version = 4

	mock.ExpectQuery(`WHERE id = \$1 AND version = \$16\s+RETURNING version`).
		WithArgs(p.ID, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), "DRAFT", sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), int64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(5))
	require.NoError(t, repo.Update(context.Background(), p))
	assert.Equal(t, int64(5), p.Version)

	mock.ExpectQuery("UPDATE products").WillReturnRows(sqlmock.NewRows([]string{"version"}))
	mock.ExpectQuery(`SELECT EXISTS`).WithArgs(p.ID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	assert.ErrorIs(t, repo.Update(context.Background(), p), domain.ErrConcurrentUpdate)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUserRepository(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresUserRepository(db)
	created := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	cols := []string{"id", "tenant_id", "email", "name", "password_hash", "role", "active", "created_at", "updated_at"}

	mock.ExpectQuery(`FROM users WHERE tenant_id = \$1 AND email = \$2`).
		WithArgs("acme", "editor@acme.test").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("u1", "acme", "editor@acme.test", "Ed", "hash", "EDITOR", true, created, created))

	u, err := repo.FindByEmail(context.Background(), "acme", " Editor@ACME.test ")
	require.NoError(t, err)
	assert.Equal(t, domain.UserRoleEditor, u.Role)
	assert.True(t, u.Active)

	mock.ExpectExec("INSERT INTO users").WillReturnError(&pq.Error{Code: "23505"})
	err = repo.Create(context.Background(), domain.NewUser("acme", "editor@acme.test", "Ed", "hash", domain.UserRoleEditor))
	assert.ErrorIs(t, err, domain.ErrUserExists)

	active := true
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM users WHERE 1=1 AND tenant_id = \$1 AND active = \$2`).
		WithArgs("acme", true).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	n, err := repo.Count(context.Background(), domain.UserFilter{TenantID: "acme", Active: &active})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	mock.ExpectQuery(`FROM users WHERE id = \$1`).WithArgs("ghost").WillReturnRows(sqlmock.NewRows(cols))
	_, err = repo.FindByID(context.Background(), "ghost")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	mock.ExpectExec(`DELETE FROM users WHERE id = \$1`).WithArgs("u1").WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Delete(context.Background(), "u1"))
	mock.ExpectExec(`DELETE FROM users WHERE id = \$1`).WithArgs("ghost").WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.Delete(context.Background(), "ghost"), domain.ErrUserNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}
