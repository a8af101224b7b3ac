package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/fixora/pim/internal/domain"
	"github.com/fixora/pim/internal/ports"
)

const auditColumns = `id, tenant_id, occurred_at, actor_id, actor_role, actor_email, action, subject_type, subject_id,
	field_changes, reason, priority, metadata, integrity_hash, chain_hash, previous_hash, archived, archived_at,
	retention_days, expires_at`

// auditSortColumns maps sort fields to columns; seq breaks ties in append order
var auditSortColumns = map[domain.SortField]string{
	domain.SortByTimestamp: "occurred_at",
	domain.SortByPriority:  "CASE priority WHEN 'CRITICAL' THEN 3 WHEN 'HIGH' THEN 2 WHEN 'MEDIUM' THEN 1 ELSE 0 END",
	domain.SortByAction:    "action",
	domain.SortByActor:     "actor_id",
}

// PostgresAuditRepository is the append-only audit store. Rows are ordered by a
// BIGSERIAL seq column, which is the chain order of each tenant.
type PostgresAuditRepository struct {
	db *sql.DB
}

// NewPostgresAuditRepository creates a new PostgreSQL audit repository
func NewPostgresAuditRepository(db *sql.DB) ports.AuditRepository {
	return &PostgresAuditRepository{db: db}
}

// Append stores a new entry at the end of the log
func (r *PostgresAuditRepository) Append(ctx context.Context, entry domain.AuditTrailEntry) error {
	query := `
		INSERT INTO audit_entries (` + auditColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`

	changes := entry.FieldChanges
	if changes == nil {
		changes = []domain.FieldChange{}
	}
	changesJSON, err := json.Marshal(changes)
	if err != nil {
		return fmt.Errorf("failed to marshal field changes: %w", err)
	}

	// nil metadata is stored as NULL so the digest input survives the round trip
	var metadataJSON []byte
	if entry.Metadata != nil {
		if metadataJSON, err = json.Marshal(entry.Metadata); err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	_, err = r.db.ExecContext(ctx, query,
		entry.ID,
		entry.TenantID,
		entry.Timestamp.UTC(),
		entry.ActorID,
		string(entry.ActorRole),
		entry.ActorEmail,
		string(entry.Action),
		entry.SubjectType,
		entry.SubjectID,
		changesJSON,
		entry.Reason,
		string(entry.Priority),
		metadataJSON,
		entry.IntegrityHash,
		entry.ChainHash,
		entry.PreviousHash,
		entry.Archived,
		entry.ArchivedAt,
		entry.RetentionDays,
		entry.ExpiresAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAuditEntryExists
		}
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

func scanAuditEntry(row rowScanner) (domain.AuditTrailEntry, error) {
	var e domain.AuditTrailEntry
	var changesJSON, metadataJSON []byte
	var archivedAt sql.NullTime

	err := row.Scan(
		&e.ID,
		&e.TenantID,
		&e.Timestamp,
		&e.ActorID,
		&e.ActorRole,
		&e.ActorEmail,
		&e.Action,
		&e.SubjectType,
		&e.SubjectID,
		&changesJSON,
		&e.Reason,
		&e.Priority,
		&metadataJSON,
		&e.IntegrityHash,
		&e.ChainHash,
		&e.PreviousHash,
		&e.Archived,
		&archivedAt,
		&e.RetentionDays,
		&e.ExpiresAt,
	)
	if err != nil {
		return e, err
	}

	e.Timestamp = e.Timestamp.UTC()
	e.ExpiresAt = e.ExpiresAt.UTC()
	if archivedAt.Valid {
		t := archivedAt.Time.UTC()
		e.ArchivedAt = &t
	}

	e.FieldChanges = []domain.FieldChange{}
	if len(changesJSON) > 0 {
		if err := json.Unmarshal(changesJSON, &e.FieldChanges); err != nil {
			return e, fmt.Errorf("failed to unmarshal field changes: %w", err)
		}
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &e.Metadata); err != nil {
			return e, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return e, nil
}

func (r *PostgresAuditRepository) findOne(ctx context.Context, where string, args ...interface{}) (domain.AuditTrailEntry, error) {
	query := `SELECT ` + auditColumns + ` FROM audit_entries WHERE ` + where

	entry, err := scanAuditEntry(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.AuditTrailEntry{}, domain.ErrAuditEntryNotFound
		}
		return domain.AuditTrailEntry{}, fmt.Errorf("failed to find audit entry: %w", err)
	}
	return entry, nil
}

// FindByID retrieves an entry by its ID
func (r *PostgresAuditRepository) FindByID(ctx context.Context, id string) (domain.AuditTrailEntry, error) {
	return r.findOne(ctx, `id = $1`, id)
}

// FindByChainHash retrieves the entry of a tenant chain whose chain hash is hash
func (r *PostgresAuditRepository) FindByChainHash(ctx context.Context, tenantID, hash string) (domain.AuditTrailEntry, error) {
	return r.findOne(ctx, `tenant_id = $1 AND chain_hash = $2`, tenantID, hash)
}

// Latest returns the most recently appended entry of a tenant chain
func (r *PostgresAuditRepository) Latest(ctx context.Context, tenantID string) (domain.AuditTrailEntry, bool, error) {
	entry, err := r.findOne(ctx, `tenant_id = $1 ORDER BY seq DESC LIMIT 1`, tenantID)
	if errors.Is(err, domain.ErrAuditEntryNotFound) {
		return domain.AuditTrailEntry{}, false, nil
	}
	if err != nil {
		return domain.AuditTrailEntry{}, false, err
	}
	return entry, true, nil
}

func auditConditions(filter domain.AuditFilter) (string, []interface{}) {
	var conditions []string
	var args []interface{}
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}

	if filter.TenantID != "" {
		add("tenant_id = $%d", filter.TenantID)
	}
	if filter.ActorID != "" {
		add("actor_id = $%d", filter.ActorID)
	}
	if len(filter.Actions) > 0 {
		actions := make([]string, len(filter.Actions))
		for i, a := range filter.Actions {
			actions[i] = string(a)
		}
		add("action = ANY($%d)", pq.Array(actions))
	}
	if filter.SubjectID != "" {
		add("subject_id = $%d", filter.SubjectID)
	}
	if filter.SubjectType != "" {
		add("subject_type = $%d", filter.SubjectType)
	}
	if filter.From != nil {
		add("occurred_at >= $%d", filter.From.UTC())
	}
	if filter.To != nil {
		add("occurred_at <= $%d", filter.To.UTC())
	}
	if filter.Priority != "" {
		add("priority = $%d", string(filter.Priority))
	}
	if filter.ReasonContains != "" {
		add("reason ILIKE $%d", "%"+filter.ReasonContains+"%")
	}
	if !filter.IncludeArchived {
		conditions = append(conditions, "archived = FALSE")
	}

	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

func auditOrderBy(filter domain.AuditFilter) string {
	dir := "ASC"
	if filter.SortOrder == domain.SortDesc {
		dir = "DESC"
	}
	column, ok := auditSortColumns[filter.SortBy]
	if !ok {
		return " ORDER BY seq " + dir
	}
	return fmt.Sprintf(" ORDER BY %s %s, seq ASC", column, dir)
}

// Query returns the page of entries matching filter and the total match count
func (r *PostgresAuditRepository) Query(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditTrailEntry, int, error) {
	where, args := auditConditions(filter)

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_entries`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count audit entries: %w", err)
	}

	query := `SELECT ` + auditColumns + ` FROM audit_entries` + where + auditOrderBy(filter)
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	entries := []domain.AuditTrailEntry{}
	for rows.Next() {
		entry, err := scanAuditEntry(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating audit entries: %w", err)
	}
	return entries, total, nil
}

// Archive flags unarchived entries older than cutoff
func (r *PostgresAuditRepository) Archive(ctx context.Context, cutoff, archivedAt time.Time) (int, error) {
	query := `UPDATE audit_entries SET archived = TRUE, archived_at = $1 WHERE archived = FALSE AND occurred_at < $2`

	result, err := r.db.ExecContext(ctx, query, archivedAt.UTC(), cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to archive audit entries: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(n), nil
}

// Purge removes expired entries that have no unexpired predecessor in their tenant chain
func (r *PostgresAuditRepository) Purge(ctx context.Context, now time.Time) (int, error) {
	query := `
		DELETE FROM audit_entries a
		WHERE a.expires_at < $1
		AND NOT EXISTS (
			SELECT 1 FROM audit_entries b
			WHERE b.tenant_id = a.tenant_id AND b.seq < a.seq AND b.expires_at >= $1
		)
	`

	return r.purge(ctx, query, now)
}

// PurgeAll removes every expired entry
func (r *PostgresAuditRepository) PurgeAll(ctx context.Context, now time.Time) (int, error) {
	return r.purge(ctx, `DELETE FROM audit_entries WHERE expires_at < $1`, now)
}

func (r *PostgresAuditRepository) purge(ctx context.Context, query string, now time.Time) (int, error) {
	result, err := r.db.ExecContext(ctx, query, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge audit entries: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(n), nil
}
