package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lockblip/server/internal/model"
)

// AuditRepo defines the interface for access audit log repository operations
type AuditRepo interface {
	Insert(ctx context.Context, e model.AccessAuditEntry) error
	ListBySession(ctx context.Context, sessionID string, limit int) ([]model.AccessAuditEntry, error)
}

type auditRepo struct {
	db *sql.DB
}

// NewAuditRepo creates a new AuditRepo instance
func NewAuditRepo(db *sql.DB) AuditRepo {
	return &auditRepo{db: db}
}

// Insert appends one audit entry. Entries are never updated afterwards.
func (r *auditRepo) Insert(ctx context.Context, e model.AccessAuditEntry) error {
	var metadata []byte
	if len(e.Metadata) > 0 {
		var err error
		metadata, err = json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO access_audit_log
			(session_id, user_id, event_type, device_type, ip_address, user_agent, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, e.SessionID, e.UserID, e.EventType, e.DeviceType, e.IPAddress, e.UserAgent, metadata)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// ListBySession returns the session's entries newest-first, capped at limit.
func (r *auditRepo) ListBySession(ctx context.Context, sessionID string, limit int) ([]model.AccessAuditEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, session_id, user_id, event_type, device_type, ip_address, user_agent, metadata, created_at
		FROM access_audit_log
		WHERE session_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []model.AccessAuditEntry
	for rows.Next() {
		var e model.AccessAuditEntry
		var metadata sql.NullString
		err := rows.Scan(
			&e.ID,
			&e.SessionID,
			&e.UserID,
			&e.EventType,
			&e.DeviceType,
			&e.IPAddress,
			&e.UserAgent,
			&metadata,
			&e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &e.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal metadata: %w", err)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
