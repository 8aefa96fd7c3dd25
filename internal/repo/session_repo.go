package repo

import (
	"context"
	"database/sql"
	"encoding/base64"
	"fmt"

	"github.com/lockblip/server/internal/model"
)

// SessionRepo defines the interface for conversation session repository operations
type SessionRepo interface {
	FindActiveByPair(ctx context.Context, participantA, participantB string) (model.ConversationSession, error)
	OpenOrReuse(ctx context.Context, candidate model.ConversationSession) (model.ConversationSession, bool, error)
	GetActive(ctx context.Context, sessionID string) (model.ConversationSession, error)
	Touch(ctx context.Context, sessionID string) error
	Terminate(ctx context.Context, sessionID string) error
	ListExpiredActive(ctx context.Context, limit int) ([]string, error)
}

type sessionRepo struct {
	db *sql.DB
}

// NewSessionRepo creates a new SessionRepo instance
func NewSessionRepo(db *sql.DB) SessionRepo {
	return &sessionRepo{db: db}
}

const sessionColumns = `
	session_id, participant_a, participant_b, session_key, created_by,
	last_activity, is_active, expire_at, created_at`

func scanSession(row *sql.Row) (model.ConversationSession, error) {
	var s model.ConversationSession
	var keyB64 string
	err := row.Scan(
		&s.SessionID,
		&s.ParticipantA,
		&s.ParticipantB,
		&keyB64,
		&s.CreatedBy,
		&s.LastActivity,
		&s.IsActive,
		&s.ExpireAt,
		&s.CreatedAt,
	)
	if err != nil {
		return model.ConversationSession{}, err
	}
	s.SessionKey, err = base64.StdEncoding.DecodeString(keyB64)
	if err != nil {
		return model.ConversationSession{}, fmt.Errorf("decode session key: %w", err)
	}
	return s, nil
}

// FindActiveByPair returns the active, unexpired session for the canonical pair.
func (r *sessionRepo) FindActiveByPair(ctx context.Context, participantA, participantB string) (model.ConversationSession, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM conversation_sessions
		WHERE participant_a = $1 AND participant_b = $2
		  AND is_active AND expire_at > now()
	`, participantA, participantB)
	s, err := scanSession(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.ConversationSession{}, fmt.Errorf("session for pair: %w", ErrNotFound)
		}
		return model.ConversationSession{}, fmt.Errorf("query session by pair: %w", err)
	}
	return s, nil
}

// OpenOrReuse returns the existing active session for the candidate's pair, or
// inserts the candidate when none exists. An advisory lock serializes
// activations per pair so concurrent calls cannot create duplicates.
func (r *sessionRepo) OpenOrReuse(ctx context.Context, candidate model.ConversationSession) (model.ConversationSession, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.ConversationSession{}, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(2, hashtext($1))`,
		candidate.ParticipantA+":"+candidate.ParticipantB)
	if err != nil {
		return model.ConversationSession{}, false, fmt.Errorf("advisory lock: %w", err)
	}

	row := tx.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM conversation_sessions
		WHERE participant_a = $1 AND participant_b = $2
		  AND is_active AND expire_at > now()
	`, candidate.ParticipantA, candidate.ParticipantB)
	existing, err := scanSession(row)
	if err == nil {
		if err := tx.Commit(); err != nil {
			return model.ConversationSession{}, false, fmt.Errorf("commit: %w", err)
		}
		return existing, false, nil
	}
	if err != sql.ErrNoRows {
		return model.ConversationSession{}, false, fmt.Errorf("query existing session: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO conversation_sessions
			(session_id, participant_a, participant_b, session_key, created_by, last_activity, is_active, expire_at)
		VALUES ($1, $2, $3, $4, $5, now(), TRUE, $6)
	`,
		candidate.SessionID,
		candidate.ParticipantA,
		candidate.ParticipantB,
		base64.StdEncoding.EncodeToString(candidate.SessionKey),
		candidate.CreatedBy,
		candidate.ExpireAt,
	)
	if err != nil {
		return model.ConversationSession{}, false, fmt.Errorf("insert session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return model.ConversationSession{}, false, fmt.Errorf("commit: %w", err)
	}
	return candidate, true, nil
}

// GetActive returns the session only while it is active and unexpired, so
// expired sessions are indistinguishable from absent ones.
func (r *sessionRepo) GetActive(ctx context.Context, sessionID string) (model.ConversationSession, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM conversation_sessions
		WHERE session_id = $1 AND is_active AND expire_at > now()
	`, sessionID)
	s, err := scanSession(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.ConversationSession{}, fmt.Errorf("session %q: %w", sessionID, ErrNotFound)
		}
		return model.ConversationSession{}, fmt.Errorf("query session: %w", err)
	}
	return s, nil
}

// Touch updates last_activity; called on every message send.
func (r *sessionRepo) Touch(ctx context.Context, sessionID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE conversation_sessions SET last_activity = now() WHERE session_id = $1
	`, sessionID)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

// Terminate removes the session's messages, grants, and audit entries, then
// deactivates the session, all in one transaction. Dependents go first so a
// failure never leaves an inactive session with live messages.
func (r *sessionRepo) Terminate(ctx context.Context, sessionID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM ghost_messages WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM access_grants WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("delete grants: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM access_audit_log WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("delete audit entries: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE conversation_sessions SET is_active = FALSE WHERE session_id = $1 AND is_active
	`, sessionID)
	if err != nil {
		return fmt.Errorf("deactivate session: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("session %q: %w", sessionID, ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ListExpiredActive returns session IDs whose hard expiry has passed but whose
// active flag is still set; the sweeper terminates them.
func (r *sessionRepo) ListExpiredActive(ctx context.Context, limit int) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT session_id FROM conversation_sessions
		WHERE is_active AND expire_at <= now()
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list expired sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
