package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lockblip/server/internal/model"
)

// DeletedMessage identifies a message removed by the expiry sweep.
type DeletedMessage struct {
	ID        uuid.UUID
	SessionID string
}

// MessageRepo defines the interface for ghost message repository operations
type MessageRepo interface {
	Create(ctx context.Context, m model.GhostMessage) error
	ListLive(ctx context.Context, sessionID string) ([]model.GhostMessage, error)
	GetLive(ctx context.Context, id uuid.UUID) (model.GhostMessage, error)
	MarkViewed(ctx context.Context, id uuid.UUID, viewedAt, deleteAt time.Time) (bool, error)
	DeleteExpired(ctx context.Context) ([]DeletedMessage, error)
}

type messageRepo struct {
	db *sql.DB
}

// NewMessageRepo creates a new MessageRepo instance
func NewMessageRepo(db *sql.DB) MessageRepo {
	return &messageRepo{db: db}
}

const messageColumns = `
	id, session_id, sender_id, receiver_id, encrypted_payload, encrypted_media_url,
	message_type, viewed, view_timestamp, auto_delete_timer, delete_at, created_at`

// Live messages: not yet past their view-triggered delete clock. The filter is
// applied on every read so an elapsed clock takes effect even between sweeps.
const liveFilter = `(delete_at IS NULL OR delete_at > now())`

func scanMessage(row rowScanner) (model.GhostMessage, error) {
	var m model.GhostMessage
	var idStr string
	err := row.Scan(
		&idStr,
		&m.SessionID,
		&m.SenderID,
		&m.ReceiverID,
		&m.EncryptedPayload,
		&m.EncryptedMediaURL,
		&m.MessageType,
		&m.Viewed,
		&m.ViewTimestamp,
		&m.AutoDeleteTimer,
		&m.DeleteAt,
		&m.CreatedAt,
	)
	if err != nil {
		return model.GhostMessage{}, err
	}
	m.ID, err = uuid.Parse(idStr)
	if err != nil {
		return model.GhostMessage{}, fmt.Errorf("parse message ID: %w", err)
	}
	return m, nil
}

// Create inserts a new encrypted message record.
func (r *messageRepo) Create(ctx context.Context, m model.GhostMessage) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO ghost_messages
			(id, session_id, sender_id, receiver_id, encrypted_payload, encrypted_media_url,
			 message_type, auto_delete_timer, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		m.ID, m.SessionID, m.SenderID, m.ReceiverID, m.EncryptedPayload,
		m.EncryptedMediaURL, m.MessageType, m.AutoDeleteTimer, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// ListLive returns the session's live messages in ascending timestamp order.
func (r *messageRepo) ListLive(ctx context.Context, sessionID string) ([]model.GhostMessage, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM ghost_messages
		WHERE session_id = $1 AND `+liveFilter+`
		ORDER BY created_at ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var messages []model.GhostMessage
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// GetLive returns the message unless its delete clock has elapsed.
func (r *messageRepo) GetLive(ctx context.Context, id uuid.UUID) (model.GhostMessage, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+messageColumns+`
		FROM ghost_messages
		WHERE id = $1 AND `+liveFilter+`
	`, id)
	m, err := scanMessage(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.GhostMessage{}, fmt.Errorf("message %s: %w", id, ErrNotFound)
		}
		return model.GhostMessage{}, fmt.Errorf("query message: %w", err)
	}
	return m, nil
}

// MarkViewed stamps the first view and fixes the delete clock. The viewed=false
// guard makes the write happen at most once; repeat calls report false and the
// caller re-reads the original timestamps.
func (r *messageRepo) MarkViewed(ctx context.Context, id uuid.UUID, viewedAt, deleteAt time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE ghost_messages
		SET viewed = TRUE, view_timestamp = $2, delete_at = $3
		WHERE id = $1 AND NOT viewed
	`, id, viewedAt, deleteAt)
	if err != nil {
		return false, fmt.Errorf("mark viewed: %w", err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

// DeleteExpired hard-deletes messages whose delete clock has elapsed and
// returns their identities so deletion events can be published.
func (r *messageRepo) DeleteExpired(ctx context.Context) ([]DeletedMessage, error) {
	rows, err := r.db.QueryContext(ctx, `
		DELETE FROM ghost_messages
		WHERE delete_at IS NOT NULL AND delete_at <= now()
		RETURNING id, session_id
	`)
	if err != nil {
		return nil, fmt.Errorf("delete expired messages: %w", err)
	}
	defer rows.Close()

	var deleted []DeletedMessage
	for rows.Next() {
		var d DeletedMessage
		var idStr string
		if err := rows.Scan(&idStr, &d.SessionID); err != nil {
			return nil, fmt.Errorf("scan deleted message: %w", err)
		}
		d.ID, err = uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("parse message ID: %w", err)
		}
		deleted = append(deleted, d)
	}
	return deleted, rows.Err()
}
