package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lockblip/server/internal/model"
)

// GrantRepo defines the interface for access grant repository operations
type GrantRepo interface {
	Replace(ctx context.Context, inviterGrant, partnerGrant model.AccessGrant) error
	ListRedeemCandidates(ctx context.Context, userID string) ([]model.AccessGrant, error)
	MarkGranted(ctx context.Context, id uuid.UUID, deviceType string) (model.AccessGrant, error)
	GetActiveGrant(ctx context.Context, sessionID, userID string) (model.AccessGrant, error)
	GetBySessionAndUser(ctx context.Context, sessionID, userID string) (model.AccessGrant, error)
	TouchGrant(ctx context.Context, id uuid.UUID) error
	ExtendExpiry(ctx context.Context, id uuid.UUID, expireAt time.Time, deviceType string) error
	DeleteExpiredUngranted(ctx context.Context) (int64, error)
}

type grantRepo struct {
	db *sql.DB
}

// NewGrantRepo creates a new GrantRepo instance
func NewGrantRepo(db *sql.DB) GrantRepo {
	return &grantRepo{db: db}
}

const grantColumns = `
	id, session_id, user_id, partner_id, pin_hash, access_granted,
	access_granted_at, device_type, expire_at, last_activity, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGrant(row rowScanner) (model.AccessGrant, error) {
	var g model.AccessGrant
	var idStr string
	err := row.Scan(
		&idStr,
		&g.SessionID,
		&g.UserID,
		&g.PartnerID,
		&g.PinHash,
		&g.AccessGranted,
		&g.AccessGrantedAt,
		&g.DeviceType,
		&g.ExpireAt,
		&g.LastActivity,
		&g.CreatedAt,
	)
	if err != nil {
		return model.AccessGrant{}, err
	}
	g.ID, err = uuid.Parse(idStr)
	if err != nil {
		return model.AccessGrant{}, fmt.Errorf("parse grant ID: %w", err)
	}
	return g, nil
}

// Replace atomically deletes all prior grants between the pair (both
// directions) and inserts the fresh inviter and partner grants, so a stale
// one-time PIN can never outlive a re-invitation.
func (r *grantRepo) Replace(ctx context.Context, inviterGrant, partnerGrant model.AccessGrant) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		DELETE FROM access_grants
		WHERE (user_id = $1 AND partner_id = $2) OR (user_id = $2 AND partner_id = $1)
	`, inviterGrant.UserID, inviterGrant.PartnerID)
	if err != nil {
		return fmt.Errorf("delete prior grants: %w", err)
	}

	insert := `
		INSERT INTO access_grants
			(id, session_id, user_id, partner_id, pin_hash, access_granted, access_granted_at, device_type, expire_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	for _, g := range []model.AccessGrant{inviterGrant, partnerGrant} {
		_, err = tx.ExecContext(ctx, insert,
			g.ID, g.SessionID, g.UserID, g.PartnerID, g.PinHash,
			g.AccessGranted, g.AccessGrantedAt, g.DeviceType, g.ExpireAt)
		if err != nil {
			return fmt.Errorf("insert grant: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ListRedeemCandidates returns the user's pending invitations: ungranted,
// unexpired, with a PIN hash set. The PIN alone authorizes, so candidates are
// filtered by user only, never by who invited.
func (r *grantRepo) ListRedeemCandidates(ctx context.Context, userID string) ([]model.AccessGrant, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+grantColumns+`
		FROM access_grants
		WHERE user_id = $1 AND NOT access_granted AND pin_hash IS NOT NULL AND expire_at > now()
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list redeem candidates: %w", err)
	}
	defer rows.Close()

	var grants []model.AccessGrant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan grant: %w", err)
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

// MarkGranted flips the grant to granted only if it is still ungranted and
// unexpired. The conditional UPDATE makes redemption a compare-and-set: of two
// concurrent attempts only one sees a row.
func (r *grantRepo) MarkGranted(ctx context.Context, id uuid.UUID, deviceType string) (model.AccessGrant, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE access_grants
		SET access_granted = TRUE, access_granted_at = now(), device_type = $2, last_activity = now()
		WHERE id = $1 AND NOT access_granted AND expire_at > now()
		RETURNING `+grantColumns+`
	`, id, deviceType)
	g, err := scanGrant(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.AccessGrant{}, fmt.Errorf("grant %s: %w", id, ErrNotFound)
		}
		return model.AccessGrant{}, fmt.Errorf("mark granted: %w", err)
	}
	return g, nil
}

// GetActiveGrant returns the granted, unexpired grant for (session, user).
func (r *grantRepo) GetActiveGrant(ctx context.Context, sessionID, userID string) (model.AccessGrant, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+grantColumns+`
		FROM access_grants
		WHERE session_id = $1 AND user_id = $2 AND access_granted AND expire_at > now()
	`, sessionID, userID)
	g, err := scanGrant(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.AccessGrant{}, fmt.Errorf("active grant: %w", ErrNotFound)
		}
		return model.AccessGrant{}, fmt.Errorf("query active grant: %w", err)
	}
	return g, nil
}

// GetBySessionAndUser returns the grant regardless of expiry or granted state;
// reauthentication re-checks the original PIN hash on possibly expired grants.
func (r *grantRepo) GetBySessionAndUser(ctx context.Context, sessionID, userID string) (model.AccessGrant, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+grantColumns+`
		FROM access_grants
		WHERE session_id = $1 AND user_id = $2
		ORDER BY created_at DESC
		LIMIT 1
	`, sessionID, userID)
	g, err := scanGrant(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.AccessGrant{}, fmt.Errorf("grant: %w", ErrNotFound)
		}
		return model.AccessGrant{}, fmt.Errorf("query grant: %w", err)
	}
	return g, nil
}

// TouchGrant refreshes last_activity on the grant.
func (r *grantRepo) TouchGrant(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE access_grants SET last_activity = now() WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("touch grant: %w", err)
	}
	return nil
}

// ExtendExpiry pushes the grant's expiry window forward after a successful
// reauthentication.
func (r *grantRepo) ExtendExpiry(ctx context.Context, id uuid.UUID, expireAt time.Time, deviceType string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE access_grants
		SET expire_at = $2, device_type = $3, last_activity = now()
		WHERE id = $1
	`, id, expireAt, deviceType)
	if err != nil {
		return fmt.Errorf("extend grant expiry: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("grant %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteExpiredUngranted reaps invitations whose one-time PIN was never
// redeemed before expiry.
func (r *grantRepo) DeleteExpiredUngranted(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM access_grants WHERE NOT access_granted AND expire_at <= now()
	`)
	if err != nil {
		return 0, fmt.Errorf("delete expired grants: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}
