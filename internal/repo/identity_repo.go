package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lockblip/server/internal/model"
)

// IdentityRepo defines the interface for ghost identity repository operations
type IdentityRepo interface {
	Create(ctx context.Context, username, pinHash string, autoLockTimeout int) error
	GetByUsername(ctx context.Context, username string) (model.GhostIdentity, error)
	SetSessionToken(ctx context.Context, username, token string, expiry time.Time) error
	ClearSessionToken(ctx context.Context, username string) error
	SetBiometric(ctx context.Context, username, biometricToken string) error
}

type identityRepo struct {
	db *sql.DB
}

// NewIdentityRepo creates a new IdentityRepo instance
func NewIdentityRepo(db *sql.DB) IdentityRepo {
	return &identityRepo{db: db}
}

// Create inserts a new ghost identity. Returns ErrDuplicate if the username
// already has one.
func (r *identityRepo) Create(ctx context.Context, username, pinHash string, autoLockTimeout int) error {
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO ghost_identities (username, pin_hash, auto_lock_timeout)
		VALUES ($1, $2, $3)
		ON CONFLICT (username) DO NOTHING
	`, username, pinHash, autoLockTimeout)
	if err != nil {
		return fmt.Errorf("insert identity: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("identity for %q: %w", username, ErrDuplicate)
	}
	return nil
}

// GetByUsername retrieves a ghost identity by username
func (r *identityRepo) GetByUsername(ctx context.Context, username string) (model.GhostIdentity, error) {
	query := `
		SELECT username, pin_hash, active_session_token, session_token_expiry,
		       biometric_enabled, biometric_token, auto_lock_timeout, created_at
		FROM ghost_identities
		WHERE username = $1
	`
	var id model.GhostIdentity
	err := r.db.QueryRowContext(ctx, query, username).Scan(
		&id.Username,
		&id.PinHash,
		&id.ActiveSessionToken,
		&id.SessionTokenExpiry,
		&id.BiometricEnabled,
		&id.BiometricToken,
		&id.AutoLockTimeout,
		&id.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.GhostIdentity{}, fmt.Errorf("identity %q: %w", username, ErrNotFound)
		}
		return model.GhostIdentity{}, fmt.Errorf("query identity: %w", err)
	}
	return id, nil
}

// SetSessionToken overwrites the active unlock token and its expiry. A second
// unlock elsewhere therefore invalidates the previous token.
func (r *identityRepo) SetSessionToken(ctx context.Context, username, token string, expiry time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE ghost_identities
		SET active_session_token = $2, session_token_expiry = $3
		WHERE username = $1
	`, username, token, expiry)
	if err != nil {
		return fmt.Errorf("set session token: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("identity %q: %w", username, ErrNotFound)
	}
	return nil
}

// ClearSessionToken clears the token and expiry unconditionally (lock).
func (r *identityRepo) ClearSessionToken(ctx context.Context, username string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE ghost_identities
		SET active_session_token = NULL, session_token_expiry = NULL
		WHERE username = $1
	`, username)
	if err != nil {
		return fmt.Errorf("clear session token: %w", err)
	}
	return nil
}

// SetBiometric enables biometric unlock and stores the device token.
func (r *identityRepo) SetBiometric(ctx context.Context, username, biometricToken string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE ghost_identities
		SET biometric_enabled = TRUE, biometric_token = $2
		WHERE username = $1
	`, username, biometricToken)
	if err != nil {
		return fmt.Errorf("set biometric: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("identity %q: %w", username, ErrNotFound)
	}
	return nil
}
