package ghost

import (
	"context"
	"errors"
	"time"

	"github.com/lockblip/server/internal/repo"
	"github.com/lockblip/server/pkg/apperr"
)

const (
	unlockTokenTTL         = 30 * time.Minute
	defaultAutoLockTimeout = 300 // seconds
)

// CredentialStore gates entry into Ghost Mode: per-user unlock PIN, optional
// biometric factor, and a short-lived unlock session token.
type CredentialStore struct {
	identities repo.IdentityRepo
	salt       string
}

// NewCredentialStore creates a new CredentialStore.
func NewCredentialStore(identities repo.IdentityRepo, salt string) *CredentialStore {
	return &CredentialStore{identities: identities, salt: salt}
}

// UnlockResult is returned to the client after a successful unlock.
type UnlockResult struct {
	Token           string
	ExpiresAt       time.Time
	AutoLockTimeout int
}

// Setup registers the user's Ghost Mode PIN. One identity per user; the PIN
// can only be changed by a manual reset outside normal flows.
func (s *CredentialStore) Setup(ctx context.Context, username, pin string) error {
	if !validIdentityPin(pin) {
		return apperr.ErrInvalidPinFormat
	}
	err := s.identities.Create(ctx, username, hashPin(username, pin, s.salt), defaultAutoLockTimeout)
	if err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return apperr.ErrAlreadyConfigured
		}
		return err
	}
	return nil
}

// Unlock verifies the PIN or biometric token and issues a fresh session token
// with a fixed 30-minute expiry. The new token overwrites any prior one, so a
// user holds at most one active unlock at a time.
func (s *CredentialStore) Unlock(ctx context.Context, username, pin, biometricToken string) (UnlockResult, error) {
	identity, err := s.identities.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return UnlockResult{}, apperr.ErrNotConfigured
		}
		return UnlockResult{}, err
	}

	matched := false
	if pin != "" {
		matched = constantTimeCompare(
			[]byte(hashPin(username, pin, s.salt)),
			[]byte(identity.PinHash),
		)
	}
	if !matched && biometricToken != "" && identity.BiometricEnabled && identity.BiometricToken != nil {
		matched = constantTimeCompare([]byte(biometricToken), []byte(*identity.BiometricToken))
	}
	if !matched {
		return UnlockResult{}, apperr.ErrInvalidCredential
	}

	token, err := generateSessionToken()
	if err != nil {
		return UnlockResult{}, err
	}
	expiresAt := time.Now().Add(unlockTokenTTL)
	if err := s.identities.SetSessionToken(ctx, username, token, expiresAt); err != nil {
		return UnlockResult{}, err
	}

	return UnlockResult{
		Token:           token,
		ExpiresAt:       expiresAt,
		AutoLockTimeout: identity.AutoLockTimeout,
	}, nil
}

// Heartbeat extends the unlock expiry by the same fixed duration (sliding
// window). Only heartbeat extends; Verify is read-only.
func (s *CredentialStore) Heartbeat(ctx context.Context, username, token string) (time.Time, error) {
	identity, err := s.identities.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return time.Time{}, apperr.ErrInvalidSession
		}
		return time.Time{}, err
	}
	if identity.ActiveSessionToken == nil ||
		!constantTimeCompare([]byte(token), []byte(*identity.ActiveSessionToken)) {
		return time.Time{}, apperr.ErrInvalidSession
	}
	if identity.SessionTokenExpiry == nil || time.Now().After(*identity.SessionTokenExpiry) {
		return time.Time{}, apperr.ErrSessionExpired
	}

	expiresAt := time.Now().Add(unlockTokenTTL)
	if err := s.identities.SetSessionToken(ctx, username, token, expiresAt); err != nil {
		return time.Time{}, err
	}
	return expiresAt, nil
}

// Verify is the read-only guard used by every other Ghost operation: token
// matches and has not expired. It never extends the window.
func (s *CredentialStore) Verify(ctx context.Context, username, token string) bool {
	if token == "" {
		return false
	}
	identity, err := s.identities.GetByUsername(ctx, username)
	if err != nil {
		return false
	}
	if identity.ActiveSessionToken == nil ||
		!constantTimeCompare([]byte(token), []byte(*identity.ActiveSessionToken)) {
		return false
	}
	return identity.SessionTokenExpiry != nil && time.Now().Before(*identity.SessionTokenExpiry)
}

// Lock clears the token and expiry unconditionally.
func (s *CredentialStore) Lock(ctx context.Context, username string) error {
	return s.identities.ClearSessionToken(ctx, username)
}

// EnableBiometric stores a biometric device token as an alternate unlock
// factor. The caller must already hold a valid unlock.
func (s *CredentialStore) EnableBiometric(ctx context.Context, username, biometricToken string) error {
	if biometricToken == "" {
		return apperr.InvalidArg("biometric token is required")
	}
	err := s.identities.SetBiometric(ctx, username, biometricToken)
	if err != nil && errors.Is(err, repo.ErrNotFound) {
		return apperr.ErrNotConfigured
	}
	return err
}
