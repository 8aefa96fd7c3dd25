package ghost

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lockblip/server/pkg/apperr"
)

func newTestCredentialStore() (*CredentialStore, *fakeIdentityRepo) {
	identities := newFakeIdentityRepo()
	return NewCredentialStore(identities, "test-salt"), identities
}

func TestCredentialSetup(t *testing.T) {
	ctx := context.Background()
	store, identities := newTestCredentialStore()

	require.NoError(t, store.Setup(ctx, "alice", "4821"))

	id, err := identities.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.NotEqual(t, "4821", id.PinHash, "PIN must never be stored in plaintext")
	assert.Equal(t, defaultAutoLockTimeout, id.AutoLockTimeout)
}

func TestCredentialSetup_rejectsBadPin(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestCredentialStore()

	for _, pin := range []string{"", "123", "123456789", "12ab"} {
		err := store.Setup(ctx, "alice", pin)
		assert.ErrorIs(t, err, apperr.ErrInvalidPinFormat, "pin %q", pin)
	}
}

func TestCredentialSetup_duplicate(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestCredentialStore()

	require.NoError(t, store.Setup(ctx, "alice", "4821"))
	err := store.Setup(ctx, "alice", "9999")
	assert.ErrorIs(t, err, apperr.ErrAlreadyConfigured)
}

func TestCredentialUnlock(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestCredentialStore()
	require.NoError(t, store.Setup(ctx, "alice", "4821"))

	res, err := store.Unlock(ctx, "alice", "4821", "")
	require.NoError(t, err)
	assert.NotEmpty(t, res.Token)
	assert.True(t, res.ExpiresAt.After(time.Now().Add(29*time.Minute)))
	assert.Equal(t, defaultAutoLockTimeout, res.AutoLockTimeout)

	assert.True(t, store.Verify(ctx, "alice", res.Token))
}

func TestCredentialUnlock_wrongPin(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestCredentialStore()
	require.NoError(t, store.Setup(ctx, "alice", "4821"))

	_, err := store.Unlock(ctx, "alice", "0000", "")
	assert.ErrorIs(t, err, apperr.ErrInvalidCredential)
}

func TestCredentialUnlock_notConfigured(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestCredentialStore()

	_, err := store.Unlock(ctx, "ghost", "4821", "")
	assert.ErrorIs(t, err, apperr.ErrNotConfigured)
}

func TestCredentialUnlock_supersedesPriorToken(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestCredentialStore()
	require.NoError(t, store.Setup(ctx, "alice", "4821"))

	first, err := store.Unlock(ctx, "alice", "4821", "")
	require.NoError(t, err)
	second, err := store.Unlock(ctx, "alice", "4821", "")
	require.NoError(t, err)

	assert.NotEqual(t, first.Token, second.Token)
	assert.False(t, store.Verify(ctx, "alice", first.Token), "old token should be invalid")
	assert.True(t, store.Verify(ctx, "alice", second.Token))
}

func TestCredentialUnlock_biometric(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestCredentialStore()
	require.NoError(t, store.Setup(ctx, "alice", "4821"))
	require.NoError(t, store.EnableBiometric(ctx, "alice", "device-token-1"))

	res, err := store.Unlock(ctx, "alice", "", "device-token-1")
	require.NoError(t, err)
	assert.True(t, store.Verify(ctx, "alice", res.Token))

	_, err = store.Unlock(ctx, "alice", "", "device-token-2")
	assert.ErrorIs(t, err, apperr.ErrInvalidCredential)
}

func TestCredentialUnlock_biometricIgnoredWhenDisabled(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestCredentialStore()
	require.NoError(t, store.Setup(ctx, "alice", "4821"))

	_, err := store.Unlock(ctx, "alice", "", "device-token-1")
	assert.ErrorIs(t, err, apperr.ErrInvalidCredential)
}

func TestCredentialHeartbeat(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestCredentialStore()
	require.NoError(t, store.Setup(ctx, "alice", "4821"))
	res, err := store.Unlock(ctx, "alice", "4821", "")
	require.NoError(t, err)

	extended, err := store.Heartbeat(ctx, "alice", res.Token)
	require.NoError(t, err)
	assert.False(t, extended.Before(res.ExpiresAt))

	_, err = store.Heartbeat(ctx, "alice", "bogus-token")
	assert.ErrorIs(t, err, apperr.ErrInvalidSession)
}

func TestCredentialHeartbeat_expiredToken(t *testing.T) {
	ctx := context.Background()
	store, identities := newTestCredentialStore()
	require.NoError(t, store.Setup(ctx, "alice", "4821"))
	res, err := store.Unlock(ctx, "alice", "4821", "")
	require.NoError(t, err)

	// Force the window into the past.
	require.NoError(t, identities.SetSessionToken(ctx, "alice", res.Token, time.Now().Add(-time.Minute)))

	_, err = store.Heartbeat(ctx, "alice", res.Token)
	assert.ErrorIs(t, err, apperr.ErrSessionExpired)
	assert.False(t, store.Verify(ctx, "alice", res.Token))
}

func TestCredentialLock(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestCredentialStore()
	require.NoError(t, store.Setup(ctx, "alice", "4821"))
	res, err := store.Unlock(ctx, "alice", "4821", "")
	require.NoError(t, err)

	require.NoError(t, store.Lock(ctx, "alice"))
	assert.False(t, store.Verify(ctx, "alice", res.Token))

	_, err = store.Heartbeat(ctx, "alice", res.Token)
	assert.ErrorIs(t, err, apperr.ErrInvalidSession)
}

func TestCredentialVerify_emptyToken(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestCredentialStore()
	require.NoError(t, store.Setup(ctx, "alice", "4821"))

	assert.False(t, store.Verify(ctx, "alice", ""))
}

func TestEnableBiometric_requiresIdentity(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestCredentialStore()

	err := store.EnableBiometric(ctx, "ghost", "device-token")
	assert.ErrorIs(t, err, apperr.ErrNotConfigured)
}
