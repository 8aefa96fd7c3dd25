package ghost

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lockblip/server/internal/model"
	"github.com/lockblip/server/pkg/apperr"
)

func testSession(a, b string) model.ConversationSession {
	key, _ := GenerateSessionKey()
	now := time.Now()
	pa, pb := CanonicalPair(a, b)
	return model.ConversationSession{
		SessionID:    "sess-" + pa + "-" + pb,
		ParticipantA: pa,
		ParticipantB: pb,
		SessionKey:   key,
		CreatedBy:    a,
		LastActivity: now,
		IsActive:     true,
		ExpireAt:     now.Add(24 * time.Hour),
		CreatedAt:    now,
	}
}

func TestInviteAndRedeem(t *testing.T) {
	ctx := context.Background()
	grants := newFakeGrantRepo()
	ledger := NewGrantLedger(grants, "test-salt")
	sess := testSession("alice", "bob")

	pin, err := ledger.Invite(ctx, sess, "alice", "bob", "ios")
	require.NoError(t, err)
	require.Len(t, pin, 6)

	// Inviter holds access immediately, partner not yet.
	_, err = ledger.Validate(ctx, sess.SessionID, "alice")
	require.NoError(t, err)
	_, err = ledger.Validate(ctx, sess.SessionID, "bob")
	assert.ErrorIs(t, err, apperr.ErrNoAccess)

	granted, err := ledger.Redeem(ctx, "bob", pin, "android")
	require.NoError(t, err)
	assert.Equal(t, sess.SessionID, granted.SessionID)
	assert.True(t, granted.AccessGranted)
	assert.Equal(t, "android", granted.DeviceType)

	_, err = ledger.Validate(ctx, sess.SessionID, "bob")
	require.NoError(t, err)
}

func TestRedeem_wrongPin(t *testing.T) {
	ctx := context.Background()
	ledger := NewGrantLedger(newFakeGrantRepo(), "test-salt")
	sess := testSession("alice", "bob")

	pin, err := ledger.Invite(ctx, sess, "alice", "bob", "ios")
	require.NoError(t, err)

	wrong := "000000"
	if wrong == pin {
		wrong = "000001"
	}
	_, err = ledger.Redeem(ctx, "bob", wrong, "android")
	assert.ErrorIs(t, err, apperr.ErrInvalidOrExpiredPin)
}

func TestRedeem_pinBoundToInvitee(t *testing.T) {
	ctx := context.Background()
	ledger := NewGrantLedger(newFakeGrantRepo(), "test-salt")
	sess := testSession("alice", "bob")

	pin, err := ledger.Invite(ctx, sess, "alice", "bob", "ios")
	require.NoError(t, err)

	// Someone else presenting bob's PIN gets the same uniform failure.
	_, err = ledger.Redeem(ctx, "mallory", pin, "android")
	assert.ErrorIs(t, err, apperr.ErrInvalidOrExpiredPin)
}

func TestRedeem_singleUse(t *testing.T) {
	ctx := context.Background()
	ledger := NewGrantLedger(newFakeGrantRepo(), "test-salt")
	sess := testSession("alice", "bob")

	pin, err := ledger.Invite(ctx, sess, "alice", "bob", "ios")
	require.NoError(t, err)

	_, err = ledger.Redeem(ctx, "bob", pin, "android")
	require.NoError(t, err)

	_, err = ledger.Redeem(ctx, "bob", pin, "android")
	assert.ErrorIs(t, err, apperr.ErrInvalidOrExpiredPin)
}

func TestInvite_supersedesPriorPin(t *testing.T) {
	ctx := context.Background()
	ledger := NewGrantLedger(newFakeGrantRepo(), "test-salt")
	sess := testSession("alice", "bob")

	oldPin, err := ledger.Invite(ctx, sess, "alice", "bob", "ios")
	require.NoError(t, err)
	newPin, err := ledger.Invite(ctx, sess, "alice", "bob", "ios")
	require.NoError(t, err)

	if oldPin != newPin {
		_, err = ledger.Redeem(ctx, "bob", oldPin, "android")
		assert.ErrorIs(t, err, apperr.ErrInvalidOrExpiredPin, "stale pin must die on re-invite")
	}
	_, err = ledger.Redeem(ctx, "bob", newPin, "android")
	require.NoError(t, err)
}

func TestValidate_touchesActivity(t *testing.T) {
	ctx := context.Background()
	grants := newFakeGrantRepo()
	ledger := NewGrantLedger(grants, "test-salt")
	sess := testSession("alice", "bob")

	pin, err := ledger.Invite(ctx, sess, "alice", "bob", "ios")
	require.NoError(t, err)
	granted, err := ledger.Redeem(ctx, "bob", pin, "android")
	require.NoError(t, err)

	before := granted.LastActivity
	time.Sleep(5 * time.Millisecond)
	_, err = ledger.Validate(ctx, sess.SessionID, "bob")
	require.NoError(t, err)

	refreshed, err := grants.GetBySessionAndUser(ctx, sess.SessionID, "bob")
	require.NoError(t, err)
	assert.True(t, refreshed.LastActivity.After(before))
}

func TestReauthenticate(t *testing.T) {
	ctx := context.Background()
	grants := newFakeGrantRepo()
	ledger := NewGrantLedger(grants, "test-salt")
	sess := testSession("alice", "bob")

	pin, err := ledger.Invite(ctx, sess, "alice", "bob", "ios")
	require.NoError(t, err)
	granted, err := ledger.Redeem(ctx, "bob", pin, "android")
	require.NoError(t, err)

	// Simulate the access window lapsing.
	require.NoError(t, grants.ExtendExpiry(ctx, granted.ID, time.Now().Add(-time.Minute), "android"))
	_, err = ledger.Validate(ctx, sess.SessionID, "bob")
	assert.ErrorIs(t, err, apperr.ErrNoAccess)

	expireAt, err := ledger.Reauthenticate(ctx, sess.SessionID, "bob", pin, "android")
	require.NoError(t, err)
	assert.True(t, expireAt.After(time.Now()))

	_, err = ledger.Validate(ctx, sess.SessionID, "bob")
	require.NoError(t, err)
}

func TestReauthenticate_wrongPin(t *testing.T) {
	ctx := context.Background()
	ledger := NewGrantLedger(newFakeGrantRepo(), "test-salt")
	sess := testSession("alice", "bob")

	pin, err := ledger.Invite(ctx, sess, "alice", "bob", "ios")
	require.NoError(t, err)
	_, err = ledger.Redeem(ctx, "bob", pin, "android")
	require.NoError(t, err)

	wrong := "000000"
	if wrong == pin {
		wrong = "000001"
	}
	_, err = ledger.Reauthenticate(ctx, sess.SessionID, "bob", wrong, "android")
	assert.ErrorIs(t, err, apperr.ErrInvalidCredential)
}

func TestReauthenticate_inviterHasNoPin(t *testing.T) {
	ctx := context.Background()
	ledger := NewGrantLedger(newFakeGrantRepo(), "test-salt")
	sess := testSession("alice", "bob")

	_, err := ledger.Invite(ctx, sess, "alice", "bob", "ios")
	require.NoError(t, err)

	_, err = ledger.Reauthenticate(ctx, sess.SessionID, "alice", "123456", "ios")
	assert.ErrorIs(t, err, apperr.ErrInvalidCredential)
}

func TestReauthenticate_unknownSession(t *testing.T) {
	ctx := context.Background()
	ledger := NewGrantLedger(newFakeGrantRepo(), "test-salt")

	_, err := ledger.Reauthenticate(ctx, "no-such-session", "bob", "123456", "ios")
	assert.ErrorIs(t, err, apperr.ErrSessionNotFound)
}
