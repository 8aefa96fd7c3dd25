package ghost

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lockblip/server/internal/model"
	"github.com/lockblip/server/internal/repo"
	"github.com/lockblip/server/pkg/apperr"
)

const grantTTL = 60 * time.Minute

// GrantLedger manages invitations into sessions: one-time PINs, redemption,
// access validation, and reauthentication.
type GrantLedger struct {
	grants repo.GrantRepo
	salt   string
}

// NewGrantLedger creates a new GrantLedger.
func NewGrantLedger(grants repo.GrantRepo, salt string) *GrantLedger {
	return &GrantLedger{grants: grants, salt: salt}
}

// Invite provisions the grant pair for a fresh activation: the inviter's own
// grant pre-granted, the partner's ungranted with a new 6-digit one-time PIN.
// Prior grants between the pair are superseded so stale PINs die immediately.
// The plaintext PIN is returned exactly once and never stored.
func (l *GrantLedger) Invite(ctx context.Context, sess model.ConversationSession, inviter, partner, deviceType string) (string, error) {
	pin, err := generateGrantPin()
	if err != nil {
		return "", err
	}
	pinHash := hashPin(partner, pin, l.salt)
	now := time.Now()
	grantedAt := now

	inviterGrant := model.AccessGrant{
		ID:              uuid.New(),
		SessionID:       sess.SessionID,
		UserID:          inviter,
		PartnerID:       partner,
		AccessGranted:   true,
		AccessGrantedAt: &grantedAt,
		DeviceType:      deviceType,
		ExpireAt:        now.Add(grantTTL),
	}
	partnerGrant := model.AccessGrant{
		ID:        uuid.New(),
		SessionID: sess.SessionID,
		UserID:    partner,
		PartnerID: inviter,
		PinHash:   &pinHash,
		ExpireAt:  now.Add(grantTTL),
	}

	if err := l.grants.Replace(ctx, inviterGrant, partnerGrant); err != nil {
		return "", err
	}
	return pin, nil
}

// Redeem tests the presented PIN against every pending invitation the user
// holds; the PIN alone authorizes, independent of who invited. Marking the
// grant is a conditional update, so concurrent redemptions of the same PIN
// cannot both win. Failure is uniform: callers learn nothing about which
// record, if any, came close.
func (l *GrantLedger) Redeem(ctx context.Context, user, pin, deviceType string) (model.AccessGrant, error) {
	candidates, err := l.grants.ListRedeemCandidates(ctx, user)
	if err != nil {
		return model.AccessGrant{}, err
	}
	presented := []byte(hashPin(user, pin, l.salt))
	for _, g := range candidates {
		if g.PinHash == nil || !constantTimeCompare(presented, []byte(*g.PinHash)) {
			continue
		}
		granted, err := l.grants.MarkGranted(ctx, g.ID, deviceType)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				// Lost the race or expired between scan and update.
				continue
			}
			return model.AccessGrant{}, err
		}
		return granted, nil
	}
	return model.AccessGrant{}, apperr.ErrInvalidOrExpiredPin
}

// Validate confirms the user holds an active, granted, unexpired grant for the
// session, refreshing the grant's activity timestamp.
func (l *GrantLedger) Validate(ctx context.Context, sessionID, user string) (model.AccessGrant, error) {
	g, err := l.grants.GetActiveGrant(ctx, sessionID, user)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return model.AccessGrant{}, apperr.ErrNoAccess
		}
		return model.AccessGrant{}, err
	}
	if err := l.grants.TouchGrant(ctx, g.ID); err != nil {
		return model.AccessGrant{}, err
	}
	return g, nil
}

// Reauthenticate re-checks the grant's original PIN hash and, on match,
// extends the expiry window. Recovers access after an idle lock without
// re-inviting. The inviter's grant has no PIN hash and cannot be
// reauthenticated this way.
func (l *GrantLedger) Reauthenticate(ctx context.Context, sessionID, user, pin, deviceType string) (time.Time, error) {
	g, err := l.grants.GetBySessionAndUser(ctx, sessionID, user)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return time.Time{}, apperr.ErrSessionNotFound
		}
		return time.Time{}, err
	}
	if g.PinHash == nil ||
		!constantTimeCompare([]byte(hashPin(user, pin, l.salt)), []byte(*g.PinHash)) {
		return time.Time{}, apperr.ErrInvalidCredential
	}

	expireAt := time.Now().Add(grantTTL)
	if err := l.grants.ExtendExpiry(ctx, g.ID, expireAt, deviceType); err != nil {
		return time.Time{}, err
	}
	return expireAt, nil
}
