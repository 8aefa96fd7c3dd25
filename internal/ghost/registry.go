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

const sessionTTL = 24 * time.Hour

// SessionRegistry owns the canonical ephemeral-conversation objects.
type SessionRegistry struct {
	sessions repo.SessionRepo
}

// NewSessionRegistry creates a new SessionRegistry.
func NewSessionRegistry(sessions repo.SessionRepo) *SessionRegistry {
	return &SessionRegistry{sessions: sessions}
}

// CanonicalPair sorts two usernames so the same unordered pair always maps to
// the same session.
func CanonicalPair(userA, userB string) (string, string) {
	if userB < userA {
		return userB, userA
	}
	return userA, userB
}

// HasActivePair reports whether an active session already exists for the pair.
func (r *SessionRegistry) HasActivePair(ctx context.Context, userA, userB string) (bool, error) {
	a, b := CanonicalPair(userA, userB)
	_, err := r.sessions.FindActiveByPair(ctx, a, b)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// OpenOrReuse returns the pair's open session unchanged, including its
// existing key, or creates a new one with a fresh key and a 24-hour expiry.
// created reports which happened.
func (r *SessionRegistry) OpenOrReuse(ctx context.Context, userA, userB string) (sess model.ConversationSession, created bool, err error) {
	a, b := CanonicalPair(userA, userB)

	key, err := GenerateSessionKey()
	if err != nil {
		return model.ConversationSession{}, false, err
	}
	now := time.Now()
	candidate := model.ConversationSession{
		SessionID:    uuid.NewString(),
		ParticipantA: a,
		ParticipantB: b,
		SessionKey:   key,
		CreatedBy:    userA,
		LastActivity: now,
		IsActive:     true,
		ExpireAt:     now.Add(sessionTTL),
		CreatedAt:    now,
	}
	return r.sessions.OpenOrReuse(ctx, candidate)
}

// Get returns the session while it is active and unexpired.
func (r *SessionRegistry) Get(ctx context.Context, sessionID string) (model.ConversationSession, error) {
	sess, err := r.sessions.GetActive(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return model.ConversationSession{}, apperr.ErrSessionNotFound
		}
		return model.ConversationSession{}, err
	}
	return sess, nil
}

// Touch refreshes last_activity; called on every message send.
func (r *SessionRegistry) Touch(ctx context.Context, sessionID string) error {
	return r.sessions.Touch(ctx, sessionID)
}

// Terminate closes the session and purges all dependent grants and messages.
// Only a participant may terminate. Irreversible.
func (r *SessionRegistry) Terminate(ctx context.Context, sessionID, requestingUser string) (model.ConversationSession, error) {
	sess, err := r.Get(ctx, sessionID)
	if err != nil {
		return model.ConversationSession{}, err
	}
	if !sess.HasParticipant(requestingUser) {
		return model.ConversationSession{}, apperr.ErrNotAParticipant
	}
	if err := r.sessions.Terminate(ctx, sessionID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return model.ConversationSession{}, apperr.ErrSessionNotFound
		}
		return model.ConversationSession{}, err
	}
	return sess, nil
}
