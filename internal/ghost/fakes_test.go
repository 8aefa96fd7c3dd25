package ghost

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lockblip/server/internal/model"
	"github.com/lockblip/server/internal/repo"
)

// In-memory repository fakes mirroring the Postgres semantics the services
// rely on: not-found sentinels, conditional updates, expiry filters.

type fakeIdentityRepo struct {
	mu         sync.Mutex
	identities map[string]model.GhostIdentity
}

func newFakeIdentityRepo() *fakeIdentityRepo {
	return &fakeIdentityRepo{identities: make(map[string]model.GhostIdentity)}
}

func (f *fakeIdentityRepo) Create(_ context.Context, username, pinHash string, autoLockTimeout int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.identities[username]; ok {
		return fmt.Errorf("identity for %q: %w", username, repo.ErrDuplicate)
	}
	f.identities[username] = model.GhostIdentity{
		Username:        username,
		PinHash:         pinHash,
		AutoLockTimeout: autoLockTimeout,
		CreatedAt:       time.Now(),
	}
	return nil
}

func (f *fakeIdentityRepo) GetByUsername(_ context.Context, username string) (model.GhostIdentity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.identities[username]
	if !ok {
		return model.GhostIdentity{}, fmt.Errorf("identity %q: %w", username, repo.ErrNotFound)
	}
	return id, nil
}

func (f *fakeIdentityRepo) SetSessionToken(_ context.Context, username, token string, expiry time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.identities[username]
	if !ok {
		return fmt.Errorf("identity %q: %w", username, repo.ErrNotFound)
	}
	id.ActiveSessionToken = &token
	id.SessionTokenExpiry = &expiry
	f.identities[username] = id
	return nil
}

func (f *fakeIdentityRepo) ClearSessionToken(_ context.Context, username string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.identities[username]
	if !ok {
		return nil
	}
	id.ActiveSessionToken = nil
	id.SessionTokenExpiry = nil
	f.identities[username] = id
	return nil
}

func (f *fakeIdentityRepo) SetBiometric(_ context.Context, username, biometricToken string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.identities[username]
	if !ok {
		return fmt.Errorf("identity %q: %w", username, repo.ErrNotFound)
	}
	id.BiometricEnabled = true
	id.BiometricToken = &biometricToken
	f.identities[username] = id
	return nil
}

type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]model.ConversationSession
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: make(map[string]model.ConversationSession)}
}

func (f *fakeSessionRepo) FindActiveByPair(_ context.Context, participantA, participantB string) (model.ConversationSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.ParticipantA == participantA && s.ParticipantB == participantB &&
			s.IsActive && s.ExpireAt.After(time.Now()) {
			return s, nil
		}
	}
	return model.ConversationSession{}, fmt.Errorf("session for pair: %w", repo.ErrNotFound)
}

func (f *fakeSessionRepo) OpenOrReuse(_ context.Context, candidate model.ConversationSession) (model.ConversationSession, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.ParticipantA == candidate.ParticipantA && s.ParticipantB == candidate.ParticipantB &&
			s.IsActive && s.ExpireAt.After(time.Now()) {
			return s, false, nil
		}
	}
	f.sessions[candidate.SessionID] = candidate
	return candidate, true, nil
}

func (f *fakeSessionRepo) GetActive(_ context.Context, sessionID string) (model.ConversationSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok || !s.IsActive || !s.ExpireAt.After(time.Now()) {
		return model.ConversationSession{}, fmt.Errorf("session %q: %w", sessionID, repo.ErrNotFound)
	}
	return s, nil
}

func (f *fakeSessionRepo) Touch(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[sessionID]; ok {
		s.LastActivity = time.Now()
		f.sessions[sessionID] = s
	}
	return nil
}

func (f *fakeSessionRepo) Terminate(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok || !s.IsActive {
		return fmt.Errorf("session %q: %w", sessionID, repo.ErrNotFound)
	}
	s.IsActive = false
	f.sessions[sessionID] = s
	return nil
}

func (f *fakeSessionRepo) ListExpiredActive(_ context.Context, limit int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for id, s := range f.sessions {
		if s.IsActive && !s.ExpireAt.After(time.Now()) {
			ids = append(ids, id)
			if len(ids) == limit {
				break
			}
		}
	}
	return ids, nil
}

type fakeGrantRepo struct {
	mu     sync.Mutex
	grants map[uuid.UUID]model.AccessGrant
}

func newFakeGrantRepo() *fakeGrantRepo {
	return &fakeGrantRepo{grants: make(map[uuid.UUID]model.AccessGrant)}
}

func (f *fakeGrantRepo) Replace(_ context.Context, inviterGrant, partnerGrant model.AccessGrant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, g := range f.grants {
		if (g.UserID == inviterGrant.UserID && g.PartnerID == inviterGrant.PartnerID) ||
			(g.UserID == inviterGrant.PartnerID && g.PartnerID == inviterGrant.UserID) {
			delete(f.grants, id)
		}
	}
	f.grants[inviterGrant.ID] = inviterGrant
	f.grants[partnerGrant.ID] = partnerGrant
	return nil
}

func (f *fakeGrantRepo) ListRedeemCandidates(_ context.Context, userID string) ([]model.AccessGrant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.AccessGrant
	for _, g := range f.grants {
		if g.UserID == userID && !g.AccessGranted && g.PinHash != nil && g.ExpireAt.After(time.Now()) {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeGrantRepo) MarkGranted(_ context.Context, id uuid.UUID, deviceType string) (model.AccessGrant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.grants[id]
	if !ok || g.AccessGranted || !g.ExpireAt.After(time.Now()) {
		return model.AccessGrant{}, fmt.Errorf("grant %s: %w", id, repo.ErrNotFound)
	}
	now := time.Now()
	g.AccessGranted = true
	g.AccessGrantedAt = &now
	g.DeviceType = deviceType
	g.LastActivity = now
	f.grants[id] = g
	return g, nil
}

func (f *fakeGrantRepo) GetActiveGrant(_ context.Context, sessionID, userID string) (model.AccessGrant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, g := range f.grants {
		if g.SessionID == sessionID && g.UserID == userID && g.AccessGranted && g.ExpireAt.After(time.Now()) {
			return g, nil
		}
	}
	return model.AccessGrant{}, fmt.Errorf("active grant: %w", repo.ErrNotFound)
}

func (f *fakeGrantRepo) GetBySessionAndUser(_ context.Context, sessionID, userID string) (model.AccessGrant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var found *model.AccessGrant
	for _, g := range f.grants {
		g := g
		if g.SessionID == sessionID && g.UserID == userID {
			if found == nil || g.CreatedAt.After(found.CreatedAt) {
				found = &g
			}
		}
	}
	if found == nil {
		return model.AccessGrant{}, fmt.Errorf("grant: %w", repo.ErrNotFound)
	}
	return *found, nil
}

func (f *fakeGrantRepo) TouchGrant(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if g, ok := f.grants[id]; ok {
		g.LastActivity = time.Now()
		f.grants[id] = g
	}
	return nil
}

func (f *fakeGrantRepo) ExtendExpiry(_ context.Context, id uuid.UUID, expireAt time.Time, deviceType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.grants[id]
	if !ok {
		return fmt.Errorf("grant %s: %w", id, repo.ErrNotFound)
	}
	g.ExpireAt = expireAt
	g.DeviceType = deviceType
	f.grants[id] = g
	return nil
}

func (f *fakeGrantRepo) DeleteExpiredUngranted(_ context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, g := range f.grants {
		if !g.AccessGranted && !g.ExpireAt.After(time.Now()) {
			delete(f.grants, id)
			n++
		}
	}
	return n, nil
}

type fakeMessageRepo struct {
	mu       sync.Mutex
	messages map[uuid.UUID]model.GhostMessage
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{messages: make(map[uuid.UUID]model.GhostMessage)}
}

func (f *fakeMessageRepo) live(m model.GhostMessage) bool {
	return m.DeleteAt == nil || m.DeleteAt.After(time.Now())
}

func (f *fakeMessageRepo) Create(_ context.Context, m model.GhostMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages[m.ID] = m
	return nil
}

func (f *fakeMessageRepo) ListLive(_ context.Context, sessionID string) ([]model.GhostMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.GhostMessage
	for _, m := range f.messages {
		if m.SessionID == sessionID && f.live(m) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeMessageRepo) GetLive(_ context.Context, id uuid.UUID) (model.GhostMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[id]
	if !ok || !f.live(m) {
		return model.GhostMessage{}, fmt.Errorf("message %s: %w", id, repo.ErrNotFound)
	}
	return m, nil
}

func (f *fakeMessageRepo) MarkViewed(_ context.Context, id uuid.UUID, viewedAt, deleteAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[id]
	if !ok || m.Viewed {
		return false, nil
	}
	m.Viewed = true
	m.ViewTimestamp = &viewedAt
	m.DeleteAt = &deleteAt
	f.messages[id] = m
	return true, nil
}

func (f *fakeMessageRepo) DeleteExpired(_ context.Context) ([]repo.DeletedMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var deleted []repo.DeletedMessage
	for id, m := range f.messages {
		if m.DeleteAt != nil && !m.DeleteAt.After(time.Now()) {
			deleted = append(deleted, repo.DeletedMessage{ID: id, SessionID: m.SessionID})
			delete(f.messages, id)
		}
	}
	return deleted, nil
}

type fakeAuditRepo struct {
	mu      sync.Mutex
	entries []model.AccessAuditEntry
}

func newFakeAuditRepo() *fakeAuditRepo {
	return &fakeAuditRepo{}
}

func (f *fakeAuditRepo) Insert(_ context.Context, e model.AccessAuditEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e.ID = int64(len(f.entries) + 1)
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeAuditRepo) ListBySession(_ context.Context, sessionID string, limit int) ([]model.AccessAuditEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.AccessAuditEntry
	for i := len(f.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if f.entries[i].SessionID == sessionID {
			out = append(out, f.entries[i])
		}
	}
	return out, nil
}

func (f *fakeAuditRepo) snapshot() []model.AccessAuditEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.AccessAuditEntry, len(f.entries))
	copy(out, f.entries)
	return out
}
