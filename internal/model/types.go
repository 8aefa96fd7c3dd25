package model

import (
	"time"

	"github.com/google/uuid"
)

// GhostIdentity holds a user's Ghost Mode unlock credentials. Created on first
// PIN setup; the active session token rotates on every unlock and heartbeat.
type GhostIdentity struct {
	Username           string
	PinHash            string
	ActiveSessionToken *string
	SessionTokenExpiry *time.Time
	BiometricEnabled   bool
	BiometricToken     *string
	AutoLockTimeout    int // seconds of inactivity before the client re-locks
	CreatedAt          time.Time
}

// ConversationSession is the ephemeral hidden conversation between exactly two
// users. Participants are stored in sorted order so the same pair always maps
// to the same session while one is active.
type ConversationSession struct {
	SessionID    string
	ParticipantA string
	ParticipantB string
	SessionKey   []byte
	CreatedBy    string
	LastActivity time.Time
	IsActive     bool
	ExpireAt     time.Time
	CreatedAt    time.Time
}

// HasParticipant reports whether username is one of the two participants.
func (s ConversationSession) HasParticipant(username string) bool {
	return username == s.ParticipantA || username == s.ParticipantB
}

// PartnerOf returns the other participant. ok is false when username is not a
// participant at all.
func (s ConversationSession) PartnerOf(username string) (partner string, ok bool) {
	switch username {
	case s.ParticipantA:
		return s.ParticipantB, true
	case s.ParticipantB:
		return s.ParticipantA, true
	}
	return "", false
}

// Participants returns both usernames in canonical order.
func (s ConversationSession) Participants() []string {
	return []string{s.ParticipantA, s.ParticipantB}
}

// AccessGrant is a directed invitation into a session. The inviter's own grant
// is created pre-granted; the partner's starts ungranted with a one-time PIN
// hash and becomes granted only by redeeming that PIN.
type AccessGrant struct {
	ID              uuid.UUID
	SessionID       string
	UserID          string
	PartnerID       string
	PinHash         *string
	AccessGranted   bool
	AccessGrantedAt *time.Time
	DeviceType      string
	ExpireAt        time.Time
	LastActivity    time.Time
	CreatedAt       time.Time
}

// GhostMessage is a single encrypted message. DeleteAt stays nil until the
// receiver's first view, then is fixed at ViewTimestamp + AutoDeleteTimer.
type GhostMessage struct {
	ID                uuid.UUID
	SessionID         string
	SenderID          string
	ReceiverID        string
	EncryptedPayload  string
	EncryptedMediaURL *string
	MessageType       string
	Viewed            bool
	ViewTimestamp     *time.Time
	AutoDeleteTimer   int // seconds
	DeleteAt          *time.Time
	CreatedAt         time.Time
}

// AccessAuditEntry is an append-only security event record. Application logic
// never mutates entries; only session termination's bulk cleanup removes them.
type AccessAuditEntry struct {
	ID         int64
	SessionID  string
	UserID     string
	EventType  string
	DeviceType string
	IPAddress  *string
	UserAgent  *string
	Metadata   map[string]string
	CreatedAt  time.Time
}
