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

const (
	defaultAutoDeleteTimer = 30 // seconds
	minAutoDeleteTimer     = 5
	maxAutoDeleteTimer     = 300
)

// decryptFailedPlaceholder is returned inline when a single message's payload
// cannot be opened, so one corrupt record never blocks listing the rest.
const decryptFailedPlaceholder = "[message could not be decrypted]"

var allowedMessageTypes = map[string]bool{
	"text":  true,
	"audio": true,
	"image": true,
	"video": true,
}

// MessageView is a decrypted message as served to a participant.
type MessageView struct {
	ID              uuid.UUID
	SessionID       string
	SenderID        string
	ReceiverID      string
	Message         string
	MediaURL        *string
	MessageType     string
	Viewed          bool
	ViewTimestamp   *time.Time
	AutoDeleteTimer int
	DeleteAt        *time.Time
	Timestamp       time.Time
}

// ViewReceipt reports a message's (possibly pre-existing) view state.
type ViewReceipt struct {
	ViewTimestamp   time.Time
	DeleteAt        time.Time
	AutoDeleteTimer int
}

// MessageStore persists encrypted messages and drives the view-triggered
// self-destruct clock.
type MessageStore struct {
	messages repo.MessageRepo
}

// NewMessageStore creates a new MessageStore.
func NewMessageStore(messages repo.MessageRepo) *MessageStore {
	return &MessageStore{messages: messages}
}

// Send encrypts content (and the media URL, when present) under the session
// key and stores the record unviewed, with no delete clock yet.
// autoDeleteTimer of 0 means the 30-second default.
func (s *MessageStore) Send(ctx context.Context, sess model.ConversationSession, sender, content, messageType string, mediaURL *string, autoDeleteTimer int) (model.GhostMessage, error) {
	receiver, ok := sess.PartnerOf(sender)
	if !ok {
		return model.GhostMessage{}, apperr.ErrNotAParticipant
	}
	if messageType == "" {
		messageType = "text"
	}
	if !allowedMessageTypes[messageType] {
		return model.GhostMessage{}, apperr.InvalidArg("unknown message type")
	}
	if autoDeleteTimer == 0 {
		autoDeleteTimer = defaultAutoDeleteTimer
	}
	if autoDeleteTimer < minAutoDeleteTimer || autoDeleteTimer > maxAutoDeleteTimer {
		return model.GhostMessage{}, apperr.InvalidArg("autoDeleteTimer out of range")
	}

	payload, err := Encrypt(sess.SessionKey, content)
	if err != nil {
		return model.GhostMessage{}, err
	}
	encryptedMediaURL, err := EncryptOptional(sess.SessionKey, mediaURL)
	if err != nil {
		return model.GhostMessage{}, err
	}

	m := model.GhostMessage{
		ID:                uuid.New(),
		SessionID:         sess.SessionID,
		SenderID:          sender,
		ReceiverID:        receiver,
		EncryptedPayload:  payload,
		EncryptedMediaURL: encryptedMediaURL,
		MessageType:       messageType,
		AutoDeleteTimer:   autoDeleteTimer,
		CreatedAt:         time.Now(),
	}
	if err := s.messages.Create(ctx, m); err != nil {
		return model.GhostMessage{}, err
	}
	return m, nil
}

// ListFor returns the session's live messages decrypted, oldest first. A
// message that fails to decrypt degrades to a placeholder instead of failing
// the whole listing.
func (s *MessageStore) ListFor(ctx context.Context, sess model.ConversationSession, requester string) ([]MessageView, error) {
	if !sess.HasParticipant(requester) {
		return nil, apperr.ErrNotAParticipant
	}
	records, err := s.messages.ListLive(ctx, sess.SessionID)
	if err != nil {
		return nil, err
	}

	views := make([]MessageView, 0, len(records))
	for _, m := range records {
		view := MessageView{
			ID:              m.ID,
			SessionID:       m.SessionID,
			SenderID:        m.SenderID,
			ReceiverID:      m.ReceiverID,
			MessageType:     m.MessageType,
			Viewed:          m.Viewed,
			ViewTimestamp:   m.ViewTimestamp,
			AutoDeleteTimer: m.AutoDeleteTimer,
			DeleteAt:        m.DeleteAt,
			Timestamp:       m.CreatedAt,
		}
		if text, err := Decrypt(sess.SessionKey, m.EncryptedPayload); err == nil {
			view.Message = text
		} else {
			view.Message = decryptFailedPlaceholder
		}
		if url, err := DecryptOptional(sess.SessionKey, m.EncryptedMediaURL); err == nil {
			view.MediaURL = url
		}
		views = append(views, view)
	}
	return views, nil
}

// MarkViewed starts the message's self-destruct clock on the receiver's first
// view: delete_at = now + auto_delete_timer, immutable once set. Repeat calls
// are idempotent and return the original timestamps. The sender can never
// start the clock.
func (s *MessageStore) MarkViewed(ctx context.Context, messageID uuid.UUID, viewer string) (ViewReceipt, error) {
	m, err := s.messages.GetLive(ctx, messageID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ViewReceipt{}, apperr.ErrMessageNotFound
		}
		return ViewReceipt{}, err
	}
	if viewer != m.ReceiverID {
		return ViewReceipt{}, apperr.ErrNotRecipient
	}
	if m.Viewed && m.ViewTimestamp != nil && m.DeleteAt != nil {
		return ViewReceipt{
			ViewTimestamp:   *m.ViewTimestamp,
			DeleteAt:        *m.DeleteAt,
			AutoDeleteTimer: m.AutoDeleteTimer,
		}, nil
	}

	viewedAt := time.Now()
	deleteAt := viewedAt.Add(time.Duration(m.AutoDeleteTimer) * time.Second)
	updated, err := s.messages.MarkViewed(ctx, messageID, viewedAt, deleteAt)
	if err != nil {
		return ViewReceipt{}, err
	}
	if !updated {
		// Raced with another first view; report the persisted timestamps.
		m, err = s.messages.GetLive(ctx, messageID)
		if err != nil || m.ViewTimestamp == nil || m.DeleteAt == nil {
			return ViewReceipt{}, apperr.ErrMessageNotFound
		}
		viewedAt, deleteAt = *m.ViewTimestamp, *m.DeleteAt
	}
	return ViewReceipt{
		ViewTimestamp:   viewedAt,
		DeleteAt:        deleteAt,
		AutoDeleteTimer: m.AutoDeleteTimer,
	}, nil
}
