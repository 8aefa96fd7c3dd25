package ghost

import (
	"context"
	"encoding/base64"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/lockblip/server/internal/events"
	"github.com/lockblip/server/internal/model"
	"github.com/lockblip/server/pkg/apperr"
)

// Service composes the Ghost Mode components behind the request handlers. It
// is the only layer that talks to the event transport and the audit sink.
type Service struct {
	creds    *CredentialStore
	registry *SessionRegistry
	grants   *GrantLedger
	messages *MessageStore
	audit    *AuditSink
	events   events.Publisher
}

// NewService wires the Ghost Mode core together.
func NewService(
	creds *CredentialStore,
	registry *SessionRegistry,
	grants *GrantLedger,
	messages *MessageStore,
	audit *AuditSink,
	publisher events.Publisher,
) *Service {
	return &Service{
		creds:    creds,
		registry: registry,
		grants:   grants,
		messages: messages,
		audit:    audit,
		events:   publisher,
	}
}

// Credentials exposes the unlock lifecycle to the handlers.
func (s *Service) Credentials() *CredentialStore { return s.creds }

// ActivateResult is returned to the inviter. Pin is the partner's one-time
// PIN; it is shown here once and never retrievable again.
type ActivateResult struct {
	SessionID string
	Pin       string
	PartnerID string
	ExpireAt  time.Time
}

// Activate provisions (or reuses) the hidden conversation with a partner and
// issues a fresh one-time PIN for them. Requires a currently valid unlock
// token; first activation of a pair additionally requires the disclaimer flag.
func (s *Service) Activate(ctx context.Context, user, ghostToken, partner, deviceType string, disclaimerAgreed bool, meta RequestMeta) (ActivateResult, error) {
	if partner == "" || partner == user {
		return ActivateResult{}, apperr.InvalidArg("a distinct partner is required")
	}
	if !s.creds.Verify(ctx, user, ghostToken) {
		return ActivateResult{}, apperr.ErrGhostLocked
	}

	exists, err := s.registry.HasActivePair(ctx, user, partner)
	if err != nil {
		return ActivateResult{}, err
	}
	if !exists && !disclaimerAgreed {
		return ActivateResult{}, apperr.ErrDisclaimerRequired
	}

	sess, created, err := s.registry.OpenOrReuse(ctx, user, partner)
	if err != nil {
		return ActivateResult{}, err
	}
	if created {
		s.audit.Record(sess.SessionID, user, EventSessionCreated, meta, nil)
	}

	pin, err := s.grants.Invite(ctx, sess, user, partner, deviceType)
	if err != nil {
		return ActivateResult{}, err
	}
	s.audit.Record(sess.SessionID, user, EventPinGenerated, meta, map[string]string{"partner": partner})

	return ActivateResult{
		SessionID: sess.SessionID,
		Pin:       pin,
		PartnerID: partner,
		ExpireAt:  sess.ExpireAt,
	}, nil
}

// JoinResult is returned to a partner who redeemed a one-time PIN. SessionKey
// is base64; it only ever travels over this authenticated response and the
// validate response.
type JoinResult struct {
	SessionID    string
	SessionKey   string
	PartnerID    string
	Participants []string
	ExpireAt     time.Time
}

// Join redeems a one-time PIN and hands the joining user the session key.
func (s *Service) Join(ctx context.Context, user, pin, deviceType string, meta RequestMeta) (JoinResult, error) {
	grant, err := s.grants.Redeem(ctx, user, pin, deviceType)
	if err != nil {
		return JoinResult{}, err
	}

	sess, err := s.registry.Get(ctx, grant.SessionID)
	if err != nil {
		// Grant outlived its session; indistinguishable from a bad PIN.
		return JoinResult{}, apperr.ErrInvalidOrExpiredPin
	}

	s.audit.Record(sess.SessionID, user, EventAccessGranted, meta, nil)
	s.audit.Record(sess.SessionID, user, EventSessionJoined, meta, nil)
	s.events.Publish(ctx, events.Event{
		Kind:      events.KindPartnerJoined,
		SessionID: sess.SessionID,
		Payload:   map[string]any{"username": user},
	})

	return JoinResult{
		SessionID:    sess.SessionID,
		SessionKey:   base64.StdEncoding.EncodeToString(sess.SessionKey),
		PartnerID:    grant.PartnerID,
		Participants: sess.Participants(),
		ExpireAt:     sess.ExpireAt,
	}, nil
}

// ValidationResult reports whether the user currently holds access; key and
// partner fields are set only when valid.
type ValidationResult struct {
	Valid        bool
	SessionKey   string
	PartnerID    string
	Participants []string
}

// ValidateAccess checks the user's grant and the session's liveness. Invalid
// access is a result, not an error, so clients can poll it cheaply.
func (s *Service) ValidateAccess(ctx context.Context, sessionID, user string, meta RequestMeta) (ValidationResult, error) {
	sess, err := s.registry.Get(ctx, sessionID)
	if err != nil {
		if apperr.CodeOf(err) == apperr.CodeNotFound {
			return ValidationResult{}, nil
		}
		return ValidationResult{}, err
	}
	grant, err := s.grants.Validate(ctx, sessionID, user)
	if err != nil {
		if apperr.CodeOf(err) == apperr.CodePermissionDenied {
			s.audit.Record(sessionID, user, EventAccessDenied, meta, nil)
			return ValidationResult{}, nil
		}
		return ValidationResult{}, err
	}
	return ValidationResult{
		Valid:        true,
		SessionKey:   base64.StdEncoding.EncodeToString(sess.SessionKey),
		PartnerID:    grant.PartnerID,
		Participants: sess.Participants(),
	}, nil
}

// Reauthenticate re-checks the original grant PIN and extends the grant.
func (s *Service) Reauthenticate(ctx context.Context, sessionID, user, pin, deviceType string, meta RequestMeta) (time.Time, error) {
	expireAt, err := s.grants.Reauthenticate(ctx, sessionID, user, pin, deviceType)
	if err != nil {
		if apperr.CodeOf(err) == apperr.CodeUnauthenticated {
			s.audit.Record(sessionID, user, EventReauthFailed, meta, nil)
		}
		return time.Time{}, err
	}
	s.audit.Record(sessionID, user, EventReauthSuccess, meta, nil)
	return expireAt, nil
}

// SendMessage encrypts and stores a message, refreshes session activity, and
// notifies the session channel.
func (s *Service) SendMessage(ctx context.Context, sessionID, sender, content, messageType string, mediaURL *string, autoDeleteTimer int) (model.GhostMessage, error) {
	sess, err := s.registry.Get(ctx, sessionID)
	if err != nil {
		return model.GhostMessage{}, err
	}
	m, err := s.messages.Send(ctx, sess, sender, content, messageType, mediaURL, autoDeleteTimer)
	if err != nil {
		return model.GhostMessage{}, err
	}
	if err := s.registry.Touch(ctx, sessionID); err != nil {
		return model.GhostMessage{}, err
	}

	s.events.Publish(ctx, events.Event{
		Kind:      events.KindReceiveMessage,
		SessionID: sessionID,
		Payload: map[string]any{
			"messageId":   m.ID.String(),
			"senderId":    m.SenderID,
			"receiverId":  m.ReceiverID,
			"messageType": m.MessageType,
			"timestamp":   m.CreatedAt,
		},
	})
	return m, nil
}

// ListMessages returns the session's live messages decrypted for a participant.
func (s *Service) ListMessages(ctx context.Context, sessionID, requester string) ([]MessageView, error) {
	sess, err := s.registry.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.messages.ListFor(ctx, sess, requester)
}

// ViewMessage marks the receiver's first view and returns the (possibly
// pre-existing) view receipt.
func (s *Service) ViewMessage(ctx context.Context, messageID uuid.UUID, viewer string) (ViewReceipt, error) {
	return s.messages.MarkViewed(ctx, messageID, viewer)
}

// LogClientEvent records a client-reported security event (screenshot, blur,
// idle lock, reauth required) and relays it to the session channel. Per
// contract it never surfaces failure: an unknown event type or a missing
// grant is dropped silently.
func (s *Service) LogClientEvent(ctx context.Context, sessionID, user string, event EventType, meta RequestMeta, metadata map[string]string) {
	if !ClientEventType(event) {
		log.Printf("ghost: ignoring unknown client event %q for session %s", event, sessionID)
		return
	}
	if _, err := s.grants.Validate(ctx, sessionID, user); err != nil {
		return
	}
	s.audit.Record(sessionID, user, event, meta, metadata)
	s.events.Publish(ctx, events.Event{
		Kind:      events.KindSecurityEvent,
		SessionID: sessionID,
		Payload:   map[string]any{"eventType": string(event), "username": user},
	})
}

// AccessLogs returns the session's audit entries for a user holding an active
// grant.
func (s *Service) AccessLogs(ctx context.Context, sessionID, user string) ([]model.AccessAuditEntry, error) {
	if _, err := s.grants.Validate(ctx, sessionID, user); err != nil {
		return nil, err
	}
	return s.audit.Query(ctx, sessionID)
}

// Terminate closes the session and purges all dependent state, then records a
// surviving termination entry and notifies both parties.
func (s *Service) Terminate(ctx context.Context, sessionID, user, deviceType string, meta RequestMeta) error {
	if _, err := s.registry.Terminate(ctx, sessionID, user); err != nil {
		return err
	}
	s.audit.Record(sessionID, user, EventSessionTerminated, meta, nil)
	s.events.Publish(ctx, events.Event{
		Kind:      events.KindPartnerLeft,
		SessionID: sessionID,
		Payload:   map[string]any{"username": user},
	})
	s.events.Publish(ctx, events.Event{
		Kind:      events.KindSessionTerminated,
		SessionID: sessionID,
		Payload:   map[string]any{"terminatedBy": user},
	})
	return nil
}
