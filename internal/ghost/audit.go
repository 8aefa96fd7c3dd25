package ghost

import (
	"context"
	"log"
	"time"

	"github.com/lockblip/server/internal/model"
	"github.com/lockblip/server/internal/repo"
	"github.com/lockblip/server/pkg/apperr"
)

// EventType is a security-relevant audit event kind.
type EventType string

const (
	EventSessionCreated    EventType = "session_created"
	EventPinGenerated      EventType = "pin_generated"
	EventAccessGranted     EventType = "access_granted"
	EventAccessDenied      EventType = "access_denied"
	EventSessionJoined     EventType = "session_joined"
	EventReauthSuccess     EventType = "reauth_success"
	EventReauthFailed      EventType = "reauth_failed"
	EventScreenshotAttempt EventType = "screenshot_attempt"
	EventBlurActivated     EventType = "blur_activated"
	EventIdleLock          EventType = "idle_lock"
	EventReauthRequired    EventType = "reauth_required"
	EventSessionTerminated EventType = "session_terminated"
)

// clientEventTypes are the kinds clients may report via the log-event endpoint.
var clientEventTypes = map[EventType]bool{
	EventScreenshotAttempt: true,
	EventBlurActivated:     true,
	EventIdleLock:          true,
	EventReauthRequired:    true,
}

// ClientEventType reports whether clients may submit this event kind.
func ClientEventType(t EventType) bool {
	return clientEventTypes[t]
}

const (
	auditQueueSize    = 1024
	auditWriteTimeout = 5 * time.Second
	auditPageSize     = 100
)

// RequestMeta carries the request attributes recorded with each entry.
type RequestMeta struct {
	DeviceType string
	IPAddress  string
	UserAgent  string
}

// AuditSink is a non-blocking best-effort writer in front of the audit log.
// Record enqueues and returns immediately; a single goroutine drains the
// queue. Log failures are reported operationally and never propagate to the
// chat path.
type AuditSink struct {
	entries repo.AuditRepo
	queue   chan model.AccessAuditEntry
	done    chan struct{}
}

// NewAuditSink creates the sink and starts its writer goroutine.
func NewAuditSink(entries repo.AuditRepo) *AuditSink {
	s := &AuditSink{
		entries: entries,
		queue:   make(chan model.AccessAuditEntry, auditQueueSize),
		done:    make(chan struct{}),
	}
	go s.drain()
	return s
}

func (s *AuditSink) drain() {
	defer close(s.done)
	for e := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), auditWriteTimeout)
		if err := s.entries.Insert(ctx, e); err != nil {
			log.Printf("audit: insert %s for session %s: %v", e.EventType, e.SessionID, err)
		}
		cancel()
	}
}

// Record appends an audit entry without blocking. On a full queue the entry is
// dropped with an operational log line; the calling operation always proceeds.
func (s *AuditSink) Record(sessionID, userID string, event EventType, meta RequestMeta, metadata map[string]string) {
	e := model.AccessAuditEntry{
		SessionID:  sessionID,
		UserID:     userID,
		EventType:  string(event),
		DeviceType: meta.DeviceType,
	}
	if meta.IPAddress != "" {
		e.IPAddress = &meta.IPAddress
	}
	if meta.UserAgent != "" {
		e.UserAgent = &meta.UserAgent
	}
	e.Metadata = metadata

	select {
	case s.queue <- e:
	default:
		log.Printf("audit: queue full, dropping %s for session %s", event, sessionID)
	}
}

// Query returns the session's entries newest-first, capped at a page.
func (s *AuditSink) Query(ctx context.Context, sessionID string) ([]model.AccessAuditEntry, error) {
	entries, err := s.entries.ListBySession(ctx, sessionID, auditPageSize)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "query audit log", err)
	}
	return entries, nil
}

// Close stops accepting entries and waits for the queue to flush.
func (s *AuditSink) Close() {
	close(s.queue)
	<-s.done
}
