package ghost

import (
	"context"
	"log"
	"time"

	"github.com/lockblip/server/internal/events"
	"github.com/lockblip/server/internal/repo"
)

const sweepBatchSize = 100

// Sweeper reclaims expired state in the background: elapsed self-destruct
// messages, never-redeemed invitations, and sessions past their hard expiry.
// Read paths already exclude expired rows, so the sweeper is cleanup plus
// deletion notifications, not a correctness mechanism.
type Sweeper struct {
	messages repo.MessageRepo
	grants   repo.GrantRepo
	sessions repo.SessionRepo
	events   events.Publisher
}

// NewSweeper creates a new Sweeper.
func NewSweeper(messages repo.MessageRepo, grants repo.GrantRepo, sessions repo.SessionRepo, publisher events.Publisher) *Sweeper {
	return &Sweeper{messages: messages, grants: grants, sessions: sessions, events: publisher}
}

// Run sweeps at the given interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	deleted, err := s.messages.DeleteExpired(ctx)
	if err != nil {
		log.Printf("sweeper: delete expired messages: %v", err)
	}
	for _, d := range deleted {
		s.events.Publish(ctx, events.Event{
			Kind:      events.KindMessageDeleted,
			SessionID: d.SessionID,
			Payload:   map[string]any{"messageId": d.ID.String()},
		})
	}

	if _, err := s.grants.DeleteExpiredUngranted(ctx); err != nil {
		log.Printf("sweeper: delete expired grants: %v", err)
	}

	expired, err := s.sessions.ListExpiredActive(ctx, sweepBatchSize)
	if err != nil {
		log.Printf("sweeper: list expired sessions: %v", err)
		return
	}
	for _, sessionID := range expired {
		if err := s.sessions.Terminate(ctx, sessionID); err != nil {
			log.Printf("sweeper: terminate expired session %s: %v", sessionID, err)
			continue
		}
		s.events.Publish(ctx, events.Event{
			Kind:      events.KindSessionTerminated,
			SessionID: sessionID,
			Payload:   map[string]any{"reason": "expired"},
		})
	}
}
