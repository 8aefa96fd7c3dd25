package events

import (
	"context"
	"encoding/json"
	"log"

	"github.com/nats-io/nats.go"
)

const subjectPrefix = "ghost.session."

// NATSPublisher publishes session events to NATS, one subject per session
// channel. Publish never returns an error to callers: the core treats event
// delivery as best-effort.
type NATSPublisher struct {
	conn *nats.Conn
}

// NewNATSPublisher connects to the NATS server at url.
func NewNATSPublisher(url string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("lockblip-ghost"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, err
	}
	return &NATSPublisher{conn: conn}, nil
}

// Publish marshals the event and fires it at ghost.session.<id>.
func (p *NATSPublisher) Publish(_ context.Context, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("events: marshal %s: %v", ev.Kind, err)
		return
	}
	if err := p.conn.Publish(subjectPrefix+ev.SessionID, data); err != nil {
		log.Printf("events: publish %s: %v", ev.Kind, err)
	}
}

// Close drains and closes the underlying connection.
func (p *NATSPublisher) Close() {
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}
