package notify

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/ferZyx/ip-cam-monitor/internal/alarm"
)

// ResolvedMessage is the wire shape published for every resolved alarm.
// The photo itself stays in the store; consumers fetch it by event ID.
type ResolvedMessage struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Code       string    `json:"code"`
	Resolution string    `json:"resolution"`
	Strategy   string    `json:"strategy"`
	Score      float64   `json:"score"`
	PhotoBytes int       `json:"photo_bytes"`
}

type NATSPublisher struct {
	conn       *nats.Conn
	subject    string
	maxRetries int
}

func NewNATSPublisher(conn *nats.Conn, subject string, maxRetries int) *NATSPublisher {
	return &NATSPublisher{
		conn:       conn,
		subject:    subject,
		maxRetries: maxRetries,
	}
}

// PublishResolved implements alarm.Publisher. Failures are logged and
// swallowed so a broken broker never stalls resolution.
func (p *NATSPublisher) PublishResolved(ev *alarm.Event) {
	if err := p.publish(ev); err != nil {
		log.Printf("[NATS] publish failed for %s: %v", ev.ID, err)
	}
}

func (p *NATSPublisher) publish(ev *alarm.Event) error {
	msg := ResolvedMessage{
		ID:         ev.ID.String(),
		Timestamp:  ev.Timestamp,
		Code:       ev.Code,
		Resolution: string(ev.Resolution),
		Strategy:   ev.Report.Strategy,
		Score:      ev.Report.Score,
		PhotoBytes: len(ev.Image),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	for i := 0; i <= p.maxRetries; i++ {
		err = p.conn.Publish(p.subject, data)
		if err == nil {
			return nil
		}

		// Backoff
		time.Sleep(time.Duration(i*100) * time.Millisecond)
	}

	return fmt.Errorf("publish failed after %d retries: %w", p.maxRetries, err)
}
