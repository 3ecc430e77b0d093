// Package events publishes moderation audit events to NATS.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/xaenox/relay-bot/internal/models"
	"go.uber.org/zap"
)

// SubjectModeration is suffixed with the moderation source.
const SubjectModeration = "relay.moderation"

type ModerationEvent struct {
	UserID     int64              `json:"user_id"`
	Source     string             `json:"source"`
	Term       string             `json:"term,omitempty"`
	Categories map[string]float64 `json:"categories,omitempty"`
	Violations int64              `json:"violations"`
	Muted      bool               `json:"muted"`
	At         time.Time          `json:"at"`
}

func NewModerationEvent(userID int64, outcome models.ModerationOutcome, violations int64, muted bool) ModerationEvent {
	return ModerationEvent{
		UserID:     userID,
		Source:     string(outcome.Source),
		Term:       outcome.Term,
		Categories: outcome.Categories,
		Violations: violations,
		Muted:      muted,
		At:         time.Now().UTC(),
	}
}

func (e ModerationEvent) Subject() string {
	return SubjectModeration + "." + e.Source
}

type Publisher interface {
	PublishModeration(ev ModerationEvent) error
	Close()
}

// Nop drops every event.
type Nop struct{}

func (Nop) PublishModeration(ModerationEvent) error { return nil }
func (Nop) Close() {}

type NATSPublisher struct {
	conn *nats.Conn
}

func NewNATSPublisher(url string, logger *zap.Logger) (*NATSPublisher, error) {
	opts := []nats.Option{
		nats.Name("relay-bot"),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	logger.Info("Connected to NATS", zap.String("url", nc.ConnectedUrl()))
	return &NATSPublisher{conn: nc}, nil
}

func (p *NATSPublisher) PublishModeration(ev ModerationEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal moderation event: %w", err)
	}
	if err := p.conn.Publish(ev.Subject(), data); err != nil {
		return fmt.Errorf("nats publish %s: %w", ev.Subject(), err)
	}
	return nil
}

func (p *NATSPublisher) Close() {
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}
