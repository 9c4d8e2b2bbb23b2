// Package events publishes authentication audit events.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

type Type string

const (
	TypeLogin                  Type = "login"
	TypeLoginFailed            Type = "login_failed"
	TypeLogout                 Type = "logout"
	TypeTokenRefreshed         Type = "token_refreshed"
	TypeSessionInvalidated     Type = "session_invalidated"
	TypeUserRegistered         Type = "user_registered"
	TypePasswordResetRequested Type = "password_reset_requested"
	TypePasswordReset          Type = "password_reset"
)

// Attribute names. AttrResetCode carries a credential; only the broker
// consumer that mails it may see the value.
const (
	AttrEmail     = "email"
	AttrResetCode = "code"
)

const redacted = "[REDACTED]"

var sensitiveAttributes = map[string]bool{
	AttrResetCode: true,
}

type Event struct {
	Type       Type              `json:"type"`
	UserID     uuid.UUID         `json:"user_id"`
	SessionID  uuid.UUID         `json:"session_id,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

func New(t Type, userID uuid.UUID) Event {
	return Event{Type: t, UserID: userID, OccurredAt: time.Now().UTC()}
}

func (e Event) WithSession(id uuid.UUID) Event {
	e.SessionID = id
	return e
}

func (e Event) With(key, value string) Event {
	attrs := make(map[string]string, len(e.Attributes)+1)
	for k, v := range e.Attributes {
		attrs[k] = v
	}
	attrs[key] = value
	e.Attributes = attrs
	return e
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events as JSON, keyed by user id so one user's events
// stay ordered within a partition.
type KafkaPublisher struct {
	writer messageWriter
	logger *logrus.Logger
}

func NewKafkaPublisher(brokers []string, topic string, logger *logrus.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 50 * time.Millisecond,
		},
		logger: logger,
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := p.writer.WriteMessages(writeCtx, kafka.Message{
		Key:   []byte(event.UserID.String()),
		Value: payload,
	}); err != nil {
		p.logger.WithError(err).WithField("type", event.Type).Error("Failed to publish event")
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// LogPublisher writes events to the logger; used when no broker is configured.
// Sensitive attributes are redacted.
type LogPublisher struct {
	logger *logrus.Logger
}

func NewLogPublisher(logger *logrus.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, event Event) error {
	fields := logrus.Fields{
		"event":   event.Type,
		"user_id": event.UserID.String(),
	}
	if event.SessionID != uuid.Nil {
		fields["session_id"] = event.SessionID.String()
	}
	for k, v := range event.Attributes {
		if sensitiveAttributes[k] {
			v = redacted
		}
		fields["attr_"+k] = v
	}
	p.logger.WithFields(fields).Info("Audit event")
	return nil
}

func (p *LogPublisher) Close() error {
	return nil
}
