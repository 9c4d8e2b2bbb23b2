package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestKafkaPublisher_WritesKeyedJSON(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaPublisher{writer: w, logger: quietLogger()}
	userID, sessionID := uuid.New(), uuid.New()

	err := p.Publish(context.Background(), New(TypeLogin, userID).WithSession(sessionID).With("email", "a@b.com"))
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	assert.Equal(t, userID.String(), string(w.msgs[0].Key))

	var got Event
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, TypeLogin, got.Type)
	assert.Equal(t, userID, got.UserID)
	assert.Equal(t, sessionID, got.SessionID)
	assert.Equal(t, "a@b.com", got.Attributes["email"])

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublisher_WriteError(t *testing.T) {
	p := &KafkaPublisher{writer: &fakeWriter{err: errors.New("broker down")}, logger: quietLogger()}

	err := p.Publish(context.Background(), New(TypeLogout, uuid.New()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
}

func TestEventWith_DoesNotAlias(t *testing.T) {
	base := New(TypeLogin, uuid.New()).With("a", "1")
	derived := base.With("b", "2")

	assert.Len(t, base.Attributes, 1)
	assert.Len(t, derived.Attributes, 2)
}

func TestLogPublisher(t *testing.T) {
	var buf bytes.Buffer
	l := logrus.New()
	l.SetOutput(&buf)
	l.SetFormatter(&logrus.JSONFormatter{})

	p := NewLogPublisher(l)
	userID := uuid.New()
	require.NoError(t, p.Publish(context.Background(), New(TypeTokenRefreshed, userID)))

	out := buf.String()
	assert.Contains(t, out, `"event":"token_refreshed"`)
	assert.Contains(t, out, userID.String())
	assert.NoError(t, p.Close())
}

func TestLogPublisher_RedactsResetCode(t *testing.T) {
	var buf bytes.Buffer
	l := logrus.New()
	l.SetOutput(&buf)
	l.SetFormatter(&logrus.JSONFormatter{})

	p := NewLogPublisher(l)
	event := New(TypePasswordResetRequested, uuid.New()).
		With(AttrEmail, "a@b.com").
		With(AttrResetCode, "48213")
	require.NoError(t, p.Publish(context.Background(), event))

	var logged map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logged))
	assert.Equal(t, "a@b.com", logged["attr_email"])
	assert.Equal(t, "[REDACTED]", logged["attr_code"])
	assert.NotContains(t, buf.String(), "48213")

	// The event itself is untouched for broker consumers.
	assert.Equal(t, "48213", event.Attributes[AttrResetCode])
}
