package mq

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taskboard/apiserver/config"
	"github.com/taskboard/apiserver/types"
)

type recordingBackend struct {
	channel string
	data    []byte
	attrs   map[string]string
	err     error
}

func (b *recordingBackend) Publish(_ context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	b.channel = channel
	b.data = data
	b.attrs = attrs
	return "msg-1", b.err
}

func (b *recordingBackend) Subscribe(context.Context, string, Handler) error { return nil }

func (b *recordingBackend) Close() error { return nil }

func TestEventPublisherEmit(t *testing.T) {
	backend := &recordingBackend{}
	publisher := NewEventPublisher(New(backend), "taskboard.events", nil)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	publisher.now = func() time.Time { return fixed }

	publisher.Emit(context.Background(), types.EventTaskCreated, 7, 11)

	assert.Equal(t, "taskboard.events", backend.channel)
	assert.Equal(t, string(types.EventTaskCreated), backend.attrs[AttrEventType])
	assert.Equal(t, "application/json", backend.attrs[AttrContentType])
	assert.Equal(t, "user-7", backend.attrs[AttrOrderingKey])

	event, err := DecodeEvent(Message{Data: backend.data})
	require.NoError(t, err)
	assert.Equal(t, types.Event{Type: types.EventTaskCreated, UserID: 7, TaskID: 11, OccurredAt: fixed}, event)
}

func TestEventPublisherSwallowsBrokerErrors(t *testing.T) {
	var logs bytes.Buffer
	backend := &recordingBackend{err: errors.New("broker down")}
	publisher := NewEventPublisher(New(backend), "events", slog.New(slog.NewTextHandler(&logs, nil)))

	assert.NotPanics(t, func() {
		publisher.Emit(context.Background(), types.EventTaskDeleted, 1, 2)
	})
	assert.Contains(t, logs.String(), "publish event failed")
}

func TestEventPublisherNilBrokerIsNoop(t *testing.T) {
	var publisher *EventPublisher
	assert.NotPanics(t, func() {
		publisher.Emit(context.Background(), types.EventUserRegistered, 1, 0)
	})

	assert.NotPanics(t, func() {
		NewEventPublisher(nil, "events", nil).Emit(context.Background(), types.EventUserRegistered, 1, 0)
	})
}

func TestOpenDisabled(t *testing.T) {
	_, err := Open(context.Background(), config.MQConfig{Backend: config.BackendNone})
	assert.ErrorIs(t, err, ErrDisabled)

	_, err = Open(context.Background(), config.MQConfig{Backend: "kafka"})
	assert.Error(t, err)

	_, err = Open(context.Background(), config.MQConfig{Backend: config.BackendRabbitMQ})
	assert.Error(t, err, "rabbitmq requires a url")
}

func TestRoutingKeyAndContentType(t *testing.T) {
	assert.Equal(t, "task.created", routingKey(map[string]string{AttrEventType: "task.created"}))
	assert.Equal(t, defaultRoutingKey, routingKey(nil))
	assert.Equal(t, "application/json", contentType(map[string]string{AttrContentType: "application/json"}))
	assert.Equal(t, "application/octet-stream", contentType(nil))
}

func TestHeadersToAttributes(t *testing.T) {
	assert.Nil(t, headersToAttributes(nil))
	attrs := headersToAttributes(map[string]any{"a": "x", "b": []byte("y"), "c": 3})
	assert.Equal(t, map[string]string{"a": "x", "b": "y", "c": "3"}, attrs)
}
