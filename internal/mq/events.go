package mq

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/taskboard/apiserver/types"
)

// AttrEventType carries the event type so consumers can filter without decoding.
const AttrEventType = "event-type"

// EventPublisher emits domain events onto a single channel. A nil broker
// turns every call into a no-op. Publish failures are logged, never returned,
// so a broker outage cannot fail a request whose write already committed.
type EventPublisher struct {
	broker  *MQ
	channel string
	logger  *slog.Logger
	now     func() time.Time
}

func NewEventPublisher(broker *MQ, channel string, logger *slog.Logger) *EventPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventPublisher{
		broker:  broker,
		channel: channel,
		logger:  logger,
		now:     time.Now,
	}
}

// Emit publishes an event of the given type.
func (p *EventPublisher) Emit(ctx context.Context, eventType types.EventType, userID, taskID int) {
	if p == nil || p.broker == nil {
		return
	}

	event := types.Event{
		Type:       eventType,
		UserID:     userID,
		TaskID:     taskID,
		OccurredAt: p.now().UTC(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("marshal event failed", "type", eventType, "error", err)
		return
	}

	attrs := map[string]string{
		AttrEventType:   string(eventType),
		AttrContentType: "application/json",
		AttrOrderingKey: "user-" + strconv.Itoa(userID),
	}
	if _, err := p.broker.Publish(ctx, p.channel, data, attrs); err != nil {
		p.logger.Warn("publish event failed", "type", eventType, "channel", p.channel, "error", err)
	}
}

// DecodeEvent parses a message produced by EventPublisher.
func DecodeEvent(msg Message) (types.Event, error) {
	var event types.Event
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		return types.Event{}, err
	}
	return event, nil
}
