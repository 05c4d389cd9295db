package booking

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
)

const (
	EventBookingCreated       = "BOOKING_CREATED"
	EventBookingStatusChanged = "BOOKING_STATUS_CHANGED"
	EventBookingSettled       = "BOOKING_SETTLED"
)

// routing keys for the message broker
var eventRoutingKeys = map[string]string{
	EventBookingCreated:       "booking.created",
	EventBookingStatusChanged: "booking.status_changed",
	EventBookingSettled:       "booking.settled",
}

// EventPublisher fans events out after commit. mq.Publisher implements it.
type EventPublisher interface {
	PublishJSON(ctx context.Context, key string, v any) error
}

type pendingEvent struct {
	eventType string
	bookingID uuid.UUID
	payload   map[string]any
}

// logEvent writes the audit row inside the caller's transaction, so a failed
// insert rolls the whole operation back.
func logEvent(ctx context.Context, repo Repository, bookingID uuid.UUID, eventType string, payload map[string]any) (pendingEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("failed to marshal event payload for %s: %v", eventType, err)
		data = nil
	}

	id := bookingID

	ev := EventLog{
		EventType: eventType,
		BookingID: &id,
		Payload:   data,
		CreatedAt: time.Now(),
	}

	if err := repo.InsertEvent(ctx, ev); err != nil {
		return pendingEvent{}, err
	}
	return pendingEvent{eventType: eventType, bookingID: bookingID, payload: payload}, nil
}

// publish is best effort: the event log row is the record of truth.
func (s *Service) publish(ctx context.Context, events ...pendingEvent) {
	if s.publisher == nil {
		return
	}
	for _, ev := range events {
		if ev.eventType == "" {
			continue
		}
		msg := map[string]any{
			"event":      ev.eventType,
			"booking_id": ev.bookingID.String(),
			"data":       ev.payload,
		}
		if err := s.publisher.PublishJSON(ctx, eventRoutingKeys[ev.eventType], msg); err != nil {
			log.Printf("failed to publish event %s for booking %s: %v", ev.eventType, ev.bookingID, err)
		}
	}
}
