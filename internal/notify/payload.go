package notify

import (
	"time"

	"github.com/google/uuid"

	"github.com/raphaelgruber/reachbox/internal/models"
)

// EventInterested is the event name carried by webhook and Pub/Sub payloads.
const EventInterested = "email_interested"

// Payload is the JSON body sent to webhooks and Pub/Sub.
type Payload struct {
	Event      string             `json:"event"`
	DeliveryID string             `json:"delivery_id"`
	SentAt     time.Time          `json:"sent_at"`
	Data       models.EmailRecord `json:"data"`
}

func newPayload(email models.EmailRecord) Payload {
	return Payload{
		Event:      EventInterested,
		DeliveryID: uuid.NewString(),
		SentAt:     time.Now().UTC(),
		Data:       email,
	}
}
