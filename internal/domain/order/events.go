package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Event types published on order lifecycle changes.
const (
	EventCreated       = "order.created"
	EventPaid          = "order.paid"
	EventStatusChanged = "order.status_changed"
)

// Event describes a change to an order.
type Event struct {
	Type     string          `json:"type"`
	OrderID  string          `json:"orderId"`
	OwnerID  string          `json:"ownerId"`
	Status   Status          `json:"status"`
	Total    decimal.Decimal `json:"totalAmount"`
	Currency string          `json:"currency"`
	At       time.Time       `json:"at"`
}

// EventPublisher delivers order events to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, e Event) error
}

var _ EventPublisher = NopPublisher{}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

func newEvent(typ string, o *Order) Event {
	return Event{
		Type:     typ,
		OrderID:  o.ID,
		OwnerID:  o.OwnerID,
		Status:   o.Status,
		Total:    o.Total,
		Currency: o.Currency,
		At:       o.UpdatedAt,
	}
}
