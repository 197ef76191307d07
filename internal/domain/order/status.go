package order

import (
	"strings"

	"github.com/xenking/tshirt-store/internal/domain/apperr"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusCreated   Status = "created"
	StatusPaid      Status = "paid"
	StatusShipped   Status = "shipped"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

// Statuses is the full status enumeration in lifecycle order.
var Statuses = []Status{StatusCreated, StatusPaid, StatusShipped, StatusDelivered, StatusCancelled}

// transitions lists the admin-initiated moves allowed out of each status.
// created→paid happens only through payment verification.
var transitions = map[Status][]Status{
	StatusCreated: {StatusCancelled},
	StatusPaid:    {StatusShipped, StatusCancelled},
	StatusShipped: {StatusDelivered, StatusCancelled},
}

// ErrUnknownStatus is returned for a status outside the enumeration.
var ErrUnknownStatus = apperr.New(apperr.InvalidInput, "unknown order status")

// ParseStatus converts user input into a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Statuses {
		if st == known {
			return st, nil
		}
	}
	return "", ErrUnknownStatus
}

// Terminal reports whether no further transitions leave s.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// CanTransitionTo reports whether an admin may move an order from s to next.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
