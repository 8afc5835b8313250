// Package channel delivers deal messages to a messaging destination.
package channel

import (
	"context"
	"errors"
)

// Message is a formatted deal post.
type Message struct {
	Text      string
	ImageURL  string // optional; sent as a photo with Text as caption
	LinkLabel string
	LinkURL   string
}

// Deliverer sends a message to target and returns a delivery receipt id.
// Calling it twice for the same deal may post twice.
type Deliverer interface {
	Deliver(ctx context.Context, target string, msg Message) (receiptID string, err error)
}

// ErrNoTarget is returned when no destination is configured.
var ErrNoTarget = errors.New("no delivery target configured")
