// Package notify fans session snapshot changes out to subscribers.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/roompe/roompe-api/navigation"
)

// ErrClosed is returned by brokers after Close.
var ErrClosed = errors.New("notify: broker closed")

// Event announces a new session snapshot for one user. Seq orders events
// from the same Origin; it is not comparable across origins.
type Event struct {
	UserID  uuid.UUID          `json:"user_id"`
	Session navigation.Session `json:"session"`
	Origin  string             `json:"origin,omitempty"`
	Seq     uint64             `json:"seq,omitempty"`
	At      time.Time          `json:"at"`
}

// NewEvent stamps an event with the current time.
func NewEvent(userID uuid.UUID, s navigation.Session) Event {
	return Event{UserID: userID, Session: s, At: time.Now().UTC()}
}

// Broker delivers events to the subscribers of the event's user.
//
// Delivery is latest-wins: a subscriber that falls behind loses older
// events, never the newest one. The returned channel is closed when ctx ends
// or the broker is closed.
//
// SubscribeAll streams the events of every user. Trackers use it to follow
// session changes made by other API instances.
type Broker interface {
	Publish(ctx context.Context, ev Event) error
	Subscribe(ctx context.Context, userID uuid.UUID) (<-chan Event, error)
	SubscribeAll(ctx context.Context) (<-chan Event, error)
	Close() error
}

// DefaultFirehoseBuffer is the queue length of SubscribeAll channels. They
// carry every user's events, so they get far more room than a per-user one.
const DefaultFirehoseBuffer = 1024
