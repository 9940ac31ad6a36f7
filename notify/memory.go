package notify

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultBufferSize is the per-subscriber queue length.
const DefaultBufferSize = 8

type subscriber struct {
	ch chan Event
}

// MemoryBroker delivers events within a single process.
type MemoryBroker struct {
	mu     sync.Mutex
	subs   map[uuid.UUID]map[*subscriber]struct{}
	all    map[*subscriber]struct{}
	buffer int
	closed bool
	done   chan struct{}
	logger *zap.Logger
}

// NewMemoryBroker creates an in-process broker. bufferSize <= 0 uses
// DefaultBufferSize.
func NewMemoryBroker(bufferSize int, logger *zap.Logger) *MemoryBroker {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &MemoryBroker{
		subs:   make(map[uuid.UUID]map[*subscriber]struct{}),
		all:    make(map[*subscriber]struct{}),
		buffer: bufferSize,
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Publish implements Broker. It never blocks on slow subscribers.
func (b *MemoryBroker) Publish(_ context.Context, ev Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}

	for sub := range b.subs[ev.UserID] {
		deliver(sub.ch, ev, b.logger)
	}
	for sub := range b.all {
		deliver(sub.ch, ev, b.logger)
	}
	return nil
}

// deliver pushes ev, evicting the oldest queued event when the queue is full.
// Callers hold the broker lock, so the channel cannot be closed concurrently.
func deliver(ch chan Event, ev Event, logger *zap.Logger) {
	select {
	case ch <- ev:
		return
	default:
	}

	select {
	case <-ch:
		logger.Debug("subscriber lagging, dropped oldest event",
			zap.String("user_id", ev.UserID.String()))
	default:
	}

	select {
	case ch <- ev:
	default:
	}
}

// Subscribe implements Broker.
func (b *MemoryBroker) Subscribe(ctx context.Context, userID uuid.UUID) (<-chan Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}

	sub := &subscriber{ch: make(chan Event, b.buffer)}
	if b.subs[userID] == nil {
		b.subs[userID] = make(map[*subscriber]struct{})
	}
	b.subs[userID][sub] = struct{}{}

	go func() {
		select {
		case <-ctx.Done():
		case <-b.done:
		}
		b.unsubscribe(userID, sub)
	}()

	return sub.ch, nil
}

// SubscribeAll implements Broker.
func (b *MemoryBroker) SubscribeAll(ctx context.Context) (<-chan Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}

	sub := &subscriber{ch: make(chan Event, DefaultFirehoseBuffer)}
	b.all[sub] = struct{}{}

	go func() {
		select {
		case <-ctx.Done():
		case <-b.done:
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.all[sub]; ok {
			delete(b.all, sub)
			close(sub.ch)
		}
	}()

	return sub.ch, nil
}

func (b *MemoryBroker) unsubscribe(userID uuid.UUID, sub *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	set, ok := b.subs[userID]
	if !ok {
		return
	}
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(b.subs, userID)
	}
	close(sub.ch)
}

// Subscribers returns the number of live subscriptions for userID.
func (b *MemoryBroker) Subscribers(userID uuid.UUID) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[userID])
}

// Close implements Broker. Every open subscription channel is closed.
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	close(b.done)

	for userID, set := range b.subs {
		for sub := range set {
			close(sub.ch)
		}
		delete(b.subs, userID)
	}
	for sub := range b.all {
		close(sub.ch)
		delete(b.all, sub)
	}
	return nil
}
