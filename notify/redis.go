package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ChannelPrefix namespaces the per-user pub/sub channels.
const ChannelPrefix = "roompe:session:"

// Channel returns the pub/sub channel carrying events for userID.
func Channel(userID uuid.UUID) string {
	return ChannelPrefix + userID.String()
}

// RedisBroker delivers events across processes through Redis pub/sub.
type RedisBroker struct {
	client *redis.Client
	buffer int
	logger *zap.Logger

	mu     sync.Mutex
	closed bool
	done   chan struct{}
	wg     sync.WaitGroup
}

// RedisOptions configures NewRedisBroker.
type RedisOptions struct {
	Addr       string
	Password   string
	DB         int
	BufferSize int
}

// NewRedisBroker connects to Redis and verifies the connection.
func NewRedisBroker(ctx context.Context, opts RedisOptions, logger *zap.Logger) (*RedisBroker, error) {
	if opts.Addr == "" {
		return nil, errors.New("redis addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	logger.Info("redis broker connected", zap.String("addr", opts.Addr))
	return NewRedisBrokerFromClient(client, opts.BufferSize, logger), nil
}

// NewRedisBrokerFromClient wraps an existing client. The broker owns it.
func NewRedisBrokerFromClient(client *redis.Client, bufferSize int, logger *zap.Logger) *RedisBroker {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &RedisBroker{
		client: client,
		buffer: bufferSize,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Client exposes the connection for other Redis-backed components. The
// broker closes it.
func (b *RedisBroker) Client() *redis.Client {
	return b.client
}

// EncodeEvent serializes an event for the wire.
func EncodeEvent(ev Event) ([]byte, error) {
	return json.Marshal(ev)
}

// DecodeEvent parses a wire payload.
func DecodeEvent(payload []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return Event{}, fmt.Errorf("decode session event: %w", err)
	}
	return ev, nil
}

// Publish implements Broker.
func (b *RedisBroker) Publish(ctx context.Context, ev Event) error {
	if b.isClosed() {
		return ErrClosed
	}
	payload, err := EncodeEvent(ev)
	if err != nil {
		return fmt.Errorf("encode session event: %w", err)
	}
	if err := b.client.Publish(ctx, Channel(ev.UserID), payload).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Subscribe implements Broker.
func (b *RedisBroker) Subscribe(ctx context.Context, userID uuid.UUID) (<-chan Event, error) {
	return b.listen(ctx, b.buffer, func() *redis.PubSub {
		return b.client.Subscribe(ctx, Channel(userID))
	})
}

// SubscribeAll implements Broker with a pattern subscription over every
// user channel.
func (b *RedisBroker) SubscribeAll(ctx context.Context) (<-chan Event, error) {
	return b.listen(ctx, DefaultFirehoseBuffer, func() *redis.PubSub {
		return b.client.PSubscribe(ctx, ChannelPrefix+"*")
	})
}

func (b *RedisBroker) listen(ctx context.Context, buffer int, open func() *redis.PubSub) (<-chan Event, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	b.wg.Add(1)
	b.mu.Unlock()

	pubsub := open()
	// Receive blocks until the subscription is confirmed so that events
	// published after Subscribe returns are not missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		b.wg.Done()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	out := make(chan Event, buffer)
	go b.pump(ctx, pubsub, out)
	return out, nil
}

func (b *RedisBroker) pump(ctx context.Context, pubsub *redis.PubSub, out chan Event) {
	defer b.wg.Done()
	defer close(out)
	defer pubsub.Close()

	msgs := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.done:
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			ev, err := DecodeEvent([]byte(msg.Payload))
			if err != nil {
				b.logger.Warn("dropping malformed session event",
					zap.String("channel", msg.Channel),
					zap.Error(err))
				continue
			}
			deliver(out, ev, b.logger)
		}
	}
}

// Close implements Broker. It waits for subscription goroutines to exit.
func (b *RedisBroker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.done)
	b.mu.Unlock()

	b.wg.Wait()
	return b.client.Close()
}

// Ping checks the Redis connection.
func (b *RedisBroker) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *RedisBroker) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

var (
	_ Broker = (*MemoryBroker)(nil)
	_ Broker = (*RedisBroker)(nil)
)
