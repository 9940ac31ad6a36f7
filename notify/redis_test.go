package notify

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/roompe/roompe-api/navigation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestChannel(t *testing.T) {
	id := uuid.MustParse("6f1c2a9e-3b7d-4c3e-9a51-2f0e8d7c6b5a")
	assert.Equal(t, "roompe:session:6f1c2a9e-3b7d-4c3e-9a51-2f0e8d7c6b5a", Channel(id))
}

func TestEventCodecRoundTrip(t *testing.T) {
	propertyID := uuid.New()
	ev := NewEvent(uuid.New(), navigation.WithProfile(&navigation.Profile{
		UserID:        uuid.New(),
		Role:          "tenant",
		EmailVerified: true,
		PropertyID:    &propertyID,
	}))

	payload, err := EncodeEvent(ev)
	require.NoError(t, err)

	got, err := DecodeEvent(payload)
	require.NoError(t, err)
	assert.Equal(t, ev.UserID, got.UserID)
	assert.True(t, ev.Session.Equal(got.Session))
	assert.True(t, ev.At.Equal(got.At))
}

func TestDecodeEvent_Malformed(t *testing.T) {
	_, err := DecodeEvent([]byte("{not json"))
	assert.Error(t, err)
}

func TestNewRedisBroker_RequiresAddr(t *testing.T) {
	_, err := NewRedisBroker(context.Background(), RedisOptions{}, zap.NewNop())
	assert.Error(t, err)
}

func TestRedisBroker_ClosedRejects(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	b := NewRedisBrokerFromClient(client, 0, zap.NewNop())
	require.NoError(t, b.Close())

	assert.ErrorIs(t, b.Publish(context.Background(), NewEvent(uuid.New(), navigation.Session{})), ErrClosed)
	_, err := b.Subscribe(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrClosed)
	_, err = b.SubscribeAll(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

// TestRedisBroker_Integration runs against a live server when
// ROOMPE_TEST_REDIS_ADDR is set.
func TestRedisBroker_Integration(t *testing.T) {
	addr := os.Getenv("ROOMPE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("ROOMPE_TEST_REDIS_ADDR not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	b, err := NewRedisBroker(ctx, RedisOptions{Addr: addr}, zap.NewNop())
	require.NoError(t, err)
	defer b.Close()

	userID := uuid.New()
	ch, err := b.Subscribe(ctx, userID)
	require.NoError(t, err)
	all, err := b.SubscribeAll(ctx)
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, NewEvent(userID, navigation.SigningIn())))
	ev := receive(t, ch)
	assert.Equal(t, userID, ev.UserID)
	assert.True(t, ev.Session.ProfileLoading)
	assert.Equal(t, userID, receive(t, all).UserID)
}
