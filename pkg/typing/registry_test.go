package typing

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Tests need a running redis; set REDIS_ADDR to enable them.
func testClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DB: 9})
	require.NoError(t, client.Ping(context.Background()).Err())
	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})
	return client
}

func TestSetAndActive(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(testClient(t), 5*time.Second)
	channel := uuid.New()
	alice, bob := uuid.New(), uuid.New()

	require.NoError(t, reg.Set(ctx, channel, alice, "Alice", true))

	// Another member sees Alice typing.
	names, err := reg.Active(ctx, channel, bob)
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice"}, names)

	// Alice is excluded from her own view.
	names, err = reg.Active(ctx, channel, alice)
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestExplicitStopClears(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(testClient(t), 5*time.Second)
	channel := uuid.New()
	alice, bob := uuid.New(), uuid.New()

	require.NoError(t, reg.Set(ctx, channel, alice, "Alice", true))
	require.NoError(t, reg.Set(ctx, channel, alice, "Alice", false))

	names, err := reg.Active(ctx, channel, bob)
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestExpiryPastWindow(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(testClient(t), 150*time.Millisecond)
	channel := uuid.New()
	alice, bob := uuid.New(), uuid.New()

	require.NoError(t, reg.Set(ctx, channel, alice, "Alice", true))

	names, err := reg.Active(ctx, channel, bob)
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice"}, names)

	time.Sleep(200 * time.Millisecond)

	names, err = reg.Active(ctx, channel, bob)
	require.NoError(t, err)
	assert.Empty(t, names, "indicator must expire past the freshness window")
}

func TestChannelsIsolated(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(testClient(t), 5*time.Second)
	chanA, chanB := uuid.New(), uuid.New()
	alice, bob := uuid.New(), uuid.New()

	require.NoError(t, reg.Set(ctx, chanA, alice, "Alice", true))

	names, err := reg.Active(ctx, chanB, bob)
	require.NoError(t, err)
	assert.Empty(t, names)
}
