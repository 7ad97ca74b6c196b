package session

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreAppendAndRead(t *testing.T) {
	assert := assert.New(t)
	store := NewMemoryStore(time.Hour)
	ctx := context.Background()

	// Append N messages and verify chronological read order
	for i := 0; i < 5; i++ {
		_, err := store.Append(ctx, "s1", fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i), time.Time{})
		require.NoError(t, err)
	}

	msgs, err := store.Read(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, msgs, 5)
	for i, msg := range msgs {
		assert.Equal(fmt.Sprintf("q%d", i), msg.UserQuery)
		assert.Equal(fmt.Sprintf("a%d", i), msg.BotResponse)
		assert.NotEmpty(msg.ID)
	}

	// Timestamps are non-decreasing
	for i := 1; i < len(msgs); i++ {
		assert.LessOrEqual(msgs[i-1].Timestamp, msgs[i].Timestamp)
	}
}

func TestMemoryStoreReadMissingSession(t *testing.T) {
	store := NewMemoryStore(time.Hour)

	msgs, err := store.Read(context.Background(), "nope")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestMemoryStoreClearIsIdempotent(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	ctx := context.Background()

	_, err := store.Append(ctx, "s1", "hi", "hello!", time.Time{})
	require.NoError(t, err)

	require.NoError(t, store.Clear(ctx, "s1"))
	msgs, err := store.Read(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, msgs)

	// Clearing again, and clearing a session that never existed, are fine
	require.NoError(t, store.Clear(ctx, "s1"))
	require.NoError(t, store.Clear(ctx, "never-existed"))
}

func TestMemoryStoreExpiry(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	ctx := context.Background()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return now })

	_, err := store.Append(ctx, "s1", "hi", "hello!", now)
	require.NoError(t, err)

	// Still live just before the window elapses
	now = now.Add(59 * time.Minute)
	msgs, err := store.Read(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, msgs, 1)

	// Reading must not extend the TTL
	now = now.Add(2 * time.Minute)
	msgs, err = store.Read(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, msgs)

	active, err := store.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestMemoryStoreAppendResetsWindow(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	ctx := context.Background()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return now })

	_, err := store.Append(ctx, "s1", "first", "one", now)
	require.NoError(t, err)

	// A second append near the end of the window pushes it out again
	now = now.Add(55 * time.Minute)
	_, err = store.Append(ctx, "s1", "second", "two", now)
	require.NoError(t, err)

	now = now.Add(50 * time.Minute)
	msgs, err := store.Read(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestMemoryStoreRefresh(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	ctx := context.Background()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return now })

	_, err := store.Append(ctx, "s1", "hi", "hello!", now)
	require.NoError(t, err)

	now = now.Add(55 * time.Minute)
	require.NoError(t, store.Refresh(ctx, "s1"))

	now = now.Add(50 * time.Minute)
	msgs, err := store.Read(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, msgs, 1)

	// Refreshing an unknown session is a no-op
	require.NoError(t, store.Refresh(ctx, "never-existed"))
}

func TestMemoryStoreListActiveAndSweep(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	ctx := context.Background()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return now })

	_, err := store.Append(ctx, "s1", "hi", "hello!", now)
	require.NoError(t, err)
	_, err = store.Append(ctx, "s2", "hey", "hi there!", now)
	require.NoError(t, err)

	active, err := store.ListActive(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"s1", "s2"}, active)

	now = now.Add(2 * time.Hour)
	removed := store.Sweep()
	assert.Equal(t, 2, removed)

	active, err = store.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}
