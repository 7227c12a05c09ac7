package session

import (
	"context"
	"os"
	"testing"
	"time"

	"chatanything/types"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseStore(t *testing.T, s Store) {
	ctx := context.Background()
	id := uuid.NewString()

	h, err := s.History(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, h)

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.Append(ctx, id,
		types.Turn{Role: types.RoleUser, Content: "thank you", CreatedAt: now},
		types.Turn{Role: types.RoleAssistant, Content: "You're welcome!", CreatedAt: now},
	))
	require.NoError(t, s.Append(ctx, id,
		types.Turn{Role: types.RoleUser, Content: "what?", CreatedAt: now},
	))

	h, err = s.History(ctx, id)
	require.NoError(t, err)
	require.Len(t, h, 3)
	assert.Equal(t, types.RoleUser, h[0].Role)
	assert.Equal(t, "You're welcome!", h[1].Content)
	assert.Equal(t, "what?", h[2].Content)

	other, err := s.History(ctx, uuid.NewString())
	require.NoError(t, err)
	assert.Empty(t, other)

	require.NoError(t, s.Clear(ctx, id))
	h, err = s.History(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, h)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStore_HistoryIsACopy(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Append(ctx, "a", types.Turn{Role: types.RoleUser, Content: "hi"}))
	h, _ := s.History(ctx, "a")
	h[0].Content = "changed"
	h2, _ := s.History(ctx, "a")
	assert.Equal(t, "hi", h2[0].Content)
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	s := NewRedisStore(addr, "", 0, time.Minute)
	defer s.Close()
	require.NoError(t, s.Ping(context.Background()))
	exerciseStore(t, s)
}
