package conversation

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisTranscriptStore_AppendAndList(t *testing.T) {
	mr, client := newTestRedis(t)
	store := NewRedisTranscriptStore(client, time.Hour)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "conv-1", TranscriptMessage{Role: "user", Body: "hi"}))
	require.NoError(t, store.Append(ctx, "conv-1", TranscriptMessage{Role: "assistant", Body: "hello"}))
	require.NoError(t, store.Append(ctx, "conv-1", TranscriptMessage{Role: "user", Body: "book me"}))
	assert.Equal(t, time.Hour, mr.TTL("transcript:conv-1"))

	all, err := store.List(ctx, "conv-1", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "hi", all[0].Body)
	assert.NotEmpty(t, all[0].ID)
	assert.False(t, all[0].Timestamp.IsZero())

	last, err := store.List(ctx, "conv-1", 2)
	require.NoError(t, err)
	require.Len(t, last, 2)
	assert.Equal(t, "hello", last[0].Body)
	assert.Equal(t, "book me", last[1].Body)

	empty, err := store.List(ctx, "other", 0)
	require.NoError(t, err)
	assert.Empty(t, empty)

	assert.Error(t, store.Append(ctx, "", TranscriptMessage{Body: "x"}))
}

func TestRedisTranscriptStore_TrimsToMax(t *testing.T) {
	_, client := newTestRedis(t)
	store := NewRedisTranscriptStore(client, 0)
	store.maxMessages = 3
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Append(ctx, "conv-1", TranscriptMessage{Role: "user", Body: fmt.Sprintf("m%d", i)}))
	}
	all, err := store.List(ctx, "conv-1", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "m2", all[0].Body)
}

func TestRedisTranscriptStore_NilIsNoop(t *testing.T) {
	var store *RedisTranscriptStore
	assert.Nil(t, NewRedisTranscriptStore(nil, 0))
	assert.NoError(t, store.Append(context.Background(), "conv-1", TranscriptMessage{}))
	msgs, err := store.List(context.Background(), "conv-1", 0)
	assert.NoError(t, err)
	assert.Nil(t, msgs)
}

func TestMemoryTranscriptStore_ListLimit(t *testing.T) {
	store := NewMemoryTranscriptStore()
	ctx := context.Background()
	for _, body := range []string{"a", "b", "c"} {
		require.NoError(t, store.Append(ctx, "conv-1", TranscriptMessage{Role: "user", Body: body}))
	}
	got, err := store.List(ctx, "conv-1", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].Body)
}

func TestToHistory_MapsRoles(t *testing.T) {
	history := toHistory([]TranscriptMessage{
		{Role: "user", Body: "hi"},
		{Role: "assistant", Body: "hello"},
		{Role: "system", Body: "odd"},
	})
	require.Len(t, history, 3)
	assert.Equal(t, "user", history[0].Role)
	assert.Equal(t, "assistant", history[1].Role)
	assert.Equal(t, "user", history[2].Role)
	assert.Equal(t, "hello", history[1].Content)
}
