package kv

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, found, err := store.Get(ctx, "cursor:contacts")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Set(ctx, "cursor:contacts", "1.0"))
	require.NoError(t, store.Set(ctx, "cursor:trust", "2.0"))
	require.NoError(t, store.Set(ctx, "other", "x"))
	require.NoError(t, store.Set(ctx, "cursor:contacts", "3.0"))

	value, found, err := store.Get(ctx, "cursor:contacts")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "3.0", value)

	keys, err := store.Keys(ctx, "cursor:")
	require.NoError(t, err)
	assert.Equal(t, []string{"cursor:contacts", "cursor:trust"}, keys)

	require.NoError(t, store.Delete(ctx, "cursor:contacts"))
	require.NoError(t, store.Delete(ctx, "never-set"))
	_, found, _ = store.Get(ctx, "cursor:contacts")
	assert.False(t, found)
}
