package fhe

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInMemoryStorage(t *testing.T) {
	require := require.New(t)

	store := NewInMemoryStorage()

	_, ok, err := store.Get(context.Background(), "missing")
	require.NoError(err)
	require.False(ok)

	require.NoError(store.Set(context.Background(), "key", "first"))
	value, ok, err := store.Get(context.Background(), "key")
	require.NoError(err)
	require.True(ok)
	require.Equal("first", value)

	// Last write wins.
	require.NoError(store.Set(context.Background(), "key", "second"))
	value, _, err = store.Get(context.Background(), "key")
	require.NoError(err)
	require.Equal("second", value)
}
