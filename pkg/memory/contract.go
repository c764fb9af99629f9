package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunStoreContract verifies that a Store implementation honors the interface
// contract.
func RunStoreContract(t *testing.T, store Store) {
	ctx := context.Background()
	id := fmt.Sprintf("contract-%d", time.Now().UnixNano())

	t.Run("Append and Load", func(t *testing.T) {
		require.NoError(t, store.Append(ctx, id, []Message{{Role: "user", Content: "hello"}}))
		require.NoError(t, store.Append(ctx, id, []Message{
			{Role: "assistant", Content: "hi there", Metadata: map[string]any{"model": "m"}},
			{Role: "tool", Content: "42", ToolCallID: "call-1"},
		}))

		loaded, err := store.Load(ctx, id)
		require.NoError(t, err)
		require.Len(t, loaded, 3)
		assert.Equal(t, "user", loaded[0].Role)
		assert.Equal(t, "hello", loaded[0].Content)
		assert.Equal(t, "hi there", loaded[1].Content)
		assert.Equal(t, "m", loaded[1].Metadata["model"])
		assert.Equal(t, "call-1", loaded[2].ToolCallID)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "missing-"+id)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("List", func(t *testing.T) {
		other := id + "-other"
		require.NoError(t, store.Append(ctx, other, []Message{{Role: "user", Content: "x"}}))
		defer func() { _ = store.Delete(ctx, other) }()

		ids, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, ids, id)
		assert.Contains(t, ids, other)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, id))
		_, err := store.Load(ctx, id)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)

		ids, err := store.List(ctx)
		require.NoError(t, err)
		assert.NotContains(t, ids, id)
	})
}
