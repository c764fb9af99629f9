package memory_test

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"io"
	"testing"

	"github.com/aretw0/arbor/pkg/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateKey(t *testing.T) []byte {
	t.Helper()
	k := make([]byte, 32)
	_, err := io.ReadFull(rand.Reader, k)
	require.NoError(t, err)
	return k
}

func TestRedactMiddleware(t *testing.T) {
	base := memory.NewInMemoryStore()
	mw, err := memory.NewRedactMiddleware([]string{`[\w.]+@[\w.]+`, `\d{3}-\d{4}`})
	require.NoError(t, err)
	store := mw(base)
	ctx := context.Background()

	content := map[string]any{"text": "mail bob@example.com or call 555-1234", "tags": []any{"ok"}}
	require.NoError(t, store.Append(ctx, "s", []memory.Message{{Role: "user", Content: content}}))

	stored, err := base.Load(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, "mail *** or call ***", stored[0].Content.(map[string]any)["text"])
	assert.Equal(t, "mail bob@example.com or call 555-1234", content["text"], "caller's message is untouched")

	_, err = memory.NewRedactMiddleware([]string{"("})
	assert.Error(t, err)
}

func TestEncryptionMiddleware_Roundtrip(t *testing.T) {
	base := memory.NewInMemoryStore()
	mw, err := memory.NewEncryptionMiddleware(memory.EncryptionConfig{ActiveKey: generateKey(t)})
	require.NoError(t, err)
	store := mw(base)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "s", []memory.Message{{Role: "user", Content: "my-secret-sauce"}}))
	require.NoError(t, store.Append(ctx, "s", []memory.Message{{Role: "assistant", Content: "noted"}}))

	raw, err := base.Load(ctx, "s")
	require.NoError(t, err)
	require.Len(t, raw, 2)
	assert.Equal(t, memory.EncryptedRole, raw[0].Role)
	assert.NotContains(t, raw[0].Content, "my-secret-sauce")

	loaded, err := store.Load(ctx, "s")
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, "my-secret-sauce", loaded[0].Content)
	assert.Equal(t, "noted", loaded[1].Content)
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	base := memory.NewInMemoryStore()
	oldKey, newKey := generateKey(t), generateKey(t)
	ctx := context.Background()

	oldMW, err := memory.NewEncryptionMiddleware(memory.EncryptionConfig{ActiveKey: oldKey})
	require.NoError(t, err)
	require.NoError(t, oldMW(base).Append(ctx, "s", []memory.Message{{Role: "user", Content: "before rotation"}}))

	rotated, err := memory.NewEncryptionMiddleware(memory.EncryptionConfig{ActiveKey: newKey, FallbackKeys: [][]byte{oldKey}})
	require.NoError(t, err)
	loaded, err := rotated(base).Load(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, "before rotation", loaded[0].Content)

	strict, err := memory.NewEncryptionMiddleware(memory.EncryptionConfig{ActiveKey: newKey})
	require.NoError(t, err)
	_, err = strict(base).Load(ctx, "s")
	assert.ErrorContains(t, err, "decryption failed")
}

func TestEncryptionMiddleware_Invalid(t *testing.T) {
	_, err := memory.NewEncryptionMiddleware(memory.EncryptionConfig{ActiveKey: []byte("short")})
	assert.Error(t, err)

	base := memory.NewInMemoryStore()
	ctx := context.Background()
	require.NoError(t, base.Append(ctx, "s", []memory.Message{{Role: "user", Content: "plain"}}))
	mw, err := memory.NewEncryptionMiddleware(memory.EncryptionConfig{ActiveKey: generateKey(t)})
	require.NoError(t, err)
	_, err = mw(base).Load(ctx, "s")
	assert.ErrorContains(t, err, "outside an encrypted envelope")

	key, err := memory.DecodeKey(base64.StdEncoding.EncodeToString(generateKey(t)))
	require.NoError(t, err)
	assert.Len(t, key, 32)
	_, err = memory.DecodeKey("%%%")
	assert.Error(t, err)
}
