package memory

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"

	"github.com/aretw0/arbor/pkg/state"
)

// Redacted replaces masked values.
const Redacted = "***"

// EncryptedRole marks a stored envelope holding an encrypted batch.
const EncryptedRole = "__encrypted__"

type redactStore struct {
	Store
	patterns []*regexp.Regexp
}

// NewRedactMiddleware masks every match of the patterns in message content
// before it reaches the store. Histories already stored are returned as is.
func NewRedactMiddleware(patterns []string) (Middleware, error) {
	compiled := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redact pattern %q: %w", p, err)
		}
		compiled[i] = re
	}
	return func(next Store) Store {
		return &redactStore{Store: next, patterns: compiled}
	}, nil
}

func (s *redactStore) Append(ctx context.Context, id string, msgs []Message) error {
	masked := make([]Message, len(msgs))
	for i, m := range msgs {
		m.Content = s.mask(state.DeepCopy(m.Content))
		masked[i] = m
	}
	return s.Store.Append(ctx, id, masked)
}

func (s *redactStore) mask(v any) any {
	switch val := v.(type) {
	case string:
		for _, p := range s.patterns {
			val = p.ReplaceAllString(val, Redacted)
		}
		return val
	case map[string]any:
		for k, item := range val {
			val[k] = s.mask(item)
		}
		return val
	case []any:
		for i, item := range val {
			val[i] = s.mask(item)
		}
		return val
	}
	return v
}

// EncryptionConfig holds the AES-256 keys.
type EncryptionConfig struct {
	// ActiveKey encrypts new batches. It must be 32 bytes.
	ActiveKey []byte
	// FallbackKeys are tried in order when the active key cannot decrypt,
	// which allows key rotation.
	FallbackKeys [][]byte
}

type encryptStore struct {
	Store
	config EncryptionConfig
}

// NewEncryptionMiddleware seals every appended batch with AES-GCM into a
// single envelope message.
func NewEncryptionMiddleware(config EncryptionConfig) (Middleware, error) {
	if len(config.ActiveKey) != 32 {
		return nil, errors.New("active key must be 32 bytes (AES-256)")
	}
	return func(next Store) Store {
		return &encryptStore{Store: next, config: config}
	}, nil
}

// DecodeKey parses a base64 key.
func DecodeKey(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("encryption key must be base64: %w", err)
	}
	return key, nil
}

func (s *encryptStore) Append(ctx context.Context, id string, msgs []Message) error {
	if len(msgs) == 0 {
		return nil
	}
	plain, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("failed to marshal messages: %w", err)
	}
	sealed, err := encrypt(plain, s.config.ActiveKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt messages: %w", err)
	}
	envelope := Message{Role: EncryptedRole, Content: base64.StdEncoding.EncodeToString(sealed)}
	return s.Store.Append(ctx, id, []Message{envelope})
}

func (s *encryptStore) Load(ctx context.Context, id string) ([]Message, error) {
	stored, err := s.Store.Load(ctx, id)
	if err != nil {
		return nil, err
	}

	var out []Message
	for _, env := range stored {
		if env.Role != EncryptedRole {
			return nil, errors.New("history contains a message outside an encrypted envelope")
		}
		text, ok := env.Content.(string)
		if !ok {
			return nil, errors.New("encrypted envelope content must be a string")
		}
		sealed, err := base64.StdEncoding.DecodeString(text)
		if err != nil {
			return nil, fmt.Errorf("failed to decode ciphertext base64: %w", err)
		}
		plain, err := decryptWithRotation(sealed, s.config.ActiveKey, s.config.FallbackKeys)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt history: %w", err)
		}
		var batch []Message
		if err := json.Unmarshal(plain, &batch); err != nil {
			return nil, fmt.Errorf("failed to unmarshal decrypted messages: %w", err)
		}
		out = append(out, batch...)
	}
	return out, nil
}

func encrypt(plaintext, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decryptWithRotation(ciphertext, active []byte, fallbacks [][]byte) ([]byte, error) {
	for _, key := range append([][]byte{active}, fallbacks...) {
		if plain, err := decrypt(ciphertext, key); err == nil {
			return plain, nil
		}
	}
	return nil, errors.New("decryption failed with all available keys")
}

func decrypt(ciphertext, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, body := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, body, nil)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
