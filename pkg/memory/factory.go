package memory

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/arbor/pkg/config"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/spf13/cast"
)

// Config keys read from memory.config.
const (
	ConfigRedact        = "redact"
	ConfigEncryptionKey = "encryption_key"
	ConfigFallbackKeys  = "fallback_keys"
	ConfigTTLSeconds    = "ttl_seconds"
)

// New builds a Manager from the memory block of an agent document. It returns
// nil when memory is absent or disabled. Relative file paths resolve against
// baseDir.
func New(cfg *config.Memory, baseDir string, logger *slog.Logger) (*Manager, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}

	settings, err := config.ResolveEnv(cfg.Config)
	if err != nil {
		return nil, err
	}
	extra, _ := settings.(map[string]any)

	opts := []Option{
		WithSessionKey(cfg.SessionKey),
		WithNamespace(cfg.Namespace),
		WithWindow(cfg.K),
	}
	if logger != nil {
		opts = append(opts, WithLogger(logger))
	}

	var store Store
	switch cfg.Kind {
	case "", "inmemory":
		store = NewInMemoryStore()
	case "file":
		if cfg.Path == "" {
			return nil, domain.NewConfigError("memory.path is required for kind 'file'")
		}
		store = NewFileStore(cfg.Path, baseDir, cfg.Namespace)
	case "redis":
		if cfg.DSN == "" {
			return nil, domain.NewConfigError("memory.dsn is required for kind 'redis'")
		}
		prefix := DefaultRedisPrefix
		if cfg.Namespace != "" {
			prefix = cfg.Namespace + ":"
		}
		ropts := []RedisOption{WithPrefix(prefix)}
		if ttl := cast.ToFloat64(extra[ConfigTTLSeconds]); ttl > 0 {
			ropts = append(ropts, WithTTL(time.Duration(ttl*float64(time.Second))))
		}
		rs, err := NewRedisStore(cfg.DSN, ropts...)
		if err != nil {
			return nil, domain.NewConfigError("memory.dsn: %w", err)
		}
		store = rs
		opts = append(opts, WithLocker(rs.Locker(), DefaultLockTTL))
	default:
		return nil, domain.NewConfigError("unsupported memory.kind '%s'", cfg.Kind)
	}

	mws, err := middlewares(extra)
	if err != nil {
		return nil, err
	}
	return NewManager(Chain(store, mws...), opts...), nil
}

// middlewares builds redaction first, so content is masked before it is sealed.
func middlewares(extra map[string]any) ([]Middleware, error) {
	var mws []Middleware
	if patterns := cast.ToStringSlice(extra[ConfigRedact]); len(patterns) > 0 {
		mw, err := NewRedactMiddleware(patterns)
		if err != nil {
			return nil, domain.NewConfigError("memory.config.%s: %w", ConfigRedact, err)
		}
		mws = append(mws, mw)
	}

	if raw := cast.ToString(extra[ConfigEncryptionKey]); raw != "" {
		active, err := DecodeKey(raw)
		if err != nil {
			return nil, domain.NewConfigError("memory.config.%s: %w", ConfigEncryptionKey, err)
		}
		enc := EncryptionConfig{ActiveKey: active}
		for i, s := range cast.ToStringSlice(extra[ConfigFallbackKeys]) {
			key, err := DecodeKey(s)
			if err != nil {
				return nil, domain.NewConfigError("memory.config.%s[%d]: %w", ConfigFallbackKeys, i, err)
			}
			enc.FallbackKeys = append(enc.FallbackKeys, key)
		}
		mw, err := NewEncryptionMiddleware(enc)
		if err != nil {
			return nil, domain.NewConfigError("memory.config.%s: %w", ConfigEncryptionKey, err)
		}
		mws = append(mws, mw)
	}
	return mws, nil
}

// Describe summarizes the store for logs and the info endpoint.
func Describe(cfg *config.Memory) string {
	if cfg == nil || !cfg.Enabled {
		return "disabled"
	}
	return fmt.Sprintf("%s (session key %q)", cfg.Kind, cfg.SessionKey)
}
