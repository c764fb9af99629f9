package memory

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/arbor/pkg/domain"
)

// DefaultLockTTL bounds how long a distributed session lock is held.
const DefaultLockTTL = 30 * time.Second

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager binds runs to conversation sessions. Runs on the same session are
// serialized so each one sees the history the previous one stored.
type Manager struct {
	store      Store
	sessionKey string
	namespace  string
	k          int
	locker     Locker
	lockTTL    time.Duration
	logger     *slog.Logger

	mu    sync.Mutex
	locks map[string]*lockEntry
}

// Option configures a Manager.
type Option func(*Manager)

// WithSessionKey names the input or state key holding the session id.
func WithSessionKey(key string) Option {
	return func(m *Manager) {
		m.sessionKey = key
	}
}

// WithNamespace prefixes storage ids.
func WithNamespace(ns string) Option {
	return func(m *Manager) {
		m.namespace = ns
	}
}

// WithWindow exposes the last k messages under WindowKey.
func WithWindow(k int) Option {
	return func(m *Manager) {
		m.k = k
	}
}

// WithLocker enables distributed session locking.
func WithLocker(l Locker, ttl time.Duration) Option {
	return func(m *Manager) {
		m.locker = l
		m.lockTTL = ttl
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a manager over store.
func NewManager(store Store, opts ...Option) *Manager {
	m := &Manager{
		store:      store,
		sessionKey: "session_id",
		lockTTL:    DefaultLockTTL,
		logger:     slog.New(slog.NewJSONHandler(io.Discard, nil)),
		locks:      make(map[string]*lockEntry),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Store returns the underlying store.
func (m *Manager) Store() Store {
	return m.store
}

// Close releases the store's resources when it holds any.
func (m *Manager) Close() error {
	if c, ok := m.store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// SessionID resolves the session id from inputs, then state, then "default",
// and the storage id that adds the namespace.
func (m *Manager) SessionID(st, inputs map[string]any) (sessionID, storageID string) {
	raw, ok := inputs[m.sessionKey]
	if !ok {
		raw, ok = st[m.sessionKey]
	}
	if !ok || raw == nil {
		raw = "default"
	}
	sessionID = fmt.Sprint(raw)
	storageID = sessionID
	if m.namespace != "" {
		storageID = m.namespace + ":" + sessionID
	}
	return sessionID, storageID
}

// Start locks the session, prepends its history to state["messages"] and
// records the session id in state.
func (m *Manager) Start(ctx context.Context, st, inputs map[string]any) (domain.MemorySession, error) {
	sessionID, storageID := m.SessionID(st, inputs)
	release, err := m.lock(ctx, storageID)
	if err != nil {
		return nil, err
	}

	history, err := loadHistory(ctx, m.store, storageID)
	if err != nil {
		release()
		return nil, fmt.Errorf("failed to load conversation '%s': %w", storageID, err)
	}

	combined := make([]any, 0, len(history))
	for _, msg := range history {
		combined = append(combined, msg.Entry())
	}
	switch existing := st[StateKey].(type) {
	case nil:
	case []any:
		combined = append(combined, existing...)
	default:
		release()
		return nil, domain.NewConfigError("state['%s'] must be a list when memory is enabled", StateKey)
	}

	st[StateKey] = combined
	if st[m.sessionKey] == nil {
		st[m.sessionKey] = sessionID
	}
	m.updateWindow(st, combined)

	m.logger.Debug("memory session started", "session_id", storageID, "history", len(history))
	return &Session{manager: m, ID: sessionID, StorageID: storageID, initial: len(history), release: release}, nil
}

func (m *Manager) updateWindow(st map[string]any, msgs []any) {
	if m.k <= 0 {
		delete(st, WindowKey)
		return
	}
	from := len(msgs) - m.k
	if from < 0 {
		from = 0
	}
	st[WindowKey] = append([]any(nil), msgs[from:]...)
}

// lock takes the in-process lock for id, then the distributed one if configured.
func (m *Manager) lock(ctx context.Context, id string) (func(), error) {
	m.mu.Lock()
	entry, ok := m.locks[id]
	if !ok {
		entry = &lockEntry{}
		m.locks[id] = entry
	}
	entry.refs++
	m.mu.Unlock()

	entry.mu.Lock()
	local := func() {
		entry.mu.Unlock()
		m.mu.Lock()
		entry.refs--
		if entry.refs <= 0 {
			delete(m.locks, id)
		}
		m.mu.Unlock()
	}

	if m.locker == nil {
		return local, nil
	}
	unlock, err := m.locker.Lock(ctx, id, m.lockTTL)
	if err != nil {
		local()
		return nil, err
	}
	return func() {
		if err := unlock(context.Background()); err != nil {
			m.logger.Warn("failed to release session lock (will expire via TTL)", "session_id", id, "err", err)
		}
		local()
	}, nil
}

// Session is the conversation bound to one run.
type Session struct {
	manager   *Manager
	ID        string
	StorageID string
	initial   int
	release   func()
	once      sync.Once
}

// Finish appends the messages added during a successful run and releases
// the session lock.
func (s *Session) Finish(ctx context.Context, st map[string]any, runErr error) error {
	defer s.once.Do(s.release)
	if runErr != nil {
		return nil
	}

	msgs, ok := st[StateKey].([]any)
	if !ok {
		if st[StateKey] == nil {
			return nil
		}
		return domain.NewConfigError("state['%s'] must be a list when memory is enabled", StateKey)
	}
	if len(msgs) <= s.initial {
		return nil
	}

	var fresh []Message
	for _, entry := range msgs[s.initial:] {
		if msg, ok := FromEntry(entry); ok {
			fresh = append(fresh, msg)
		}
	}
	if len(fresh) == 0 {
		return nil
	}
	if err := s.manager.store.Append(ctx, s.StorageID, fresh); err != nil {
		return fmt.Errorf("failed to store conversation '%s': %w", s.StorageID, err)
	}
	s.manager.updateWindow(st, msgs)
	s.manager.logger.Debug("memory session stored", "session_id", s.StorageID, "messages", len(fresh))
	return nil
}
