package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/aretw0/arbor/pkg/domain"
)

const sessionPlaceholder = "{session_id}"

var placeholderPattern = regexp.MustCompile(`\{[^{}]+\}`)

// FileStore keeps one JSON file per session. The path template may use
// {session_id} and {namespace}; relative paths resolve against the base
// directory.
type FileStore struct {
	template  string
	baseDir   string
	namespace string

	mu sync.Mutex
}

// NewFileStore creates a store for the path template.
func NewFileStore(template, baseDir, namespace string) *FileStore {
	return &FileStore{template: template, baseDir: baseDir, namespace: namespace}
}

func (s *FileStore) path(id string) (string, error) {
	if id == "" {
		return "", errors.New("session id cannot be empty")
	}
	p := strings.ReplaceAll(s.template, sessionPlaceholder, id)
	p = strings.ReplaceAll(p, "{namespace}", s.namespace)
	if missing := placeholderPattern.FindString(p); missing != "" {
		return "", fmt.Errorf("missing placeholder %s in memory.path template '%s'", missing, s.template)
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(s.baseDir, p)
	}
	return p, nil
}

func (s *FileStore) Load(_ context.Context, id string) ([]Message, error) {
	p, err := s.path(id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return readHistory(p)
}

func readHistory(p string) ([]Message, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to read history file: %w", err)
	}
	var msgs []Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal history: %w", err)
	}
	return msgs, nil
}

// Append rewrites the session file through a temporary file and a rename.
func (s *FileStore) Append(_ context.Context, id string, msgs []Message) error {
	p, err := s.path(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	history, err := readHistory(p)
	if err != nil && err != domain.ErrSessionNotFound {
		return err
	}
	history = append(history, msgs...)

	data, err := json.MarshalIndent(history, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("failed to ensure history directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(p), ".history-*")
	if err != nil {
		return fmt.Errorf("failed to write history file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write history file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write history file: %w", err)
	}
	return os.Rename(tmp.Name(), p)
}

func (s *FileStore) Delete(_ context.Context, id string) error {
	p, err := s.path(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete history file: %w", err)
	}
	return nil
}

// List globs the path template with the session placeholder as a wildcard.
func (s *FileStore) List(_ context.Context) ([]string, error) {
	if !strings.Contains(s.template, sessionPlaceholder) {
		return nil, fmt.Errorf("memory.path template '%s' has no %s placeholder", s.template, sessionPlaceholder)
	}
	marker := "\x00"
	p, err := s.path(marker)
	if err != nil {
		return nil, err
	}
	prefix, suffix, _ := strings.Cut(p, marker)

	matches, err := filepath.Glob(strings.ReplaceAll(p, marker, "*"))
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		if !strings.HasPrefix(m, prefix) || !strings.HasSuffix(m, suffix) {
			continue
		}
		ids = append(ids, m[len(prefix):len(m)-len(suffix)])
	}
	sort.Strings(ids)
	return ids, nil
}
