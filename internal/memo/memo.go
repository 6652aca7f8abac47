// Package memo keeps a small bounded conversation memory for the
// planning agent, persisted as a JSON file.
package memo

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/planhub/planhub/internal/core"
)

// DefaultMaxHistory bounds the stored history unless configured.
const DefaultMaxHistory = 50

const recallWindow = 5

// Message is one remembered exchange.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Store persists messages to a single JSON file. Mutations are written
// through before success is returned.
type Store struct {
	path string
	max  int

	mu sync.Mutex
}

// NewStore creates a Store at path, keeping at most max messages
// (DefaultMaxHistory when max <= 0).
func NewStore(path string, max int) (*Store, error) {
	if path == "" {
		return nil, errors.New("memo: path is required")
	}
	if max <= 0 {
		max = DefaultMaxHistory
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return &Store{path: path, max: max}, nil
}

// Save appends a message and returns the new total.
func (s *Store) Save(role, content string) (int, error) {
	if strings.TrimSpace(content) == "" {
		return 0, core.Errorf(core.KindInvalidArgument, "message is required")
	}
	if role == "" {
		role = "user"
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	history, err := s.load()
	if err != nil {
		return 0, err
	}
	history = append(history, Message{Role: role, Content: content, Timestamp: time.Now().UTC()})
	if len(history) > s.max {
		history = history[len(history)-s.max:]
	}
	if err := s.persist(history); err != nil {
		return 0, err
	}
	return len(history), nil
}

// Recall returns the most recent messages (up to five) and the total
// count held.
func (s *Store) Recall() ([]Message, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	history, err := s.load()
	if err != nil {
		return nil, 0, err
	}
	recent := history
	if len(recent) > recallWindow {
		recent = recent[len(recent)-recallWindow:]
	}
	return recent, len(history), nil
}

// Search returns messages whose content contains query,
// case-insensitive.
func (s *Store) Search(query string) ([]Message, error) {
	if strings.TrimSpace(query) == "" {
		return nil, core.Errorf(core.KindInvalidArgument, "query is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	history, err := s.load()
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(query)
	var out []Message
	for _, m := range history {
		if strings.Contains(strings.ToLower(m.Content), needle) {
			out = append(out, m)
		}
	}
	return out, nil
}

// Clear discards all stored messages.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persist(nil)
}

func (s *Store) load() ([]Message, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, core.WrapError(core.KindUnavailable, "memory store unavailable", err)
	}
	var history []Message
	if err := json.Unmarshal(data, &history); err != nil {
		// A corrupt file loses the history rather than bricking the
		// tool; the next save rewrites it.
		return nil, nil
	}
	return history, nil
}

func (s *Store) persist(history []Message) error {
	if history == nil {
		history = []Message{}
	}
	data, err := json.MarshalIndent(history, "", "  ")
	if err != nil {
		return core.WrapError(core.KindInternal, "internal error", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return core.WrapError(core.KindUnavailable, "memory store unavailable", err)
	}
	return nil
}
