package auth

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tradetools/ttconnect/config"
)

// Store persists sessions across process restarts. Load returns (nil, nil)
// when no usable session exists for the broker.
type Store interface {
	Load(ctx context.Context, brokerID string) (*Session, error)
	Save(ctx context.Context, brokerID string, session Session) error
	Clear(ctx context.Context, brokerID string) error
}

// StoreFromConfig selects the session backend for a broker client. Without
// cache_session the session lives in process memory only; with it, the file
// backend is the default and session_store="s3" selects object storage for
// fleets that share one login across hosts.
func StoreFromConfig(cfg config.Config, log zerolog.Logger) (Store, error) {
	if !cfg.Bool("cache_session") {
		return NewMemoryStore(), nil
	}

	switch backend := strings.ToLower(cfg.StringOr("session_store", "file")); backend {
	case "file":
		return NewFileStore(cfg.CacheDir(), log), nil
	case "s3":
		return NewS3StoreFromConfig(cfg, log)
	default:
		return nil, fmt.Errorf("config: unknown session_store %q, valid values are \"file\" and \"s3\"", backend)
	}
}

// MemoryStore keeps sessions in process memory; they are lost on restart.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]Session)}
}

func (m *MemoryStore) Load(_ context.Context, brokerID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[brokerID]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *MemoryStore) Save(_ context.Context, brokerID string, session Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[brokerID] = session
	return nil
}

func (m *MemoryStore) Clear(_ context.Context, brokerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, brokerID)
	return nil
}

// FileStore persists sessions to {dir}/{broker_id}_session.json.
type FileStore struct {
	dir string
	log zerolog.Logger
}

func NewFileStore(dir string, log zerolog.Logger) *FileStore {
	return &FileStore{
		dir: dir,
		log: log.With().Str("component", "session_store").Logger(),
	}
}

func (f *FileStore) path(brokerID string) string {
	return filepath.Join(f.dir, brokerID+"_session.json")
}

// Load reads the broker's cached session. A missing or unparseable file is
// a cache miss, not an error: the caller falls back to a fresh login.
func (f *FileStore) Load(_ context.Context, brokerID string) (*Session, error) {
	data, err := os.ReadFile(f.path(brokerID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	session, err := unmarshalSession(data)
	if err != nil {
		f.log.Warn().
			Str("broker", brokerID).
			Err(err).
			Msg("Failed to load cached session, re-login required")
		return nil, nil
	}
	return session, nil
}

// Save writes the session atomically so a crash mid-write never leaves a
// truncated cache file behind.
func (f *FileStore) Save(_ context.Context, brokerID string, session Session) error {
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create session dir: %w", err)
	}

	data, err := marshalSession(brokerID, session)
	if err != nil {
		return err
	}

	path := f.path(brokerID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace session file: %w", err)
	}

	f.log.Debug().Str("broker", brokerID).Str("path", path).Msg("Session cached")
	return nil
}

func (f *FileStore) Clear(_ context.Context, brokerID string) error {
	if err := os.Remove(f.path(brokerID)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
