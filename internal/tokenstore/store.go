// Package tokenstore persists the access token, the only durable artifact of
// the client. Values are stored under one fixed key.
package tokenstore

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/comigor/loanchat-go/internal/config"
	"github.com/comigor/loanchat-go/internal/logger"
)

// Key is the fixed name the token is stored under.
const Key = "loanchat.access_token"

// ErrCorrupt is returned by Load when the persisted value cannot be a token.
var ErrCorrupt = errors.New("tokenstore: persisted token is corrupt")

// Store is durable client-side storage for one opaque token.
// Load returns "" and no error when nothing is persisted.
type Store interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

// Open builds the store selected by cfg. If the sqlite database cannot be
// opened the client keeps working with an in-memory store.
func Open(cfg config.TokenStoreConfig) Store {
	switch cfg.Driver {
	case config.TokenStoreMemory:
		return NewMemory()
	case config.TokenStoreFile:
		return NewFile(cfg.Path)
	default:
		s, err := OpenSQLite(cfg.Path)
		if err != nil {
			logger.L.Warn("sqlite token store unavailable; token will not survive restart", "error", err)
			return NewMemory()
		}
		return s
	}
}

// validate rejects values that cannot be a bearer token.
func validate(token string) error {
	if token == "" || strings.ContainsAny(token, " \t\r\n") {
		return ErrCorrupt
	}
	return nil
}

// Memory keeps the token in process memory only.
type Memory struct {
	mu    sync.Mutex
	token string
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Load(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, nil
}

func (m *Memory) Save(_ context.Context, token string) error {
	if err := validate(token); err != nil {
		return err
	}
	m.mu.Lock()
	m.token = token
	m.mu.Unlock()
	return nil
}

func (m *Memory) Clear(context.Context) error {
	m.mu.Lock()
	m.token = ""
	m.mu.Unlock()
	return nil
}
