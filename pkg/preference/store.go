// Package preference persists small string settings such as the identity of
// the last activated connector.
package preference

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sigweihq/web3connect/pkg/constants"
)

// ErrNotFound is returned by Get for a key that was never set or was deleted
var ErrNotFound = errors.New("preference not found")

// Store is a string key/value store
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Backend names accepted by Open
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Open returns the store for backend. An empty path selects the default
// location under the user config directory.
func Open(backend, path string) (Store, error) {
	switch backend {
	case "", BackendMemory:
		return NewMemory(), nil
	case BackendFile:
		if path == "" {
			p, err := defaultPath(constants.DefaultPrefsFile)
			if err != nil {
				return nil, err
			}
			path = p
		}
		return NewFileStore(path), nil
	case BackendSQLite:
		if path == "" {
			p, err := defaultPath(constants.DefaultPrefsDBFile)
			if err != nil {
				return nil, err
			}
			path = p
		}
		return OpenSQLite(path)
	default:
		return nil, fmt.Errorf("unknown preference backend %q", backend)
	}
}

func defaultPath(file string) (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config directory: %w", err)
	}
	return filepath.Join(dir, constants.DefaultConfigDir, file), nil
}

// Memory keeps preferences for the lifetime of the process
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

func (m *Memory) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return value, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}
