// Package auth holds the bearer token used by the gateway.
package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// TokenSource supplies the current bearer token.
type TokenSource interface {
	Token() (string, bool)
}

// TokenStore is a TokenSource that can also be written.
type TokenStore interface {
	TokenSource
	SetToken(token string) error
	Clear() error
}

// MemoryTokens keeps the token for the lifetime of the process.
type MemoryTokens struct {
	mu    sync.RWMutex
	token string
}

func NewMemoryTokens() *MemoryTokens {
	return &MemoryTokens{}
}

func (m *MemoryTokens) Token() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token, m.token != ""
}

func (m *MemoryTokens) SetToken(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	return nil
}

func (m *MemoryTokens) Clear() error {
	return m.SetToken("")
}

// FileTokens persists the token in a single file readable only by the owner.
type FileTokens struct {
	mu   sync.Mutex
	path string
}

// NewFileTokens stores the token at dataDir/token.
func NewFileTokens(dataDir string) *FileTokens {
	return &FileTokens{path: filepath.Join(dataDir, "token")}
}

func (f *FileTokens) Token() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, err := os.ReadFile(f.path)
	if err != nil {
		return "", false
	}
	token := strings.TrimSpace(string(b))
	return token, token != ""
}

func (f *FileTokens) SetToken(token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	if err := os.WriteFile(f.path, []byte(token), 0o600); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}

func (f *FileTokens) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("clear token: %w", err)
	}
	return nil
}
