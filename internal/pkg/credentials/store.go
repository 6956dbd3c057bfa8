package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/piresc/tumpang/internal/pkg/logger"
)

// ErrNoCredential indicates no bearer token is currently stored
var ErrNoCredential = errors.New("no credential stored")

// Store is the persistent credential capability shared by the REST client
// and the push channel. Set on login, cleared on logout or a 401.
type Store interface {
	Get() (string, error)
	Set(token string) error
	Clear() error
}

// FileStore persists the bearer token in a JSON file, the client-side
// equivalent of the browser's local storage
type FileStore struct {
	mu   sync.RWMutex
	path string
}

type storedCredential struct {
	Token   string    `json:"token"`
	SavedAt time.Time `json:"saved_at"`
}

// NewFileStore creates a file-backed credential store
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Get returns the stored bearer token, or ErrNoCredential when none exists
func (s *FileStore) Get() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNoCredential
		}
		return "", fmt.Errorf("failed to read credential file: %w", err)
	}

	var cred storedCredential
	if err := json.Unmarshal(data, &cred); err != nil {
		return "", fmt.Errorf("failed to parse credential file: %w", err)
	}
	if cred.Token == "" {
		return "", ErrNoCredential
	}

	if expired(cred.Token) {
		logger.Warn("Stored credential is expired",
			logger.String("path", s.path))
	}

	return cred.Token, nil
}

// Set persists the bearer token
func (s *FileStore) Set(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("failed to create credential directory: %w", err)
		}
	}

	data, err := json.Marshal(storedCredential{Token: token, SavedAt: time.Now()})
	if err != nil {
		return fmt.Errorf("failed to marshal credential: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write credential file: %w", err)
	}
	return nil
}

// Clear removes the stored token. Clearing an empty store is not an error.
func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove credential file: %w", err)
	}
	return nil
}

// expired inspects the token's registered claims without verifying the
// signature. Verification belongs to the backend; the client only uses
// the expiry to log a useful diagnostic before a doomed connect.
func expired(token string) bool {
	claims := jwt.RegisteredClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return claims.ExpiresAt.Before(time.Now())
}
