// Package credential selects the provider API key. The key may come from a
// dotenv-format key file, the process environment, or static configuration,
// in that order, and can be reselected at runtime.
package credential

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrNoCredential is returned by Select when no source yields a key.
var ErrNoCredential = eris.New("credential: no API key available")

// Key sources.
const (
	SourceFile   = "file"
	SourceEnv    = "env"
	SourceConfig = "config"
)

// Selector holds the active API key. It is safe for concurrent use.
type Selector struct {
	envVar   string
	keyFile  string
	fallback string

	mu     sync.RWMutex
	key    string
	source string
}

// NewSelector creates a selector for the variable envVar. keyFile is an
// optional dotenv file that may define envVar; fallback is the statically
// configured key. The initial key is loaded immediately.
func NewSelector(envVar, keyFile, fallback string) *Selector {
	s := &Selector{envVar: envVar, keyFile: keyFile, fallback: strings.TrimSpace(fallback)}
	if err := s.Select(context.Background()); err != nil {
		zap.L().Warn("credential: no API key configured", zap.String("env_var", envVar))
	}
	return s
}

// HasCredential reports whether a key is selected.
func (s *Selector) HasCredential(_ context.Context) bool {
	return s.Key() != ""
}

// Key returns the active key, or "" when none is selected.
func (s *Selector) Key() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.key
}

// Source returns where the active key came from.
func (s *Selector) Source() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.source
}

// Select re-reads every source and activates the first key found. The key
// file is read fresh on each call so a rotated key takes effect without a
// restart. The previous key is kept when no source yields one.
func (s *Selector) Select(_ context.Context) error {
	key, source, err := s.lookup()
	if err != nil {
		return err
	}
	if key == "" {
		return ErrNoCredential
	}

	s.mu.Lock()
	changed := s.key != key
	s.key, s.source = key, source
	s.mu.Unlock()

	if changed {
		zap.L().Info("credential: API key selected",
			zap.String("env_var", s.envVar),
			zap.String("source", source),
		)
	}
	return nil
}

func (s *Selector) lookup() (string, string, error) {
	if s.keyFile != "" {
		vals, err := godotenv.Read(s.keyFile)
		switch {
		case err == nil:
			if v := strings.TrimSpace(vals[s.envVar]); v != "" {
				return v, SourceFile, nil
			}
		case errors.Is(err, fs.ErrNotExist):
		default:
			return "", "", eris.Wrapf(err, "credential: read key file %s", s.keyFile)
		}
	}
	if v := strings.TrimSpace(os.Getenv(s.envVar)); v != "" {
		return v, SourceEnv, nil
	}
	if s.fallback != "" {
		return s.fallback, SourceConfig, nil
	}
	return "", "", nil
}
