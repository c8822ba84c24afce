// Package auth persists the bearer token used when replaying queued actions.
package auth

import (
	"errors"
	"strings"
)

// DefaultService is the keyring service name.
const DefaultService = "yatrisync"

const tokenAccount = "api-token"

var ErrTokenNotFound = errors.New("auth token not found")

// Store holds a single bearer token.
type Store interface {
	SetToken(token string) error
	Token() (string, error)
	DeleteToken() error
}

// Options selects a Store implementation.
type Options struct {
	// StaticToken, when set, wins over everything else and lives only in memory.
	StaticToken    string
	UseKeyring     bool
	KeyringService string
}

// NewStore returns the store described by opts.
func NewStore(opts Options) Store {
	if token := strings.TrimSpace(opts.StaticToken); token != "" {
		mem := NewMemoryStore()
		_ = mem.SetToken(token)
		return mem
	}
	if opts.UseKeyring {
		return NewKeyringStore(opts.KeyringService)
	}
	return NewMemoryStore()
}
