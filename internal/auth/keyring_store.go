package auth

import (
	"errors"
	"strings"

	"github.com/zalando/go-keyring"
)

// KeyringStore keeps the token in the OS keyring (Secret Service on Linux).
type KeyringStore struct {
	serviceName string
}

func NewKeyringStore(serviceName string) *KeyringStore {
	if strings.TrimSpace(serviceName) == "" {
		serviceName = DefaultService
	}
	return &KeyringStore{serviceName: serviceName}
}

func (k *KeyringStore) SetToken(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("empty token")
	}
	return keyring.Set(k.serviceName, tokenAccount, token)
}

func (k *KeyringStore) Token() (string, error) {
	token, err := keyring.Get(k.serviceName, tokenAccount)
	if err == nil {
		return token, nil
	}
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrTokenNotFound
	}
	return "", err
}

func (k *KeyringStore) DeleteToken() error {
	err := keyring.Delete(k.serviceName, tokenAccount)
	if errors.Is(err, keyring.ErrNotFound) {
		return ErrTokenNotFound
	}
	return err
}
