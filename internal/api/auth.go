package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// AuthTokenKey is the config table key holding the control API token.
const AuthTokenKey = "auth_token"

type TokenStoreWriter interface {
	TokenStore
	SetConfig(ctx context.Context, key, value string) error
}

// EnsureAuthToken returns the stored API token, generating one on first run.
func EnsureAuthToken(ctx context.Context, store TokenStoreWriter) (string, error) {
	token, err := store.GetConfig(ctx, AuthTokenKey)
	if err != nil {
		return "", fmt.Errorf("read auth token: %w", err)
	}
	if token != "" {
		return token, nil
	}

	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate auth token: %w", err)
	}
	token = hex.EncodeToString(b)
	if err := store.SetConfig(ctx, AuthTokenKey, token); err != nil {
		return "", fmt.Errorf("store auth token: %w", err)
	}
	return token, nil
}
