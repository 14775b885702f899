package vault

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrKeyFileMismatch is returned when a key file does not belong to the enrolled passkey.
var ErrKeyFileMismatch = errors.New("key file does not match the enrolled passkey")

// KeyFileAuthenticator treats a secret file (for example on a removable
// security key) as the platform authenticator.
type KeyFileAuthenticator struct {
	Path string
}

// CreateKeyFile writes a new random secret to path and returns its credential ID.
func CreateKeyFile(path string) (string, error) {
	secret, err := GenerateKey()
	if err != nil {
		return "", err
	}
	defer Zeroize(secret)

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", fmt.Errorf("failed to create key file directory: %w", err)
	}
	if err := os.WriteFile(path, secret, 0o600); err != nil {
		return "", fmt.Errorf("failed to write key file: %w", err)
	}
	return KeyFileID(secret), nil
}

// KeyFileID derives the public credential ID from a key file secret.
func KeyFileID(secret []byte) string {
	sum := sha256.Sum256(secret)
	return hex.EncodeToString(sum[:8])
}

// Assert implements Authenticator.
func (a *KeyFileAuthenticator) Assert(ctx context.Context, ownerID, credentialID string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	secret, err := os.ReadFile(filepath.Clean(a.Path))
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	if len(secret) != KeySize {
		Zeroize(secret)
		return nil, fmt.Errorf("key file has unexpected size %d", len(secret))
	}
	if credentialID != "" && KeyFileID(secret) != credentialID {
		Zeroize(secret)
		return nil, ErrKeyFileMismatch
	}
	return secret, nil
}
