package store

import (
	"context"
	"errors"

	"github.com/vault-cli/credvault/internal/domain"
)

// Error variables for vault store operations
var (
	// ErrUnavailable is returned when the store is closed or the database
	// cannot be reached. It is the only infrastructure error.
	ErrUnavailable = errors.New("vault store unavailable")
	// ErrVaultNotFound is returned when the specified vault does not exist
	ErrVaultNotFound = errors.New("vault not found")
	// ErrVaultExists is returned when attempting to create a vault that already exists
	ErrVaultExists = errors.New("vault already exists")
	// ErrNotFound is returned when a credential, folder or verifier does not exist
	ErrNotFound = errors.New("not found")
	// ErrExists is returned when creating a record whose ID or name is taken
	ErrExists = errors.New("already exists")
	// ErrInvalidRecord is returned when a record is missing required fields
	ErrInvalidRecord = errors.New("invalid record")
	// ErrVaultLocked is returned when the vault is locked by another process
	ErrVaultLocked = errors.New("vault is locked by another process")
	// ErrVaultCorrupted is returned when the vault data is corrupted or invalid
	ErrVaultCorrupted = errors.New("vault data is corrupted")
)

// VaultStore is the persistence collaborator. Every method is scoped to an
// owner; secret fields arrive already encrypted and are stored as given.
type VaultStore interface {
	// Credentials
	ListCredentials(ctx context.Context, ownerID string, filter *domain.Filter) ([]*domain.Credential, error)
	GetCredential(ctx context.Context, ownerID, id string) (*domain.Credential, error)
	CreateCredential(ctx context.Context, cred *domain.Credential) (*domain.Credential, error)
	BulkCreateCredentials(ctx context.Context, creds []*domain.Credential) ([]*domain.Credential, error)
	DeleteCredential(ctx context.Context, ownerID, id string) error

	// Folders
	CreateFolder(ctx context.Context, ownerID, name, parentID string) (*domain.Folder, error)
	ListFolders(ctx context.Context, ownerID string) ([]*domain.Folder, error)

	// TOTP secrets
	CreateTOTPSecret(ctx context.Context, secret *domain.TOTPSecret) (*domain.TOTPSecret, error)
	ListTOTPSecrets(ctx context.Context, ownerID string) ([]*domain.TOTPSecret, error)

	// Keychain
	HasPasskey(ctx context.Context, ownerID string) (bool, error)
	ListKeychainEntries(ctx context.Context, ownerID string) ([]*domain.KeychainEntry, error)
	PutKeychainEntry(ctx context.Context, entry *domain.KeychainEntry) error
	DeleteKeychainEntry(ctx context.Context, ownerID string, kind domain.KeychainType) error
	GetVerifier(ctx context.Context, ownerID string) ([]byte, error)
	PutVerifier(ctx context.Context, ownerID string, verifier []byte) error

	// Audit operations
	LogOperation(ctx context.Context, op *domain.Operation) error
	GetAuditLog(ctx context.Context, ownerID string) ([]*domain.Operation, error)

	Close() error
}
