package vault

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"

	"github.com/vault-cli/credvault/internal/domain"
)

// verifierPlaintext is sealed under the vault key at setup time. Opening it
// proves an unwrapped key belongs to this vault.
const verifierPlaintext = "credvault-verifier-v1"

const passkeyInfo = "credvault passkey kek"

// PINLength is the number of digits in an unlock PIN.
const PINLength = 4

var (
	// ErrAuthFailed is returned when a password, PIN or passkey does not unwrap the vault key.
	ErrAuthFailed = errors.New("authentication failed")
	// ErrInvalidPIN is returned when a PIN is not exactly four digits.
	ErrInvalidPIN = errors.New("pin must be exactly 4 digits")
	// ErrNotInitialized is returned when the owner has no password keychain entry.
	ErrNotInitialized = errors.New("vault is not initialized for this owner")
	// ErrAlreadyInitialized is returned by Setup when a password entry exists.
	ErrAlreadyInitialized = errors.New("vault is already initialized for this owner")
	// ErrMethodUnavailable is returned when the requested unlock method is not enrolled.
	ErrMethodUnavailable = errors.New("unlock method not available")
)

// KeychainStore persists wrapped keys and the vault verifier.
type KeychainStore interface {
	ListKeychainEntries(ctx context.Context, ownerID string) ([]*domain.KeychainEntry, error)
	PutKeychainEntry(ctx context.Context, entry *domain.KeychainEntry) error
	DeleteKeychainEntry(ctx context.Context, ownerID string, kind domain.KeychainType) error
	GetVerifier(ctx context.Context, ownerID string) ([]byte, error)
	PutVerifier(ctx context.Context, ownerID string, verifier []byte) error
}

// Authenticator is a platform passkey authenticator. Assert performs a user
// presence check and returns the secret bound to credentialID.
type Authenticator interface {
	Assert(ctx context.Context, ownerID, credentialID string) ([]byte, error)
}

// Methods lists the unlock methods enrolled for an owner.
type Methods struct {
	Password bool
	PIN      bool
	Passkey  bool
}

// Keychain wraps and unwraps the vault key for every unlock method.
type Keychain struct {
	store  KeychainStore
	engine *CryptoEngine
	auth   Authenticator
	now    func() time.Time
}

// KeychainOption configures a Keychain.
type KeychainOption func(*Keychain)

// WithAuthenticator enables passkey unlock through auth.
func WithAuthenticator(auth Authenticator) KeychainOption {
	return func(k *Keychain) { k.auth = auth }
}

// NewKeychain creates a keychain backed by store.
func NewKeychain(store KeychainStore, engine *CryptoEngine, opts ...KeychainOption) *Keychain {
	k := &Keychain{store: store, engine: engine, now: time.Now}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// Setup creates a new vault key for ownerID, wraps it under the master
// password and stores the verifier. The caller owns the returned key.
func (k *Keychain) Setup(ctx context.Context, ownerID, password string) ([]byte, error) {
	entries, err := k.store.ListKeychainEntries(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list keychain entries: %w", err)
	}
	if findEntry(entries, domain.KeychainPassword) != nil {
		return nil, ErrAlreadyInitialized
	}

	key, err := GenerateKey()
	if err != nil {
		return nil, err
	}

	entry, err := k.wrapWithSecret(ownerID, domain.KeychainPassword, key, password)
	if err != nil {
		Zeroize(key)
		return nil, err
	}

	verifier, err := k.engine.Seal([]byte(verifierPlaintext), key)
	if err != nil {
		Zeroize(key)
		return nil, fmt.Errorf("failed to seal verifier: %w", err)
	}

	if err := k.store.PutVerifier(ctx, ownerID, EnvelopeToBytes(verifier)); err != nil {
		Zeroize(key)
		return nil, fmt.Errorf("failed to store verifier: %w", err)
	}
	if err := k.store.PutKeychainEntry(ctx, entry); err != nil {
		Zeroize(key)
		return nil, fmt.Errorf("failed to store password entry: %w", err)
	}

	return key, nil
}

// Unlock reports whether candidate is the owner's master password. A wrong
// password is (false, nil); errors are reserved for storage or integrity failures.
func (k *Keychain) Unlock(ctx context.Context, candidate, ownerID string) (bool, error) {
	key, err := k.UnlockPassword(ctx, ownerID, candidate)
	if errors.Is(err, ErrAuthFailed) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	Zeroize(key)
	return true, nil
}

// Methods reports which unlock methods are enrolled for ownerID. Passkey is
// only reported when an authenticator is configured.
func (k *Keychain) Methods(ctx context.Context, ownerID string) (Methods, error) {
	entries, err := k.store.ListKeychainEntries(ctx, ownerID)
	if err != nil {
		return Methods{}, fmt.Errorf("failed to list keychain entries: %w", err)
	}
	return Methods{
		Password: findEntry(entries, domain.KeychainPassword) != nil,
		PIN:      findEntry(entries, domain.KeychainPIN) != nil,
		Passkey:  k.auth != nil && findEntry(entries, domain.KeychainPasskey) != nil,
	}, nil
}

// UnlockPassword unwraps the vault key with the master password.
func (k *Keychain) UnlockPassword(ctx context.Context, ownerID, password string) ([]byte, error) {
	entry, err := k.entry(ctx, ownerID, domain.KeychainPassword)
	if err != nil {
		if errors.Is(err, ErrMethodUnavailable) {
			return nil, ErrNotInitialized
		}
		return nil, err
	}

	kek, err := k.engine.WithParams(ParamsFromKDF(entry.KDF)).DeriveKey(password, entry.Salt)
	if err != nil {
		return nil, err
	}
	defer Zeroize(kek)

	return k.unwrap(ctx, entry, kek)
}

// UnlockPIN unwraps the vault key with the 4-digit PIN.
func (k *Keychain) UnlockPIN(ctx context.Context, ownerID, pin string) ([]byte, error) {
	if err := ValidatePIN(pin); err != nil {
		return nil, err
	}

	entry, err := k.entry(ctx, ownerID, domain.KeychainPIN)
	if err != nil {
		return nil, err
	}

	kek, err := k.engine.WithParams(ParamsFromKDF(entry.KDF)).DeriveKey(pin, entry.Salt)
	if err != nil {
		return nil, err
	}
	defer Zeroize(kek)

	return k.unwrap(ctx, entry, kek)
}

// UnlockPasskey asks the authenticator for an assertion and unwraps the vault key.
func (k *Keychain) UnlockPasskey(ctx context.Context, ownerID string) ([]byte, error) {
	if k.auth == nil {
		return nil, ErrMethodUnavailable
	}

	entry, err := k.entry(ctx, ownerID, domain.KeychainPasskey)
	if err != nil {
		return nil, err
	}

	secret, err := k.auth.Assert(ctx, ownerID, entry.CredentialID)
	if err != nil {
		return nil, fmt.Errorf("%w: passkey assertion: %v", ErrAuthFailed, err)
	}
	defer Zeroize(secret)

	kek, err := passkeyKEK(secret, entry.Salt)
	if err != nil {
		return nil, err
	}
	defer Zeroize(kek)

	return k.unwrap(ctx, entry, kek)
}

// EnrollPIN wraps key under pin, replacing any previous PIN.
func (k *Keychain) EnrollPIN(ctx context.Context, ownerID string, key []byte, pin string) error {
	if err := ValidatePIN(pin); err != nil {
		return err
	}
	if err := k.verify(ctx, ownerID, key); err != nil {
		return err
	}

	entry, err := k.wrapWithSecret(ownerID, domain.KeychainPIN, key, pin)
	if err != nil {
		return err
	}
	return k.store.PutKeychainEntry(ctx, entry)
}

// EnrollPasskey wraps key under the authenticator secret for credentialID.
func (k *Keychain) EnrollPasskey(ctx context.Context, ownerID string, key []byte, credentialID string) error {
	if k.auth == nil {
		return ErrMethodUnavailable
	}
	if err := k.verify(ctx, ownerID, key); err != nil {
		return err
	}

	secret, err := k.auth.Assert(ctx, ownerID, credentialID)
	if err != nil {
		return fmt.Errorf("passkey assertion failed: %w", err)
	}
	defer Zeroize(secret)

	salt, err := GenerateSalt()
	if err != nil {
		return err
	}
	kek, err := passkeyKEK(secret, salt)
	if err != nil {
		return err
	}
	defer Zeroize(kek)

	wrapped, err := k.engine.Seal(key, kek)
	if err != nil {
		return fmt.Errorf("failed to wrap key: %w", err)
	}

	return k.store.PutKeychainEntry(ctx, &domain.KeychainEntry{
		ID:           uuid.NewString(),
		OwnerID:      ownerID,
		Type:         domain.KeychainPasskey,
		Salt:         salt,
		WrappedKey:   EnvelopeToBytes(wrapped),
		CredentialID: credentialID,
		CreatedAt:    k.now().UTC(),
	})
}

// Remove deletes the entry for kind. The password entry cannot be removed.
func (k *Keychain) Remove(ctx context.Context, ownerID string, kind domain.KeychainType) error {
	if kind == domain.KeychainPassword {
		return errors.New("the master password entry cannot be removed")
	}
	return k.store.DeleteKeychainEntry(ctx, ownerID, kind)
}

// ValidatePIN checks the PIN format.
func ValidatePIN(pin string) error {
	if len(pin) != PINLength {
		return ErrInvalidPIN
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return ErrInvalidPIN
		}
	}
	return nil
}

func (k *Keychain) entry(ctx context.Context, ownerID string, kind domain.KeychainType) (*domain.KeychainEntry, error) {
	entries, err := k.store.ListKeychainEntries(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list keychain entries: %w", err)
	}
	entry := findEntry(entries, kind)
	if entry == nil {
		return nil, fmt.Errorf("%w: %s", ErrMethodUnavailable, kind)
	}
	return entry, nil
}

func (k *Keychain) wrapWithSecret(ownerID string, kind domain.KeychainType, key []byte, secret string) (*domain.KeychainEntry, error) {
	salt, err := GenerateSalt()
	if err != nil {
		return nil, err
	}

	kek, err := k.engine.DeriveKey(secret, salt)
	if err != nil {
		return nil, err
	}
	defer Zeroize(kek)

	wrapped, err := k.engine.Seal(key, kek)
	if err != nil {
		return nil, fmt.Errorf("failed to wrap key: %w", err)
	}

	return &domain.KeychainEntry{
		ID:         uuid.NewString(),
		OwnerID:    ownerID,
		Type:       kind,
		Salt:       salt,
		KDF:        k.engine.Params().KDF(),
		WrappedKey: EnvelopeToBytes(wrapped),
		CreatedAt:  k.now().UTC(),
	}, nil
}

// unwrap opens the wrapped key. A tag mismatch here means a wrong secret; a
// key that unwraps but fails the verifier means the vault is corrupted.
func (k *Keychain) unwrap(ctx context.Context, entry *domain.KeychainEntry, kek []byte) ([]byte, error) {
	envelope, err := EnvelopeFromBytes(entry.WrappedKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %s entry: %v", ErrIntegrity, entry.Type, err)
	}

	key, err := k.engine.Open(envelope, kek)
	if errors.Is(err, ErrIntegrity) {
		return nil, ErrAuthFailed
	}
	if err != nil {
		return nil, err
	}

	if err := k.verify(ctx, entry.OwnerID, key); err != nil {
		Zeroize(key)
		return nil, err
	}
	return key, nil
}

func (k *Keychain) verify(ctx context.Context, ownerID string, key []byte) error {
	raw, err := k.store.GetVerifier(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("failed to load verifier: %w", err)
	}

	envelope, err := EnvelopeFromBytes(raw)
	if err != nil {
		return fmt.Errorf("%w: verifier: %v", ErrIntegrity, err)
	}

	plaintext, err := k.engine.Open(envelope, key)
	if err != nil {
		return fmt.Errorf("vault key does not match verifier: %w", ErrIntegrity)
	}
	defer Zeroize(plaintext)

	if !SecureCompare(plaintext, []byte(verifierPlaintext)) {
		return fmt.Errorf("unexpected verifier contents: %w", ErrIntegrity)
	}
	return nil
}

func passkeyKEK(secret, salt []byte) ([]byte, error) {
	kek := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, salt, []byte(passkeyInfo)), kek); err != nil {
		return nil, fmt.Errorf("failed to expand passkey secret: %w", err)
	}
	return kek, nil
}

func findEntry(entries []*domain.KeychainEntry, kind domain.KeychainType) *domain.KeychainEntry {
	for _, e := range entries {
		if e != nil && e.Type == kind {
			return e
		}
	}
	return nil
}
