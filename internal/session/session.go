// Package session holds the unlocked vault key for one owner and performs
// every field encryption on its behalf.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vault-cli/credvault/internal/domain"
	"github.com/vault-cli/credvault/internal/vault"
)

// ErrSessionLocked is returned by every key operation once the session has
// been locked or has expired.
var ErrSessionLocked = errors.New("session locked")

// State is the lifecycle state of a session.
type State int32

const (
	Locked State = iota
	Verifying
	Unlocked
)

func (s State) String() string {
	switch s {
	case Locked:
		return "locked"
	case Verifying:
		return "verifying"
	case Unlocked:
		return "unlocked"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Unlocker unwraps the vault key from a master password.
type Unlocker interface {
	UnlockPassword(ctx context.Context, ownerID, password string) ([]byte, error)
}

type keyMaterial struct {
	mu          sync.RWMutex
	key         []byte
	installedAt time.Time
}

// Session guards the vault key. Readers load the key through an atomic
// pointer; Lock swaps it out and zeroes it once in-flight readers are done.
type Session struct {
	ownerID string
	engine  *vault.CryptoEngine
	key     atomic.Pointer[keyMaterial]

	mu         sync.Mutex
	state      State
	prior      State
	verifiedAt time.Time

	ttl    time.Duration
	window time.Duration
	now    func() time.Time
}

// Option configures a Session.
type Option func(*Session)

// WithTTL locks the session automatically once ttl has elapsed since unlock.
// Zero disables auto-lock.
func WithTTL(ttl time.Duration) Option {
	return func(s *Session) { s.ttl = ttl }
}

// WithSudoWindow sets how long a successful verification counts as recent.
func WithSudoWindow(window time.Duration) Option {
	return func(s *Session) { s.window = window }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// New creates a locked session for ownerID.
func New(ownerID string, engine *vault.CryptoEngine, opts ...Option) *Session {
	s := &Session{
		ownerID: ownerID,
		engine:  engine,
		window:  5 * time.Minute,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OwnerID returns the owner this session unlocks.
func (s *Session) OwnerID() string {
	return s.ownerID
}

// State returns the current state, locking the session first if it expired.
func (s *Session) State() State {
	s.expire()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// BeginVerify moves the session into Verifying and remembers the state to
// return to on Abort. It reports false if a verification is already running.
func (s *Session) BeginVerify() bool {
	s.expire()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Verifying {
		return false
	}
	s.prior = s.state
	s.state = Verifying
	return true
}

// Abort leaves Verifying without changing the key.
func (s *Session) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Verifying {
		return
	}
	s.state = s.prior
	if s.state == Unlocked && s.key.Load() == nil {
		s.state = Locked
	}
}

// Install takes ownership of key, marks the session Unlocked and records a
// fresh verification. A previously installed key is zeroed.
func (s *Session) Install(key []byte) {
	now := s.now()
	old := s.key.Swap(&keyMaterial{key: key, installedAt: now})
	destroy(old)

	s.mu.Lock()
	s.state = Unlocked
	s.verifiedAt = now
	s.mu.Unlock()
}

// Lock drops the key. Operations started after Lock returns fail with
// ErrSessionLocked.
func (s *Session) Lock() {
	destroy(s.key.Swap(nil))

	s.mu.Lock()
	s.state = Locked
	s.verifiedAt = time.Time{}
	s.mu.Unlock()
}

// RecentlyVerified reports whether the session is unlocked and was verified
// within the sudo window.
func (s *Session) RecentlyVerified() bool {
	s.expire()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Unlocked || s.key.Load() == nil || s.window <= 0 {
		return false
	}
	return s.now().Sub(s.verifiedAt) <= s.window
}

// Unlock tries candidate as the master password. A wrong password returns
// (false, nil) and leaves the session in its prior state.
func (s *Session) Unlock(ctx context.Context, unlocker Unlocker, candidate string) (bool, error) {
	if !s.BeginVerify() {
		return false, errors.New("verification already in progress")
	}

	key, err := unlocker.UnlockPassword(ctx, s.ownerID, candidate)
	if err != nil {
		s.Abort()
		if errors.Is(err, vault.ErrAuthFailed) {
			return false, nil
		}
		return false, err
	}

	s.Install(key)
	return true, nil
}

// WithKey runs fn with the vault key. fn must not retain the slice.
func (s *Session) WithKey(fn func(key []byte) error) error {
	km := s.acquire()
	if km == nil {
		return ErrSessionLocked
	}
	defer km.mu.RUnlock()
	return fn(km.key)
}

// Encrypt seals a field value under the vault key.
func (s *Session) Encrypt(plaintext string) (string, error) {
	var out string
	err := s.WithKey(func(key []byte) error {
		ct, err := s.engine.EncryptString(plaintext, key)
		out = ct
		return err
	})
	return out, err
}

// Decrypt opens a field value sealed by Encrypt.
func (s *Session) Decrypt(ciphertext string) (string, error) {
	var out string
	err := s.WithKey(func(key []byte) error {
		pt, err := s.engine.DecryptString(ciphertext, key)
		out = pt
		return err
	})
	return out, err
}

// SealCredential returns a copy of cred with its secret fields encrypted.
// Empty fields stay empty.
func (s *Session) SealCredential(cred *domain.Credential) (*domain.Credential, error) {
	return s.transformCredential(cred, s.Encrypt)
}

// OpenCredential reverses SealCredential.
func (s *Session) OpenCredential(cred *domain.Credential) (*domain.Credential, error) {
	return s.transformCredential(cred, s.Decrypt)
}

// SealTOTP returns a copy of secret with the seed encrypted.
func (s *Session) SealTOTP(secret *domain.TOTPSecret) (*domain.TOTPSecret, error) {
	out := *secret
	sealed, err := s.Encrypt(secret.Secret)
	if err != nil {
		return nil, err
	}
	out.Secret = sealed
	return &out, nil
}

// OpenTOTP reverses SealTOTP.
func (s *Session) OpenTOTP(secret *domain.TOTPSecret) (*domain.TOTPSecret, error) {
	out := *secret
	seed, err := s.Decrypt(secret.Secret)
	if err != nil {
		return nil, err
	}
	out.Secret = seed
	return &out, nil
}

func (s *Session) transformCredential(cred *domain.Credential, fn func(string) (string, error)) (*domain.Credential, error) {
	if cred == nil {
		return nil, errors.New("nil credential")
	}
	out := cred.Clone()

	fields := []*string{&out.Password, &out.Notes}
	for i := range out.CustomFields {
		fields = append(fields, &out.CustomFields[i].Value)
	}

	for _, field := range fields {
		if *field == "" {
			continue
		}
		v, err := fn(*field)
		if err != nil {
			return nil, err
		}
		*field = v
	}
	return out, nil
}

// acquire returns the live key material with its read lock held, or nil.
func (s *Session) acquire() *keyMaterial {
	if s.expire() {
		return nil
	}
	km := s.key.Load()
	if km == nil {
		return nil
	}
	km.mu.RLock()
	if km.key == nil {
		km.mu.RUnlock()
		return nil
	}
	return km
}

// expire locks the session when the auto-lock TTL has elapsed and reports
// whether it did.
func (s *Session) expire() bool {
	if s.ttl <= 0 {
		return false
	}
	km := s.key.Load()
	if km == nil || s.now().Sub(km.installedAt) <= s.ttl {
		return false
	}
	if s.key.CompareAndSwap(km, nil) {
		destroy(km)
		s.mu.Lock()
		if s.state == Verifying {
			s.prior = Locked
		} else {
			s.state = Locked
		}
		s.verifiedAt = time.Time{}
		s.mu.Unlock()
	}
	return true
}

func destroy(km *keyMaterial) {
	if km == nil {
		return
	}
	km.mu.Lock()
	vault.Zeroize(km.key)
	km.key = nil
	km.mu.Unlock()
}
