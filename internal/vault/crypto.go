package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/argon2"

	"github.com/vault-cli/credvault/internal/domain"
)

const (
	KeySize   = 32 // AES-256
	SaltSize  = 32
	NonceSize = 12 // GCM
	TagSize   = 16 // GCM

	EnvelopeVersion = 1

	// Default Argon2id parameters, roughly 300ms on current hardware.
	DefaultArgon2Memory      = 64 * 1024 // 64 MB
	DefaultArgon2Iterations  = 3
	DefaultArgon2Parallelism = 4
)

var (
	ErrInvalidEnvelope   = errors.New("invalid envelope format")
	ErrInvalidVersion    = errors.New("unsupported envelope version")
	ErrInvalidKeySize    = errors.New("invalid key size")
	ErrInvalidNonceSize  = errors.New("invalid nonce size")
	ErrInvalidCiphertext = errors.New("invalid ciphertext")

	// ErrIntegrity is returned when the authentication tag does not match:
	// the data was corrupted, tampered with, or sealed under another key.
	ErrIntegrity = errors.New("integrity check failed: data tampered or key mismatch")
)

// Argon2Params holds the key derivation parameters
type Argon2Params struct {
	Memory      uint32 `json:"memory"`
	Iterations  uint32 `json:"iterations"`
	Parallelism uint8  `json:"parallelism"`
}

// DefaultArgon2Params returns the default Argon2id parameters
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		Memory:      DefaultArgon2Memory,
		Iterations:  DefaultArgon2Iterations,
		Parallelism: DefaultArgon2Parallelism,
	}
}

// ParamsFromKDF converts stored keychain parameters.
func ParamsFromKDF(kdf domain.KDFParams) Argon2Params {
	return Argon2Params{Memory: kdf.Memory, Iterations: kdf.Iterations, Parallelism: kdf.Parallelism}
}

// KDF converts the parameters to their stored form.
func (p Argon2Params) KDF() domain.KDFParams {
	return domain.KDFParams{Memory: p.Memory, Iterations: p.Iterations, Parallelism: p.Parallelism}
}

// Envelope represents the encrypted data structure
type Envelope struct {
	Version    uint8        `json:"version"`
	KDFParams  Argon2Params `json:"kdf_params"`
	Salt       []byte       `json:"salt"`
	Nonce      []byte       `json:"nonce"`
	Ciphertext []byte       `json:"ciphertext"`
	Tag        []byte       `json:"tag"`
}

// CryptoEngine handles all cryptographic operations
type CryptoEngine struct {
	params Argon2Params
	slow   func(time.Duration)
}

// NewCryptoEngine creates a new crypto engine with specified parameters
func NewCryptoEngine(params Argon2Params) *CryptoEngine {
	return &CryptoEngine{
		params: params,
	}
}

// NewDefaultCryptoEngine creates a new crypto engine with default parameters
func NewDefaultCryptoEngine() *CryptoEngine {
	return NewCryptoEngine(DefaultArgon2Params())
}

// Params returns the engine's Argon2id parameters.
func (ce *CryptoEngine) Params() Argon2Params {
	return ce.params
}

// WithParams returns an engine sharing this engine's hooks but deriving with params.
func (ce *CryptoEngine) WithParams(params Argon2Params) *CryptoEngine {
	return &CryptoEngine{params: params, slow: ce.slow}
}

// OnTiming installs a callback that receives the duration of every key
// derivation falling outside the interactive window (100ms - 1s).
func (ce *CryptoEngine) OnTiming(fn func(time.Duration)) {
	ce.slow = fn
}

func randomBytes(n int, what string) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("failed to generate %s: %w", what, err)
	}
	return b, nil
}

// GenerateSalt returns a fresh Argon2id salt.
func GenerateSalt() ([]byte, error) { return randomBytes(SaltSize, "salt") }

// GenerateKey returns a fresh random 256-bit key.
func GenerateKey() ([]byte, error) { return randomBytes(KeySize, "key") }

// DeriveKey derives a key from a passphrase using Argon2id
func (ce *CryptoEngine) DeriveKey(passphrase string, salt []byte) ([]byte, error) {
	if len(salt) != SaltSize {
		return nil, fmt.Errorf("invalid salt size: expected %d, got %d", SaltSize, len(salt))
	}

	start := time.Now()
	key := argon2.IDKey(
		[]byte(passphrase),
		salt,
		ce.params.Iterations,
		ce.params.Memory,
		ce.params.Parallelism,
		KeySize,
	)
	duration := time.Since(start)

	if ce.slow != nil && (duration < 100*time.Millisecond || duration > time.Second) {
		ce.slow(duration)
	}

	return key, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// Seal encrypts plaintext using AES-256-GCM
func (ce *CryptoEngine) Seal(plaintext []byte, key []byte) (*Envelope, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce, err := randomBytes(NonceSize, "nonce")
	if err != nil {
		return nil, err
	}

	sealed := gcm.Seal(nil, nonce, plaintext, nil)
	if len(sealed) < TagSize {
		return nil, ErrInvalidCiphertext
	}

	return &Envelope{
		Version:    EnvelopeVersion,
		KDFParams:  ce.params,
		Nonce:      nonce,
		Ciphertext: sealed[:len(sealed)-TagSize],
		Tag:        sealed[len(sealed)-TagSize:],
	}, nil
}

// Open decrypts ciphertext using AES-256-GCM. A tag mismatch is reported as
// ErrIntegrity; no plaintext is ever returned alongside an error.
func (ce *CryptoEngine) Open(envelope *Envelope, key []byte) ([]byte, error) {
	if envelope == nil {
		return nil, ErrInvalidEnvelope
	}
	if envelope.Version != EnvelopeVersion {
		return nil, ErrInvalidVersion
	}
	if len(envelope.Nonce) != NonceSize {
		return nil, ErrInvalidNonceSize
	}
	if len(envelope.Tag) != TagSize {
		return nil, fmt.Errorf("invalid tag size: expected %d, got %d", TagSize, len(envelope.Tag))
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	sealed := make([]byte, 0, len(envelope.Ciphertext)+len(envelope.Tag))
	sealed = append(sealed, envelope.Ciphertext...)
	sealed = append(sealed, envelope.Tag...)

	plaintext, err := gcm.Open(nil, envelope.Nonce, sealed, nil)
	if err != nil {
		return nil, ErrIntegrity
	}

	return plaintext, nil
}

// EncryptString seals a field value and returns base64(envelope).
func (ce *CryptoEngine) EncryptString(plaintext string, key []byte) (string, error) {
	envelope, err := ce.Seal([]byte(plaintext), key)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(EnvelopeToBytes(envelope)), nil
}

// DecryptString reverses EncryptString.
func (ce *CryptoEngine) DecryptString(ciphertext string, key []byte) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCiphertext, err)
	}
	envelope, err := EnvelopeFromBytes(raw)
	if err != nil {
		return "", err
	}
	plaintext, err := ce.Open(envelope, key)
	if err != nil {
		return "", err
	}
	defer Zeroize(plaintext)
	return string(plaintext), nil
}

// Zeroize overwrites data with zeros.
func Zeroize(data []byte) {
	clear(data)
}

// SecureCompare performs constant-time comparison of two byte slices
func SecureCompare(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

// ValidateArgon2Params validates Argon2id parameters
func ValidateArgon2Params(params Argon2Params) error {
	if params.Memory < 1024 {
		return errors.New("memory parameter too low (minimum 1024 KB)")
	}
	if params.Memory > 1024*1024 {
		return errors.New("memory parameter too high (maximum 1 GB)")
	}
	if params.Iterations < 1 {
		return errors.New("iterations parameter too low (minimum 1)")
	}
	if params.Iterations > 100 {
		return errors.New("iterations parameter too high (maximum 100)")
	}
	if params.Parallelism < 1 {
		return errors.New("parallelism parameter too low (minimum 1)")
	}
	if params.Parallelism >= 255 {
		return errors.New("parallelism parameter too high (maximum 254)")
	}
	return nil
}

// EnvelopeToBytes serializes an envelope to bytes for storage.
// Layout: version(1) | memory(4) | iterations(4) | parallelism(1) followed by
// length-prefixed salt, nonce, ciphertext and tag.
func EnvelopeToBytes(envelope *Envelope) []byte {
	size := 1 + 9 + 16 + len(envelope.Salt) + len(envelope.Nonce) + len(envelope.Ciphertext) + len(envelope.Tag)
	buf := make([]byte, 0, size)

	buf = append(buf, envelope.Version)
	buf = binary.LittleEndian.AppendUint32(buf, envelope.KDFParams.Memory)
	buf = binary.LittleEndian.AppendUint32(buf, envelope.KDFParams.Iterations)
	buf = append(buf, envelope.KDFParams.Parallelism)

	for _, part := range [][]byte{envelope.Salt, envelope.Nonce, envelope.Ciphertext, envelope.Tag} {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(part)))
		buf = append(buf, part...)
	}

	return buf
}

// EnvelopeFromBytes deserializes an envelope from bytes
func EnvelopeFromBytes(data []byte) (*Envelope, error) {
	if len(data) < 1+9+16 {
		return nil, ErrInvalidEnvelope
	}

	if data[0] != EnvelopeVersion {
		return nil, ErrInvalidVersion
	}

	envelope := &Envelope{
		Version: data[0],
		KDFParams: Argon2Params{
			Memory:      binary.LittleEndian.Uint32(data[1:5]),
			Iterations:  binary.LittleEndian.Uint32(data[5:9]),
			Parallelism: data[9],
		},
	}

	offset := 10
	parts := make([][]byte, 4)
	for i := range parts {
		if offset+4 > len(data) {
			return nil, ErrInvalidEnvelope
		}
		n := int(binary.LittleEndian.Uint32(data[offset : offset+4]))
		offset += 4
		if n < 0 || offset+n > len(data) {
			return nil, ErrInvalidEnvelope
		}
		parts[i] = append([]byte(nil), data[offset:offset+n]...)
		offset += n
	}

	envelope.Salt, envelope.Nonce, envelope.Ciphertext, envelope.Tag = parts[0], parts[1], parts[2], parts[3]
	return envelope, nil
}
