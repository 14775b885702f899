package backup

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"filippo.io/age"
	"filippo.io/age/armor"

	"github.com/vault-cli/credvault/internal/domain"
	"github.com/vault-cli/credvault/internal/store"
)

var (
	// ErrPassphraseRequired is returned when decoding an encrypted backup
	// without a passphrase.
	ErrPassphraseRequired = errors.New("backup is encrypted: passphrase required")
	// ErrWrongPassphrase is returned when the passphrase does not open the backup.
	ErrWrongPassphrase = errors.New("wrong backup passphrase")
	// ErrInvalidDocument is returned for content that is not a backup document.
	ErrInvalidDocument = errors.New("invalid backup document")
)

// Source is the read side of the vault store used by Export.
type Source interface {
	ListCredentials(ctx context.Context, ownerID string, filter *domain.Filter) ([]*domain.Credential, error)
	ListFolders(ctx context.Context, ownerID string) ([]*domain.Folder, error)
	ListTOTPSecrets(ctx context.Context, ownerID string) ([]*domain.TOTPSecret, error)
}

// Opener decrypts secret fields. *session.Session implements it.
type Opener interface {
	OpenCredential(cred *domain.Credential) (*domain.Credential, error)
	OpenTOTP(secret *domain.TOTPSecret) (*domain.TOTPSecret, error)
}

// Export reads every folder, credential and TOTP secret of ownerID and
// returns them decrypted.
func Export(ctx context.Context, src Source, sess Opener, ownerID string) (*Document, error) {
	folders, err := src.ListFolders(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}
	creds, err := src.ListCredentials(ctx, ownerID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	secrets, err := src.ListTOTPSecrets(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list totp secrets: %w", err)
	}

	doc := &Document{
		Version:     DocumentVersion,
		ExportedAt:  time.Now().UTC(),
		Folders:     make([]Folder, 0, len(folders)),
		Credentials: make([]Credential, 0, len(creds)),
		TOTPSecrets: make([]TOTPSecret, 0, len(secrets)),
	}
	for _, f := range folders {
		doc.Folders = append(doc.Folders, Folder{ID: f.ID, Name: f.Name, ParentID: f.ParentID})
	}
	for _, c := range creds {
		plain, err := sess.OpenCredential(c)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt credential %s: %w", c.ID, err)
		}
		doc.Credentials = append(doc.Credentials, Credential{
			ID:           plain.ID,
			Name:         plain.Name,
			Username:     plain.Username,
			Password:     plain.Password,
			URL:          plain.URL,
			Notes:        plain.Notes,
			Tags:         plain.Tags,
			CustomFields: plain.CustomFields,
			FolderID:     plain.FolderID,
			CreatedAt:    plain.CreatedAt,
			UpdatedAt:    plain.UpdatedAt,
		})
	}
	for _, s := range secrets {
		plain, err := sess.OpenTOTP(s)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt totp secret %s: %w", s.ID, err)
		}
		doc.TOTPSecrets = append(doc.TOTPSecrets, TOTPSecret{
			CredentialID: plain.CredentialID,
			Secret:       plain.Secret,
			Issuer:       plain.Issuer,
			Account:      plain.Account,
		})
	}
	return doc, nil
}

// EncodeOption configures Encode.
type EncodeOption func(*encodeConfig)

type encodeConfig struct {
	workFactor int
}

// WithWorkFactor sets the scrypt work factor (log2 N) for encrypted backups.
func WithWorkFactor(logN int) EncodeOption {
	return func(c *encodeConfig) { c.workFactor = logN }
}

// Encode writes doc as indented JSON. A non-empty passphrase wraps the JSON
// in an ASCII-armored age file encrypted with an scrypt recipient.
func Encode(w io.Writer, doc *Document, passphrase string, opts ...EncodeOption) error {
	var cfg encodeConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	if passphrase == "" {
		return writeJSON(w, doc)
	}

	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return fmt.Errorf("creating scrypt recipient: %w", err)
	}
	if cfg.workFactor > 0 {
		recipient.SetWorkFactor(cfg.workFactor)
	}

	armored := armor.NewWriter(w)
	enc, err := age.Encrypt(armored, recipient)
	if err != nil {
		return fmt.Errorf("creating encrypted writer: %w", err)
	}
	if err := writeJSON(enc, doc); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalizing encryption: %w", err)
	}
	if err := armored.Close(); err != nil {
		return fmt.Errorf("finalizing armor: %w", err)
	}
	return nil
}

func writeJSON(w io.Writer, doc *Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encoding backup: %w", err)
	}
	return nil
}

// IsEncrypted reports whether raw starts with the age armor header.
func IsEncrypted(raw []byte) bool {
	return bytes.HasPrefix(bytes.TrimLeft(raw, " \t\r\n"), []byte(armor.Header))
}

// Decode returns the JSON content of a backup, decrypting it when it is
// age-armored. The result can be passed to the self import format.
func Decode(raw []byte, passphrase string) ([]byte, error) {
	if !IsEncrypted(raw) {
		if !json.Valid(raw) {
			return nil, ErrInvalidDocument
		}
		return raw, nil
	}
	if passphrase == "" {
		return nil, ErrPassphraseRequired
	}

	identity, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt identity: %w", err)
	}

	r := armor.NewReader(bytes.NewReader(bytes.TrimLeft(raw, " \t\r\n")))
	dec, err := age.Decrypt(r, identity)
	if err != nil {
		var noMatch *age.NoIdentityMatchError
		if errors.As(err, &noMatch) {
			return nil, ErrWrongPassphrase
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	plain, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if !json.Valid(plain) {
		return nil, ErrInvalidDocument
	}
	return plain, nil
}

// ReadFile reads and decodes a backup file.
func ReadFile(path, passphrase string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup: %w", err)
	}
	return Decode(raw, passphrase)
}

// WriteFile encodes doc to path atomically with owner-only permissions.
func WriteFile(path string, doc *Document, passphrase string, opts ...EncodeOption) error {
	aw, err := store.NewAtomicWriter(path)
	if err != nil {
		return fmt.Errorf("failed to create backup file: %w", err)
	}

	bw := bufio.NewWriter(aw)
	if err := Encode(bw, doc, passphrase, opts...); err != nil {
		return errors.Join(err, aw.Abort())
	}
	if err := bw.Flush(); err != nil {
		return errors.Join(err, aw.Abort())
	}
	return aw.Commit()
}

// Summary returns a one-line description of doc.
func Summary(doc *Document) string {
	return fmt.Sprintf("%d credentials, %d folders, %d TOTP secrets", len(doc.Credentials), len(doc.Folders), len(doc.TOTPSecrets))
}
