package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"github.com/vault-cli/credvault/internal/domain"
	"github.com/vault-cli/credvault/internal/vault"
)

// Bucket names
var (
	MetadataBucket = []byte("metadata")
	OwnersBucket   = []byte("owners")
	AuditBucket    = []byte("audit")

	credentialsBucket = []byte("credentials")
	foldersBucket     = []byte("folders")
	totpBucket        = []byte("totp")
	keychainBucket    = []byte("keychain")

	vaultInfoKey = []byte("vault_info")
	verifierKey  = []byte("verifier")
)

const schemaVersion = "2.0.0"

type vaultInfo struct {
	Version   string    `json:"version"`
	CreatedAt time.Time `json:"created_at"`
}

// Options tunes how a BoltStore is opened.
type Options struct {
	// LockTimeout bounds the wait for the exclusive vault file lock.
	LockTimeout time.Duration
	// DBTimeout bounds the wait for bbolt's own flock.
	DBTimeout time.Duration
}

// DefaultOptions returns the options used by the CLI.
func DefaultOptions() Options {
	return Options{LockTimeout: 30 * time.Second, DBTimeout: 10 * time.Second}
}

// BoltStore implements VaultStore using BoltDB
type BoltStore struct {
	mu   sync.RWMutex
	db   *bbolt.DB
	path string
	lock *FileLock
	now  func() time.Time
}

var _ VaultStore = (*BoltStore)(nil)

// Create initializes a new vault database at path and returns it open.
func Create(path string, opts Options) (*BoltStore, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, ErrVaultExists
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create vault directory: %w", err)
	}

	bs, err := open(path, opts)
	if err != nil {
		return nil, err
	}

	err = bs.db.Update(func(tx *bbolt.Tx) error {
		meta, err := tx.CreateBucket(MetadataBucket)
		if err != nil {
			return fmt.Errorf("failed to create metadata bucket: %w", err)
		}

		info, err := json.Marshal(vaultInfo{Version: schemaVersion, CreatedAt: bs.now().UTC()})
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		if err := meta.Put(vaultInfoKey, info); err != nil {
			return fmt.Errorf("failed to store vault metadata: %w", err)
		}

		for _, name := range [][]byte{OwnersBucket, AuditBucket} {
			if _, err := tx.CreateBucket(name); err != nil {
				return fmt.Errorf("failed to create %s bucket: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		bs.Close()
		os.Remove(path) // Clean up on failure
		return nil, err
	}

	if err := EnsureFilePermissions(path); err != nil {
		bs.Close()
		return nil, err
	}
	return bs, nil
}

// Open opens an existing vault database.
func Open(path string, opts Options) (*BoltStore, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, ErrVaultNotFound
	}

	if err := EnsureFilePermissions(path); err != nil {
		return nil, fmt.Errorf("failed to verify vault permissions: %w", err)
	}

	bs, err := open(path, opts)
	if err != nil {
		return nil, err
	}

	err = bs.db.View(func(tx *bbolt.Tx) error {
		meta := tx.Bucket(MetadataBucket)
		if meta == nil || tx.Bucket(OwnersBucket) == nil || tx.Bucket(AuditBucket) == nil {
			return ErrVaultCorrupted
		}
		var info vaultInfo
		if err := json.Unmarshal(meta.Get(vaultInfoKey), &info); err != nil {
			return ErrVaultCorrupted
		}
		return nil
	})
	if err != nil {
		bs.Close()
		return nil, err
	}
	return bs, nil
}

func open(path string, opts Options) (*BoltStore, error) {
	lock := NewFileLock(path)
	if err := lock.Lock(opts.LockTimeout); err != nil {
		return nil, ErrVaultLocked
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: opts.DBTimeout})
	if err != nil {
		lock.Unlock()
		return nil, fmt.Errorf("failed to open vault database: %w", err)
	}

	return &BoltStore{db: db, path: path, lock: lock, now: time.Now}, nil
}

// Path returns the database file path.
func (bs *BoltStore) Path() string {
	return bs.path
}

// Close closes the database and releases the file lock. Further calls
// return ErrUnavailable.
func (bs *BoltStore) Close() error {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	var err error
	if bs.db != nil {
		err = bs.db.Close()
		bs.db = nil
	}
	if bs.lock != nil {
		if lockErr := bs.lock.Unlock(); lockErr != nil && err == nil {
			err = lockErr
		}
		bs.lock = nil
	}
	return err
}

func (bs *BoltStore) view(ctx context.Context, fn func(tx *bbolt.Tx) error) error {
	return bs.run(ctx, false, fn)
}

func (bs *BoltStore) update(ctx context.Context, fn func(tx *bbolt.Tx) error) error {
	return bs.run(ctx, true, fn)
}

func (bs *BoltStore) run(ctx context.Context, write bool, fn func(tx *bbolt.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	bs.mu.RLock()
	defer bs.mu.RUnlock()
	if bs.db == nil {
		return ErrUnavailable
	}

	var err error
	if write {
		err = bs.db.Update(fn)
	} else {
		err = bs.db.View(fn)
	}
	if errors.Is(err, bbolt.ErrDatabaseNotOpen) || errors.Is(err, bbolt.ErrTimeout) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}

// ownerBucket returns the bucket for ownerID, creating it in write transactions.
func ownerBucket(tx *bbolt.Tx, ownerID string) (*bbolt.Bucket, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner id is required", ErrInvalidRecord)
	}
	owners := tx.Bucket(OwnersBucket)
	if owners == nil {
		return nil, ErrVaultCorrupted
	}
	if !tx.Writable() {
		return owners.Bucket([]byte(ownerID)), nil
	}

	b, err := owners.CreateBucketIfNotExists([]byte(ownerID))
	if err != nil {
		return nil, fmt.Errorf("failed to create owner bucket: %w", err)
	}
	for _, name := range [][]byte{credentialsBucket, foldersBucket, totpBucket, keychainBucket} {
		if _, err := b.CreateBucketIfNotExists(name); err != nil {
			return nil, fmt.Errorf("failed to create %s bucket: %w", name, err)
		}
	}
	return b, nil
}

// child returns a sub-bucket of the owner bucket, or nil when the owner has
// never been written.
func child(tx *bbolt.Tx, ownerID string, name []byte) (*bbolt.Bucket, error) {
	b, err := ownerBucket(tx, ownerID)
	if err != nil || b == nil {
		return nil, err
	}
	return b.Bucket(name), nil
}

func forEachJSON[T any](b *bbolt.Bucket, fn func(*T) error) error {
	if b == nil {
		return nil
	}
	return b.ForEach(func(k, v []byte) error {
		if v == nil {
			return nil
		}
		item := new(T)
		if err := json.Unmarshal(v, item); err != nil {
			return fmt.Errorf("%w: record %s: %v", ErrVaultCorrupted, k, err)
		}
		return fn(item)
	})
}

func putJSON(b *bbolt.Bucket, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	return b.Put([]byte(key), data)
}

// ListCredentials returns the owner's credentials that match filter,
// ordered by name.
func (bs *BoltStore) ListCredentials(ctx context.Context, ownerID string, filter *domain.Filter) ([]*domain.Credential, error) {
	var creds []*domain.Credential
	err := bs.view(ctx, func(tx *bbolt.Tx) error {
		b, err := child(tx, ownerID, credentialsBucket)
		if err != nil {
			return err
		}
		return forEachJSON(b, func(c *domain.Credential) error {
			if vault.MatchesFilter(c, filter) {
				creds = append(creds, c)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(creds, func(i, j int) bool {
		a, b := strings.ToLower(creds[i].Name), strings.ToLower(creds[j].Name)
		if a != b {
			return a < b
		}
		return creds[i].ID < creds[j].ID
	})
	return creds, nil
}

// GetCredential returns one credential.
func (bs *BoltStore) GetCredential(ctx context.Context, ownerID, id string) (*domain.Credential, error) {
	var cred *domain.Credential
	err := bs.view(ctx, func(tx *bbolt.Tx) error {
		b, err := child(tx, ownerID, credentialsBucket)
		if err != nil {
			return err
		}
		if b == nil {
			return ErrNotFound
		}
		data := b.Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		cred = &domain.Credential{}
		if err := json.Unmarshal(data, cred); err != nil {
			return fmt.Errorf("%w: credential %s: %v", ErrVaultCorrupted, id, err)
		}
		return nil
	})
	return cred, err
}

// CreateCredential stores one credential. ID and timestamps are assigned
// when empty.
func (bs *BoltStore) CreateCredential(ctx context.Context, cred *domain.Credential) (*domain.Credential, error) {
	created, err := bs.BulkCreateCredentials(ctx, []*domain.Credential{cred})
	if err != nil {
		return nil, err
	}
	return created[0], nil
}

// BulkCreateCredentials stores all credentials in one transaction: either
// every credential is written or none is.
func (bs *BoltStore) BulkCreateCredentials(ctx context.Context, creds []*domain.Credential) ([]*domain.Credential, error) {
	now := bs.now().UTC()
	out := make([]*domain.Credential, 0, len(creds))

	err := bs.update(ctx, func(tx *bbolt.Tx) error {
		for i, in := range creds {
			if in == nil {
				return fmt.Errorf("%w: credential %d is nil", ErrInvalidRecord, i)
			}
			if strings.TrimSpace(in.Name) == "" {
				return fmt.Errorf("%w: credential %d has no name", ErrInvalidRecord, i)
			}

			owner, err := ownerBucket(tx, in.OwnerID)
			if err != nil {
				return err
			}
			b := owner.Bucket(credentialsBucket)

			c := in.Clone()
			if c.ID == "" {
				c.ID = uuid.NewString()
			}
			if b.Get([]byte(c.ID)) != nil {
				return fmt.Errorf("%w: credential %s", ErrExists, c.ID)
			}
			if c.FolderID != "" && owner.Bucket(foldersBucket).Get([]byte(c.FolderID)) == nil {
				return fmt.Errorf("%w: folder %s", ErrNotFound, c.FolderID)
			}
			if c.CreatedAt.IsZero() {
				c.CreatedAt = now
			}
			if c.UpdatedAt.IsZero() {
				c.UpdatedAt = c.CreatedAt
			}

			if err := putJSON(b, c.ID, c); err != nil {
				return fmt.Errorf("failed to store credential: %w", err)
			}
			out = append(out, c)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteCredential removes a credential and its TOTP secrets.
func (bs *BoltStore) DeleteCredential(ctx context.Context, ownerID, id string) error {
	return bs.update(ctx, func(tx *bbolt.Tx) error {
		owner, err := ownerBucket(tx, ownerID)
		if err != nil {
			return err
		}
		b := owner.Bucket(credentialsBucket)
		if b.Get([]byte(id)) == nil {
			return ErrNotFound
		}
		if err := b.Delete([]byte(id)); err != nil {
			return err
		}

		totp := owner.Bucket(totpBucket)
		var linked []string
		err = forEachJSON(totp, func(s *domain.TOTPSecret) error {
			if s.CredentialID == id {
				linked = append(linked, s.ID)
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, key := range linked {
			if err := totp.Delete([]byte(key)); err != nil {
				return err
			}
		}
		return nil
	})
}

// CreateFolder creates a folder. Names are unique among siblings.
func (bs *BoltStore) CreateFolder(ctx context.Context, ownerID, name, parentID string) (*domain.Folder, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: folder name is required", ErrInvalidRecord)
	}

	var folder *domain.Folder
	err := bs.update(ctx, func(tx *bbolt.Tx) error {
		owner, err := ownerBucket(tx, ownerID)
		if err != nil {
			return err
		}
		b := owner.Bucket(foldersBucket)
		if parentID != "" && b.Get([]byte(parentID)) == nil {
			return fmt.Errorf("%w: parent folder %s", ErrNotFound, parentID)
		}

		err = forEachJSON(b, func(f *domain.Folder) error {
			if f.ParentID == parentID && strings.EqualFold(f.Name, name) {
				return fmt.Errorf("%w: folder %q", ErrExists, name)
			}
			return nil
		})
		if err != nil {
			return err
		}

		folder = &domain.Folder{
			ID:        uuid.NewString(),
			OwnerID:   ownerID,
			Name:      name,
			ParentID:  parentID,
			CreatedAt: bs.now().UTC(),
		}
		return putJSON(b, folder.ID, folder)
	})
	if err != nil {
		return nil, err
	}
	return folder, nil
}

// ListFolders returns the owner's folders ordered by name.
func (bs *BoltStore) ListFolders(ctx context.Context, ownerID string) ([]*domain.Folder, error) {
	var folders []*domain.Folder
	err := bs.view(ctx, func(tx *bbolt.Tx) error {
		b, err := child(tx, ownerID, foldersBucket)
		if err != nil {
			return err
		}
		return forEachJSON(b, func(f *domain.Folder) error {
			folders = append(folders, f)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(folders, func(i, j int) bool { return folders[i].Name < folders[j].Name })
	return folders, nil
}

// CreateTOTPSecret stores a TOTP seed linked to an existing credential.
func (bs *BoltStore) CreateTOTPSecret(ctx context.Context, secret *domain.TOTPSecret) (*domain.TOTPSecret, error) {
	if secret == nil || secret.Secret == "" {
		return nil, fmt.Errorf("%w: totp secret is empty", ErrInvalidRecord)
	}

	out := *secret
	err := bs.update(ctx, func(tx *bbolt.Tx) error {
		owner, err := ownerBucket(tx, out.OwnerID)
		if err != nil {
			return err
		}
		if owner.Bucket(credentialsBucket).Get([]byte(out.CredentialID)) == nil {
			return fmt.Errorf("%w: credential %s", ErrNotFound, out.CredentialID)
		}
		if out.ID == "" {
			out.ID = uuid.NewString()
		}
		if out.CreatedAt.IsZero() {
			out.CreatedAt = bs.now().UTC()
		}
		return putJSON(owner.Bucket(totpBucket), out.ID, &out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ListTOTPSecrets returns every TOTP secret of the owner.
func (bs *BoltStore) ListTOTPSecrets(ctx context.Context, ownerID string) ([]*domain.TOTPSecret, error) {
	var secrets []*domain.TOTPSecret
	err := bs.view(ctx, func(tx *bbolt.Tx) error {
		b, err := child(tx, ownerID, totpBucket)
		if err != nil {
			return err
		}
		return forEachJSON(b, func(s *domain.TOTPSecret) error {
			secrets = append(secrets, s)
			return nil
		})
	})
	return secrets, err
}

// HasPasskey reports whether a passkey is enrolled for the owner.
func (bs *BoltStore) HasPasskey(ctx context.Context, ownerID string) (bool, error) {
	entries, err := bs.ListKeychainEntries(ctx, ownerID)
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if e.Type == domain.KeychainPasskey {
			return true, nil
		}
	}
	return false, nil
}

// ListKeychainEntries returns the owner's wrapped keys.
func (bs *BoltStore) ListKeychainEntries(ctx context.Context, ownerID string) ([]*domain.KeychainEntry, error) {
	var entries []*domain.KeychainEntry
	err := bs.view(ctx, func(tx *bbolt.Tx) error {
		b, err := child(tx, ownerID, keychainBucket)
		if err != nil {
			return err
		}
		return forEachJSON(b, func(e *domain.KeychainEntry) error {
			entries = append(entries, e)
			return nil
		})
	})
	return entries, err
}

// PutKeychainEntry stores entry, replacing any entry of the same type.
func (bs *BoltStore) PutKeychainEntry(ctx context.Context, entry *domain.KeychainEntry) error {
	if entry == nil || entry.Type == "" {
		return fmt.Errorf("%w: keychain entry type is required", ErrInvalidRecord)
	}
	return bs.update(ctx, func(tx *bbolt.Tx) error {
		owner, err := ownerBucket(tx, entry.OwnerID)
		if err != nil {
			return err
		}
		return putJSON(owner.Bucket(keychainBucket), string(entry.Type), entry)
	})
}

// DeleteKeychainEntry removes the entry of the given type. Deleting a
// missing entry is not an error.
func (bs *BoltStore) DeleteKeychainEntry(ctx context.Context, ownerID string, kind domain.KeychainType) error {
	return bs.update(ctx, func(tx *bbolt.Tx) error {
		owner, err := ownerBucket(tx, ownerID)
		if err != nil {
			return err
		}
		return owner.Bucket(keychainBucket).Delete([]byte(kind))
	})
}

// GetVerifier returns the owner's canary ciphertext.
func (bs *BoltStore) GetVerifier(ctx context.Context, ownerID string) ([]byte, error) {
	var verifier []byte
	err := bs.view(ctx, func(tx *bbolt.Tx) error {
		owner, err := ownerBucket(tx, ownerID)
		if err != nil {
			return err
		}
		if owner == nil {
			return ErrNotFound
		}
		v := owner.Get(verifierKey)
		if v == nil {
			return ErrNotFound
		}
		verifier = append([]byte(nil), v...)
		return nil
	})
	return verifier, err
}

// PutVerifier stores the owner's canary ciphertext.
func (bs *BoltStore) PutVerifier(ctx context.Context, ownerID string, verifier []byte) error {
	return bs.update(ctx, func(tx *bbolt.Tx) error {
		owner, err := ownerBucket(tx, ownerID)
		if err != nil {
			return err
		}
		return owner.Put(verifierKey, verifier)
	})
}

// LogOperation persists an audit entry in the audit bucket.
func (bs *BoltStore) LogOperation(ctx context.Context, op *domain.Operation) error {
	if op == nil {
		return fmt.Errorf("operation cannot be nil")
	}
	entry := *op
	if entry.Timestamp.IsZero() {
		entry.Timestamp = bs.now().UTC()
	}

	return bs.update(ctx, func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(AuditBucket)
		if bucket == nil {
			return ErrVaultCorrupted
		}

		seq, err := bucket.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to allocate audit sequence: %w", err)
		}

		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)

		payload, err := json.Marshal(&entry)
		if err != nil {
			return fmt.Errorf("failed to encode audit entry: %w", err)
		}
		return bucket.Put(key, payload)
	})
}

// GetAuditLog returns audit operations in chronological order. An empty
// ownerID returns every owner's operations.
func (bs *BoltStore) GetAuditLog(ctx context.Context, ownerID string) ([]*domain.Operation, error) {
	var ops []*domain.Operation
	err := bs.view(ctx, func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(AuditBucket)
		if bucket == nil {
			return ErrVaultCorrupted
		}
		return forEachJSON(bucket, func(op *domain.Operation) error {
			if ownerID == "" || op.OwnerID == ownerID {
				op.Timestamp = op.Timestamp.UTC()
				ops = append(ops, op)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return ops, nil
}
