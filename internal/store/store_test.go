package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vault-cli/credvault/internal/domain"
)

const owner = "owner-1"

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.vault")
	bs, err := Create(path, DefaultOptions())
	if err != nil {
		t.Fatalf("Failed to create vault: %v", err)
	}
	t.Cleanup(func() { bs.Close() })
	return bs
}

func TestBoltStore_CreateAndOpenVault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "test.vault")

	bs, err := Create(path, DefaultOptions())
	if err != nil {
		t.Fatalf("Failed to create vault: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Vault file not created: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("Incorrect file permissions: got %o, want 0600", info.Mode().Perm())
	}

	if _, err := Create(path, DefaultOptions()); !errors.Is(err, ErrVaultExists) {
		t.Errorf("Expected ErrVaultExists, got %v", err)
	}

	if err := bs.Close(); err != nil {
		t.Fatalf("Failed to close vault: %v", err)
	}

	reopened, err := Open(path, DefaultOptions())
	if err != nil {
		t.Fatalf("Failed to open vault: %v", err)
	}
	defer reopened.Close()

	if reopened.Path() != path {
		t.Errorf("Path mismatch: got %s, want %s", reopened.Path(), path)
	}
}

func TestBoltStore_OpenMissingVault(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.vault"), DefaultOptions())
	if !errors.Is(err, ErrVaultNotFound) {
		t.Errorf("Expected ErrVaultNotFound, got %v", err)
	}
}

func TestBoltStore_Exclusive(t *testing.T) {
	bs := newTestStore(t)

	_, err := Open(bs.Path(), Options{LockTimeout: 100 * time.Millisecond, DBTimeout: 100 * time.Millisecond})
	if !errors.Is(err, ErrVaultLocked) {
		t.Errorf("Expected ErrVaultLocked, got %v", err)
	}
}

func TestBoltStore_CredentialOperations(t *testing.T) {
	ctx := context.Background()
	bs := newTestStore(t)

	cred, err := bs.CreateCredential(ctx, &domain.Credential{
		OwnerID:  owner,
		Name:     "GitHub",
		Username: "octocat",
		Password: "ciphertext",
		Tags:     []string{"dev"},
	})
	if err != nil {
		t.Fatalf("Failed to create credential: %v", err)
	}
	if cred.ID == "" {
		t.Error("Expected an assigned ID")
	}
	if cred.CreatedAt.IsZero() || !cred.UpdatedAt.Equal(cred.CreatedAt) {
		t.Error("Expected timestamps to be assigned")
	}

	got, err := bs.GetCredential(ctx, owner, cred.ID)
	if err != nil {
		t.Fatalf("Failed to get credential: %v", err)
	}
	if got.Name != "GitHub" || got.Password != "ciphertext" {
		t.Errorf("Unexpected credential: %+v", got)
	}

	if _, err := bs.GetCredential(ctx, "someone-else", cred.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Credentials must be owner scoped, got %v", err)
	}

	if _, err := bs.CreateCredential(ctx, &domain.Credential{ID: cred.ID, OwnerID: owner, Name: "dup"}); !errors.Is(err, ErrExists) {
		t.Errorf("Expected ErrExists, got %v", err)
	}

	if err := bs.DeleteCredential(ctx, owner, cred.ID); err != nil {
		t.Fatalf("Failed to delete credential: %v", err)
	}
	if err := bs.DeleteCredential(ctx, owner, cred.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second delete, got %v", err)
	}
}

func TestBoltStore_BulkCreateIsAtomic(t *testing.T) {
	ctx := context.Background()
	bs := newTestStore(t)

	batch := []*domain.Credential{
		{OwnerID: owner, Name: "one"},
		{OwnerID: owner, Name: ""},
		{OwnerID: owner, Name: "three"},
	}
	if _, err := bs.BulkCreateCredentials(ctx, batch); !errors.Is(err, ErrInvalidRecord) {
		t.Fatalf("Expected ErrInvalidRecord, got %v", err)
	}

	creds, err := bs.ListCredentials(ctx, owner, nil)
	if err != nil {
		t.Fatalf("Failed to list credentials: %v", err)
	}
	if len(creds) != 0 {
		t.Errorf("Failed batch must not persist anything, got %d credentials", len(creds))
	}

	batch[1].Name = "two"
	created, err := bs.BulkCreateCredentials(ctx, batch)
	if err != nil {
		t.Fatalf("Failed to bulk create: %v", err)
	}
	if len(created) != 3 {
		t.Errorf("Expected 3 created, got %d", len(created))
	}
	if batch[0].ID != "" {
		t.Error("Input credentials must not be modified")
	}
}

func TestBoltStore_FilteredListing(t *testing.T) {
	ctx := context.Background()
	bs := newTestStore(t)

	folder, err := bs.CreateFolder(ctx, owner, "Work", "")
	if err != nil {
		t.Fatalf("Failed to create folder: %v", err)
	}

	for _, c := range []*domain.Credential{
		{OwnerID: owner, Name: "Slack", URL: "https://slack.com", FolderID: folder.ID, Tags: []string{"chat"}},
		{OwnerID: owner, Name: "bank", URL: "https://bank.example"},
		{OwnerID: owner, Name: "Jira", URL: "https://jira.example", FolderID: folder.ID},
		{OwnerID: "other", Name: "Slack"},
	} {
		if _, err := bs.CreateCredential(ctx, c); err != nil {
			t.Fatalf("Failed to create %s: %v", c.Name, err)
		}
	}

	tests := []struct {
		name   string
		filter *domain.Filter
		want   []string
	}{
		{"all sorted by name", nil, []string{"bank", "Jira", "Slack"}},
		{"folder", &domain.Filter{FolderID: folder.ID}, []string{"Jira", "Slack"}},
		{"tag", &domain.Filter{Tags: []string{"CHAT"}}, []string{"Slack"}},
		{"search", &domain.Filter{SearchTokens: []string{"example"}}, []string{"bank", "Jira"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			creds, err := bs.ListCredentials(ctx, owner, tt.filter)
			if err != nil {
				t.Fatalf("Failed to list: %v", err)
			}
			var names []string
			for _, c := range creds {
				names = append(names, c.Name)
			}
			if len(names) != len(tt.want) {
				t.Fatalf("got %v, want %v", names, tt.want)
			}
			for i := range names {
				if names[i] != tt.want[i] {
					t.Errorf("got %v, want %v", names, tt.want)
				}
			}
		})
	}
}

func TestBoltStore_FolderOperations(t *testing.T) {
	ctx := context.Background()
	bs := newTestStore(t)

	parent, err := bs.CreateFolder(ctx, owner, "Personal", "")
	if err != nil {
		t.Fatalf("Failed to create folder: %v", err)
	}
	child, err := bs.CreateFolder(ctx, owner, "Banking", parent.ID)
	if err != nil {
		t.Fatalf("Failed to create child folder: %v", err)
	}
	if child.ParentID != parent.ID {
		t.Errorf("Expected parent %s, got %s", parent.ID, child.ParentID)
	}

	if _, err := bs.CreateFolder(ctx, owner, "personal", ""); !errors.Is(err, ErrExists) {
		t.Errorf("Expected ErrExists for sibling name clash, got %v", err)
	}
	if _, err := bs.CreateFolder(ctx, owner, "Banking", ""); err != nil {
		t.Errorf("Same name under another parent should be allowed: %v", err)
	}
	if _, err := bs.CreateFolder(ctx, owner, "Orphan", "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for missing parent, got %v", err)
	}
	if _, err := bs.CreateFolder(ctx, owner, "  ", ""); !errors.Is(err, ErrInvalidRecord) {
		t.Errorf("Expected ErrInvalidRecord for blank name, got %v", err)
	}

	folders, err := bs.ListFolders(ctx, owner)
	if err != nil {
		t.Fatalf("Failed to list folders: %v", err)
	}
	if len(folders) != 3 {
		t.Errorf("Expected 3 folders, got %d", len(folders))
	}

	if _, err := bs.CreateCredential(ctx, &domain.Credential{OwnerID: owner, Name: "x", FolderID: "nope"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for dangling folder reference, got %v", err)
	}
}

func TestBoltStore_TOTPSecrets(t *testing.T) {
	ctx := context.Background()
	bs := newTestStore(t)

	cred, err := bs.CreateCredential(ctx, &domain.Credential{OwnerID: owner, Name: "Google"})
	if err != nil {
		t.Fatalf("Failed to create credential: %v", err)
	}

	if _, err := bs.CreateTOTPSecret(ctx, &domain.TOTPSecret{OwnerID: owner, CredentialID: "missing", Secret: "s"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	secret, err := bs.CreateTOTPSecret(ctx, &domain.TOTPSecret{OwnerID: owner, CredentialID: cred.ID, Secret: "sealed", Issuer: "Google"})
	if err != nil {
		t.Fatalf("Failed to create TOTP secret: %v", err)
	}
	if secret.ID == "" {
		t.Error("Expected an assigned ID")
	}

	secrets, err := bs.ListTOTPSecrets(ctx, owner)
	if err != nil || len(secrets) != 1 {
		t.Fatalf("Expected one secret, got %d (%v)", len(secrets), err)
	}

	if err := bs.DeleteCredential(ctx, owner, cred.ID); err != nil {
		t.Fatalf("Failed to delete credential: %v", err)
	}
	secrets, err = bs.ListTOTPSecrets(ctx, owner)
	if err != nil || len(secrets) != 0 {
		t.Errorf("Linked TOTP secrets should be deleted, got %d (%v)", len(secrets), err)
	}
}

func TestBoltStore_Keychain(t *testing.T) {
	ctx := context.Background()
	bs := newTestStore(t)

	if _, err := bs.GetVerifier(ctx, owner); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound before setup, got %v", err)
	}

	if err := bs.PutVerifier(ctx, owner, []byte("canary")); err != nil {
		t.Fatalf("Failed to put verifier: %v", err)
	}
	v, err := bs.GetVerifier(ctx, owner)
	if err != nil || string(v) != "canary" {
		t.Errorf("Unexpected verifier %q (%v)", v, err)
	}

	for _, kind := range []domain.KeychainType{domain.KeychainPassword, domain.KeychainPIN, domain.KeychainPIN} {
		if err := bs.PutKeychainEntry(ctx, &domain.KeychainEntry{OwnerID: owner, Type: kind, WrappedKey: []byte(kind)}); err != nil {
			t.Fatalf("Failed to put %s entry: %v", kind, err)
		}
	}

	entries, err := bs.ListKeychainEntries(ctx, owner)
	if err != nil {
		t.Fatalf("Failed to list keychain: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("Entries are keyed by type, expected 2 got %d", len(entries))
	}

	has, err := bs.HasPasskey(ctx, owner)
	if err != nil || has {
		t.Errorf("Expected no passkey, got %v (%v)", has, err)
	}
	if err := bs.PutKeychainEntry(ctx, &domain.KeychainEntry{OwnerID: owner, Type: domain.KeychainPasskey}); err != nil {
		t.Fatalf("Failed to put passkey entry: %v", err)
	}
	if has, _ := bs.HasPasskey(ctx, owner); !has {
		t.Error("Expected passkey to be reported")
	}

	if err := bs.DeleteKeychainEntry(ctx, owner, domain.KeychainPIN); err != nil {
		t.Fatalf("Failed to delete PIN entry: %v", err)
	}
	entries, _ = bs.ListKeychainEntries(ctx, owner)
	if len(entries) != 2 {
		t.Errorf("Expected password and passkey entries, got %d", len(entries))
	}
}

func TestBoltStore_AuditLog(t *testing.T) {
	ctx := context.Background()
	bs := newTestStore(t)

	ops := []*domain.Operation{
		{Type: "import", OwnerID: owner, Success: true},
		{Type: "export", OwnerID: "other", Success: true},
		{Type: "reveal", OwnerID: owner, Success: false},
	}
	for _, op := range ops {
		if err := bs.LogOperation(ctx, op); err != nil {
			t.Fatalf("Failed to log operation: %v", err)
		}
	}

	all, err := bs.GetAuditLog(ctx, "")
	if err != nil || len(all) != 3 {
		t.Fatalf("Expected 3 operations, got %d (%v)", len(all), err)
	}

	mine, err := bs.GetAuditLog(ctx, owner)
	if err != nil {
		t.Fatalf("Failed to get audit log: %v", err)
	}
	if len(mine) != 2 || mine[0].Type != "import" || mine[1].Type != "reveal" {
		t.Errorf("Unexpected owner audit log: %+v", mine)
	}
	if mine[0].Timestamp.IsZero() {
		t.Error("Expected timestamp to be assigned")
	}
}

func TestBoltStore_ClosedIsUnavailable(t *testing.T) {
	ctx := context.Background()
	bs := newTestStore(t)
	if err := bs.Close(); err != nil {
		t.Fatalf("Failed to close: %v", err)
	}

	if _, err := bs.ListCredentials(ctx, owner, nil); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable, got %v", err)
	}
	if _, err := bs.BulkCreateCredentials(ctx, []*domain.Credential{{OwnerID: owner, Name: "x"}}); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable, got %v", err)
	}
	if _, err := bs.ListKeychainEntries(ctx, owner); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable, got %v", err)
	}
	if err := bs.Close(); err != nil {
		t.Errorf("Second close should be a no-op, got %v", err)
	}
}

func TestBoltStore_CancelledContext(t *testing.T) {
	bs := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := bs.ListFolders(ctx, owner); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestBoltStore_Persistence(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "persist.vault")

	bs, err := Create(path, DefaultOptions())
	if err != nil {
		t.Fatalf("Failed to create vault: %v", err)
	}
	if _, err := bs.CreateCredential(ctx, &domain.Credential{OwnerID: owner, Name: "kept"}); err != nil {
		t.Fatalf("Failed to create credential: %v", err)
	}
	bs.Close()

	bs, err = Open(path, DefaultOptions())
	if err != nil {
		t.Fatalf("Failed to reopen vault: %v", err)
	}
	defer bs.Close()

	creds, err := bs.ListCredentials(ctx, owner, nil)
	if err != nil || len(creds) != 1 || creds[0].Name != "kept" {
		t.Errorf("Credential not persisted: %v (%v)", creds, err)
	}
}

func TestFileLock(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "test.vault")

	lock1 := NewFileLock(lockPath)
	if err := lock1.Lock(1 * time.Second); err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}
	if !lock1.IsLocked() {
		t.Error("Lock should be held")
	}

	pid, err := os.ReadFile(lockPath + ".lock")
	if err != nil || len(pid) == 0 {
		t.Errorf("Lock file should record the process ID: %q (%v)", pid, err)
	}

	lock2 := NewFileLock(lockPath)
	if err := lock2.Lock(100 * time.Millisecond); err != ErrLockTimeout {
		t.Errorf("Expected timeout error, got %v", err)
	}

	if err := lock1.Unlock(); err != nil {
		t.Fatalf("Failed to release lock: %v", err)
	}
	if lock1.IsLocked() {
		t.Error("Lock should be released")
	}
	if err := lock1.Unlock(); err != ErrLockNotHeld {
		t.Errorf("Expected ErrLockNotHeld, got %v", err)
	}

	if err := lock2.Lock(1 * time.Second); err != nil {
		t.Fatalf("Failed to acquire lock after release: %v", err)
	}
	lock2.Unlock()
}

func TestAtomicWriteFile(t *testing.T) {
	targetPath := filepath.Join(t.TempDir(), "backup.json")

	if err := AtomicWriteFile(targetPath, []byte("first")); err != nil {
		t.Fatalf("Failed to write: %v", err)
	}
	if err := AtomicWriteFile(targetPath, []byte("second")); err != nil {
		t.Fatalf("Failed to overwrite: %v", err)
	}

	data, err := os.ReadFile(targetPath)
	if err != nil {
		t.Fatalf("Failed to read target file: %v", err)
	}
	if string(data) != "second" {
		t.Errorf("File content mismatch: got %s, want second", data)
	}

	writer, err := NewAtomicWriter(targetPath + ".2")
	if err != nil {
		t.Fatalf("Failed to create second atomic writer: %v", err)
	}
	writer.Write([]byte("This should be aborted"))
	if err := writer.Abort(); err != nil {
		t.Fatalf("Failed to abort: %v", err)
	}
	if _, err := os.Stat(targetPath + ".2"); !os.IsNotExist(err) {
		t.Error("Aborted file should not exist")
	}

	entries, _ := os.ReadDir(filepath.Dir(targetPath))
	if len(entries) != 1 {
		t.Errorf("Temp files left behind: %d entries", len(entries))
	}
}
