package importer_test

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/vault-cli/credvault/internal/domain"
	"github.com/vault-cli/credvault/internal/importer"
	"github.com/vault-cli/credvault/internal/mock"
	"github.com/vault-cli/credvault/internal/session"
	"github.com/vault-cli/credvault/internal/store"
	"github.com/vault-cli/credvault/internal/vault"
)

const owner = "owner-1"

func newStore(t *testing.T) *store.BoltStore {
	t.Helper()
	bs, err := store.Create(filepath.Join(t.TempDir(), "import.vault"), store.DefaultOptions())
	require.NoError(t, err)
	t.Cleanup(func() { bs.Close() })
	return bs
}

func unlockedSession(t *testing.T) *session.Session {
	t.Helper()
	engine := vault.NewCryptoEngine(vault.Argon2Params{Memory: 1024, Iterations: 1, Parallelism: 1})
	sess := session.New(owner, engine)
	key, err := vault.GenerateKey()
	require.NoError(t, err)
	sess.Install(key)
	return sess
}

func genericItems(n int) string {
	items := make([]string, n)
	for i := range items {
		items[i] = fmt.Sprintf(`{"name": "site-%d", "username": "user", "password": "pw-%d"}`, i, i)
	}
	return "[" + strings.Join(items, ",") + "]"
}

func TestPipeline_ImportEncryptsAndDeduplicates(t *testing.T) {
	ctx := context.Background()
	bs := newStore(t)
	sess := unlockedSession(t)
	p := importer.NewPipeline(bs, sess)

	raw := `[{"name": "Netflix", "username": "me@example.com", "password": "hunter2", "url": "https://netflix.com", "notes": "family plan"}]`

	res, err := p.Import(ctx, importer.VendorSelf, raw, owner, nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.Summary.CredentialsCreated)
	assert.Empty(t, res.Errors)

	creds, err := bs.ListCredentials(ctx, owner, nil)
	require.NoError(t, err)
	require.Len(t, creds, 1)
	assert.Equal(t, "Netflix", creds[0].Name)
	assert.NotEqual(t, "hunter2", creds[0].Password)
	assert.NotEqual(t, "family plan", creds[0].Notes)

	opened, err := sess.OpenCredential(creds[0])
	require.NoError(t, err)
	assert.Equal(t, "hunter2", opened.Password)
	assert.Equal(t, "family plan", opened.Notes)

	// Same credential with cosmetic URL differences.
	raw = `[{"name": " netflix ", "username": "ME@example.com", "password": "other", "url": "https://www.netflix.com/"}]`
	res, err = p.Import(ctx, importer.VendorSelf, raw, owner, nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 0, res.Summary.CredentialsCreated)
	assert.Equal(t, 1, res.Summary.SkippedExisting)

	creds, err = bs.ListCredentials(ctx, owner, nil)
	require.NoError(t, err)
	assert.Len(t, creds, 1)

	ops, err := bs.GetAuditLog(ctx, owner)
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.Equal(t, "import", ops[0].Type)
	assert.True(t, ops[0].Success)
}

func TestPipeline_DuplicatesWithinFile(t *testing.T) {
	bs := newStore(t)
	p := importer.NewPipeline(bs, unlockedSession(t))

	raw := `[{"name": "a", "username": "u"}, {"name": "A", "username": "U"}, {"name": "b"}]`
	res, err := p.Import(context.Background(), importer.VendorJSON, raw, owner, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Summary.CredentialsCreated)
	assert.Equal(t, 1, res.Summary.SkippedExisting)
}

func TestPipeline_OneMalformedRecord(t *testing.T) {
	bs := newStore(t)
	p := importer.NewPipeline(bs, unlockedSession(t), importer.WithBatchSize(4))

	items := strings.TrimSuffix(genericItems(9), "]") + `, "not an object"]`
	res, err := p.Import(context.Background(), importer.VendorJSON, items, owner, nil)
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, 9, res.Summary.CredentialsCreated)
	assert.Equal(t, 1, res.Summary.Errors)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "record 10")
}

func TestPipeline_OneMalformedBackupRecord(t *testing.T) {
	bs := newStore(t)
	p := importer.NewPipeline(bs, unlockedSession(t), importer.WithBatchSize(4))

	items := strings.TrimSuffix(genericItems(9), "]") + `, {"name": 5, "password": "pw"}]`
	res, err := p.Import(context.Background(), importer.VendorSelf, items, owner, nil)
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, 9, res.Summary.CredentialsCreated)
	assert.Equal(t, 1, res.Summary.Errors)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "record 10")
	assert.NotContains(t, res.Errors[0], "json:")
}

func TestPipeline_ReimportMatchesFoldersCaseInsensitively(t *testing.T) {
	ctx := context.Background()
	bs := newStore(t)
	p := importer.NewPipeline(bs, unlockedSession(t))

	raw := `[
	  {"name": "Mail", "username": "me", "password": "pw", "folder": "Work"},
	  {"name": "Wiki", "username": "me", "password": "pw", "folder": "work/Sub"}
	]`

	res, err := p.Import(ctx, importer.VendorSelf, raw, owner, nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 2, res.Summary.FoldersCreated)
	assert.Equal(t, 2, res.Summary.CredentialsCreated)

	res, err = p.Import(ctx, importer.VendorSelf, raw, owner, nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 0, res.Summary.FoldersCreated)
	assert.Equal(t, 0, res.Summary.CredentialsCreated)
	assert.Equal(t, 2, res.Summary.SkippedExisting)

	folders, err := bs.ListFolders(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, folders, 2)
}

func TestPipeline_NoRecords(t *testing.T) {
	p := importer.NewPipeline(newStore(t), unlockedSession(t))

	res, err := p.Import(context.Background(), importer.VendorSelf, `[]`, owner, nil)
	assert.ErrorIs(t, err, importer.ErrNoRecords)
	require.NotNil(t, res)
	assert.False(t, res.Success)
}

func TestPipeline_FileLevelFailure(t *testing.T) {
	p := importer.NewPipeline(newStore(t), unlockedSession(t))

	res, err := p.Import(context.Background(), importer.VendorBitwarden, `{"encrypted": true}`, owner, nil)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, 1, res.Summary.Errors)
}

func TestPipeline_FoldersAndTOTP(t *testing.T) {
	ctx := context.Background()
	bs := newStore(t)
	sess := unlockedSession(t)
	p := importer.NewPipeline(bs, sess)

	work, err := bs.CreateFolder(ctx, owner, "Work", "")
	require.NoError(t, err)

	raw := `{
	  "encrypted": false,
	  "folders": [{"id": "f1", "name": "Work/Email"}, {"id": "f2", "name": "Home"}],
	  "items": [
	    {"type": 1, "name": "Mail", "folderId": "f1",
	     "login": {"username": "me", "password": "pw", "totp": "JBSWY3DPEHPK3PXP", "uris": [{"uri": "https://mail.example.com"}]}},
	    {"type": 1, "name": "Calendar", "folderId": "f1", "login": {"username": "me", "password": "pw2"}},
	    {"type": 1, "name": "Router", "folderId": "f2", "login": {"password": "admin"}},
	    {"type": 3, "name": "Visa"}
	  ]
	}`

	res, err := p.Import(ctx, importer.VendorBitwarden, raw, owner, nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 2, res.Summary.FoldersCreated)
	assert.Equal(t, 3, res.Summary.CredentialsCreated)
	assert.Equal(t, 1, res.Summary.TOTPSecretsCreated)
	assert.Equal(t, 1, res.Summary.Skipped)

	assert.Equal(t, work.ID, res.FolderMapping["Work"])
	emailID := res.FolderMapping["Work/Email"]
	require.NotEmpty(t, emailID)

	folders, err := bs.ListFolders(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, folders, 3)

	creds, err := bs.ListCredentials(ctx, owner, &domain.Filter{FolderID: emailID})
	require.NoError(t, err)
	assert.Len(t, creds, 2)

	secrets, err := bs.ListTOTPSecrets(ctx, owner)
	require.NoError(t, err)
	require.Len(t, secrets, 1)
	assert.NotEqual(t, "JBSWY3DPEHPK3PXP", secrets[0].Secret)
	opened, err := sess.OpenTOTP(secrets[0])
	require.NoError(t, err)
	assert.Equal(t, "JBSWY3DPEHPK3PXP", opened.Secret)
}

func TestPipeline_ProgressIsMonotonic(t *testing.T) {
	p := importer.NewPipeline(newStore(t), unlockedSession(t), importer.WithBatchSize(3))

	var snaps []importer.Progress
	_, err := p.Import(context.Background(), importer.VendorJSON, genericItems(7), owner, func(pr importer.Progress) {
		snaps = append(snaps, pr)
	})
	require.NoError(t, err)
	require.NotEmpty(t, snaps)

	for i := 1; i < len(snaps); i++ {
		assert.GreaterOrEqual(t, snaps[i].Step, snaps[i-1].Step)
		assert.GreaterOrEqual(t, snaps[i].ItemsProcessed, snaps[i-1].ItemsProcessed)
	}
	last := snaps[len(snaps)-1]
	assert.Equal(t, last.TotalSteps, last.Step)
	assert.Equal(t, 7, last.ItemsTotal)
	assert.Equal(t, 7, last.ItemsProcessed)
}

func TestPipeline_LockMidRun(t *testing.T) {
	ctx := context.Background()
	bs := newStore(t)
	sess := unlockedSession(t)
	p := importer.NewPipeline(bs, sess, importer.WithBatchSize(2))

	res, err := p.Import(ctx, importer.VendorJSON, genericItems(5), owner, func(pr importer.Progress) {
		if pr.Message == "Saved 2 of 5" {
			sess.Lock()
		}
	})
	assert.ErrorIs(t, err, session.ErrSessionLocked)
	assert.False(t, res.Success)
	assert.Equal(t, 2, res.Summary.CredentialsCreated)
	assert.Contains(t, res.Errors, "vault was locked during import")

	creds, err := bs.ListCredentials(ctx, owner, nil)
	require.NoError(t, err)
	assert.Len(t, creds, 2)
}

func TestPipeline_BatchFailureRetriesIndividually(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := mock.NewMockStore(ctrl)
	p := importer.NewPipeline(st, unlockedSession(t))

	st.EXPECT().ListFolders(gomock.Any(), owner).Return(nil, nil)
	st.EXPECT().ListCredentials(gomock.Any(), owner, nil).Return(nil, nil)
	st.EXPECT().BulkCreateCredentials(gomock.Any(), gomock.Len(3)).
		Return(nil, fmt.Errorf("%w: credential taken", store.ErrExists))
	st.EXPECT().CreateCredential(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, c *domain.Credential) (*domain.Credential, error) {
			if c.Name == "b" {
				return nil, store.ErrExists
			}
			out := c.Clone()
			out.ID = "id-" + c.Name
			return out, nil
		}).Times(3)
	st.EXPECT().LogOperation(gomock.Any(), gomock.Any()).Return(nil)

	res, err := p.Import(context.Background(), importer.VendorJSON, `[{"name":"a"},{"name":"b"},{"name":"c"}]`, owner, nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 2, res.Summary.CredentialsCreated)
	assert.Equal(t, 1, res.Summary.Errors)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "(b)")
}

func TestPipeline_AllRecordsFail(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := mock.NewMockStore(ctrl)
	p := importer.NewPipeline(st, unlockedSession(t))

	st.EXPECT().ListFolders(gomock.Any(), owner).Return(nil, nil)
	st.EXPECT().ListCredentials(gomock.Any(), owner, nil).Return(nil, nil)
	st.EXPECT().BulkCreateCredentials(gomock.Any(), gomock.Any()).Return(nil, store.ErrInvalidRecord)
	st.EXPECT().CreateCredential(gomock.Any(), gomock.Any()).Return(nil, store.ErrInvalidRecord).Times(2)
	st.EXPECT().LogOperation(gomock.Any(), gomock.Any()).Return(nil)

	res, err := p.Import(context.Background(), importer.VendorJSON, `[{"name":"a"},{"name":"b"}]`, owner, nil)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, 2, res.Summary.Errors)
}

func TestPipeline_StoreUnavailable(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := mock.NewMockStore(ctrl)
	enc := mock.NewMockEncryptor(ctrl)
	p := importer.NewPipeline(st, enc)

	st.EXPECT().ListFolders(gomock.Any(), owner).Return(nil, store.ErrUnavailable)
	st.EXPECT().LogOperation(gomock.Any(), gomock.Any()).Return(store.ErrUnavailable)

	res, err := p.Import(context.Background(), importer.VendorJSON, `[{"name":"a"}]`, owner, nil)
	assert.ErrorIs(t, err, store.ErrUnavailable)
	assert.False(t, res.Success)
	assert.Equal(t, []string{"vault storage is unavailable"}, res.Errors)
}

func TestPipeline_EncryptFailureIsRecordError(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := mock.NewMockStore(ctrl)
	enc := mock.NewMockEncryptor(ctrl)
	p := importer.NewPipeline(st, enc)

	st.EXPECT().ListFolders(gomock.Any(), owner).Return(nil, nil)
	st.EXPECT().ListCredentials(gomock.Any(), owner, nil).Return(nil, nil)
	gomock.InOrder(
		enc.EXPECT().SealCredential(gomock.Any()).Return(nil, vault.ErrInvalidKeySize),
		enc.EXPECT().SealCredential(gomock.Any()).DoAndReturn(func(c *domain.Credential) (*domain.Credential, error) {
			return c.Clone(), nil
		}),
	)
	st.EXPECT().BulkCreateCredentials(gomock.Any(), gomock.Len(1)).
		DoAndReturn(func(_ context.Context, creds []*domain.Credential) ([]*domain.Credential, error) {
			return creds, nil
		})
	st.EXPECT().LogOperation(gomock.Any(), gomock.Any()).Return(nil)

	res, err := p.Import(context.Background(), importer.VendorJSON, `[{"name":"a"},{"name":"b"}]`, owner, nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.Summary.CredentialsCreated)
	assert.Equal(t, 1, res.Summary.Errors)
}

func TestPipeline_StartDeliversLatestProgress(t *testing.T) {
	p := importer.NewPipeline(newStore(t), unlockedSession(t), importer.WithBatchSize(5))

	run := p.Start(context.Background(), importer.VendorJSON, genericItems(20), owner)

	var last importer.Progress
	for pr := range run.Progress() {
		last = pr
	}
	res, err := run.Wait(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 20, res.Summary.CredentialsCreated)
	assert.Equal(t, last.TotalSteps, last.Step)
}

func TestRun_WaitHonoursContext(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := mock.NewMockStore(ctrl)
	release := make(chan struct{})

	st.EXPECT().ListFolders(gomock.Any(), owner).DoAndReturn(func(context.Context, string) ([]*domain.Folder, error) {
		<-release
		return nil, store.ErrUnavailable
	})
	st.EXPECT().LogOperation(gomock.Any(), gomock.Any()).Return(nil)

	run := importer.NewPipeline(st, unlockedSession(t)).Start(context.Background(), importer.VendorJSON, `[{"name":"a"}]`, owner)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := run.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	close(release)
	res, err := run.Wait(context.Background())
	assert.ErrorIs(t, err, store.ErrUnavailable)
	assert.False(t, res.Success)
}

func TestResult_Clone(t *testing.T) {
	r := &importer.Result{Errors: []string{"x"}, FolderMapping: map[string]string{"a": "1"}}
	c := r.Clone()
	c.Errors[0] = "y"
	c.FolderMapping["a"] = "2"
	assert.Equal(t, "x", r.Errors[0])
	assert.Equal(t, "1", r.FolderMapping["a"])
}
