package importer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vault-cli/credvault/internal/domain"
	"github.com/vault-cli/credvault/internal/logger"
	"github.com/vault-cli/credvault/internal/session"
	"github.com/vault-cli/credvault/internal/store"
)

// DefaultBatchSize is the number of credentials written per transaction.
const DefaultBatchSize = 50

// ErrNoRecords is returned when an export parses cleanly but contains nothing.
var ErrNoRecords = errors.New("import file contains no records")

// Import stages, reported as Progress.Step.
const (
	stepParse = iota + 1
	stepFolders
	stepClassify
	stepWrite
	stepFinish
	totalSteps = stepFinish
)

//go:generate mockgen -source=pipeline.go -destination=../mock/importer_mock.go -package=mock

// Store is the subset of store.VaultStore the pipeline writes through.
type Store interface {
	ListCredentials(ctx context.Context, ownerID string, filter *domain.Filter) ([]*domain.Credential, error)
	CreateCredential(ctx context.Context, cred *domain.Credential) (*domain.Credential, error)
	BulkCreateCredentials(ctx context.Context, creds []*domain.Credential) ([]*domain.Credential, error)
	CreateFolder(ctx context.Context, ownerID, name, parentID string) (*domain.Folder, error)
	ListFolders(ctx context.Context, ownerID string) ([]*domain.Folder, error)
	CreateTOTPSecret(ctx context.Context, secret *domain.TOTPSecret) (*domain.TOTPSecret, error)
	LogOperation(ctx context.Context, op *domain.Operation) error
}

// Encryptor seals secret fields. *session.Session implements it.
type Encryptor interface {
	SealCredential(cred *domain.Credential) (*domain.Credential, error)
	SealTOTP(secret *domain.TOTPSecret) (*domain.TOTPSecret, error)
}

// Progress is a snapshot of a running import.
type Progress struct {
	Step           int
	TotalSteps     int
	Message        string
	ItemsProcessed int
	ItemsTotal     int
}

// Summary counts the outcome of an import.
type Summary struct {
	FoldersCreated     int
	CredentialsCreated int
	TOTPSecretsCreated int
	// Skipped counts items the vault cannot represent.
	Skipped int
	// SkippedExisting counts duplicates of existing or earlier records.
	SkippedExisting int
	Errors          int
}

// Result is the terminal outcome of an import.
type Result struct {
	Success bool
	Summary Summary
	Errors  []string
	// FolderMapping maps folder paths to folder IDs.
	FolderMapping map[string]string
}

// Clone returns a deep copy.
func (r *Result) Clone() *Result {
	if r == nil {
		return nil
	}
	out := *r
	out.Errors = append([]string(nil), r.Errors...)
	out.FolderMapping = make(map[string]string, len(r.FolderMapping))
	for k, v := range r.FolderMapping {
		out.FolderMapping[k] = v
	}
	return &out
}

// FailedResult builds a failed result carrying one error message.
func FailedResult(message string) *Result {
	return &Result{
		Summary:       Summary{Errors: 1},
		Errors:        []string{message},
		FolderMapping: map[string]string{},
	}
}

// Pipeline imports vendor exports for one store and encryptor.
type Pipeline struct {
	store     Store
	enc       Encryptor
	batchSize int
	log       *logger.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithBatchSize sets the number of credentials per write. Values below one
// are ignored.
func WithBatchSize(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(p *Pipeline) { p.log = l.Component("importer") }
}

// NewPipeline creates a pipeline.
func NewPipeline(st Store, enc Encryptor, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:     st,
		enc:       enc,
		batchSize: DefaultBatchSize,
		log:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// fatalError stops a run. Its message is safe to show to the user.
type fatalError struct {
	msg string
	err error
}

func (e *fatalError) Error() string { return e.msg }
func (e *fatalError) Unwrap() error { return e.err }

// isFatal reports whether err must stop the whole run.
func isFatal(err error) bool {
	return errors.Is(err, store.ErrUnavailable) ||
		errors.Is(err, session.ErrSessionLocked) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func fatal(err error) *fatalError {
	switch {
	case errors.Is(err, session.ErrSessionLocked):
		return &fatalError{msg: "vault was locked during import", err: err}
	case errors.Is(err, store.ErrUnavailable):
		return &fatalError{msg: "vault storage is unavailable", err: err}
	default:
		return &fatalError{msg: "import interrupted", err: err}
	}
}

// importRun holds the state of one Import call.
type importRun struct {
	p        *Pipeline
	ctx      context.Context
	ownerID  string
	progress func(Progress)
	snap     Progress
	result   *Result
	// attempted counts records that reached a write, plus record diagnostics.
	attempted int
	failed    int
}

type pending struct {
	index int
	rec   Record
	cred  *domain.Credential
}

// Import parses raw with the vendor adapter and writes the new credentials.
// It always returns a terminal result; the error is non-nil only when the run
// stopped on ErrNoRecords or a fatal store or session failure.
func (p *Pipeline) Import(ctx context.Context, vendor Vendor, raw, ownerID string, onProgress func(Progress)) (*Result, error) {
	if onProgress == nil {
		onProgress = func(Progress) {}
	}
	r := &importRun{
		p:        p,
		ctx:      ctx,
		ownerID:  ownerID,
		progress: onProgress,
		result:   &Result{FolderMapping: map[string]string{}},
	}
	log := p.log.With().Str("vendor", string(vendor)).Str("owner", ownerID).Logger()
	start := time.Now()

	res, err := r.execute(vendor, raw)
	log.Info().
		Bool("success", res.Success).
		Int("created", res.Summary.CredentialsCreated).
		Int("skipped_existing", res.Summary.SkippedExisting).
		Int("errors", res.Summary.Errors).
		Dur("duration", time.Since(start)).
		Msg("import finished")

	r.audit(vendor, res)
	return res.Clone(), err
}

func (r *importRun) execute(vendor Vendor, raw string) (*Result, error) {
	r.publish(stepParse, "Parsing export")
	records, diags := AdapterFor(vendor).Parse(raw)
	for _, d := range diags {
		r.addError(d.String())
		if d.Cause != nil {
			r.p.log.Debug().Err(d.Cause).Int("index", d.Index).Msg("export entry could not be decoded")
		}
		if d.Index != FileLevel {
			r.attempted++
			r.failed++
		}
	}
	if len(records) == 0 {
		if len(diags) == 0 {
			r.result.Errors = []string{ErrNoRecords.Error()}
			r.result.Summary.Errors = 1
			return r.result, ErrNoRecords
		}
		return r.result, nil
	}
	r.snap.ItemsTotal = len(records)

	if err := r.resolveFolders(records); err != nil {
		return r.abort(err)
	}

	batch, err := r.classify(records)
	if err != nil {
		return r.abort(err)
	}

	if err := r.write(batch); err != nil {
		return r.abort(err)
	}

	r.publish(stepFinish, "Import complete")
	r.result.Success = r.attempted == 0 || r.failed < r.attempted
	return r.result, nil
}

func (r *importRun) abort(err error) (*Result, error) {
	f := fatal(err)
	r.addError(f.msg)
	r.result.Success = false
	return r.result, f
}

func (r *importRun) addError(msg string) {
	r.result.Errors = append(r.result.Errors, msg)
	r.result.Summary.Errors++
}

func (r *importRun) publish(step int, msg string) {
	if step > r.snap.Step {
		r.snap.Step = step
	}
	r.snap.TotalSteps = totalSteps
	r.snap.Message = msg
	r.progress(r.snap)
}

func (r *importRun) processed(msg string) {
	r.snap.ItemsProcessed++
	r.publish(r.snap.Step, msg)
}

// resolveFolders creates every folder path the records reference, parents
// first, reusing folders that already exist.
func (r *importRun) resolveFolders(records []Record) error {
	r.publish(stepFolders, "Resolving folders")

	existing, err := r.p.store.ListFolders(r.ctx, r.ownerID)
	if err != nil {
		return err
	}
	byPath := folderPaths(existing)
	for path, id := range byPath {
		r.result.FolderMapping[path] = id
	}

	for _, rec := range records {
		path := cleanFolderPath(rec.Folder)
		if path == "" || rec.Unsupported {
			continue
		}
		if _, done := r.result.FolderMapping[path]; done {
			continue
		}
		if err := r.ensureFolder(path); err != nil {
			if isFatal(err) {
				return err
			}
			r.addError(fmt.Sprintf("folder %q: could not be created", path))
			r.p.log.Warn().Err(err).Str("folder", path).Msg("folder creation failed")
			// Records in this folder are still imported without one.
			r.result.FolderMapping[path] = ""
		}
		r.publish(stepFolders, "Resolved folder "+path)
	}
	for path, id := range r.result.FolderMapping {
		if id == "" {
			delete(r.result.FolderMapping, path)
		}
	}
	return nil
}

func (r *importRun) ensureFolder(path string) error {
	parentID := ""
	prefix := ""
	for _, segment := range strings.Split(path, "/") {
		if prefix == "" {
			prefix = segment
		} else {
			prefix += "/" + segment
		}
		if id, ok := r.lookupFolder(prefix); ok {
			parentID = id
			continue
		}
		folder, err := r.p.store.CreateFolder(r.ctx, r.ownerID, segment, parentID)
		if err != nil {
			return err
		}
		r.result.FolderMapping[prefix] = folder.ID
		r.result.Summary.FoldersCreated++
		parentID = folder.ID
	}
	return nil
}

// lookupFolder matches exactly, then case-insensitively as the store does.
func (r *importRun) lookupFolder(path string) (string, bool) {
	if id, ok := r.result.FolderMapping[path]; ok && id != "" {
		return id, true
	}
	for p, id := range r.result.FolderMapping {
		if id != "" && strings.EqualFold(p, path) {
			return id, true
		}
	}
	return "", false
}

// classify drops unsupported records and duplicates, and maps the rest to
// unsealed credentials.
func (r *importRun) classify(records []Record) ([]pending, error) {
	r.publish(stepClassify, "Checking for duplicates")

	existing, err := r.p.store.ListCredentials(r.ctx, r.ownerID, nil)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(existing)+len(records))
	for _, c := range existing {
		seen[Fingerprint(c.Name, c.Username, c.URL)] = true
	}

	var out []pending
	for i, rec := range records {
		switch {
		case rec.Unsupported:
			r.result.Summary.Skipped++
			r.processed("Skipped unsupported item")
			continue
		case seen[Fingerprint(rec.Name, rec.Username, rec.URL)]:
			r.result.Summary.SkippedExisting++
			r.processed("Skipped existing " + rec.Name)
			continue
		}
		seen[Fingerprint(rec.Name, rec.Username, rec.URL)] = true

		folderID := ""
		if path := cleanFolderPath(rec.Folder); path != "" {
			folderID, _ = r.lookupFolder(path)
		}
		out = append(out, pending{
			index: i,
			rec:   rec,
			cred: &domain.Credential{
				OwnerID:      r.ownerID,
				Name:         rec.Name,
				Username:     rec.Username,
				Password:     rec.Password,
				URL:          rec.URL,
				Notes:        rec.Notes,
				Tags:         rec.Tags,
				CustomFields: rec.CustomFields,
				FolderID:     folderID,
				CreatedAt:    rec.CreatedAt,
				UpdatedAt:    rec.UpdatedAt,
			},
		})
		r.publish(stepClassify, "Queued "+rec.Name)
	}
	return out, nil
}

// write seals and stores credentials batch by batch. A batch that fails for
// a non-fatal reason is retried one credential at a time.
func (r *importRun) write(items []pending) error {
	r.publish(stepWrite, "Saving credentials")

	for start := 0; start < len(items); start += r.p.batchSize {
		end := min(start+r.p.batchSize, len(items))
		if err := r.writeBatch(items[start:end]); err != nil {
			return err
		}
		r.publish(stepWrite, fmt.Sprintf("Saved %d of %d", end, len(items)))
	}
	return nil
}

func (r *importRun) writeBatch(items []pending) error {
	sealed := make([]*domain.Credential, 0, len(items))
	kept := make([]pending, 0, len(items))
	for _, it := range items {
		r.attempted++
		c, err := r.p.enc.SealCredential(it.cred)
		if err != nil {
			if isFatal(err) {
				return err
			}
			r.recordFailed(it, err)
			continue
		}
		sealed = append(sealed, c)
		kept = append(kept, it)
	}
	if len(sealed) == 0 {
		return nil
	}

	created, err := r.p.store.BulkCreateCredentials(r.ctx, sealed)
	if err == nil {
		for i, c := range created {
			if err := r.saved(kept[i], c); err != nil {
				return err
			}
		}
		return nil
	}
	if isFatal(err) {
		return err
	}

	r.p.log.Warn().Err(err).Int("size", len(sealed)).Msg("batch write failed; retrying individually")
	for i, c := range sealed {
		one, err := r.p.store.CreateCredential(r.ctx, c)
		if err != nil {
			if isFatal(err) {
				return err
			}
			r.recordFailed(kept[i], err)
			continue
		}
		if err := r.saved(kept[i], one); err != nil {
			return err
		}
	}
	return nil
}

func (r *importRun) recordFailed(it pending, err error) {
	r.failed++
	r.addError(fmt.Sprintf("record %d (%s): could not be saved", it.index+1, it.rec.Name))
	r.p.log.Warn().Err(err).Int("record", it.index+1).Msg("credential write failed")
	r.processed("Failed " + it.rec.Name)
}

// saved counts a stored credential and links its TOTP seed.
func (r *importRun) saved(it pending, cred *domain.Credential) error {
	r.result.Summary.CredentialsCreated++

	if seed := strings.TrimSpace(it.rec.TOTP); seed != "" {
		secret, err := r.p.enc.SealTOTP(&domain.TOTPSecret{
			OwnerID:      r.ownerID,
			CredentialID: cred.ID,
			Secret:       seed,
			Issuer:       it.rec.TOTPIssuer,
			Account:      it.rec.TOTPAccount,
		})
		if err == nil {
			_, err = r.p.store.CreateTOTPSecret(r.ctx, secret)
		}
		switch {
		case err == nil:
			r.result.Summary.TOTPSecretsCreated++
		case isFatal(err):
			return err
		default:
			r.addError(fmt.Sprintf("record %d (%s): TOTP secret could not be saved", it.index+1, it.rec.Name))
			r.p.log.Warn().Err(err).Int("record", it.index+1).Msg("totp write failed")
		}
	}

	r.processed("Imported " + it.rec.Name)
	return nil
}

func (r *importRun) audit(vendor Vendor, res *Result) {
	op := &domain.Operation{
		Type:    "import",
		OwnerID: r.ownerID,
		Detail: fmt.Sprintf("vendor=%s created=%d skipped=%d skipped_existing=%d errors=%d",
			vendor, res.Summary.CredentialsCreated, res.Summary.Skipped, res.Summary.SkippedExisting, res.Summary.Errors),
		Success: res.Success,
	}
	// The audit entry is written even if the caller's context has ended.
	if err := r.p.store.LogOperation(context.WithoutCancel(r.ctx), op); err != nil {
		r.p.log.Warn().Err(err).Msg("failed to write import audit entry")
	}
}

// Fingerprint identifies a credential for duplicate detection.
func Fingerprint(name, username, rawURL string) string {
	return strings.ToLower(strings.TrimSpace(name)) + "|" +
		strings.ToLower(strings.TrimSpace(username)) + "|" +
		NormalizeURL(rawURL)
}

// NormalizeURL lowercases a URL and strips the scheme, a leading "www." and
// trailing slashes.
func NormalizeURL(rawURL string) string {
	u := strings.ToLower(strings.TrimSpace(rawURL))
	for _, scheme := range []string{"https://", "http://"} {
		u = strings.TrimPrefix(u, scheme)
	}
	u = strings.TrimPrefix(u, "www.")
	return strings.TrimRight(u, "/")
}

func cleanFolderPath(path string) string {
	var segments []string
	for _, s := range strings.Split(path, "/") {
		if s = strings.TrimSpace(s); s != "" {
			segments = append(segments, s)
		}
	}
	return strings.Join(segments, "/")
}

// folderPaths maps each folder's full path to its ID.
func folderPaths(folders []*domain.Folder) map[string]string {
	byID := make(map[string]*domain.Folder, len(folders))
	for _, f := range folders {
		byID[f.ID] = f
	}
	out := make(map[string]string, len(folders))
	for _, f := range folders {
		path := f.Name
		seen := map[string]bool{f.ID: true}
		for parent := byID[f.ParentID]; parent != nil && !seen[parent.ID]; parent = byID[parent.ParentID] {
			seen[parent.ID] = true
			path = parent.Name + "/" + path
		}
		out[path] = f.ID
	}
	return out
}
