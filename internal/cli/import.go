package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"

	"github.com/vault-cli/credvault/internal/backup"
	"github.com/vault-cli/credvault/internal/importer"
	"github.com/vault-cli/credvault/internal/tasks"
	"github.com/vault-cli/credvault/internal/util"
)

// maxImportSize bounds the export files read by import.
const maxImportSize = 64 * 1024 * 1024

// errImportFailed is returned when no record of an import could be saved.
var errImportFailed = errors.New("import failed")

func (a *app) newImportCommand() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import credentials from another password manager",
		Long: `Import an export file. Supported formats:

  self       credvault backup (plain or passphrase-encrypted)
  bitwarden  Bitwarden JSON or CSV export (unencrypted)
  zoho       Zoho Vault CSV export
  proton     Proton Pass CSV export
  json       generic JSON array of login objects

Credentials already in the vault (same name, username and URL) are skipped.
Folders are created as needed. Records that cannot be read are reported and
the rest are imported.

Example:
  credvault import backup.age
  credvault import bitwarden_export.json --format bitwarden
  credvault import zoho.csv --format zoho`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runImport(cmd, args[0], format)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", string(importer.VendorSelf), "export format ("+vendorNames()+")")
	return cmd
}

func vendorNames() string {
	names := make([]string, len(importer.Vendors))
	for i, v := range importer.Vendors {
		names[i] = string(v)
	}
	return strings.Join(names, ", ")
}

func (a *app) runImport(cmd *cobra.Command, path, format string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	vendor, err := importer.ParseVendor(format)
	if err != nil {
		return fmt.Errorf("%w: %v", util.ErrInvalidInput, err)
	}

	raw, err := readImportFile(path)
	if err != nil {
		return err
	}
	if vendor == importer.VendorSelf && backup.IsEncrypted(raw) {
		passphrase, err := a.prompt.Secret("Backup passphrase: ")
		if err != nil {
			return err
		}
		if raw, err = backup.Decode(raw, passphrase); err != nil {
			return err
		}
	}

	if err := a.openVault(); err != nil {
		return err
	}
	defer a.closeVault()

	if err := a.verify(ctx, cmd.ErrOrStderr()); err != nil {
		return err
	}

	pipeline := importer.NewPipeline(a.vault.store, a.vault.sess,
		importer.WithBatchSize(a.cfg.Import.BatchSize),
		importer.WithLogger(a.log))
	manager := tasks.NewManager(pipeline, a.log)

	if err := manager.StartImport(ctx, vendor, string(raw), a.cfg.Owner); err != nil {
		return err
	}

	res, err := a.followImport(ctx, cmd.ErrOrStderr(), manager)
	if res != nil {
		printImportResult(out, res)
	}
	if err != nil {
		return err
	}
	if !res.Success {
		return errImportFailed
	}
	return nil
}

// followImport shows the latest progress of the running import until it ends.
func (a *app) followImport(ctx context.Context, w io.Writer, manager *tasks.Manager) (*importer.Result, error) {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(w))
	s.Suffix = " Reading export..."
	s.Start()
	defer s.Stop()

	type outcome struct {
		res *importer.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := manager.Wait(ctx)
		done <- outcome{res, err}
	}()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case o := <-done:
			return o.res, o.err
		case <-ticker.C:
			if p, ok := manager.Latest(); ok {
				s.Lock()
				s.Suffix = fmt.Sprintf(" [%d/%d] %s", p.Step, p.TotalSteps, p.Message)
				s.Unlock()
			}
		}
	}
}

func readImportFile(path string) ([]byte, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open import file: %w", err)
	}
	defer f.Close()

	raw, err := io.ReadAll(io.LimitReader(f, maxImportSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read import file: %w", err)
	}
	if len(raw) > maxImportSize {
		return nil, fmt.Errorf("%w: import file is larger than %d MB", util.ErrInvalidInput, maxImportSize>>20)
	}
	return raw, nil
}

func printImportResult(w io.Writer, res *importer.Result) {
	sum := res.Summary
	if res.Success {
		_ = success(w, "Imported %d credential(s), %d folder(s), %d TOTP secret(s)",
			sum.CredentialsCreated, sum.FoldersCreated, sum.TOTPSecretsCreated)
	} else {
		_ = failure(w, "Import failed")
	}
	if sum.SkippedExisting > 0 {
		_ = writeOutput(w, "  %d already in the vault\n", sum.SkippedExisting)
	}
	if sum.Skipped > 0 {
		_ = writeOutput(w, "  %d unsupported item(s) skipped\n", sum.Skipped)
	}
	if len(res.Errors) > 0 {
		_ = warn(w, "%d problem(s):", len(res.Errors))
		for _, msg := range res.Errors {
			_ = writeOutput(w, "  - %s\n", msg)
		}
	}
}
