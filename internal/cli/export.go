package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vault-cli/credvault/internal/backup"
	"github.com/vault-cli/credvault/internal/util"
)

type exportOptions struct {
	encrypt bool
	force   bool
}

func (a *app) newExportCommand() *cobra.Command {
	opts := &exportOptions{}

	cmd := &cobra.Command{
		Use:   "export <file>",
		Short: "Export the vault to a backup file",
		Long: `Export every credential, folder and TOTP secret to a backup file that
'credvault import --format self' reads back. Requires verification.

Without --encrypt the file holds plaintext secrets. With --encrypt it is
encrypted with age under a passphrase you choose.

Example:
  credvault export backup.age --encrypt
  credvault export backup.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runExport(cmd, args[0], opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.encrypt, "encrypt", "e", false, "encrypt the backup with a passphrase")
	cmd.Flags().BoolVar(&opts.force, "force", false, "overwrite an existing file")
	return cmd
}

func (a *app) runExport(cmd *cobra.Command, path string, opts *exportOptions) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if _, err := os.Stat(path); err == nil && !opts.force {
		return fmt.Errorf("%w: %s already exists (use --force to overwrite)", util.ErrInvalidInput, path)
	}

	if err := a.openVault(); err != nil {
		return err
	}
	defer a.closeVault()

	if err := a.verify(ctx, cmd.ErrOrStderr()); err != nil {
		return err
	}

	var passphrase string
	if opts.encrypt {
		var err error
		passphrase, err = promptSecretConfirm(a.prompt, "Backup passphrase: ", "Confirm backup passphrase: ")
		if err != nil {
			return err
		}
		if len(passphrase) < minPasswordLength {
			return fmt.Errorf("%w: passphrase must be at least %d characters", util.ErrInvalidInput, minPasswordLength)
		}
	} else {
		ok, err := promptConfirm(a.prompt, "The backup will contain plaintext secrets. Continue?", false)
		if err != nil {
			return err
		}
		if !ok {
			return util.ErrCancelled
		}
	}

	doc, err := backup.Export(ctx, a.vault.store, a.vault.sess, a.cfg.Owner)
	if err != nil {
		a.audit(ctx, "export", "", false)
		return err
	}
	if err := backup.WriteFile(path, doc, passphrase); err != nil {
		a.audit(ctx, "export", "", false)
		return fmt.Errorf("failed to write backup: %w", err)
	}

	a.audit(ctx, "export", fmt.Sprintf("encrypted=%t %s", opts.encrypt, backup.Summary(doc)), true)
	return success(out, "Exported %s to %s", backup.Summary(doc), path)
}
