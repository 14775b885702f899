package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vault-cli/credvault/internal/domain"
)

type getOptions struct {
	show bool
	copy bool
	ttl  time.Duration
}

func (a *app) newGetCommand() *cobra.Command {
	opts := &getOptions{}

	cmd := &cobra.Command{
		Use:   "get <name|id>",
		Short: "Show a credential",
		Long: `Show a credential. Revealing secrets requires verification with your PIN,
passkey or master password; a verification stays valid for the sudo window.

The password is masked unless --show is given. With --copy it is placed on
the clipboard and cleared again after the clipboard timeout.

Example:
  credvault get github
  credvault get github --show
  credvault get github --copy --ttl 10s`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runGet(cmd, args[0], opts)
		},
	}

	cmd.Flags().BoolVar(&opts.show, "show", false, "print the password")
	cmd.Flags().BoolVarP(&opts.copy, "copy", "c", false, "copy the password to the clipboard")
	cmd.Flags().DurationVar(&opts.ttl, "ttl", 0, "clipboard timeout (default from config)")
	return cmd
}

func (a *app) runGet(cmd *cobra.Command, query string, opts *getOptions) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if err := a.openVault(); err != nil {
		return err
	}
	defer a.closeVault()

	found, err := a.findCredential(ctx, query)
	if err != nil {
		return err
	}

	if err := a.verify(ctx, cmd.ErrOrStderr()); err != nil {
		return err
	}

	cred, err := a.vault.sess.OpenCredential(found)
	if err != nil {
		a.audit(ctx, "get", "id="+found.ID, false)
		return fmt.Errorf("failed to decrypt credential: %w", err)
	}
	a.audit(ctx, "get", "id="+cred.ID, true)

	totp, err := a.totpFor(ctx, cred.ID)
	if err != nil {
		return err
	}

	folders, err := a.loadFolders(ctx)
	if err != nil {
		return err
	}

	password := strings.Repeat("*", 8)
	if opts.show {
		password = cred.Password
	}

	_ = field(out, "Name", cred.Name)
	_ = field(out, "ID", cred.ID)
	_ = field(out, "Username", cred.Username)
	_ = field(out, "Password", password)
	_ = field(out, "URL", cred.URL)
	_ = field(out, "Folder", folders.byID[cred.FolderID])
	_ = field(out, "Tags", strings.Join(cred.Tags, ", "))
	for _, f := range cred.CustomFields {
		_ = field(out, f.Label, f.Value)
	}
	if totp != nil {
		secret := "configured"
		if opts.show {
			secret = totp.Secret
		}
		_ = field(out, "TOTP", secret)
	}
	_ = field(out, "Notes", cred.Notes)
	_ = field(out, "Updated", cred.UpdatedAt.Local().Format(time.RFC3339))

	if opts.copy {
		return a.copyToClipboard(cmd, cred.Password, opts.ttl)
	}
	return nil
}

// totpFor returns the decrypted TOTP secret linked to credentialID, if any.
func (a *app) totpFor(ctx context.Context, credentialID string) (*domain.TOTPSecret, error) {
	secrets, err := a.vault.store.ListTOTPSecrets(ctx, a.cfg.Owner)
	if err != nil {
		return nil, fmt.Errorf("failed to list TOTP secrets: %w", err)
	}
	for _, s := range secrets {
		if s.CredentialID != credentialID {
			continue
		}
		plain, err := a.vault.sess.OpenTOTP(s)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt TOTP secret: %w", err)
		}
		return plain, nil
	}
	return nil, nil
}

// copyToClipboard copies secret and blocks until the clipboard is cleared.
func (a *app) copyToClipboard(cmd *cobra.Command, secret string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = a.cfg.ClipboardTTL
	}
	if !a.board.IsAvailable() {
		return fmt.Errorf("clipboard is not available, use --show instead")
	}

	cleared, err := a.board.CopyWithTimeout(cmd.Context(), secret, ttl)
	if err != nil {
		return err
	}
	_ = success(cmd.OutOrStdout(), "Password copied to clipboard, clearing in %s", ttl)
	<-cleared
	return nil
}
