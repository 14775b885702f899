package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vault-cli/credvault/internal/domain"
	"github.com/vault-cli/credvault/internal/importer"
	"github.com/vault-cli/credvault/internal/passgen"
	"github.com/vault-cli/credvault/internal/store"
	"github.com/vault-cli/credvault/internal/util"
)

type addOptions struct {
	username string
	url      string
	notes    string
	folder   string
	tags     []string
	totp     bool
	generate bool
	length   int
	charset  string
	force    bool
}

func (a *app) newAddCommand() *cobra.Command {
	opts := &addOptions{}

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a credential",
		Long: `Add a new credential to the vault.

The password is prompted for without echo, or generated with --generate.
Adding a credential that matches an existing one by name, username and URL
is refused unless --force is given.

Example:
  credvault add github --username alice --url https://github.com
  credvault add "Work mail" --folder Work/Email --tags work,mail
  credvault add aws --generate --length 32 --charset symbols --totp`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runAdd(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.username, "username", "u", "", "username")
	cmd.Flags().StringVar(&opts.url, "url", "", "URL")
	cmd.Flags().StringVar(&opts.notes, "notes", "", "notes")
	cmd.Flags().StringVar(&opts.folder, "folder", "", "folder path, created when missing (e.g. Work/Email)")
	cmd.Flags().StringSliceVar(&opts.tags, "tags", nil, "comma-separated tags")
	cmd.Flags().BoolVar(&opts.totp, "totp", false, "prompt for a TOTP secret")
	cmd.Flags().BoolVarP(&opts.generate, "generate", "g", false, "generate a random password")
	cmd.Flags().IntVar(&opts.length, "length", passgen.DefaultLength, "generated password length")
	cmd.Flags().StringVar(&opts.charset, "charset", string(passgen.CharsetSymbols), "generated password charset (alpha, alnum, symbols)")
	cmd.Flags().BoolVar(&opts.force, "force", false, "add even if a matching credential exists")

	return cmd
}

func (a *app) runAdd(cmd *cobra.Command, name string, opts *addOptions) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name is required", util.ErrInvalidInput)
	}

	password, err := a.newPassword(opts)
	if err != nil {
		return err
	}

	var seed string
	if opts.totp {
		seed, err = a.prompt.Secret("TOTP secret: ")
		if err != nil {
			return err
		}
		seed = strings.ReplaceAll(strings.TrimSpace(seed), " ", "")
	}

	if err := a.openVault(); err != nil {
		return err
	}
	defer a.closeVault()

	if err := a.verify(ctx, cmd.ErrOrStderr()); err != nil {
		return err
	}

	if !opts.force {
		existing, err := a.vault.store.ListCredentials(ctx, a.cfg.Owner, nil)
		if err != nil {
			return fmt.Errorf("failed to list credentials: %w", err)
		}
		want := importer.Fingerprint(name, opts.username, opts.url)
		for _, c := range existing {
			if importer.Fingerprint(c.Name, c.Username, c.URL) == want {
				return fmt.Errorf("credential %q (%s): %w, use --force to add it anyway", c.Name, c.ID, store.ErrExists)
			}
		}
	}

	folderID, err := a.ensureFolder(ctx, opts.folder)
	if err != nil {
		return err
	}

	sealed, err := a.vault.sess.SealCredential(&domain.Credential{
		OwnerID:  a.cfg.Owner,
		Name:     name,
		Username: opts.username,
		Password: password,
		URL:      opts.url,
		Notes:    opts.notes,
		Tags:     opts.tags,
		FolderID: folderID,
	})
	if err != nil {
		return fmt.Errorf("failed to encrypt credential: %w", err)
	}

	cred, err := a.vault.store.CreateCredential(ctx, sealed)
	if err != nil {
		a.audit(ctx, "add", "name="+name, false)
		return fmt.Errorf("failed to save credential: %w", err)
	}

	if seed != "" {
		secret, err := a.vault.sess.SealTOTP(&domain.TOTPSecret{
			OwnerID:      a.cfg.Owner,
			CredentialID: cred.ID,
			Secret:       seed,
			Issuer:       name,
			Account:      opts.username,
		})
		if err == nil {
			_, err = a.vault.store.CreateTOTPSecret(ctx, secret)
		}
		if err != nil {
			return fmt.Errorf("credential saved but its TOTP secret was not: %w", err)
		}
	}

	a.audit(ctx, "add", "id="+cred.ID, true)
	_ = success(out, "Added %s (%s)", cred.Name, cred.ID)
	if opts.generate {
		_ = writeOutput(out, "Generated a %d-character password. Reveal it with 'credvault get %s --show'.\n", len(password), cred.ID)
	}
	return nil
}

func (a *app) newPassword(opts *addOptions) (string, error) {
	if opts.generate {
		charset, err := passgen.ParseCharset(opts.charset)
		if err != nil {
			return "", fmt.Errorf("%w: %v", util.ErrInvalidInput, err)
		}
		password, err := a.gen.Password(opts.length, charset)
		if err != nil {
			return "", fmt.Errorf("%w: %v", util.ErrInvalidInput, err)
		}
		return password, nil
	}

	password, err := promptSecretConfirm(a.prompt, "Password: ", "Confirm password: ")
	if err != nil {
		return "", err
	}
	if password == "" {
		return "", fmt.Errorf("%w: password cannot be empty", util.ErrInvalidInput)
	}
	return password, nil
}
