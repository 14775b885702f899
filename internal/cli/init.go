package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vault-cli/credvault/internal/store"
	"github.com/vault-cli/credvault/internal/util"
	"github.com/vault-cli/credvault/internal/vault"
)

// minPasswordLength is the shortest accepted master password.
const minPasswordLength = 8

func (a *app) newInitCommand() *cobra.Command {
	var withPIN bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a new vault",
		Long: `Create a new encrypted vault.

A random vault key is generated and wrapped with your master password using
Argon2id with the parameters from the kdf section of the config file.
Choose a strong master password: it cannot be recovered.

Example:
  credvault init
  credvault init --pin
  credvault init --vault /path/to/vault.db`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runInit(cmd, withPIN)
		},
	}

	cmd.Flags().BoolVar(&withPIN, "pin", false, "also set a 4-digit PIN for quick verification")
	return cmd
}

func (a *app) runInit(cmd *cobra.Command, withPIN bool) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if err := vault.ValidateArgon2Params(a.cfg.Argon2Params()); err != nil {
		return fmt.Errorf("%w: kdf: %v", util.ErrInvalidInput, err)
	}

	_ = writeOutput(out, "Creating a new vault at %s\n", a.cfg.VaultPath)
	password, err := promptSecretConfirm(a.prompt, "Master password: ", "Confirm master password: ")
	if err != nil {
		return err
	}
	if len(password) < minPasswordLength {
		return fmt.Errorf("%w: master password must be at least %d characters", util.ErrInvalidInput, minPasswordLength)
	}

	var pin string
	if withPIN {
		pin, err = promptSecretConfirm(a.prompt, "PIN (4 digits): ", "Confirm PIN: ")
		if err != nil {
			return err
		}
		if err := vault.ValidatePIN(pin); err != nil {
			return err
		}
	}

	bs, err := store.Create(a.cfg.VaultPath, store.DefaultOptions())
	if err != nil {
		return err
	}
	a.attach(bs)

	key, err := a.vault.keychain.Setup(ctx, a.cfg.Owner, password)
	if err != nil {
		return fmt.Errorf("failed to set up keychain: %w", err)
	}
	a.vault.sess.Install(key)

	if withPIN {
		err := a.vault.sess.WithKey(func(key []byte) error {
			return a.vault.keychain.EnrollPIN(ctx, a.cfg.Owner, key, pin)
		})
		if err != nil {
			return fmt.Errorf("failed to enroll PIN: %w", err)
		}
	}

	a.audit(ctx, "init", fmt.Sprintf("pin=%t", withPIN), true)
	a.log.Info().Str("vault", a.cfg.VaultPath).Msg("vault created")

	params := a.cfg.Argon2Params()
	_ = success(out, "Vault created at %s", a.cfg.VaultPath)
	_ = writeOutput(out, "KDF: Argon2id, %d KB memory, %d iterations, parallelism %d\n",
		params.Memory, params.Iterations, params.Parallelism)
	if withPIN {
		_ = success(out, "PIN enabled")
	}
	return nil
}
