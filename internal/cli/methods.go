package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vault-cli/credvault/internal/domain"
	"github.com/vault-cli/credvault/internal/util"
	"github.com/vault-cli/credvault/internal/vault"
)

func (a *app) newPINCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pin",
		Short: "Manage the verification PIN",
		Long: `Manage the 4-digit PIN. When set, the PIN is offered first whenever a
sensitive action needs verification. After too many wrong PINs the passkey
or master password is asked for instead.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set",
		Short: "Set or replace the PIN",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runPINSet(cmd)
		},
	}, &cobra.Command{
		Use:   "clear",
		Short: "Remove the PIN",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runRemoveMethod(cmd, domain.KeychainPIN)
		},
	})
	return cmd
}

func (a *app) newPasskeyCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "passkey",
		Short: "Manage the passkey",
		Long: `Manage the passkey. The passkey is a random key file, for example on a
removable drive, configured with passkey_key_file. Presenting it verifies
you without typing a secret.`,
	}

	enroll := &cobra.Command{
		Use:   "enroll",
		Short: "Create a key file and enroll it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runPasskeyEnroll(cmd, force)
		},
	}
	enroll.Flags().BoolVar(&force, "force", false, "overwrite an existing key file")

	cmd.AddCommand(enroll, &cobra.Command{
		Use:   "remove",
		Short: "Remove the passkey",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runRemoveMethod(cmd, domain.KeychainPasskey)
		},
	})
	return cmd
}

func (a *app) runPINSet(cmd *cobra.Command) error {
	ctx := cmd.Context()

	if err := a.openVault(); err != nil {
		return err
	}
	defer a.closeVault()

	if err := a.verify(ctx, cmd.ErrOrStderr()); err != nil {
		return err
	}

	pin, err := promptSecretConfirm(a.prompt, "New PIN (4 digits): ", "Confirm PIN: ")
	if err != nil {
		return err
	}
	if err := vault.ValidatePIN(pin); err != nil {
		return err
	}

	err = a.vault.sess.WithKey(func(key []byte) error {
		return a.vault.keychain.EnrollPIN(ctx, a.cfg.Owner, key, pin)
	})
	a.audit(ctx, "pin_set", "", err == nil)
	if err != nil {
		return fmt.Errorf("failed to enroll PIN: %w", err)
	}
	return success(cmd.OutOrStdout(), "PIN set")
}

func (a *app) runPasskeyEnroll(cmd *cobra.Command, force bool) error {
	ctx := cmd.Context()
	path := a.cfg.KeyFile

	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%w: key file %s already exists (use --force to replace it)", util.ErrInvalidInput, path)
	}

	if err := a.openVault(); err != nil {
		return err
	}
	defer a.closeVault()

	if err := a.verify(ctx, cmd.ErrOrStderr()); err != nil {
		return err
	}

	credentialID, err := vault.CreateKeyFile(path)
	if err != nil {
		return err
	}

	err = a.vault.sess.WithKey(func(key []byte) error {
		return a.vault.keychain.EnrollPasskey(ctx, a.cfg.Owner, key, credentialID)
	})
	a.audit(ctx, "passkey_enroll", "credential="+credentialID, err == nil)
	if err != nil {
		return fmt.Errorf("failed to enroll passkey: %w", err)
	}

	out := cmd.OutOrStdout()
	_ = success(out, "Passkey %s enrolled", credentialID)
	return writeOutput(out, "Key file: %s\nKeep it safe; anyone holding it can verify as you.\n", path)
}

func (a *app) runRemoveMethod(cmd *cobra.Command, kind domain.KeychainType) error {
	ctx := cmd.Context()

	if err := a.openVault(); err != nil {
		return err
	}
	defer a.closeVault()

	if err := a.verify(ctx, cmd.ErrOrStderr()); err != nil {
		return err
	}

	err := a.vault.keychain.Remove(ctx, a.cfg.Owner, kind)
	a.audit(ctx, string(kind)+"_remove", "", err == nil)
	if err != nil {
		return fmt.Errorf("failed to remove %s: %w", kind, err)
	}
	return success(cmd.OutOrStdout(), "Removed %s", kind)
}
