package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func (a *app) newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show vault status",
		Long: `Show the vault location, the enrolled verification methods and how many
items the vault holds. No verification is needed.

Example:
  credvault status`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runStatus(cmd)
		},
	}
}

func (a *app) runStatus(cmd *cobra.Command) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if err := a.openVault(); err != nil {
		return err
	}
	defer a.closeVault()

	owner := a.cfg.Owner
	methods, err := a.vault.keychain.Methods(ctx, owner)
	if err != nil {
		return fmt.Errorf("failed to load verification methods: %w", err)
	}
	creds, err := a.vault.store.ListCredentials(ctx, owner, nil)
	if err != nil {
		return fmt.Errorf("failed to list credentials: %w", err)
	}
	folders, err := a.vault.store.ListFolders(ctx, owner)
	if err != nil {
		return fmt.Errorf("failed to list folders: %w", err)
	}
	secrets, err := a.vault.store.ListTOTPSecrets(ctx, owner)
	if err != nil {
		return fmt.Errorf("failed to list TOTP secrets: %w", err)
	}

	_ = writeOutput(out, "Vault:       %s\n", a.cfg.VaultPath)
	if info, err := os.Stat(a.cfg.VaultPath); err == nil {
		_ = writeOutput(out, "Size:        %d bytes\n", info.Size())
	}
	_ = writeOutput(out, "Owner:       %s\n", owner)
	_ = writeOutput(out, "Credentials: %d\n", len(creds))
	_ = writeOutput(out, "Folders:     %d\n", len(folders))
	_ = writeOutput(out, "TOTP:        %d\n", len(secrets))
	_ = writeOutput(out, "Verification:\n")
	_ = writeOutput(out, "  password   %s\n", enabled(methods.Password))
	_ = writeOutput(out, "  pin        %s\n", enabled(methods.PIN))
	_ = writeOutput(out, "  passkey    %s\n", enabled(methods.Passkey))
	_ = writeOutput(out, "Sudo window: %s\n", a.cfg.Security.SudoWindow)
	return nil
}

func enabled(on bool) string {
	if on {
		return okMark + " enabled"
	}
	return "-"
}
