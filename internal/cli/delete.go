package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vault-cli/credvault/internal/util"
)

func (a *app) newDeleteCommand() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:     "delete <name|id>",
		Aliases: []string{"rm"},
		Short:   "Delete a credential",
		Long: `Delete a credential and its TOTP secret. Requires verification.

Example:
  credvault delete github
  credvault delete 3f2a9c1e --yes`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runDelete(cmd, args[0], yes)
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func (a *app) runDelete(cmd *cobra.Command, query string, yes bool) error {
	ctx := cmd.Context()

	if err := a.openVault(); err != nil {
		return err
	}
	defer a.closeVault()

	cred, err := a.findCredential(ctx, query)
	if err != nil {
		return err
	}

	if !yes {
		ok, err := promptConfirm(a.prompt, fmt.Sprintf("Delete %s (%s)?", cred.Name, cred.ID), false)
		if err != nil {
			return err
		}
		if !ok {
			return util.ErrCancelled
		}
	}

	if err := a.verify(ctx, cmd.ErrOrStderr()); err != nil {
		return err
	}

	if err := a.vault.store.DeleteCredential(ctx, a.cfg.Owner, cred.ID); err != nil {
		a.audit(ctx, "delete", "id="+cred.ID, false)
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	a.audit(ctx, "delete", "id="+cred.ID, true)

	return success(cmd.OutOrStdout(), "Deleted %s", cred.Name)
}
