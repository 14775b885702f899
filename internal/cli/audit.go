package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vault-cli/credvault/internal/util"
)

func (a *app) newAuditCommand() *cobra.Command {
	var (
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show the audit log",
		Long: `Show the audit log of operations on the vault, newest last.

Example:
  credvault audit
  credvault audit --limit 20
  credvault audit --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 0 {
				return fmt.Errorf("%w: --limit must not be negative", util.ErrInvalidInput)
			}
			return a.runAudit(cmd, limit, asJSON)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "show at most this many entries (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output in JSON format")
	return cmd
}

func (a *app) runAudit(cmd *cobra.Command, limit int, asJSON bool) error {
	out := cmd.OutOrStdout()

	if err := a.openVault(); err != nil {
		return err
	}
	defer a.closeVault()

	ops, err := a.vault.store.GetAuditLog(cmd.Context(), a.cfg.Owner)
	if err != nil {
		return fmt.Errorf("failed to read audit log: %w", err)
	}
	if limit > 0 && len(ops) > limit {
		ops = ops[len(ops)-limit:]
	}

	if asJSON {
		return writeJSON(out, ops)
	}
	if len(ops) == 0 {
		return writeString(out, "No audit entries.\n")
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tOPERATION\tRESULT\tDETAIL")
	for _, op := range ops {
		result := okMark
		if !op.Success {
			result = failMark
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", op.Timestamp.Local().Format(time.DateTime), op.Type, result, op.Detail)
	}
	return tw.Flush()
}
