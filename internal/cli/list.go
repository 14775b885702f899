package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vault-cli/credvault/internal/domain"
	"github.com/vault-cli/credvault/internal/store"
	"github.com/vault-cli/credvault/internal/vault"
)

type listOptions struct {
	tags   []string
	search string
	folder string
	json   bool
}

// listEntry is the JSON shape of one listed credential. It never carries secrets.
type listEntry struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Username  string    `json:"username,omitempty"`
	URL       string    `json:"url,omitempty"`
	Folder    string    `json:"folder,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (a *app) newListCommand() *cobra.Command {
	opts := &listOptions{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List credentials",
		Long: `List credentials, with optional filtering. Listing shows no secrets and
needs no verification.

The --search flag matches name, username and URL; use '+' to require several
tokens (e.g. 'aws+prod').

Example:
  credvault list
  credvault list --tags work,git
  credvault list --search github
  credvault list --folder Work --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runList(cmd, opts)
		},
	}

	cmd.Flags().StringSliceVar(&opts.tags, "tags", nil, "filter by tags")
	cmd.Flags().StringVar(&opts.search, "search", "", "search in name, username and URL")
	cmd.Flags().StringVar(&opts.folder, "folder", "", "only credentials directly in this folder path")
	cmd.Flags().BoolVar(&opts.json, "json", false, "output in JSON format")
	return cmd
}

func (a *app) runList(cmd *cobra.Command, opts *listOptions) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if err := a.openVault(); err != nil {
		return err
	}
	defer a.closeVault()

	folders, err := a.loadFolders(ctx)
	if err != nil {
		return err
	}

	filter := &domain.Filter{
		Tags:         opts.tags,
		SearchTokens: vault.ParseSearchTokens(opts.search),
	}
	if opts.folder != "" {
		id, ok := folders.byPath[strings.ToLower(strings.Join(splitFolderPath(opts.folder), "/"))]
		if !ok {
			return fmt.Errorf("folder %q: %w", opts.folder, store.ErrNotFound)
		}
		filter.FolderID = id
	}

	creds, err := a.vault.store.ListCredentials(ctx, a.cfg.Owner, filter)
	if err != nil {
		return fmt.Errorf("failed to list credentials: %w", err)
	}

	entries := make([]listEntry, len(creds))
	for i, c := range creds {
		entries[i] = listEntry{
			ID:        c.ID,
			Name:      c.Name,
			Username:  c.Username,
			URL:       c.URL,
			Folder:    folders.byID[c.FolderID],
			Tags:      c.Tags,
			UpdatedAt: c.UpdatedAt,
		}
	}

	if opts.json {
		return writeJSON(out, entries)
	}
	if len(entries) == 0 {
		return writeString(out, "No credentials found.\n")
	}
	return writeTable(out, entries)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

func writeTable(w io.Writer, entries []listEntry) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tUSERNAME\tURL\tFOLDER\tTAGS\tID")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Name, e.Username, e.URL, e.Folder, strings.Join(e.Tags, ","), shortID(e.ID))
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return writeOutput(w, "\n%d credential(s)\n", len(entries))
}

func shortID(id string) string {
	if len(id) > minIDPrefix {
		return id[:minIDPrefix]
	}
	return id
}
