package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/vault-cli/credvault/internal/domain"
	"github.com/vault-cli/credvault/internal/store"
	"github.com/vault-cli/credvault/internal/util"
)

// minIDPrefix is the shortest ID prefix accepted in place of a full ID.
const minIDPrefix = 8

// findCredential returns the credential whose ID, ID prefix or name is
// query. Names match case-insensitively; a name or prefix must be unique.
func (a *app) findCredential(ctx context.Context, query string) (*domain.Credential, error) {
	creds, err := a.vault.store.ListCredentials(ctx, a.cfg.Owner, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}

	var matches, prefixed []*domain.Credential
	for _, c := range creds {
		if c.ID == query {
			return c, nil
		}
		if strings.EqualFold(c.Name, query) {
			matches = append(matches, c)
		}
		if len(query) >= minIDPrefix && strings.HasPrefix(c.ID, query) {
			prefixed = append(prefixed, c)
		}
	}
	if len(matches) == 0 {
		matches = prefixed
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("credential %q: %w", query, store.ErrNotFound)
	case 1:
		return matches[0], nil
	}

	ids := make([]string, len(matches))
	for i, c := range matches {
		ids[i] = c.ID
	}
	return nil, fmt.Errorf("%w: %d credentials match %q, use a full ID: %s",
		util.ErrInvalidInput, len(matches), query, strings.Join(ids, ", "))
}

// folderIndex maps folder paths ("Work/Email") to IDs and back.
type folderIndex struct {
	byPath map[string]string
	byID   map[string]string
}

func (a *app) loadFolders(ctx context.Context) (*folderIndex, error) {
	folders, err := a.vault.store.ListFolders(ctx, a.cfg.Owner)
	if err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}

	byID := make(map[string]*domain.Folder, len(folders))
	for _, f := range folders {
		byID[f.ID] = f
	}

	idx := &folderIndex{byPath: map[string]string{}, byID: map[string]string{}}
	for _, f := range folders {
		parts := []string{f.Name}
		seen := map[string]bool{f.ID: true}
		for p := byID[f.ParentID]; p != nil && !seen[p.ID]; p = byID[p.ParentID] {
			seen[p.ID] = true
			parts = append([]string{p.Name}, parts...)
		}
		path := strings.Join(parts, "/")
		idx.byPath[strings.ToLower(path)] = f.ID
		idx.byID[f.ID] = path
	}
	return idx, nil
}

// ensureFolder returns the ID of the folder at path, creating missing
// segments. An empty path is the vault root.
func (a *app) ensureFolder(ctx context.Context, path string) (string, error) {
	segments := splitFolderPath(path)
	if len(segments) == 0 {
		return "", nil
	}

	idx, err := a.loadFolders(ctx)
	if err != nil {
		return "", err
	}

	parentID := ""
	for i := range segments {
		key := strings.ToLower(strings.Join(segments[:i+1], "/"))
		if id, ok := idx.byPath[key]; ok {
			parentID = id
			continue
		}
		f, err := a.vault.store.CreateFolder(ctx, a.cfg.Owner, segments[i], parentID)
		if err != nil {
			return "", fmt.Errorf("failed to create folder %q: %w", segments[i], err)
		}
		idx.byPath[key] = f.ID
		parentID = f.ID
	}
	return parentID, nil
}

func splitFolderPath(path string) []string {
	var out []string
	for _, s := range strings.Split(path, "/") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
