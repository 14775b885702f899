// Package backup exports an owner's vault as a plaintext or age-encrypted
// document that the self import format reads back losslessly.
package backup

import (
	"time"

	"github.com/vault-cli/credvault/internal/domain"
)

// DocumentVersion is the current backup document version.
const DocumentVersion = 1

// Document is the backup file layout.
type Document struct {
	Version     int          `json:"version"`
	ExportedAt  time.Time    `json:"exportedAt"`
	Folders     []Folder     `json:"folders"`
	Credentials []Credential `json:"credentials"`
	TOTPSecrets []TOTPSecret `json:"totpSecrets"`
}

type Folder struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ParentID string `json:"parentId,omitempty"`
}

// Credential carries plaintext secrets. Folder is an optional
// slash-separated path used when FolderID is absent.
type Credential struct {
	ID           string               `json:"id,omitempty"`
	Name         string               `json:"name"`
	Username     string               `json:"username,omitempty"`
	Password     string               `json:"password,omitempty"`
	URL          string               `json:"url,omitempty"`
	Notes        string               `json:"notes,omitempty"`
	Tags         []string             `json:"tags,omitempty"`
	CustomFields []domain.CustomField `json:"customFields,omitempty"`
	FolderID     string               `json:"folderId,omitempty"`
	Folder       string               `json:"folder,omitempty"`
	TOTP         string               `json:"totp,omitempty"`
	CreatedAt    time.Time            `json:"createdAt,omitempty"`
	UpdatedAt    time.Time            `json:"updatedAt,omitempty"`
}

type TOTPSecret struct {
	CredentialID string `json:"credentialId"`
	Secret       string `json:"secret"`
	Issuer       string `json:"issuer,omitempty"`
	Account      string `json:"account,omitempty"`
}

// FolderPaths resolves every folder ID to its slash-separated path.
// Cycles and dangling parents end the walk at the last known folder.
func (d *Document) FolderPaths() map[string]string {
	byID := make(map[string]Folder, len(d.Folders))
	for _, f := range d.Folders {
		byID[f.ID] = f
	}

	paths := make(map[string]string, len(d.Folders))
	for _, f := range d.Folders {
		path := f.Name
		seen := map[string]bool{f.ID: true}
		for parent, ok := byID[f.ParentID]; ok && !seen[parent.ID]; parent, ok = byID[parent.ParentID] {
			seen[parent.ID] = true
			path = parent.Name + "/" + path
		}
		paths[f.ID] = path
	}
	return paths
}
