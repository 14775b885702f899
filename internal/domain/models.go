// Package domain defines the canonical data shapes shared by the vault,
// the unlock gate and the import pipeline.
package domain

import (
	"time"
)

// Credential represents a login stored in the vault.
//
// Password and Notes hold ciphertext whenever the credential is read from or
// written to a store, and plaintext only after session.OpenCredential.
type Credential struct {
	ID           string        `json:"id"`
	OwnerID      string        `json:"owner_id"`
	Name         string        `json:"name"`
	Username     string        `json:"username"`
	Password     string        `json:"password"`
	URL          string        `json:"url"`
	Notes        string        `json:"notes"`
	Tags         []string      `json:"tags"`
	CustomFields []CustomField `json:"custom_fields,omitempty"`
	FolderID     string        `json:"folder_id,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// CustomField is a free-form label/value pair attached to a credential.
type CustomField struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Clone returns a deep copy of the credential.
func (c *Credential) Clone() *Credential {
	if c == nil {
		return nil
	}
	out := *c
	out.Tags = append([]string(nil), c.Tags...)
	out.CustomFields = append([]CustomField(nil), c.CustomFields...)
	return &out
}

// Folder groups credentials for one owner.
type Folder struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Name      string    `json:"name"`
	ParentID  string    `json:"parent_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// TOTPSecret is a one-time-password seed linked to a credential.
// Secret is ciphertext at rest, like Credential.Password.
type TOTPSecret struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"owner_id"`
	CredentialID string    `json:"credential_id"`
	Secret       string    `json:"secret"`
	Issuer       string    `json:"issuer,omitempty"`
	Account      string    `json:"account,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// KeychainType identifies how a keychain entry unwraps the vault key.
type KeychainType string

const (
	KeychainPassword KeychainType = "password"
	KeychainPIN      KeychainType = "pin"
	KeychainPasskey  KeychainType = "passkey"
)

// KDFParams records the Argon2id parameters used for a keychain entry.
type KDFParams struct {
	Memory      uint32 `json:"memory"`
	Iterations  uint32 `json:"iterations"`
	Parallelism uint8  `json:"parallelism"`
}

// KeychainEntry stores the vault key wrapped under one unlock method.
type KeychainEntry struct {
	ID           string       `json:"id"`
	OwnerID      string       `json:"owner_id"`
	Type         KeychainType `json:"type"`
	Salt         []byte       `json:"salt"`
	KDF          KDFParams    `json:"kdf"`
	WrappedKey   []byte       `json:"wrapped_key"`
	CredentialID string       `json:"credential_id,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}

// Filter represents credential filtering options
type Filter struct {
	FolderID     string   `json:"folder_id"`
	Tags         []string `json:"tags"`
	SearchTokens []string `json:"search_tokens"`
}

// Operation represents an audit log operation
type Operation struct {
	Type      string    `json:"type"`
	OwnerID   string    `json:"owner_id"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Success   bool      `json:"success"`
}
