package importer

import (
	"encoding/json"
	"strings"

	"github.com/vault-cli/credvault/internal/backup"
)

// selfAdapter reads this application's own backup format: a Document, a
// bare array of credentials, or a single credential object.
type selfAdapter struct{}

func (selfAdapter) Parse(raw string) ([]Record, []Diagnostic) {
	data := []byte(strings.TrimPrefix(raw, utf8BOM))

	switch firstByte(raw) {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, []Diagnostic{jsonDiag(FileLevel, "invalid JSON", err)}
		}
		return decodeSelfItems(items, nil, nil)
	case '{':
		var top map[string]json.RawMessage
		if err := json.Unmarshal(data, &top); err != nil {
			return nil, []Diagnostic{jsonDiag(FileLevel, "invalid JSON", err)}
		}
		if _, ok := top["credentials"]; !ok {
			return decodeSelfItems([]json.RawMessage{data}, nil, nil)
		}
		return parseSelfDocument(top)
	}
	return nil, fileDiag("not a backup file: expected a JSON object or array")
}

func parseSelfDocument(top map[string]json.RawMessage) ([]Record, []Diagnostic) {
	var doc backup.Document
	if raw, ok := top["folders"]; ok {
		if err := json.Unmarshal(raw, &doc.Folders); err != nil {
			return nil, []Diagnostic{jsonDiag(FileLevel, "invalid folders section", err)}
		}
	}
	if raw, ok := top["totpSecrets"]; ok {
		if err := json.Unmarshal(raw, &doc.TOTPSecrets); err != nil {
			return nil, []Diagnostic{jsonDiag(FileLevel, "invalid totpSecrets section", err)}
		}
	}
	var items []json.RawMessage
	if err := json.Unmarshal(top["credentials"], &items); err != nil {
		return nil, []Diagnostic{jsonDiag(FileLevel, "invalid credentials section", err)}
	}

	totp := make(map[string]backup.TOTPSecret, len(doc.TOTPSecrets))
	for _, s := range doc.TOTPSecrets {
		if _, dup := totp[s.CredentialID]; !dup && s.Secret != "" {
			totp[s.CredentialID] = s
		}
	}
	return decodeSelfItems(items, doc.FolderPaths(), totp)
}

func decodeSelfItems(items []json.RawMessage, folders map[string]string, totp map[string]backup.TOTPSecret) ([]Record, []Diagnostic) {
	var (
		records []Record
		diags   []Diagnostic
	)
	for i, item := range items {
		var c backup.Credential
		if err := json.Unmarshal(item, &c); err != nil {
			diags = append(diags, jsonDiag(i, "invalid credential", err))
			continue
		}
		if strings.TrimSpace(c.Name) == "" {
			diags = append(diags, Diagnostic{Index: i, Message: "credential has no name"})
			continue
		}

		rec := Record{
			Name:         strings.TrimSpace(c.Name),
			Username:     c.Username,
			Password:     c.Password,
			URL:          c.URL,
			Notes:        c.Notes,
			Tags:         c.Tags,
			CustomFields: c.CustomFields,
			Folder:       c.Folder,
			TOTP:         c.TOTP,
			CreatedAt:    c.CreatedAt,
			UpdatedAt:    c.UpdatedAt,
		}
		if path, ok := folders[c.FolderID]; ok && c.FolderID != "" {
			rec.Folder = path
		}
		if seed, ok := totp[c.ID]; ok && rec.TOTP == "" && c.ID != "" {
			rec.TOTP, rec.TOTPIssuer, rec.TOTPAccount = seed.Secret, seed.Issuer, seed.Account
		}
		records = append(records, rec)
	}
	return records, diags
}
