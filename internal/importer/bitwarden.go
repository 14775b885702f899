package importer

import (
	"encoding/json"
	"strings"

	"github.com/vault-cli/credvault/internal/domain"
)

const bitwardenLogin = 1

type bitwardenExport struct {
	Encrypted bool              `json:"encrypted"`
	Folders   []bitwardenFolder `json:"folders"`
	Items     []json.RawMessage `json:"items"`
}

type bitwardenFolder struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type bitwardenItem struct {
	Type     int    `json:"type"`
	Name     string `json:"name"`
	Notes    string `json:"notes"`
	FolderID string `json:"folderId"`
	Fields   []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	} `json:"fields"`
	Login *struct {
		Username string `json:"username"`
		Password string `json:"password"`
		TOTP     string `json:"totp"`
		URIs     []struct {
			URI string `json:"uri"`
		} `json:"uris"`
	} `json:"login"`
	CreationDate string `json:"creationDate"`
	RevisionDate string `json:"revisionDate"`
}

// bitwardenAdapter reads unencrypted Bitwarden JSON and CSV exports.
type bitwardenAdapter struct{}

func (bitwardenAdapter) Parse(raw string) ([]Record, []Diagnostic) {
	switch firstByte(raw) {
	case 0:
		return nil, fileDiag("file is empty")
	case '{':
		return parseBitwardenJSON(raw)
	}
	return parseBitwardenCSV(raw)
}

func parseBitwardenJSON(raw string) ([]Record, []Diagnostic) {
	var export bitwardenExport
	if err := json.Unmarshal([]byte(strings.TrimPrefix(raw, utf8BOM)), &export); err != nil {
		return nil, []Diagnostic{jsonDiag(FileLevel, "invalid Bitwarden JSON", err)}
	}
	if export.Encrypted {
		return nil, fileDiag("encrypted Bitwarden exports are not supported; export as unencrypted JSON or CSV")
	}

	folders := make(map[string]string, len(export.Folders))
	for _, f := range export.Folders {
		folders[f.ID] = f.Name
	}

	var (
		records []Record
		diags   []Diagnostic
	)
	for i, raw := range export.Items {
		var item bitwardenItem
		if err := json.Unmarshal(raw, &item); err != nil {
			diags = append(diags, jsonDiag(i, "invalid item", err))
			continue
		}
		if item.Type != bitwardenLogin || item.Login == nil {
			records = append(records, Record{Name: item.Name, Unsupported: true})
			continue
		}

		rec := Record{
			Username:  item.Login.Username,
			Password:  item.Login.Password,
			Notes:     item.Notes,
			Folder:    folders[item.FolderID],
			TOTP:      item.Login.TOTP,
			CreatedAt: parseTime(item.CreationDate),
			UpdatedAt: parseTime(item.RevisionDate),
		}
		if len(item.Login.URIs) > 0 {
			rec.URL = item.Login.URIs[0].URI
		}
		for _, f := range item.Fields {
			rec.CustomFields = append(rec.CustomFields, domain.CustomField{Label: f.Name, Value: f.Value})
		}
		rec.Name = recordName(item.Name, rec.URL, rec.Username)
		if rec.Name == "" {
			diags = append(diags, Diagnostic{Index: i, Message: "login item has no name"})
			continue
		}
		records = append(records, rec)
	}
	return records, diags
}

func parseBitwardenCSV(raw string) ([]Record, []Diagnostic) {
	table, diags := readCSV(raw, "name", "login_username", "login_password")
	if table == nil {
		return nil, diags
	}

	var records []Record
	for _, row := range table.rows {
		if kind := strings.ToLower(row.get("type")); kind != "" && kind != "login" {
			records = append(records, Record{Name: row.get("name"), Unsupported: true})
			continue
		}

		rec := Record{
			Username: row.get("login_username"),
			Password: row.raw("login_password"),
			URL:      firstURI(row.get("login_uri")),
			Notes:    row.raw("notes"),
			Folder:   row.get("folder"),
			TOTP:     row.get("login_totp"),
		}
		rec.CustomFields, _ = parseKeyValueLines(row.raw("fields"))
		rec.Name = recordName(row.get("name"), rec.URL, rec.Username)
		if rec.Name == "" {
			diags = append(diags, Diagnostic{Index: row.index, Message: "row has no name"})
			continue
		}
		records = append(records, rec)
	}
	return records, diags
}

func firstURI(s string) string {
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			return part
		}
	}
	return ""
}
