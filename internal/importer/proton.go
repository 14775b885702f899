package importer

import (
	"strings"

	"github.com/vault-cli/credvault/internal/domain"
)

// protonAdapter reads Proton Pass CSV exports. Each Proton vault becomes a
// folder.
type protonAdapter struct{}

func (protonAdapter) Parse(raw string) ([]Record, []Diagnostic) {
	table, diags := readCSV(raw, "name", "password")
	if table == nil {
		return nil, diags
	}

	var records []Record
	for _, row := range table.rows {
		if kind := strings.ToLower(row.get("type")); kind != "" && kind != "login" {
			records = append(records, Record{Name: row.get("name"), Unsupported: true})
			continue
		}

		username, email := row.get("username"), row.get("email")
		rec := Record{
			Username:  username,
			Password:  row.raw("password"),
			URL:       firstURI(row.get("url")),
			Notes:     row.raw("note"),
			Folder:    row.get("vault"),
			TOTP:      row.get("totp"),
			CreatedAt: parseTime(row.get("createTime")),
			UpdatedAt: parseTime(row.get("modifyTime")),
		}
		switch {
		case username == "":
			rec.Username = email
		case email != "" && !strings.EqualFold(email, username):
			rec.CustomFields = append(rec.CustomFields, domain.CustomField{Label: "Email", Value: email})
		}

		rec.Name = recordName(row.get("name"), rec.URL, rec.Username)
		if rec.Name == "" {
			diags = append(diags, Diagnostic{Index: row.index, Message: "row has no name"})
			continue
		}
		records = append(records, rec)
	}
	return records, diags
}
