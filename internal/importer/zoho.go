package importer

import (
	"strings"
)

// zohoAdapter reads Zoho Vault CSV exports. Credentials live in the
// SecretData column as "Key:Value" lines.
type zohoAdapter struct{}

func (zohoAdapter) Parse(raw string) ([]Record, []Diagnostic) {
	table, diags := readCSV(raw, "Password Name")
	if table == nil {
		return nil, diags
	}

	var records []Record
	for _, row := range table.rows {
		rec := Record{
			URL:    row.get("Password URL"),
			Notes:  row.raw("Notes"),
			Tags:   splitTags(row.get("Tags")),
			Folder: row.get("Folder Name", "ChamberName"),
			TOTP:   row.get("TOTP", "totp"),
		}

		pairs, rest := parseKeyValueLines(row.raw("SecretData"))
		for _, p := range pairs {
			switch strings.ToLower(p.Label) {
			case "user name", "username", "login":
				if rec.Username == "" {
					rec.Username = p.Value
					continue
				}
			case "password":
				if rec.Password == "" {
					rec.Password = p.Value
					continue
				}
			}
			rec.CustomFields = append(rec.CustomFields, p)
		}
		if len(rest) > 0 {
			rec.Notes = joinNonEmpty("\n", rec.Notes, strings.Join(rest, "\n"))
		}
		if desc := row.get("Password Description"); desc != "" {
			rec.Notes = joinNonEmpty("\n", desc, rec.Notes)
		}

		rec.Name = recordName(row.get("Password Name"), rec.URL, rec.Username)
		if rec.Name == "" {
			diags = append(diags, Diagnostic{Index: row.index, Message: "row has no password name"})
			continue
		}
		records = append(records, rec)
	}
	return records, diags
}

func joinNonEmpty(sep string, parts ...string) string {
	var kept []string
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
