package importer

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/vault-cli/credvault/internal/domain"
)

// genericJSONAdapter reads an array of loosely named objects, as produced by
// many small password managers and by hand.
type genericJSONAdapter struct{}

var genericKeys = map[string][]string{
	"name":     {"name", "title", "label"},
	"username": {"username", "user", "login", "email"},
	"password": {"password", "pass", "secret"},
	"url":      {"url", "uri", "website", "site"},
	"notes":    {"notes", "note", "comment", "comments"},
	"folder":   {"folder", "group", "category"},
	"tags":     {"tags", "tag"},
	"totp":     {"totp", "otp", "otpauth"},
	"created":  {"created", "createdat", "created_at", "creationdate"},
	"updated":  {"updated", "updatedat", "updated_at", "modified", "revisiondate"},
}

func (genericJSONAdapter) Parse(raw string) ([]Record, []Diagnostic) {
	data := []byte(strings.TrimPrefix(raw, utf8BOM))

	var items []json.RawMessage
	switch firstByte(raw) {
	case '[':
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, []Diagnostic{jsonDiag(FileLevel, "invalid JSON", err)}
		}
	case '{':
		// Accept {"items": [...]} and similar single-array wrappers.
		var wrapper map[string]json.RawMessage
		if err := json.Unmarshal(data, &wrapper); err != nil {
			return nil, []Diagnostic{jsonDiag(FileLevel, "invalid JSON", err)}
		}
		for _, key := range []string{"items", "entries", "credentials", "passwords", "logins"} {
			if v, ok := wrapper[key]; ok {
				if err := json.Unmarshal(v, &items); err != nil {
					return nil, []Diagnostic{jsonDiag(FileLevel, fmt.Sprintf("invalid %q array", key), err)}
				}
				break
			}
		}
		if items == nil {
			items = []json.RawMessage{data}
		}
	default:
		return nil, fileDiag("not a JSON export: expected an array of objects")
	}

	var (
		records []Record
		diags   []Diagnostic
	)
	for i, item := range items {
		var obj map[string]any
		if err := json.Unmarshal(item, &obj); err != nil {
			diags = append(diags, Diagnostic{Index: i, Message: "item is not an object"})
			continue
		}
		rec, err := genericRecord(obj)
		if err != nil {
			diags = append(diags, Diagnostic{Index: i, Message: err.Error()})
			continue
		}
		records = append(records, rec)
	}
	return records, diags
}

func genericRecord(obj map[string]any) (Record, error) {
	fields := make(map[string]any, len(obj))
	for k, v := range obj {
		fields[strings.ToLower(strings.TrimSpace(k))] = v
	}

	used := make(map[string]bool)
	lookup := func(concept string) string {
		for _, key := range genericKeys[concept] {
			v, ok := fields[key]
			if !ok {
				continue
			}
			used[key] = true
			if s := scalarString(v); s != "" {
				return s
			}
		}
		return ""
	}

	rec := Record{
		Username:  lookup("username"),
		Password:  lookup("password"),
		URL:       lookup("url"),
		Notes:     lookup("notes"),
		Folder:    lookup("folder"),
		TOTP:      lookup("totp"),
		CreatedAt: parseTime(lookup("created")),
		UpdatedAt: parseTime(lookup("updated")),
	}
	rec.Name = recordName(lookup("name"), rec.URL, rec.Username)

	for _, key := range genericKeys["tags"] {
		v, ok := fields[key]
		if !ok {
			continue
		}
		used[key] = true
		switch t := v.(type) {
		case []any:
			for _, tag := range t {
				if s := strings.TrimSpace(scalarString(tag)); s != "" {
					rec.Tags = append(rec.Tags, s)
				}
			}
		default:
			rec.Tags = append(rec.Tags, splitTags(scalarString(t))...)
		}
	}

	if rec.Name == "" {
		return Record{}, fmt.Errorf("item has no name, url or username")
	}

	// Remaining scalar keys are kept as custom fields in a stable order.
	var extra []string
	for k, v := range fields {
		if used[k] || isKnownKey(k) || scalarString(v) == "" {
			continue
		}
		extra = append(extra, k)
	}
	sort.Strings(extra)
	for _, k := range extra {
		rec.CustomFields = append(rec.CustomFields, domain.CustomField{Label: k, Value: scalarString(fields[k])})
	}
	return rec, nil
}

func isKnownKey(k string) bool {
	for _, keys := range genericKeys {
		for _, key := range keys {
			if k == key {
				return true
			}
		}
	}
	return k == "id"
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return fmt.Sprintf("%v", t)
	case bool:
		return fmt.Sprintf("%t", t)
	}
	return ""
}
