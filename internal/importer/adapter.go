// Package importer turns password manager exports into encrypted vault
// credentials.
//
// An Adapter parses one vendor format into intermediate Records plus
// Diagnostics; a Pipeline deduplicates the records against the live vault,
// resolves folders, encrypts secret fields and persists them in batches.
package importer

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/vault-cli/credvault/internal/domain"
)

// Vendor identifies an export format.
type Vendor string

const (
	VendorSelf      Vendor = "self"
	VendorBitwarden Vendor = "bitwarden"
	VendorZoho      Vendor = "zoho"
	VendorProton    Vendor = "proton"
	VendorJSON      Vendor = "json"
)

// Vendors lists every supported vendor.
var Vendors = []Vendor{VendorSelf, VendorBitwarden, VendorZoho, VendorProton, VendorJSON}

// ParseVendor resolves a vendor name case-insensitively.
func ParseVendor(name string) (Vendor, error) {
	v := Vendor(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Vendors {
		if v == known {
			return v, nil
		}
	}
	return "", fmt.Errorf("unsupported import format %q", name)
}

// Record is an adapter's un-encrypted, vendor-neutral view of one item.
type Record struct {
	Name         string
	Username     string
	Password     string
	URL          string
	Notes        string
	Tags         []string
	CustomFields []domain.CustomField
	// Folder is a slash-separated folder path; empty means no folder.
	Folder string
	// TOTP is the raw seed or otpauth:// URI.
	TOTP        string
	TOTPIssuer  string
	TOTPAccount string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	// Unsupported marks items the vault cannot represent, such as cards or
	// identities. They are counted as skipped.
	Unsupported bool
}

// FileLevel is the Diagnostic index for problems that concern the whole file.
const FileLevel = -1

// utf8BOM is stripped from the start of every export; spreadsheet tools add it.
const utf8BOM = "\uFEFF"

// Diagnostic describes one parse problem.
type Diagnostic struct {
	// Index is the zero-based item or data-row index, or FileLevel.
	Index   int
	Message string
	// Cause is the underlying decoding error, for the debug log only.
	Cause error
}

func (d Diagnostic) String() string {
	if d.Index == FileLevel {
		return d.Message
	}
	return fmt.Sprintf("record %d: %s", d.Index+1, d.Message)
}

// Adapter parses one export format. Parse never panics and never fails:
// problems are reported as diagnostics and parsing continues.
type Adapter interface {
	Parse(raw string) ([]Record, []Diagnostic)
}

// AdapterFor returns the adapter for v. Unknown vendors get an adapter that
// reports a single file-level diagnostic.
func AdapterFor(v Vendor) Adapter {
	switch v {
	case VendorSelf:
		return selfAdapter{}
	case VendorBitwarden:
		return bitwardenAdapter{}
	case VendorZoho:
		return zohoAdapter{}
	case VendorProton:
		return protonAdapter{}
	case VendorJSON:
		return genericJSONAdapter{}
	}
	return unsupportedAdapter{vendor: v}
}

type unsupportedAdapter struct {
	vendor Vendor
}

func (a unsupportedAdapter) Parse(string) ([]Record, []Diagnostic) {
	return nil, []Diagnostic{{Index: FileLevel, Message: fmt.Sprintf("import format %q is not supported", a.vendor)}}
}

func fileDiag(format string, args ...any) []Diagnostic {
	return []Diagnostic{{Index: FileLevel, Message: fmt.Sprintf(format, args...)}}
}

// jsonDiag reports a JSON decoding failure at index under a readable message.
func jsonDiag(index int, what string, err error) Diagnostic {
	return Diagnostic{Index: index, Message: what + ": " + describeJSON(err), Cause: err}
}

// describeJSON turns a decoding error into a message fit for the import
// report. encoding/json errors name Go types, which mean nothing to users.
func describeJSON(err error) string {
	var (
		typeErr   *json.UnmarshalTypeError
		syntaxErr *json.SyntaxError
	)
	switch {
	case errors.As(err, &typeErr) && typeErr.Field != "":
		return fmt.Sprintf("field %q has the wrong type (got %s)", typeErr.Field, typeErr.Value)
	case errors.As(err, &typeErr):
		return fmt.Sprintf("expected a different value (got %s)", typeErr.Value)
	case errors.As(err, &syntaxErr):
		return fmt.Sprintf("malformed JSON at byte %d", syntaxErr.Offset)
	case errors.Is(err, io.ErrUnexpectedEOF):
		return "JSON ends unexpectedly"
	}
	return "malformed JSON"
}

// firstByte returns the first non-space byte of raw, skipping a UTF-8 BOM.
func firstByte(raw string) byte {
	s := strings.TrimLeft(strings.TrimPrefix(raw, utf8BOM), " \t\r\n")
	if s == "" {
		return 0
	}
	return s[0]
}

func splitTags(s string) []string {
	var tags []string
	for _, t := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' }) {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// parseKeyValueLines reads "Key: value" lines. Lines without a colon are
// returned in rest.
func parseKeyValueLines(s string) (pairs []domain.CustomField, rest []string) {
	for _, line := range strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		label, value, ok := strings.Cut(line, ":")
		if !ok || strings.TrimSpace(label) == "" {
			rest = append(rest, line)
			continue
		}
		pairs = append(pairs, domain.CustomField{Label: strings.TrimSpace(label), Value: strings.TrimSpace(value)})
	}
	return pairs, rest
}

func parseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	var secs int64
	if _, err := fmt.Sscanf(s, "%d", &secs); err == nil && secs > 0 {
		if secs > 1e12 {
			return time.UnixMilli(secs).UTC()
		}
		return time.Unix(secs, 0).UTC()
	}
	return time.Time{}
}

// recordName picks a display name, falling back to the URL host or username.
func recordName(name, rawURL, username string) string {
	if n := strings.TrimSpace(name); n != "" {
		return n
	}
	if u := strings.TrimSpace(rawURL); u != "" {
		host := u
		if i := strings.Index(host, "://"); i >= 0 {
			host = host[i+3:]
		}
		if i := strings.IndexAny(host, "/?#"); i >= 0 {
			host = host[:i]
		}
		if host != "" {
			return host
		}
	}
	return strings.TrimSpace(username)
}
