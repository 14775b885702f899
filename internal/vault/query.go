package vault

import (
	"strings"
	"unicode"

	"github.com/vault-cli/credvault/internal/domain"
)

// ParseSearchTokens splits the raw search string into lower-cased tokens.
// Tokens are delimited by '+' or any whitespace character.
func ParseSearchTokens(raw string) []string {
	fields := strings.FieldsFunc(strings.TrimSpace(raw), func(r rune) bool {
		return unicode.IsSpace(r) || r == '+'
	})

	var tokens []string
	for _, field := range fields {
		if token := strings.ToLower(strings.TrimSpace(field)); token != "" {
			tokens = append(tokens, token)
		}
	}
	return tokens
}

// MatchesFilter reports whether the credential passes every filter criterion.
// A nil filter matches everything.
func MatchesFilter(cred *domain.Credential, filter *domain.Filter) bool {
	if filter == nil || cred == nil {
		return cred != nil
	}
	if filter.FolderID != "" && cred.FolderID != filter.FolderID {
		return false
	}
	for _, want := range filter.Tags {
		if !hasTag(cred.Tags, want) {
			return false
		}
	}
	return MatchesSearchTokens(cred, filter.SearchTokens)
}

// MatchesSearchTokens reports whether the credential satisfies all search tokens.
// Each token must be contained in at least one of name, username, url, or tags.
// Only plaintext-at-rest fields are searched.
func MatchesSearchTokens(cred *domain.Credential, tokens []string) bool {
	if len(tokens) == 0 || cred == nil {
		return true
	}

	haystack := []string{
		strings.ToLower(cred.Name),
		strings.ToLower(cred.Username),
		strings.ToLower(cred.URL),
	}
	for _, tag := range cred.Tags {
		haystack = append(haystack, strings.ToLower(tag))
	}

	for _, token := range tokens {
		token = strings.ToLower(token)
		if token == "" {
			continue
		}
		if !containsAny(haystack, token) {
			return false
		}
	}
	return true
}

func containsAny(fields []string, token string) bool {
	for _, f := range fields {
		if strings.Contains(f, token) {
			return true
		}
	}
	return false
}

func hasTag(tags []string, want string) bool {
	for _, tag := range tags {
		if strings.EqualFold(tag, want) {
			return true
		}
	}
	return false
}
