package shibauth

import (
	"net/http"
	"sort"
	"strings"
)

// AttributeRule maps one provider header onto a local user field.
type AttributeRule struct {
	// Header is the provider attribute header name, e.g. "X-Shib-Mail".
	Header string `mapstructure:"header" yaml:"header"`

	// Required marks attributes the provider must always assert. A missing
	// or empty required attribute makes the whole parse erroneous and blocks
	// authentication for the request.
	Required bool `mapstructure:"required" yaml:"required"`

	// Field is the local user field the value lands in: "username", "email",
	// "first_name", "last_name", or any custom name (stored per user).
	Field string `mapstructure:"field" yaml:"field"`
}

// AttributeMap is the configured translation table from provider headers to
// local user fields.
type AttributeMap []AttributeRule

// DefaultAttributeMap mirrors the attribute table Shibboleth deployments
// commonly export: uid plus the standard person schema attributes.
func DefaultAttributeMap() AttributeMap {
	return AttributeMap{
		{Header: "Uid", Required: true, Field: "username"},
		{Header: "Mail", Required: false, Field: "email"},
		{Header: "Givenname", Required: false, Field: "first_name"},
		{Header: "Sn", Required: false, Field: "last_name"},
	}
}

// DuplicateFields returns local field names targeted by more than one rule.
// Duplicates are legal (last rule wins at parse time) but almost always a
// configuration mistake, so config validation surfaces them as warnings.
func (m AttributeMap) DuplicateFields() []string {
	seen := make(map[string]int, len(m))
	for _, rule := range m {
		seen[rule.Field]++
	}
	var dups []string
	for field, n := range seen {
		if n > 1 {
			dups = append(dups, field)
		}
	}
	sort.Strings(dups)
	return dups
}

// ParseAttributes translates request headers into normalized user fields.
//
// A field is set only when its header is present with a non-empty value;
// absence is represented by omission, never by an empty string. The returned
// bool reports whether any required attribute was missing or empty. When two
// rules target the same field the later rule wins.
func ParseAttributes(header http.Header, m AttributeMap) (map[string]string, bool) {
	attrs := make(map[string]string, len(m))
	hadError := false
	for _, rule := range m {
		value := header.Get(rule.Header)
		if value == "" {
			delete(attrs, rule.Field)
			if rule.Required {
				hadError = true
			}
			continue
		}
		attrs[rule.Field] = value
	}
	return attrs, hadError
}

// ParseGroupAttributes derives the target group-name set from the configured
// multi-valued attribute headers. Each header value is split on ";", empty
// segments are dropped, and the results are unioned with duplicates
// collapsed. The returned order is sorted for determinism.
func ParseGroupAttributes(header http.Header, attributes []string) []string {
	set := make(map[string]struct{})
	for _, attr := range attributes {
		for _, name := range strings.Split(header.Get(attr), ";") {
			if name == "" {
				continue
			}
			set[name] = struct{}{}
		}
	}
	groups := make([]string, 0, len(set))
	for name := range set {
		groups = append(groups, name)
	}
	sort.Strings(groups)
	return groups
}
