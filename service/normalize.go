package service

import (
	"regexp"
	"strings"
)

var (
	copyTokenRe     = regexp.MustCompile(`(?i)\(copy\)`)
	versionSuffixRe = regexp.MustCompile(`(?i)[\s]*(94%|v94)\s*$`)
	whitespaceRe    = regexp.MustCompile(`\s+`)
	symbolReplacer  = strings.NewReplacer("™", "", "®", "", "©", "")
)

// stripVersionSuffix removes trailing version tokens until none remain,
// so stacked suffixes like "v94 94%" come off in one normalization pass
// and the result cannot shrink further on a second pass.
func stripVersionSuffix(s string) string {
	for {
		t := versionSuffixRe.ReplaceAllString(s, "")
		if t == s {
			return s
		}
		s = t
	}
}

// NormalizeGameName canonicalizes a free-text game name into the lookup
// key used to join extraction results against the provider table. The
// function is pure and idempotent; it must be applied identically on
// both sides of the join or lookups silently miss.
func NormalizeGameName(name string) string {
	if name == "" {
		return ""
	}
	s := strings.TrimSpace(name)
	s = copyTokenRe.ReplaceAllString(s, "")
	s = stripVersionSuffix(s)
	s = strings.ToLower(s)
	s = symbolReplacer.Replace(s)
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// CleanGameName applies the same cleanup without lower-casing, for
// display in reports. Empty input renders as "N/A".
func CleanGameName(name string) string {
	if name == "" {
		return "N/A"
	}
	s := strings.TrimSpace(name)
	s = copyTokenRe.ReplaceAllString(s, "")
	s = stripVersionSuffix(s)
	s = symbolReplacer.Replace(s)
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
