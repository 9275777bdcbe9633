// Package stale decides which files already on the panel should be removed
// before a new upload.
package stale

import (
	"fmt"
	"paneldeploy/internal/apperrors"
	"path/filepath"
	"regexp"
	"strings"
)

// metaChars are the characters Escape prefixes with a backslash. Beyond the
// classic set ( ) [ ] ^ $ + * ? . it covers the rest of RE2's syntax so every
// escaped name compiles and matches only itself.
const metaChars = `()[]^$+*?.{}|\`

// Pattern returns the staleness expression for a run.
//
// A non-empty override is compiled verbatim. Otherwise the expression is the
// alternation of every artifact's escaped base name. The result is not
// anchored, so a name also matches as a substring of a longer remote name.
func Pattern(override string, artifacts []string) (*regexp.Regexp, error) {
	if override != "" {
		re, err := regexp.Compile(override)
		if err != nil {
			return nil, apperrors.Configuration("oldArtifact", fmt.Sprintf("invalid oldArtifact pattern: %v", err))
		}
		return re, nil
	}

	if len(artifacts) == 0 {
		return nil, apperrors.Configuration("artifact", "cannot derive a staleness pattern without artifacts")
	}

	escaped := make([]string, len(artifacts))
	for i, a := range artifacts {
		escaped[i] = Escape(filepath.Base(a))
	}
	return regexp.MustCompile(strings.Join(escaped, "|")), nil
}

// Escape prefixes every regular expression metacharacter in name with a
// backslash.
func Escape(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if strings.ContainsRune(metaChars, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Filter returns the names matching re, in their original order.
func Filter(re *regexp.Regexp, names []string) []string {
	var matched []string
	for _, name := range names {
		if re.MatchString(name) {
			matched = append(matched, name)
		}
	}
	return matched
}
