// Package sanitize turns arbitrary strings into safe path segments and
// remote-acceptable display names.
package sanitize

import (
	"regexp"
	"strings"
	"time"
	"unicode"
)

// Fallback is returned by Filename when nothing usable is left.
const Fallback = "unnamed"

var (
	hostileChars    = regexp.MustCompile(`[\\/:*?"<>|]`)
	whitespaceRuns  = regexp.MustCompile(`[\s\p{Z}]+`)
	underscoreRuns  = regexp.MustCompile(`_+`)
	nonDisplayChars = regexp.MustCompile(`[^A-Za-z0-9 ]+`)
)

// Filename makes s usable as a single path segment.
//
// Hostile characters and non-whitespace control characters become "_",
// surrounding whitespace is trimmed, inner whitespace runs become a single
// "_" and "_" runs are collapsed. Segments made only of dots are replaced
// so they can never escape their directory. The result is never empty and
// Filename(Filename(s)) == Filename(s).
func Filename(s string) string {
	s = hostileChars.ReplaceAllString(s, "_")
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return '_'
		}
		return r
	}, s)
	s = strings.TrimSpace(s)
	s = whitespaceRuns.ReplaceAllString(s, "_")
	s = underscoreRuns.ReplaceAllString(s, "_")
	if strings.Trim(s, ".") == "" && s != "" {
		s = "_"
	}
	if s == "" {
		return Fallback
	}
	return s
}

// Display name constraints enforced by the snapshot service.
const (
	DisplayNameMinLen    = 8
	DisplayNameMaxLen    = 32
	DisplayNameFallback  = "GitBackup"
	displayNameTimestamp = "20060102 150405"
)

// DisplayName builds a job display name from base and now.
//
// Everything except ASCII letters, digits and spaces is dropped, whitespace
// is collapsed and a " YYYYMMDD HHMMSS" UTC suffix is appended. The base is
// truncated so the result fits DisplayNameMaxLen; a base that is empty or
// would leave the result shorter than DisplayNameMinLen is replaced by
// DisplayNameFallback.
func DisplayName(base string, now time.Time) string {
	suffix := " " + now.UTC().Format(displayNameTimestamp)
	maxBase := DisplayNameMaxLen - len(suffix)

	clean := cleanDisplayBase(base)
	if clean == "" {
		clean = DisplayNameFallback
	}
	if len(clean) > maxBase {
		clean = strings.TrimSpace(clean[:maxBase])
	}

	name := clean + suffix
	if len(name) < DisplayNameMinLen {
		name = DisplayNameFallback + suffix
	}
	return name
}

func cleanDisplayBase(base string) string {
	s := nonDisplayChars.ReplaceAllString(base, " ")
	return strings.Join(strings.Fields(s), " ")
}
