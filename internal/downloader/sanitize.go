package downloader

import (
	"strings"
	"unicode"
)

// DefaultMaxFilenameLen caps the sanitized title length in runes.
const DefaultMaxFilenameLen = 120

const fallbackFilename = "download"

// SanitizeFilename removes characters that are invalid in file names on
// common filesystems, collapses whitespace runs and truncates to maxLen
// runes. An empty result becomes "download".
func SanitizeFilename(title string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultMaxFilenameLen
	}

	var b strings.Builder
	b.Grow(len(title))
	space := false
	for _, r := range title {
		switch {
		case strings.ContainsRune(`<>:"/\|?*`, r), r < 0x20:
			continue
		case unicode.IsSpace(r):
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}

	out := []rune(b.String())
	if len(out) > maxLen {
		out = out[:maxLen]
	}
	name := strings.TrimSpace(string(out))
	if name == "" {
		return fallbackFilename
	}
	return name
}
