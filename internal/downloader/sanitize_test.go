package downloader

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name  string
		title string
		max   int
		want  string
	}{
		{name: "reserved characters", title: "My/Video:Title?", want: "MyVideoTitle"},
		{name: "all reserved", title: `<>:"/\|?*`, want: "download"},
		{name: "control whitespace dropped", title: "  a \t  b\n\nc  ", want: "a bc"},
		{name: "spaces collapse", title: "  one   two  ", want: "one two"},
		{name: "control characters", title: "bell\x07 ring", want: "bell ring"},
		{name: "unicode kept", title: "Ünïcödé 日本語", want: "Ünïcödé 日本語"},
		{name: "truncate runes", title: strings.Repeat("é", 130), want: strings.Repeat("é", 120)},
		{name: "custom limit", title: "abcdef", max: 3, want: "abc"},
		{name: "trailing space after truncation", title: "abc def", max: 4, want: "abc"},
		{name: "empty", title: "", want: "download"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeFilename(tt.title, tt.max))
		})
	}
}
