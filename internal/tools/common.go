package tools

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"
)

// maxOutputBytes caps what a tool hands back to the model.
const maxOutputBytes = 10_000

var (
	errEmptyQuery = errors.New("query is empty")
	tagRe         = regexp.MustCompile(`<[^>]*>`)
)

func stripTags(s string) string {
	return tagRe.ReplaceAllString(s, "")
}

// clip cuts s to maxOutputBytes on a rune boundary.
func clip(s string) string {
	if len(s) <= maxOutputBytes {
		return s
	}
	cut := maxOutputBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "\n... (truncated)"
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
