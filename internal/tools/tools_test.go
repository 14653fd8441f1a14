package tools

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock() time.Time {
	return time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
}

func TestSaveAppendsBlocks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "research_output.txt")
	s := NewSave(path)
	s.now = fixedClock

	msg, err := s.Call(context.Background(), "first")
	require.NoError(t, err)
	assert.Equal(t, "Data successfully saved to "+path, msg)

	_, err = s.Call(context.Background(), "second")
	require.NoError(t, err)

	got, err := os.ReadFile(path)
	require.NoError(t, err)

	block := func(data string) string {
		return "--- Research Output ---\nTimestamp: 2025-03-14 09:26:53\n\n" + data + "\n\n"
	}
	assert.Equal(t, block("first")+block("second"), string(got))
}

func TestSaveDefaultPath(t *testing.T) {
	assert.Equal(t, DefaultSavePath, NewSave("").Path())
}

func TestSearchCall(t *testing.T) {
	s := &Search{backend: "fake", search: func(_ context.Context, q string) (string, error) {
		return "result for " + q, nil
	}}

	out, err := s.Call(context.Background(), "  rayleigh scattering ")
	require.NoError(t, err)
	assert.Equal(t, "result for rayleigh scattering", out)

	_, err = s.Call(context.Background(), "   ")
	assert.ErrorIs(t, err, errEmptyQuery)
}

func TestSearchNoResultsAndErrors(t *testing.T) {
	empty := &Search{backend: "fake", search: func(context.Context, string) (string, error) { return "", nil }}
	out, err := empty.Call(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "No results found.", out)

	boom := errors.New("429")
	failing := &Search{backend: "fake", search: func(context.Context, string) (string, error) { return "", boom }}
	_, err = failing.Call(context.Background(), "x")
	assert.ErrorIs(t, err, boom)
}

func TestNewSearchFallsBackToDuckDuckGo(t *testing.T) {
	s, err := NewSearch("", 0, "test-agent")
	require.NoError(t, err)
	assert.Equal(t, "duckduckgo", s.Backend())
	assert.Equal(t, "search", s.Name())
}

func TestWikiCall(t *testing.T) {
	w := &Wiki{lookup: func(_ context.Context, q string) (string, error) {
		return "Page: " + q, nil
	}}
	out, err := w.Call(context.Background(), "Rayleigh")
	require.NoError(t, err)
	assert.Equal(t, "Page: Rayleigh", out)

	w.lookup = func(context.Context, string) (string, error) { return " ", nil }
	out, err = w.Call(context.Background(), "nothing")
	require.NoError(t, err)
	assert.Equal(t, "No good Wikipedia Search Result was found", out)
}

func TestClip(t *testing.T) {
	out := clip(strings.Repeat("a", maxOutputBytes+10))
	assert.Equal(t, strings.Repeat("a", maxOutputBytes)+"\n... (truncated)", out)
	assert.Equal(t, "short", clip("short"))

	// A multi-byte rune straddling the limit is dropped whole.
	out = clip(strings.Repeat("a", maxOutputBytes-1) + "é")
	assert.True(t, utf8.ValidString(out))
	assert.Equal(t, strings.Repeat("a", maxOutputBytes-1)+"\n... (truncated)", out)
}

func TestStripTags(t *testing.T) {
	assert.Equal(t, "a bold move", stripTags("a <strong>bold</strong> move"))
}
