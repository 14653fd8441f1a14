package extract

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const skyJSON = `{
  "topic": "Sky colour",
  "summary": "The sky appears blue due to Rayleigh scattering.",
  "sources": ["https://example.com/a", "https://example.com/b"],
  "tools_used": ["search"]
}`

var skyResponse = Response{
	Topic:     "Sky colour",
	Summary:   "The sky appears blue due to Rayleigh scattering.",
	Sources:   []string{"https://example.com/a", "https://example.com/b"},
	ToolsUsed: []string{"search"},
}

func TestParseStructuredFencePlacements(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"no fence", skyJSON},
		{"bare fence", "```\n" + skyJSON + "\n```"},
		{"json fence", "```json\n" + skyJSON + "\n```"},
		{"json fence without newline", "```json" + skyJSON + "```"},
		{"surrounding whitespace", "\n\n  ```json\n" + skyJSON + "\n```  \n"},
		{"leading fence only", "```json\n" + skyJSON},
		{"trailing fence only", skyJSON + "\n```"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseStructured(tt.input)
			require.NoError(t, err)
			assert.Equal(t, skyResponse, got)
		})
	}
}

func TestParseStructuredMalformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"fence only", "```json\n```"},
		{"prose", "I could not find anything useful."},
		{"truncated", `{"topic": "x", "summary": "y"`},
		{"missing field", `{"topic": "x", "summary": "y", "sources": []}`},
		{"wrong type", `{"topic": "x", "summary": 3, "sources": [], "tools_used": []}`},
		{"null list", `{"topic": "x", "summary": "y", "sources": null, "tools_used": []}`},
		{"array", `["x"]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseStructured(tt.input)
			require.Error(t, err)

			var malformed *MalformedOutputError
			require.True(t, errors.As(err, &malformed))
			assert.Equal(t, tt.input, malformed.Raw)
		})
	}
}

func TestParseStructuredIgnoresUnknownKeys(t *testing.T) {
	got, err := ParseStructured(`{"topic":"t","summary":"s","sources":[],"tools_used":[],"confidence":0.9}`)
	require.NoError(t, err)
	assert.Equal(t, "s", got.Summary)
}

func TestParseDelimitedExample(t *testing.T) {
	input := "The sky appears blue due to Rayleigh scattering.\n" +
		"\n" +
		"Sources:\n" +
		"- https://example.com/a\n" +
		"- https://example.com/b\n" +
		"\n" +
		"Tools used:\n" +
		"- search\n"

	got := ParseDelimited(input)
	assert.Equal(t, "The sky appears blue due to Rayleigh scattering.", got.Answer)
	assert.Equal(t, []string{"https://example.com/a", "https://example.com/b"}, got.Sources)
	assert.Equal(t, []string{"search"}, got.ToolsUsed)
}

func TestParseDelimitedNoMarkers(t *testing.T) {
	input := "  First paragraph.\n\nSecond paragraph with - a dash.\n  "

	got := ParseDelimited(input)
	assert.Equal(t, "First paragraph.\n\nSecond paragraph with - a dash.", got.Answer)
	assert.Empty(t, got.Sources)
	assert.NotNil(t, got.Sources)
	assert.Empty(t, got.ToolsUsed)
	assert.NotNil(t, got.ToolsUsed)
}

func TestParseDelimitedSections(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		answer  string
		sources []string
		tools   []string
	}{
		{
			name:    "case insensitive markers",
			input:   "Answer.\nSOURCES:\n- a\nTOOLS USED:\n- wiki",
			answer:  "Answer.",
			sources: []string{"a"},
			tools:   []string{"wiki"},
		},
		{
			name:    "dash stripped once",
			input:   "A\nSources:\n-- double\n-  spaced  ",
			answer:  "A",
			sources: []string{"- double", "spaced"},
			tools:   []string{},
		},
		{
			name:    "bullet-less items",
			input:   "A\nSources:\nhttps://x.example\n- https://y.example",
			answer:  "A",
			sources: []string{"https://x.example", "https://y.example"},
			tools:   []string{},
		},
		{
			name:    "blank line returns to answer",
			input:   "A\nSources:\n- s1\n\nMore answer.\nTools used:\n- search\n- wikipedia",
			answer:  "A\nMore answer.",
			sources: []string{"s1"},
			tools:   []string{"search", "wikipedia"},
		},
		{
			name:    "marker with prefix text is answer",
			input:   "Sources: none needed\nDone.",
			answer:  "Sources: none needed\nDone.",
			sources: []string{},
			tools:   []string{},
		},
		{
			name:    "crlf",
			input:   "A\r\nSources:\r\n- s\r\n",
			answer:  "A",
			sources: []string{"s"},
			tools:   []string{},
		},
		{
			name:    "tools before sources",
			input:   "A\nTools used:\n- save_text_to_file\nSources:\n- s",
			answer:  "A",
			sources: []string{"s"},
			tools:   []string{"save_text_to_file"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseDelimited(tt.input)
			assert.Equal(t, tt.answer, got.Answer)
			assert.Equal(t, tt.sources, got.Sources)
			assert.Equal(t, tt.tools, got.ToolsUsed)
		})
	}
}

func TestExtractModes(t *testing.T) {
	res, err := Extract(Structured, "```json\n"+skyJSON+"\n```")
	require.NoError(t, err)
	assert.Equal(t, "Sky colour", res.Topic)
	assert.Equal(t, skyResponse.Summary, res.Answer)

	_, err = Extract(Structured, "not json")
	var malformed *MalformedOutputError
	assert.ErrorAs(t, err, &malformed)

	res, err = Extract(Delimited, "not json")
	require.NoError(t, err)
	assert.Equal(t, "not json", res.Answer)
}

func TestRenderIsIdempotent(t *testing.T) {
	results := []Result{
		{
			Answer:    "The sky appears blue due to Rayleigh scattering.",
			Sources:   []string{"https://example.com/a", "https://example.com/b"},
			ToolsUsed: []string{"search"},
		},
		{Answer: "Line one.\n\nLine two.", Sources: []string{}, ToolsUsed: []string{"wikipedia"}},
		{Answer: "Nothing found.", Sources: []string{}, ToolsUsed: []string{}},
	}

	for _, mode := range []Mode{Delimited, Structured} {
		for _, want := range results {
			first, err := Extract(mode, Render(mode, want))
			require.NoError(t, err)
			assert.Equal(t, want, first)

			second, err := Extract(mode, Render(mode, first))
			require.NoError(t, err)
			assert.Equal(t, first, second)
		}
	}
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("Structured")
	require.NoError(t, err)
	assert.Equal(t, Structured, m)

	m, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, Delimited, m)

	_, err = ParseMode("yaml")
	assert.Error(t, err)
}

func TestSchemaListsRequiredFields(t *testing.T) {
	s := Schema()
	for _, field := range []string{"topic", "summary", "sources", "tools_used"} {
		assert.Contains(t, s, `"`+field+`"`)
	}
	assert.Contains(t, s, `"required"`)
}
