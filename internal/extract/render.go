package extract

import (
	"encoding/json"
	"strings"
)

// Render formats r the way an agent answering in mode would. Extracting the
// rendered text yields r again as long as the answer has no line that reads
// "Sources:" or "Tools used:" and every list item is a non-empty, trimmed,
// single line. Delimited text has no place for the topic, so it is dropped.
func Render(mode Mode, r Result) string {
	if mode == Structured {
		b, _ := json.MarshalIndent(Response{
			Topic:     r.Topic,
			Summary:   r.Answer,
			Sources:   orEmpty(r.Sources),
			ToolsUsed: orEmpty(r.ToolsUsed),
		}, "", "  ")
		return string(b)
	}

	var b strings.Builder
	b.WriteString(r.Answer)
	b.WriteString("\nSources:")
	writeBullets(&b, r.Sources)
	b.WriteString("\nTools used:")
	writeBullets(&b, r.ToolsUsed)
	return b.String()
}

func writeBullets(b *strings.Builder, items []string) {
	for _, it := range items {
		b.WriteString("\n- ")
		b.WriteString(it)
	}
}
