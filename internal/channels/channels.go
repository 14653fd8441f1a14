package channels

import (
	"errors"
	"fmt"
	"net/http"

	"deepresearch/internal/extract"
	"deepresearch/internal/research"
)

type Channel interface {
	Name() string
	RegisterRoutes(mux *http.ServeMux)
}

// FormatReply renders a session reply as plain text for chat channels.
func FormatReply(reply research.Reply) string {
	switch reply.Status {
	case research.StatusAnswered:
		return extract.Render(extract.Delimited, reply.Entry.Result())
	case research.StatusRepeated:
		return "Repeating previous answer:\n" + extract.Render(extract.Delimited, reply.Entry.Result())
	case research.StatusNoPrevious:
		return "No previous answer found."
	case research.StatusEnded:
		return "Session ended. Send a new message to start a new session."
	case research.StatusFailed:
		raw := reply.Raw
		var me *extract.MalformedOutputError
		if errors.As(reply.Err, &me) {
			raw = me.Raw
		}
		return fmt.Sprintf("Error parsing response %v Raw Response - %s", reply.Err, raw)
	default:
		return ""
	}
}
