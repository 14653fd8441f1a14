package gateway

import (
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"deepresearch/internal/extract"
	"deepresearch/internal/research"
)

const (
	sessionCookie = "deepresearch_session"

	noticeRepeating  = "Repeating previous answer:"
	noticeNoPrevious = "No previous answer found."
	noticeEnded      = "Session ended. Refresh to start a new session."
)

var formTmpl = template.Must(template.New("form").Funcs(template.FuncMap{
	"join": func(s []string) string { return strings.Join(s, ", ") },
}).Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Deep Research</title></head>
<body>
<h1>Deep Research</h1>
{{if not .Ended}}
<form method="post" action="/">
  <input type="text" name="query" size="80" placeholder="What can I help you research? (Type 'exit' to quit)" autofocus>
  <button type="submit">Research</button>
</form>
{{end}}
{{with .Notice}}<p class="notice">{{.}}</p>{{end}}
{{with .Error}}<pre class="error">{{.}}</pre>{{end}}
{{with .Entry}}
<div class="entry">
  <h2>{{.Question}}</h2>
  <p>{{.Answer}}</p>
  <h3>Sources</h3>
  <ul>{{range .Sources}}<li>{{.}}</li>{{end}}</ul>
  <h3>Tools used</h3>
  <p>{{join .ToolsUsed}}</p>
</div>
{{end}}
</body>
</html>
`))

type formView struct {
	Notice string
	Error  string
	Entry  *research.Entry
	Ended  bool
}

func (s *Server) handleFormPage(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.fresh(cookieSession(r))
	setSessionCookie(w, sess.ID())

	view := formView{}
	if last, ok := sess.Last(); ok {
		view.Entry = &last
	}
	renderForm(w, view)
}

func (s *Server) handleFormSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	id := cookieSession(r)
	if s.sessions.hasEnded(id) {
		renderForm(w, formView{Notice: noticeEnded, Ended: true})
		return
	}
	sess := s.sessions.get(id)
	setSessionCookie(w, sess.ID())

	reply := sess.Submit(r.Context(), r.PostFormValue("query"), nil)
	if reply.Status == research.StatusEnded {
		s.sessions.end(sess.ID())
	}
	renderForm(w, replyView(sess, reply))
}

func replyView(sess *research.Session, reply research.Reply) formView {
	var view formView
	switch reply.Status {
	case research.StatusAnswered:
		view.Entry = &reply.Entry
	case research.StatusRepeated:
		view.Notice = noticeRepeating
		view.Entry = &reply.Entry
	case research.StatusNoPrevious:
		view.Notice = noticeNoPrevious
	case research.StatusEnded:
		view.Notice = noticeEnded
		view.Ended = true
	case research.StatusFailed:
		raw := reply.Raw
		var me *extract.MalformedOutputError
		if errors.As(reply.Err, &me) {
			raw = me.Raw
		}
		view.Error = fmt.Sprintf("Error parsing response %v Raw Response - %s", reply.Err, raw)
	case research.StatusIgnored:
		if last, ok := sess.Last(); ok {
			view.Entry = &last
		}
	}
	return view
}

func renderForm(w http.ResponseWriter, view formView) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := formTmpl.Execute(w, view); err != nil {
		slog.Error("gateway: rendering form", "error", err)
	}
}

func cookieSession(r *http.Request) string {
	c, err := r.Cookie(sessionCookie)
	if err != nil {
		return ""
	}
	return c.Value
}

func setSessionCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
