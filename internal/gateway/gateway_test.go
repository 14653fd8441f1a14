package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"deepresearch/internal/agent"
	"deepresearch/internal/extract"
	"deepresearch/internal/research"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const skyText = `Rayleigh scattering.
Sources:
- https://example.com/sky
Tools used:
- search
- wikipedia`

func newTestServer(t *testing.T, rt agent.RuntimeFunc, opts ...Option) *httptest.Server {
	t.Helper()
	_, ts := newServerPair(t, rt, opts...)
	return ts
}

func newServerPair(t *testing.T, rt agent.RuntimeFunc, opts ...Option) (*Server, *httptest.Server) {
	t.Helper()
	r, err := research.New(research.Config{Runtime: rt, Mode: extract.Delimited})
	require.NoError(t, err)
	srv := NewServer(r, nil, opts...)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func browser(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{Jar: jar}
}

func submit(t *testing.T, c *http.Client, base, query string) string {
	t.Helper()
	resp, err := c.PostForm(base+"/", url.Values{"query": {query}})
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func TestFormAnswersAndRepeats(t *testing.T) {
	var calls atomic.Int32
	ts := newTestServer(t, func(context.Context, agent.Request) (string, error) {
		calls.Add(1)
		return skyText, nil
	})
	c := browser(t)

	page := submit(t, c, ts.URL, "Why is the sky blue?")
	assert.Contains(t, page, "<h2>Why is the sky blue?</h2>")
	assert.Contains(t, page, "<li>https://example.com/sky</li>")
	assert.Contains(t, page, "<p>search, wikipedia</p>")

	page = submit(t, c, ts.URL, "please repeat the previous answer")
	assert.Contains(t, page, noticeRepeating)
	assert.Contains(t, page, "<h2>Why is the sky blue?</h2>")
	assert.EqualValues(t, 1, calls.Load())
}

func TestFormNoPreviousAnswer(t *testing.T) {
	ts := newTestServer(t, func(context.Context, agent.Request) (string, error) {
		t.Error("runtime must not be called")
		return "", nil
	})

	page := submit(t, browser(t), ts.URL, "last answer")
	assert.Contains(t, page, noticeNoPrevious)
}

func TestFormExitAndRefresh(t *testing.T) {
	ts := newTestServer(t, func(context.Context, agent.Request) (string, error) {
		return skyText, nil
	})
	c := browser(t)

	submit(t, c, ts.URL, "Why is the sky blue?")
	page := submit(t, c, ts.URL, "EXIT")
	assert.Contains(t, page, noticeEnded)
	assert.NotContains(t, page, "<form")

	page = submit(t, c, ts.URL, "still there?")
	assert.Contains(t, page, noticeEnded)

	resp, err := c.Get(ts.URL + "/")
	require.NoError(t, err)
	b, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(b), "<form")
	assert.NotContains(t, string(b), "<h2>")
}

func TestFormShowsErrors(t *testing.T) {
	ts := newTestServer(t, func(context.Context, agent.Request) (string, error) {
		return "", errors.New("upstream 502")
	})

	page := submit(t, browser(t), ts.URL, "q")
	assert.Contains(t, page, "Error parsing response agent runtime: upstream 502 Raw Response - ")
}

func TestSessionsAreIsolatedPerBrowser(t *testing.T) {
	ts := newTestServer(t, func(context.Context, agent.Request) (string, error) {
		return skyText, nil
	})

	submit(t, browser(t), ts.URL, "Why is the sky blue?")
	page := submit(t, browser(t), ts.URL, "previous answer")
	assert.Contains(t, page, noticeNoPrevious)
}

type sseEvent struct {
	name string
	data string
}

func readEvents(t *testing.T, body io.Reader) []sseEvent {
	t.Helper()
	b, err := io.ReadAll(body)
	require.NoError(t, err)

	var events []sseEvent
	for _, block := range strings.Split(strings.TrimSpace(string(b)), "\n\n") {
		var ev sseEvent
		for _, line := range strings.Split(block, "\n") {
			if v, ok := strings.CutPrefix(line, "event: "); ok {
				ev.name = v
			}
			if v, ok := strings.CutPrefix(line, "data: "); ok {
				ev.data = v
			}
		}
		events = append(events, ev)
	}
	return events
}

func postResearch(t *testing.T, base, token, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, base+"/v1/research", strings.NewReader(body))
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestResearchStreamsEvents(t *testing.T) {
	ts := newTestServer(t, func(_ context.Context, req agent.Request) (string, error) {
		req.Emit(agent.Event{Type: agent.EventToolCall, Data: map[string]string{"name": "search", "input": "sky"}})
		req.Emit(agent.Event{Type: agent.EventToolResult, Data: map[string]string{"name": "search", "content": "blue"}})
		return skyText, nil
	})

	resp := postResearch(t, ts.URL, "", `{"query":"Why is the sky blue?"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := readEvents(t, resp.Body)
	require.Len(t, events, 4)
	assert.Equal(t, "tool_call", events[0].name)
	assert.Equal(t, "tool_result", events[1].name)
	assert.Equal(t, "result", events[2].name)
	assert.Equal(t, "done", events[3].name)

	result := decodeResult(t, events[2])
	require.NotEmpty(t, result.SessionID)
	assert.Equal(t, "answered", result.Status)
	require.NotNil(t, result.Entry)
	assert.Equal(t, "Rayleigh scattering.", result.Entry.Answer)
	assert.Equal(t, []string{"search", "wikipedia"}, result.Entry.ToolsUsed)

	sessResp, err := http.Get(ts.URL + "/v1/sessions/" + result.SessionID)
	require.NoError(t, err)
	defer sessResp.Body.Close()
	var sess sessionPayload
	require.NoError(t, json.NewDecoder(sessResp.Body).Decode(&sess))
	assert.Equal(t, result.SessionID, sess.ID)
	require.Len(t, sess.History, 1)
	assert.Equal(t, "Why is the sky blue?", sess.History[0].Question)
}

func decodeResult(t *testing.T, ev sseEvent) resultPayload {
	t.Helper()
	require.Equal(t, "result", ev.name)
	var result resultPayload
	require.NoError(t, json.Unmarshal([]byte(ev.data), &result))
	return result
}

func TestResearchReportsMalformedOutput(t *testing.T) {
	r, err := research.New(research.Config{
		Runtime: agent.RuntimeFunc(func(_ context.Context, req agent.Request) (string, error) {
			req.Emit(agent.Event{Type: agent.EventToken, Data: "plain"})
			return "plain words", nil
		}),
		Mode:    extract.Structured,
	})
	require.NoError(t, err)
	ts := httptest.NewServer(NewServer(r, nil).Handler())
	defer ts.Close()

	resp := postResearch(t, ts.URL, "", `{"query":"q"}`)
	events := readEvents(t, resp.Body)
	require.Len(t, events, 1)
	assert.Equal(t, "error", events[0].name)

	var payload errorPayload
	require.NoError(t, json.Unmarshal([]byte(events[0].data), &payload))
	assert.Equal(t, "plain words", payload.Raw)
	assert.NotEmpty(t, payload.SessionID)
}

func TestResearchValidation(t *testing.T) {
	ts := newTestServer(t, func(context.Context, agent.Request) (string, error) { return skyText, nil }, WithToken("secret"))

	assert.Equal(t, http.StatusUnauthorized, postResearch(t, ts.URL, "", `{"query":"q"}`).StatusCode)
	assert.Equal(t, http.StatusUnauthorized, postResearch(t, ts.URL, "wrong", `{"query":"q"}`).StatusCode)
	assert.Equal(t, http.StatusBadRequest, postResearch(t, ts.URL, "secret", `not json`).StatusCode)
	assert.Equal(t, http.StatusBadRequest, postResearch(t, ts.URL, "secret", `{"query":"  "}`).StatusCode)
	assert.Equal(t, http.StatusOK, postResearch(t, ts.URL, "secret", `{"query":"q"}`).StatusCode)
}

func TestGetUnknownSession(t *testing.T) {
	ts := newTestServer(t, func(context.Context, agent.Request) (string, error) { return skyText, nil })

	resp, err := http.Get(ts.URL + "/v1/sessions/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

type recordingArchive struct {
	ids []string
}

func (a *recordingArchive) Append(_ context.Context, id string, _ research.Entry) error {
	a.ids = append(a.ids, id)
	return nil
}

func TestServerArchivesEntries(t *testing.T) {
	archive := &recordingArchive{}
	ts := newTestServer(t, func(context.Context, agent.Request) (string, error) { return skyText, nil }, WithArchive(archive))

	first := decodeResult(t, readEvents(t, postResearch(t, ts.URL, "", `{"query":"q"}`).Body)[0])
	readEvents(t, postResearch(t, ts.URL, "", `{"session_id":"`+first.SessionID+`","query":"q2"}`).Body)
	assert.Equal(t, []string{first.SessionID, first.SessionID}, archive.ids)
}

func TestResearchStreamsTokensInDelimitedMode(t *testing.T) {
	ts := newTestServer(t, func(_ context.Context, req agent.Request) (string, error) {
		req.Emit(agent.Event{Type: agent.EventToken, Data: "Rayleigh"})
		return skyText, nil
	})

	events := readEvents(t, postResearch(t, ts.URL, "", `{"query":"q"}`).Body)
	require.Len(t, events, 3)
	assert.Equal(t, "token", events[0].name)
	assert.JSONEq(t, `{"content":"Rayleigh"}`, events[0].data)
}

func TestClientChosenSessionIDIsNotAdopted(t *testing.T) {
	srv, ts := newServerPair(t, func(context.Context, agent.Request) (string, error) { return skyText, nil })

	result := decodeResult(t, readEvents(t, postResearch(t, ts.URL, "", `{"session_id":"made-up","query":"q"}`).Body)[0])
	assert.NotEqual(t, "made-up", result.SessionID)

	_, ok := srv.sessions.lookup("made-up")
	assert.False(t, ok)
	_, ok = srv.sessions.lookup(result.SessionID)
	assert.True(t, ok)
}

func TestExitDropsSession(t *testing.T) {
	srv, ts := newServerPair(t, func(context.Context, agent.Request) (string, error) { return skyText, nil })

	first := decodeResult(t, readEvents(t, postResearch(t, ts.URL, "", `{"query":"q"}`).Body)[0])
	require.Equal(t, 1, srv.sessions.len())

	body := `{"session_id":"` + first.SessionID + `","query":"exit"}`
	ended := decodeResult(t, readEvents(t, postResearch(t, ts.URL, "", body).Body)[0])
	assert.Equal(t, "ended", ended.Status)
	assert.Zero(t, srv.sessions.len())

	// The ended ID keeps answering "ended" without a live session.
	again := decodeResult(t, readEvents(t, postResearch(t, ts.URL, "", `{"session_id":"`+first.SessionID+`","query":"q"}`).Body)[0])
	assert.Equal(t, "ended", again.Status)
	assert.Zero(t, srv.sessions.len())
}

func TestSessionCountIsCapped(t *testing.T) {
	srv, ts := newServerPair(t, func(context.Context, agent.Request) (string, error) { return skyText, nil },
		WithSessionLimits(25, 0))

	for range 200 {
		resp, err := http.PostForm(ts.URL+"/", url.Values{"query": {""}})
		require.NoError(t, err)
		resp.Body.Close()
	}
	for i := range 50 {
		readEvents(t, postResearch(t, ts.URL, "", fmt.Sprintf(`{"session_id":"s-%d","query":"exit"}`, i)).Body)
	}
	assert.LessOrEqual(t, srv.sessions.len(), 25)
}

func TestIdleSessionsExpire(t *testing.T) {
	srv, ts := newServerPair(t, func(context.Context, agent.Request) (string, error) { return skyText, nil },
		WithSessionLimits(0, 50*time.Millisecond))

	result := decodeResult(t, readEvents(t, postResearch(t, ts.URL, "", `{"query":"q"}`).Body)[0])
	assert.Eventually(t, func() bool {
		_, ok := srv.sessions.lookup(result.SessionID)
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
}
