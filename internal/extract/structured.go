package extract

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/xeipuuv/gojsonschema"
)

const fence = "```"

// Response is the JSON object the agent emits in Structured mode.
type Response struct {
	Topic     string   `json:"topic" jsonschema_description:"The research topic."`
	Summary   string   `json:"summary" jsonschema_description:"The answer to the query."`
	Sources   []string `json:"sources" jsonschema_description:"URLs or references backing the answer."`
	ToolsUsed []string `json:"tools_used" jsonschema_description:"Names of the tools used to research the answer."`
}

// Result converts the response into the common extracted shape.
func (r Response) Result() Result {
	return Result{
		Topic:     r.Topic,
		Answer:    r.Summary,
		Sources:   orEmpty(r.Sources),
		ToolsUsed: orEmpty(r.ToolsUsed),
	}
}

var (
	schemaJSON      = reflectSchema()
	compiledSchema  = compileSchema(schemaJSON)
	errSchemaFailed = errors.New("response does not match schema")
)

// Schema returns the JSON schema of Response, indented for inclusion in a
// prompt.
func Schema() string {
	var out strings.Builder
	var v any
	_ = json.Unmarshal(schemaJSON, &v)
	enc := json.NewEncoder(&out)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
	return strings.TrimSpace(out.String())
}

func reflectSchema() []byte {
	// Unknown keys are ignored by the decoder, so they are allowed here too.
	r := jsonschema.Reflector{
		AllowAdditionalProperties: true,
		DoNotReference:            true,
	}
	b, err := json.Marshal(r.Reflect(Response{}))
	if err != nil {
		panic(err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		panic(err)
	}
	delete(m, "$schema")
	delete(m, "$id")
	b, err = json.Marshal(m)
	if err != nil {
		panic(err)
	}
	return b
}

func compileSchema(b []byte) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(b))
	if err != nil {
		panic(err)
	}
	return s
}

// StripFences removes a leading code fence (bare or tagged with a language
// such as "json") and a trailing fence, trimming whitespace after each step.
func StripFences(text string) string {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, fence) {
		s = s[len(fence):]
		if tag, rest, ok := strings.Cut(s, "\n"); ok && isFenceTag(tag) {
			s = rest
		} else if strings.HasPrefix(s, "json") {
			s = s[len("json"):]
		}
		s = strings.TrimSpace(s)
	}
	if strings.HasSuffix(s, fence) {
		s = strings.TrimSpace(s[:len(s)-len(fence)])
	}
	return s
}

func isFenceTag(s string) bool {
	s = strings.TrimSpace(s)
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-' || r == '_' || r == '+' || r == '.':
		default:
			return false
		}
	}
	return true
}

// ParseStructured decodes a Response from text. The returned error is always
// a *MalformedOutputError.
func ParseStructured(text string) (Response, error) {
	body := StripFences(text)
	if body == "" {
		return Response{}, &MalformedOutputError{Raw: text, Reason: "empty output"}
	}

	res, err := compiledSchema.Validate(gojsonschema.NewStringLoader(body))
	if err != nil {
		return Response{}, &MalformedOutputError{Raw: text, Reason: "invalid JSON", Err: err}
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return Response{}, &MalformedOutputError{
			Raw:    text,
			Reason: strings.Join(msgs, "; "),
			Err:    errSchemaFailed,
		}
	}

	var resp Response
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return Response{}, &MalformedOutputError{Raw: text, Reason: "invalid JSON", Err: err}
	}
	return resp, nil
}
