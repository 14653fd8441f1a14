// Package prompt builds the chat prompt sent to the research agent:
// a system message, the chat history, the user's query and the agent
// scratchpad, in that order.
package prompt

import (
	"errors"
	"fmt"
	"strings"

	"deepresearch/internal/extract"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/prompts"
)

const (
	HistoryKey            = "chat_history"
	QueryKey              = "query"
	ScratchpadKey         = "agent_scratchpad"
	FormatInstructionsKey = "format_instructions"
)

const structuredSystem = `You are a research assistant that will help generate a research paper.
Answer the user query and use necessary tools.
Wrap the output in this format and provide no other text
{{.format_instructions}}`

const delimitedSystem = `You are a research assistant that will help generate a research paper.
Answer the user query and use necessary tools.
Always include a "Sources:" section (with URLs, one per line, starting with "-") and a "Tools used:" section (with tool names, one per line, starting with "-").
Respond ONLY with the important content, no code blocks, no JSON, no YAML, just clear and concise text.`

var ErrMissingQuery = errors.New("prompt: query is required")

// Template is a chat prompt with optional pre-filled variables. It is safe
// for concurrent use once built.
type Template struct {
	system   prompts.SystemMessagePromptTemplate
	chat     prompts.ChatPromptTemplate
	partials map[string]any
}

// New returns the research prompt for mode. Structured mode embeds the
// JSON schema of the expected response as format instructions.
func New(mode extract.Mode) *Template {
	if mode == extract.Structured {
		return NewWithSystem(structuredSystem).Partial(FormatInstructionsKey, FormatInstructions())
	}
	return NewWithSystem(delimitedSystem)
}

// NewWithSystem builds a template around a custom system message. The
// message is a Go template; its variables are filled with Partial.
func NewWithSystem(system string) *Template {
	sys := prompts.NewSystemMessagePromptTemplate(system, nil)
	t := &Template{
		system:   sys,
		partials: map[string]any{},
	}
	t.chat = prompts.NewChatPromptTemplate([]prompts.MessageFormatter{
		sys,
		prompts.MessagesPlaceholder{VariableName: HistoryKey},
		prompts.NewHumanMessagePromptTemplate("{{."+QueryKey+"}}", []string{QueryKey}),
		prompts.MessagesPlaceholder{VariableName: ScratchpadKey},
	})
	t.chat.PartialVariables = t.partials
	return t
}

// Partial returns a copy of t with key pre-filled.
func (t *Template) Partial(key, value string) *Template {
	partials := make(map[string]any, len(t.partials)+1)
	for k, v := range t.partials {
		partials[k] = v
	}
	partials[key] = value

	out := *t
	out.partials = partials
	out.chat.PartialVariables = partials
	return &out
}

// System renders the system message alone.
func (t *Template) System() (string, error) {
	msgs, err := t.system.FormatMessages(t.values())
	if err != nil {
		return "", fmt.Errorf("formatting system message: %w", err)
	}
	if len(msgs) == 0 {
		return "", nil
	}
	return msgs[0].GetContent(), nil
}

// Format renders the full message sequence. History and scratchpad may be
// nil.
func (t *Template) Format(query string, history, scratchpad []llms.ChatMessage) ([]llms.ChatMessage, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrMissingQuery
	}
	if history == nil {
		history = []llms.ChatMessage{}
	}
	if scratchpad == nil {
		scratchpad = []llms.ChatMessage{}
	}

	msgs, err := t.chat.FormatMessages(map[string]any{
		QueryKey:      query,
		HistoryKey:    history,
		ScratchpadKey: scratchpad,
	})
	if err != nil {
		return nil, fmt.Errorf("formatting prompt: %w", err)
	}
	return msgs, nil
}

func (t *Template) values() map[string]any {
	v := make(map[string]any, len(t.partials))
	for k, val := range t.partials {
		v[k] = val
	}
	return v
}

// FormatInstructions describes the JSON object expected in structured mode.
func FormatInstructions() string {
	return "The output should be formatted as a JSON instance that conforms to the JSON schema below.\n\n" +
		"As an example, for the schema {\"properties\": {\"foo\": {\"title\": \"Foo\", \"description\": \"a list of strings\", \"type\": \"array\", \"items\": {\"type\": \"string\"}}}, \"required\": [\"foo\"]}\n" +
		"the object {\"foo\": [\"bar\", \"baz\"]} is a well-formatted instance of the schema. " +
		"The object {\"properties\": {\"foo\": [\"bar\", \"baz\"]}} is not well-formatted.\n\n" +
		"Here is the output schema:\n```\n" + extract.Schema() + "\n```"
}
