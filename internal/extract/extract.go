// Package extract turns the agent's final text into a Result.
//
// Two output modes are supported. Structured expects a single JSON object,
// optionally wrapped in a code fence, and fails closed when the object does
// not match the response schema. Delimited scans free text for "Sources:"
// and "Tools used:" sections and never fails.
package extract

import (
	"fmt"
	"strings"
)

// Mode selects how the agent is asked to format its answer and how that
// answer is parsed.
type Mode int

const (
	Delimited Mode = iota
	Structured
)

func (m Mode) String() string {
	switch m {
	case Structured:
		return "structured"
	case Delimited:
		return "delimited"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode maps a configuration value to a Mode. The empty string selects
// Delimited.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "delimited", "text":
		return Delimited, nil
	case "structured", "json":
		return Structured, nil
	default:
		return 0, fmt.Errorf("unknown output mode: %q", s)
	}
}

// Result is the extracted answer. Topic is only set in Structured mode.
type Result struct {
	Topic     string   `json:"topic,omitempty"`
	Answer    string   `json:"answer"`
	Sources   []string `json:"sources"`
	ToolsUsed []string `json:"tools_used"`
}

// Extract parses text according to mode.
func Extract(mode Mode, text string) (Result, error) {
	switch mode {
	case Structured:
		resp, err := ParseStructured(text)
		if err != nil {
			return Result{}, err
		}
		return resp.Result(), nil
	case Delimited:
		return ParseDelimited(text), nil
	default:
		return Result{}, fmt.Errorf("extract: unsupported mode %s", mode)
	}
}

// MalformedOutputError reports structured output that could not be decoded
// or did not match the response schema. Raw holds the text as received.
type MalformedOutputError struct {
	Raw    string
	Reason string
	Err    error
}

func (e *MalformedOutputError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed output: %s: %v", e.Reason, e.Err)
	}
	return "malformed output: " + e.Reason
}

func (e *MalformedOutputError) Unwrap() error { return e.Err }

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
