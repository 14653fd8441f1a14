package main

import (
	"bytes"
	"testing"
	"time"

	"deepresearch/internal/agent"
	"deepresearch/internal/config"
	"deepresearch/internal/history"
	"deepresearch/internal/research"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildTools(t *testing.T) {
	cfg := config.Default()
	cfg.Tools.SavePath = t.TempDir() + "/out.txt"

	reg, err := buildTools(cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"search", "wikipedia", "save_text_to_file"}, reg.Names())

	cfg.Agent.Tools = []string{"wikipedia"}
	reg, err = buildTools(cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"wikipedia"}, reg.Names())
}

func TestBuildRuntime(t *testing.T) {
	cfg := config.Default()
	cfg.LLM().APIKey = "sk-test"

	rt, err := buildRuntime(cfg)
	require.NoError(t, err)
	assert.IsType(t, &agent.ReactRunner{}, rt)

	cfg.Agent.Runtime = config.RuntimeLangChain
	rt, err = buildRuntime(cfg)
	require.NoError(t, err)
	assert.IsType(t, &agent.LangChainRunner{}, rt)
}

func TestPrintRecords(t *testing.T) {
	var out bytes.Buffer
	printRecords(&out, nil)
	assert.Equal(t, "No archived answers.\n", out.String())

	out.Reset()
	printRecords(&out, []history.Record{{
		ID:        1,
		SessionID: "s1",
		Entry: research.Entry{
			Question:  "Why?",
			Answer:    "Because.",
			Sources:   []string{"a"},
			ToolsUsed: []string{"search"},
			AskedAt:   time.Date(2025, 1, 2, 3, 4, 5, 0, time.Local),
		},
	}})
	assert.Equal(t, "[2025-01-02 03:04:05] s1\nQ: Why?\nBecause.\nSources:\n- a\nTools used:\n- search\n\n", out.String())
}
