package tools

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const DefaultSavePath = "research_output.txt"

// Save appends research text to a file, one timestamped block per call.
type Save struct {
	path string
	now  func() time.Time
	mu   sync.Mutex
}

func NewSave(path string) *Save {
	if path == "" {
		path = DefaultSavePath
	}
	return &Save{path: expandHome(path), now: time.Now}
}

func (s *Save) Name() string        { return "save_text_to_file" }
func (s *Save) Description() string { return "Saves structured research data to a text file." }

// Path is the file the tool appends to.
func (s *Save) Path() string { return s.path }

func (s *Save) Call(ctx context.Context, input string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	block := fmt.Sprintf("--- Research Output ---\nTimestamp: %s\n\n%s\n\n",
		s.now().Format("2006-01-02 15:04:05"), input)

	slog.Debug("save: writing", "path", s.path, "bytes", len(block))
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("creating parent dirs: %w", err)
		}
	}

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", s.path, err)
	}
	defer f.Close()

	if _, err := f.WriteString(block); err != nil {
		return "", fmt.Errorf("writing %s: %w", s.path, err)
	}

	slog.Debug("save: write done", "path", s.path)
	return fmt.Sprintf("Data successfully saved to %s", s.path), nil
}
