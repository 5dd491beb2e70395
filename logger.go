package nutrilog

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// ResolutionLogger records one entry per resolve call.
type ResolutionLogger interface {
	LogResolution(entry ResolutionLog) error
}

// NewResolutionLogFilePath returns a file path based on a cleaned up model name or id to make it easier to compare runs across models.
func NewResolutionLogFilePath(model string) string {
	return fmt.Sprintf(
		"./logs/%d.%s.json",
		time.Now().Unix(),
		strings.NewReplacer(":", "_", "/", "_").Replace(strings.ToLower(model)),
	)
}

// ResolutionLog captures the outcome of one text or photo resolution.
type ResolutionLog struct {
	RequestID string        `json:"request_id"`
	Timestamp time.Time     `json:"timestamp"`
	Kind      string        `json:"kind"`
	Input     string        `json:"input,omitempty"`
	Items     []ItemLog     `json:"items,omitempty"`
	Duration  time.Duration `json:"duration_ns"`
	Error     string        `json:"error,omitempty"`
}

// ItemLog represents a single candidate within a resolution
type ItemLog struct {
	Name   string `json:"name"`
	Source Source `json:"source,omitempty"`
	Found  bool   `json:"found"`
	Error  string `json:"error,omitempty"`
}

// FileResolutionLogger accumulates entries and writes them on Flush.
type FileResolutionLogger struct {
	entries []ResolutionLog
	writer  io.Writer
}

func NewFileResolutionLogger(writer io.Writer) *FileResolutionLogger {
	return &FileResolutionLogger{
		entries: make([]ResolutionLog, 0),
		writer:  writer,
	}
}

// LogResolution buffers the entry (does not flush immediately)
func (l *FileResolutionLogger) LogResolution(entry ResolutionLog) error {
	l.entries = append(l.entries, entry)
	return nil
}

// Flush flushes all accumulated entries to the writer
func (l *FileResolutionLogger) Flush() error {
	if l.writer == nil {
		return nil
	}

	data, err := json.MarshalIndent(map[string]any{
		"resolution_session": map[string]any{
			"timestamp":   time.Now(),
			"resolutions": l.entries,
		},
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal resolution log: %w", err)
	}

	if _, err := l.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write resolution log: %w", err)
	}

	l.entries = l.entries[:0]
	return nil
}

// NoOpResolutionLogger discards all log entries
type NoOpResolutionLogger struct{}

func NewNoOpResolutionLogger() *NoOpResolutionLogger {
	return &NoOpResolutionLogger{}
}

func (nop *NoOpResolutionLogger) LogResolution(entry ResolutionLog) error {
	return nil
}

// StdoutResolutionLogger writes each entry as a JSON line to stdout
type StdoutResolutionLogger struct {
	out io.Writer
}

func NewStdoutResolutionLogger() *StdoutResolutionLogger {
	return &StdoutResolutionLogger{out: os.Stdout}
}

func (l *StdoutResolutionLogger) LogResolution(entry ResolutionLog) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	fmt.Fprintln(l.out, string(data))
	return nil
}
