package cli

import (
	"strings"

	"github.com/haivivi/pitchscope/pkg/buffer"
)

// LogWriter is an io.Writer that keeps the last lines written, for display
// below the live status. Point it a slog handler while the status frame
// owns the terminal.
type LogWriter struct {
	lines *buffer.RingBuffer[string]
	ch    chan string
}

// NewLogWriter keeps up to maxLines lines.
func NewLogWriter(maxLines int) *LogWriter {
	return &LogWriter{
		lines: buffer.RingN[string](maxLines),
		ch:    make(chan string, 100),
	}
}

// Write splits p on newlines and stores each line.
func (w *LogWriter) Write(p []byte) (n int, err error) {
	text := strings.TrimRight(string(p), "\n")
	for line := range strings.SplitSeq(text, "\n") {
		_ = w.lines.Add(line)

		select {
		case w.ch <- line:
		default:
		}
	}
	return len(p), nil
}

// Lines returns the buffered lines, oldest first.
func (w *LogWriter) Lines() []string {
	return w.lines.Snapshot()
}

// Channel receives new lines. Lines are dropped when nobody reads.
func (w *LogWriter) Channel() <-chan string {
	return w.ch
}
