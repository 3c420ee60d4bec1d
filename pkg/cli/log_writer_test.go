package cli

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"testing"
)

func TestLogWriter(t *testing.T) {
	w := NewLogWriter(3)
	fmt.Fprint(w, "a\nb\n")
	fmt.Fprint(w, "c\n")
	fmt.Fprint(w, "d")

	if got := w.Lines(); !slices.Equal(got, []string{"b", "c", "d"}) {
		t.Errorf("Lines() = %v, want [b c d]", got)
	}

	var seen []string
	for range 4 {
		seen = append(seen, <-w.Channel())
	}
	if !slices.Equal(seen, []string{"a", "b", "c", "d"}) {
		t.Errorf("channel = %v", seen)
	}
}

func TestLogWriter_Slog(t *testing.T) {
	w := NewLogWriter(10)
	logger := slog.New(slog.NewTextHandler(w, nil))
	logger.Info("point dropped", "idx", 4)

	lines := w.Lines()
	if len(lines) != 1 {
		t.Fatalf("len(Lines()) = %d, want 1", len(lines))
	}
	if !strings.Contains(lines[0], "msg=\"point dropped\"") || !strings.Contains(lines[0], "idx=4") {
		t.Errorf("line = %q", lines[0])
	}
}

func TestLogWriter_FullChannel(t *testing.T) {
	w := NewLogWriter(500)
	for i := range 300 {
		fmt.Fprintf(w, "line %d\n", i)
	}
	if got := len(w.Lines()); got != 300 {
		t.Errorf("len(Lines()) = %d, want 300", got)
	}
	if got := len(w.Channel()); got != 100 {
		t.Errorf("channel backlog = %d, want 100", got)
	}
}
