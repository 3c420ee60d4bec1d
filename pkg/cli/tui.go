package cli

import (
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Theme is the color scheme of the live view.
type Theme struct {
	Primary lipgloss.Color
	Dim     lipgloss.Color
	Warn    lipgloss.Color
}

// DefaultTheme is bright green on the terminal default.
var DefaultTheme = Theme{
	Primary: lipgloss.Color("#00ff9f"),
	Dim:     lipgloss.Color("#6e7681"),
	Warn:    lipgloss.Color("#ffb86c"),
}

// Styles holds the styles derived from a Theme.
type Styles struct {
	Title  lipgloss.Style
	Label  lipgloss.Style
	Border lipgloss.Style
	Help   lipgloss.Style
	Note   lipgloss.Style
	Warn   lipgloss.Style
}

// NewStyles derives styles from t.
func NewStyles(t Theme) Styles {
	return Styles{
		Title:  lipgloss.NewStyle().Bold(true).Foreground(t.Primary).Padding(0, 1),
		Label:  lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Border: lipgloss.NewStyle().Foreground(t.Primary),
		Help:   lipgloss.NewStyle().Foreground(t.Dim),
		Note:   lipgloss.NewStyle().Bold(true).Foreground(t.Primary).Width(4),
		Warn:   lipgloss.NewStyle().Foreground(t.Warn),
	}
}

// Section is a labeled block of lines inside a Frame. Only the last lines
// that fit are shown.
type Section struct {
	Label string
	Lines []string
}

// Frame is one full-screen render of the live view.
type Frame struct {
	Styles   Styles
	Title    string
	Status   string
	Sections []Section
	Help     string
}

// Render draws the frame into a width x height box.
func (f Frame) Render(width, height int) string {
	if width < 8 || height < 6 {
		return f.Title + " [" + f.Status + "]"
	}

	bc := f.Styles.Border
	inner := width - 4
	var out []string

	out = append(out, bc.Render("╭"+strings.Repeat("─", width-2)+"╮"))

	title := f.Styles.Title.Render(f.Title)
	status := f.Styles.Help.Render("[" + f.Status + "]")
	pad := max(0, width-5-lipgloss.Width(title)-lipgloss.Width(status))
	out = append(out, bc.Render("│")+" "+title+" "+status+strings.Repeat(" ", pad)+" "+bc.Render("│"))

	n := max(len(f.Sections), 1)
	// top, title, bottom, help and one separator per section
	rows := max((height-4-n)/n, 1)
	for _, sec := range f.Sections {
		label := f.Styles.Label.Render(" " + sec.Label + " ")
		fill := max(0, width-3-lipgloss.Width(label))
		out = append(out, bc.Render("├─")+label+bc.Render(strings.Repeat("─", fill)+"┤"))

		lines := sec.Lines
		if len(lines) > rows {
			lines = lines[len(lines)-rows:]
		}
		for i := range rows {
			var text string
			if i < len(lines) {
				text = lines[i]
			}
			if lipgloss.Width(text) > inner {
				text = truncate(text, inner-1) + "…"
			}
			out = append(out, bc.Render("│")+" "+text+strings.Repeat(" ", max(0, inner-lipgloss.Width(text)))+" "+bc.Render("│"))
		}
	}

	out = append(out, bc.Render("╰"+strings.Repeat("─", width-2)+"╯"))
	out = append(out, f.Styles.Help.Render(f.Help))
	return strings.Join(out, "\n")
}

// truncate cuts s to at most width display cells.
func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	w := 0
	for i, r := range s {
		rw := lipgloss.Width(string(r))
		if w+rw > width {
			return s[:i]
		}
		w += rw
	}
	return s
}

// TuningGauge draws a tuner needle for a deviation in cents from the
// nearest semitone, clamped to ±50. The center mark is at the middle of
// width cells.
//
//	[----------|---●------]
func TuningGauge(cents float64, width int) string {
	width = max(width, 5)
	if math.IsNaN(cents) {
		return "[" + strings.Repeat("-", width) + "]"
	}
	cents = min(max(cents, -50), 50)
	cells := []rune(strings.Repeat("-", width))
	mid := width / 2
	cells[mid] = '|'
	pos := int(math.Round(float64(mid) + cents/50*float64(width-1-mid)))
	pos = min(max(pos, 0), width-1)
	cells[pos] = '●'
	return "[" + string(cells) + "]"
}

// Bar draws a horizontal fill for v in [0, 1].
func Bar(v float64, width int) string {
	if math.IsNaN(v) {
		v = 0
	}
	v = min(max(v, 0), 1)
	full := int(math.Round(v * float64(width)))
	return strings.Repeat("█", full) + strings.Repeat("░", width-full)
}
