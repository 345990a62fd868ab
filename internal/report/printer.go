package report

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Rule is the separator printed around section headers.
var Rule = strings.Repeat("=", 70)

// Status icons used on progress lines.
const (
	IconOK      = "✓"
	IconChange  = "→"
	IconWarn    = "⚠"
	IconFail    = "✗"
	IconExists  = "○"
	IconUnknown = "?"
)

// Printer writes human-readable progress lines. It is safe for concurrent use;
// each call writes whole lines under one lock.
type Printer struct {
	mu     sync.Mutex
	w      io.Writer
	header lipgloss.Style
	ok     lipgloss.Style
	warn   lipgloss.Style
	fail   lipgloss.Style
	muted  lipgloss.Style
}

// NewPrinter creates a Printer. Styling is applied only when w is a terminal
// that supports colour; otherwise output is plain text.
func NewPrinter(w io.Writer) *Printer {
	r := lipgloss.NewRenderer(w)
	return &Printer{
		w:      w,
		header: r.NewStyle().Bold(true),
		ok:     r.NewStyle().Foreground(lipgloss.Color("2")),
		warn:   r.NewStyle().Foreground(lipgloss.Color("3")),
		fail:   r.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		muted:  r.NewStyle().Faint(true),
	}
}

// Printf writes a formatted line; a trailing newline is added when missing.
func (p *Printer) Printf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if !strings.HasSuffix(msg, "\n") {
		msg += "\n"
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = io.WriteString(p.w, msg)
}

// Lines writes several lines atomically so concurrent blocks do not interleave.
func (p *Printer) Lines(lines []string) {
	if len(lines) == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = io.WriteString(p.w, strings.Join(lines, "\n")+"\n")
}

// Header writes a ruled section header.
func (p *Printer) Header(format string, args ...interface{}) {
	p.Lines([]string{Rule, p.header.Render(fmt.Sprintf(format, args...)), Rule})
}

// DryRunBanner announces that no changes will be made.
func (p *Printer) DryRunBanner() {
	p.Printf("\n%s\n", p.warn.Render("[DRY RUN MODE - No changes will be made]"))
}

// Icon renders a status icon in its colour.
func (p *Printer) Icon(icon string) string {
	switch icon {
	case IconOK:
		return p.ok.Render(icon)
	case IconWarn, IconChange:
		return p.warn.Render(icon)
	case IconFail:
		return p.fail.Render(icon)
	case IconExists:
		return p.muted.Render(icon)
	}
	return icon
}

// Warn renders text in the warning colour.
func (p *Printer) Warn(s string) string {
	return p.warn.Render(s)
}
