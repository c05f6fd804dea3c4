// Package view renders the session for a terminal. Transcript is a session
// observer: it re-renders on every mutation and keeps its viewport on the
// latest message whenever the log grows.
package view

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/comigor/loanchat-go/internal/session"
)

// Transcript is a scrollable rendering of the message log.
type Transcript struct {
	mu     sync.Mutex
	width  int
	height int

	snap   session.Snapshot
	lines  []string
	offset int

	// out receives each newly appended message as it arrives; may be nil.
	out     io.Writer
	printed int
}

// NewTranscript creates a viewport of the given size. height <= 0 shows everything.
func NewTranscript(width, height int, out io.Writer) *Transcript {
	if width <= 0 {
		width = 80
	}
	return &Transcript{width: width, height: height, out: out}
}

// Observe is a session.Observer.
func (t *Transcript) Observe(e session.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.snap = e.Snapshot
	t.lines = t.lines[:0]
	for _, m := range e.Snapshot.Messages {
		t.lines = append(t.lines, strings.Split(renderMessage(m, t.width), "\n")...)
	}
	if e.Grew {
		t.offset = t.bottom()
	} else if t.offset > t.bottom() {
		t.offset = t.bottom()
	}

	if t.out != nil {
		for ; t.printed < len(e.Snapshot.Messages); t.printed++ {
			fmt.Fprintln(t.out, renderMessage(e.Snapshot.Messages[t.printed], t.width))
		}
	}
}

func (t *Transcript) bottom() int {
	if t.height <= 0 || len(t.lines) <= t.height {
		return 0
	}
	return len(t.lines) - t.height
}

// Reset forgets everything rendered so far, for a new session.
func (t *Transcript) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap = session.Snapshot{Stage: session.StageGreeting}
	t.lines = nil
	t.offset = 0
	t.printed = 0
}

// Offset is the index of the first visible line.
func (t *Transcript) Offset() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.offset
}

// Scroll moves the viewport by delta lines, clamped to the log.
func (t *Transcript) Scroll(delta int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.offset = max(0, min(t.offset+delta, t.bottom()))
}

// Render returns the visible window followed by the stage bar.
func (t *Transcript) Render() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	end := len(t.lines)
	if t.height > 0 {
		end = min(t.offset+t.height, len(t.lines))
	}
	visible := t.lines[t.offset:end]
	return lipgloss.JoinVertical(lipgloss.Left, strings.Join(visible, "\n"), StageBar(t.snap.Stage))
}

func renderMessage(m session.Message, width int) string {
	var who string
	switch m.Role {
	case session.RoleUser:
		who = userStyle.Render("You")
	default:
		who = assistantStyle.Render("Assistant")
		if m.AgentLabel != "" {
			who += " " + agentStyle.Render("("+m.AgentLabel+")")
		}
	}
	header := who + " " + timestampStyle.Render(m.CreatedAt.Format("15:04"))
	body := contentStyle.Width(width).Render(m.Content)
	return header + "\n" + body
}

// StageBar renders the workflow track classified against current.
func StageBar(current session.Stage) string {
	parts := make([]string, 0, len(session.Stages())+1)
	for _, st := range session.Classify(current) {
		switch st.Progress {
		case session.ProgressCompleted:
			parts = append(parts, completedStyle.Render("✓ "+st.Stage.Label()))
		case session.ProgressCurrent:
			parts = append(parts, currentStyle.Render("● "+st.Stage.Label()))
		default:
			parts = append(parts, pendingStyle.Render("○ "+st.Stage.Label()))
		}
	}
	if current.Terminal() {
		parts = append(parts, currentStyle.Render("■ "+current.Label()))
	}
	return strings.Join(parts, "  ")
}

// StageList renders one stage per line, for the /stages command.
func StageList(current session.Stage) string {
	var b strings.Builder
	for i, st := range session.Classify(current) {
		fmt.Fprintf(&b, "%2d. %-22s %s\n", i+1, st.Stage.Label(), st.Progress)
	}
	if current.Terminal() {
		fmt.Fprintf(&b, "    outcome: %s\n", current.Label())
	}
	return b.String()
}
