package view

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/comigor/loanchat-go/internal/session"
)

// Exporter writes a session snapshot in one format.
type Exporter interface {
	Export(snap session.Snapshot, w io.Writer) error
	Extension() string
}

// NewExporter returns the exporter for format: json, yaml or markdown.
func NewExporter(format string) (Exporter, error) {
	switch strings.ToLower(format) {
	case "json":
		return &JSONExporter{}, nil
	case "yaml", "yml":
		return &YAMLExporter{}, nil
	case "md", "markdown":
		return &MarkdownExporter{}, nil
	default:
		return nil, fmt.Errorf("unsupported export format: %s (supported: json, yaml, markdown)", format)
	}
}

// Export writes snap to w in format.
func Export(w io.Writer, snap session.Snapshot, format string) error {
	e, err := NewExporter(format)
	if err != nil {
		return err
	}
	return e.Export(snap, w)
}

// JSONExporter exports sessions as indented JSON.
type JSONExporter struct{}

func (e *JSONExporter) Export(snap session.Snapshot, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}

func (e *JSONExporter) Extension() string { return "json" }

// YAMLExporter exports sessions as YAML.
type YAMLExporter struct{}

func (e *YAMLExporter) Export(snap session.Snapshot, w io.Writer) error {
	enc := yaml.NewEncoder(w)
	defer func() { _ = enc.Close() }()
	enc.SetIndent(2)
	return enc.Encode(snap)
}

func (e *YAMLExporter) Extension() string { return "yaml" }

// MarkdownExporter exports a human readable transcript.
type MarkdownExporter struct{}

func (e *MarkdownExporter) Export(snap session.Snapshot, w io.Writer) error {
	var b strings.Builder
	b.WriteString("# Loan conversation\n\n")
	if snap.ConversationID != "" {
		fmt.Fprintf(&b, "- Conversation: `%s`\n", snap.ConversationID)
	}
	if snap.ApplicationID != "" {
		fmt.Fprintf(&b, "- Application: `%s`\n", snap.ApplicationID)
	}
	fmt.Fprintf(&b, "- Stage: %s\n\n", snap.Stage.Label())
	for _, m := range snap.Messages {
		who := "You"
		if m.Role == session.RoleAssistant {
			who = "Assistant"
			if m.AgentLabel != "" {
				who += " (" + m.AgentLabel + ")"
			}
		}
		fmt.Fprintf(&b, "**%s** _%s_\n\n%s\n\n", who, m.CreatedAt.Format("2006-01-02 15:04"), m.Content)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func (e *MarkdownExporter) Extension() string { return "md" }
