package repl

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/comigor/loanchat-go/internal/upload"
	"github.com/comigor/loanchat-go/internal/view"
)

// DefaultRegistry returns a registry with every built-in command.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(&UploadCommand{})
	r.Register(&StagesCommand{})
	r.Register(&ExportCommand{})
	r.Register(&TranscriptCommand{})
	r.Register(&NewCommand{})
	r.Register(&HelpCommand{})
	r.Register(&QuitCommand{})
	return r
}

// UploadCommand offers a salary slip from the local filesystem.
type UploadCommand struct{}

func (c *UploadCommand) Name() string { return "upload" }

func (c *UploadCommand) Description() string {
	return "Upload a salary slip: /upload <path> (PDF, JPEG or PNG)"
}

func (c *UploadCommand) Run(ctx context.Context, env *Env, args string) error {
	path := strings.TrimSpace(args)
	if path == "" {
		return fmt.Errorf("usage: /upload <path>")
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	mediaType, err := sniff(f, path)
	if err != nil {
		return err
	}

	// The gate appends the outcome to the session; the transcript prints it.
	_, err = env.Conv.Uploads().Offer(ctx, upload.File{
		Name:      filepath.Base(path),
		MediaType: mediaType,
		Size:      info.Size(),
		Body:      f,
	})
	return err
}

// sniff guesses the media type from the extension, falling back to content.
func sniff(f *os.File, path string) (string, error) {
	if mt := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); mt != "" {
		mt, _, _ = strings.Cut(mt, ";")
		return mt, nil
	}
	head := make([]byte, 512)
	n, err := f.Read(head)
	if err != nil && err != io.EOF {
		return "", err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	mt, _, _ := strings.Cut(http.DetectContentType(head[:n]), ";")
	return mt, nil
}

// StagesCommand prints the workflow track.
type StagesCommand struct{}

func (c *StagesCommand) Name() string        { return "stages" }
func (c *StagesCommand) Description() string { return "Show progress through the application stages" }

func (c *StagesCommand) Run(_ context.Context, env *Env, _ string) error {
	_, err := io.WriteString(env.Out, view.StageList(env.Conv.Store().Snapshot().Stage))
	return err
}

// ExportCommand writes the transcript to a file or to the terminal.
type ExportCommand struct{}

func (c *ExportCommand) Name() string { return "export" }

func (c *ExportCommand) Description() string {
	return "Export the conversation: /export <json|yaml|markdown> [file]"
}

func (c *ExportCommand) Run(_ context.Context, env *Env, args string) error {
	fields := strings.Fields(args)
	format := "yaml"
	if len(fields) > 0 {
		format = fields[0]
	}
	exp, err := view.NewExporter(format)
	if err != nil {
		return err
	}
	snap := env.Conv.Store().Snapshot()
	if len(fields) < 2 {
		return exp.Export(snap, env.Out)
	}

	out, err := os.Create(fields[1])
	if err != nil {
		return err
	}
	if err := exp.Export(snap, out); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	fmt.Fprintf(env.Out, "exported %d messages to %s\n", len(snap.Messages), fields[1])
	return nil
}

// TranscriptCommand pages through the conversation.
type TranscriptCommand struct{}

func (c *TranscriptCommand) Name() string { return "transcript" }

func (c *TranscriptCommand) Description() string {
	return "Page through the conversation: /transcript [+N|-N]"
}

func (c *TranscriptCommand) Run(_ context.Context, env *Env, args string) error {
	if arg := strings.TrimSpace(args); arg != "" {
		n, err := strconv.Atoi(arg)
		if err != nil {
			return fmt.Errorf("usage: /transcript [+N|-N]")
		}
		env.Transcript.Scroll(n)
	}
	fmt.Fprintf(env.Out, "-- from line %d --\n", env.Transcript.Offset()+1)
	_, err := fmt.Fprintln(env.Out, env.Transcript.Render())
	return err
}

// NewCommand starts a fresh conversation.
type NewCommand struct{}

func (c *NewCommand) Name() string        { return "new" }
func (c *NewCommand) Description() string { return "Start a new conversation" }

func (c *NewCommand) Run(_ context.Context, env *Env, _ string) error {
	if err := env.Conv.Reset(); err != nil {
		return err
	}
	if env.Transcript != nil {
		env.Transcript.Reset()
	}
	fmt.Fprintln(env.Out, "started a new conversation")
	return nil
}

// HelpCommand lists the commands.
type HelpCommand struct{}

func (c *HelpCommand) Name() string        { return "help" }
func (c *HelpCommand) Description() string { return "List commands" }

func (c *HelpCommand) Run(_ context.Context, env *Env, _ string) error {
	for _, cmd := range env.Registry.List() {
		fmt.Fprintf(env.Out, "  /%-11s %s\n", cmd.Name(), cmd.Description())
	}
	return nil
}

// QuitCommand ends the session.
type QuitCommand struct{}

func (c *QuitCommand) Name() string        { return "quit" }
func (c *QuitCommand) Description() string { return "Leave the chat" }

func (c *QuitCommand) Run(context.Context, *Env, string) error { return ErrQuit }
