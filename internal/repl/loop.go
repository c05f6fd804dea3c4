// Package repl is the interactive terminal front end: plain lines are chat
// turns, lines starting with "/" are commands.
package repl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/comigor/loanchat-go/internal/apperr"
	"github.com/comigor/loanchat-go/internal/chat"
	"github.com/comigor/loanchat-go/internal/logger"
	"github.com/comigor/loanchat-go/internal/session"
	"github.com/comigor/loanchat-go/internal/view"
)

const (
	prompt = "> "

	defaultHeight = 20
)

// Loop reads lines from In until EOF, /quit or ctx cancellation.
type Loop struct {
	In       io.Reader
	Out      io.Writer
	Conv     *chat.Conversation
	Registry *Registry
	Width    int
	// Height is the size of the /transcript viewport.
	Height int
}

// Run drives the conversation. The transcript observer prints every message
// appended to the session, including those produced by uploads.
func (l *Loop) Run(ctx context.Context) error {
	reg := l.Registry
	if reg == nil {
		reg = DefaultRegistry()
	}
	height := l.Height
	if height <= 0 {
		height = defaultHeight
	}
	tr := view.NewTranscript(l.Width, height, l.Out)
	l.Conv.Observe(tr.Observe)
	// a resumed conversation already has messages
	if snap := l.Conv.Store().Snapshot(); len(snap.Messages) > 0 {
		tr.Observe(session.Event{Kind: session.EventAppended, Snapshot: snap, Grew: true})
	}
	env := &Env{Conv: l.Conv, Transcript: tr, Out: l.Out, Registry: reg}

	fmt.Fprintln(l.Out, view.StageBar(l.Conv.Store().Snapshot().Stage))
	fmt.Fprintln(l.Out, "Type a message, or /help for commands.")

	sc := bufio.NewScanner(l.In)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		fmt.Fprint(l.Out, prompt)
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				return err
			}
			fmt.Fprintln(l.Out)
			return nil
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			name, args, _ := strings.Cut(line[1:], " ")
			cmd, err := reg.Get(name)
			if err != nil {
				l.report(err)
				continue
			}
			err = cmd.Run(ctx, env, args)
			if errors.Is(err, ErrQuit) {
				return nil
			}
			if err != nil {
				l.report(err)
				continue
			}
			if name == "upload" {
				fmt.Fprintln(l.Out, view.StageBar(l.Conv.Store().Snapshot().Stage))
			}
			continue
		}

		reply, err := l.Conv.Turns().Submit(ctx, line)
		if err != nil {
			l.report(err)
			continue
		}
		fmt.Fprintln(l.Out, view.StageBar(reply.Stage))
		if reply.RequiresInput == "salary_slip" {
			fmt.Fprintln(l.Out, view.NoticeStyle.Render("Tip: send your salary slip with /upload <path>"))
		}
	}
}

// report turns an error into a one-line notice. The session is never torn
// down because of a failed operation.
func (l *Loop) report(err error) {
	var (
		te *apperr.TransportError
		tl *apperr.TooLargeError
		ut *apperr.UnsupportedTypeError
	)
	switch {
	case errors.As(err, &te) && te.Unauthorized():
		fmt.Fprintln(l.Out, view.ErrorStyle.Render("Session expired. Run `loanchat login` and try again."))
	case errors.As(err, &te):
		msg := "Could not reach the loan service"
		if te.Body != "" {
			msg = te.Body
		}
		fmt.Fprintln(l.Out, view.NoticeStyle.Render(msg+". Please try again."))
	case errors.As(err, &tl):
		fmt.Fprintln(l.Out, view.ErrorStyle.Render("File too large: "+tl.Human))
	case errors.As(err, &ut):
		fmt.Fprintln(l.Out, view.ErrorStyle.Render("Unsupported file type "+ut.MediaType+"; use PDF, JPEG or PNG"))
	case errors.Is(err, apperr.ErrPrecondition):
		fmt.Fprintln(l.Out, view.ErrorStyle.Render("Keep chatting until an application is created, then upload your salary slip."))
	case errors.Is(err, apperr.ErrBusy):
		fmt.Fprintln(l.Out, view.NoticeStyle.Render("Still working on the previous request."))
	default:
		fmt.Fprintln(l.Out, view.ErrorStyle.Render(err.Error()))
	}
	logger.L.Debug("repl operation failed", "error", err)
}
