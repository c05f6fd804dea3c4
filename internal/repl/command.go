package repl

import (
	"context"
	"errors"
	"io"

	"github.com/comigor/loanchat-go/internal/chat"
	"github.com/comigor/loanchat-go/internal/view"
)

// ErrQuit ends the loop without error.
var ErrQuit = errors.New("quit")

// Env is what a command may touch.
type Env struct {
	Conv       *chat.Conversation
	Transcript *view.Transcript
	Out        io.Writer
	Registry   *Registry
}

// Command is a slash command.
type Command interface {
	Name() string
	Description() string
	Run(ctx context.Context, env *Env, args string) error
}
