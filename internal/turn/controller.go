// Package turn runs one chat exchange at a time against the orchestrator.
package turn

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/comigor/loanchat-go/internal/apperr"
	"github.com/comigor/loanchat-go/internal/logger"
	"github.com/comigor/loanchat-go/internal/metrics"
	"github.com/comigor/loanchat-go/internal/orchestrator"
	"github.com/comigor/loanchat-go/internal/session"
)

// Reply is what a successful turn produced.
type Reply struct {
	ConversationID string
	ApplicationID  string
	Stage          session.Stage
	Message        session.Message
	// Actions and RequiresInput are hints for the presentation layer.
	Actions       []string
	RequiresInput string
}

// Controller turns user text into orchestrator calls and commits the results
// into the session store.
type Controller struct {
	store  *session.Store
	client orchestrator.ChatClient
	now    func() time.Time
	busy   atomic.Bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// New creates a Controller bound to store.
func New(store *session.Store, client orchestrator.ChatClient, opts ...Option) *Controller {
	c := &Controller{store: store, client: client, now: time.Now}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Busy reports whether a turn is in flight.
func (c *Controller) Busy() bool { return c.busy.Load() }

// Submit sends text as one turn. The user message is appended before the
// network call and stays in the log even if the call fails. On failure no
// other session state changes.
func (c *Controller) Submit(ctx context.Context, text string) (*Reply, error) {
	if strings.TrimSpace(text) == "" {
		metrics.RecordTurn("validation")
		return nil, &apperr.ValidationError{Field: "message", Reason: "must not be empty"}
	}
	if !c.busy.CompareAndSwap(false, true) {
		metrics.RecordTurn("busy")
		return nil, &apperr.BusyError{Op: "submit"}
	}
	defer c.busy.Store(false)

	ctx = logger.WithRequestID(ctx, uuid.NewString())
	log := logger.FromContext(ctx)

	c.store.Append(session.NewUserMessage(text, c.now()))

	resp, err := c.client.Chat(ctx, orchestrator.ChatRequest{
		Message:        text,
		ConversationID: c.store.ConversationID(),
	})
	if err != nil {
		metrics.RecordTurn("transport")
		log.Warn("turn failed", "error", err)
		return nil, asTransport(err)
	}

	stage, err := session.ParseStage(resp.Stage)
	if err != nil {
		metrics.RecordTurn("transport")
		log.Warn("turn returned malformed stage", "stage", resp.Stage)
		return nil, &apperr.TransportError{Op: "chat", Err: fmt.Errorf("malformed response: %w", err)}
	}

	c.store.SetConversationID(resp.ConversationID)
	c.store.SetStage(stage)
	if resp.ApplicationID != "" {
		c.store.SetApplicationID(resp.ApplicationID)
	}
	reply := session.NewAssistantMessage(resp.Message, resp.AgentType, c.now())
	c.store.Append(reply)

	metrics.RecordTurn("success")
	log.Info("turn completed", "conversation_id", c.store.ConversationID(), "stage", stage, "agent", resp.AgentType)

	return &Reply{
		ConversationID: c.store.ConversationID(),
		ApplicationID:  c.store.ApplicationID(),
		Stage:          stage,
		Message:        reply,
		Actions:        resp.Actions,
		RequiresInput:  resp.RequiresInput,
	}, nil
}

func asTransport(err error) error {
	var te *apperr.TransportError
	if errors.As(err, &te) {
		return err
	}
	return &apperr.TransportError{Op: "chat", Err: err}
}
