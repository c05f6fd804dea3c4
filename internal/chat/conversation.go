// Package chat wires one conversation: a session store, its turn controller
// and its upload gate. A conversation can only be opened for a resolved,
// authenticated auth session.
package chat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/comigor/loanchat-go/internal/apperr"
	"github.com/comigor/loanchat-go/internal/auth"
	"github.com/comigor/loanchat-go/internal/logger"
	"github.com/comigor/loanchat-go/internal/orchestrator"
	"github.com/comigor/loanchat-go/internal/session"
	"github.com/comigor/loanchat-go/internal/turn"
	"github.com/comigor/loanchat-go/internal/upload"
)

// AuthView is the read side of the auth session.
type AuthView interface {
	Snapshot() auth.Snapshot
}

// Clients is the orchestrator surface a conversation needs.
type Clients interface {
	orchestrator.ChatClient
	orchestrator.HistoryClient
	orchestrator.Uploader
}

// Options tune a conversation. The zero value is usable.
type Options struct {
	Policy upload.Policy
	Now    func() time.Time
}

// Conversation is the live session plus the components mutating it.
type Conversation struct {
	auth    AuthView
	clients Clients
	opts    Options

	mu        sync.Mutex
	store     *session.Store
	turns     *turn.Controller
	uploads   *upload.Gate
	observers []session.Observer
}

// Open checks the auth session and builds a fresh conversation.
func Open(a AuthView, clients Clients, opts Options) (*Conversation, error) {
	if err := gate(a); err != nil {
		return nil, err
	}
	if opts.Policy.MaxBytes == 0 && len(opts.Policy.Allowed) == 0 {
		opts.Policy = upload.DefaultPolicy()
	}
	c := &Conversation{auth: a, clients: clients, opts: opts}
	c.build()
	return c, nil
}

func gate(a AuthView) error {
	snap := a.Snapshot()
	if snap.Status == auth.StatusPending {
		return apperr.ErrAuthPending
	}
	if !snap.Authenticated() {
		return apperr.ErrUnauthenticated
	}
	return nil
}

// build replaces the session; the caller holds mu or owns c exclusively.
func (c *Conversation) build() {
	c.store = session.NewStore()
	var topts []turn.Option
	if c.opts.Now != nil {
		topts = append(topts, turn.WithClock(c.opts.Now))
	}
	c.turns = turn.New(c.store, c.clients, topts...)
	c.uploads = upload.New(c.store, c.clients, c.opts.Policy)
	for _, o := range c.observers {
		c.store.Subscribe(o)
	}
}

// Observe subscribes o to the current session and to every session created by Reset.
func (c *Conversation) Observe(o session.Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, o)
	c.store.Subscribe(o)
}

// Store returns the current session store.
func (c *Conversation) Store() *session.Store {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store
}

// Turns returns the current turn controller.
func (c *Conversation) Turns() *turn.Controller {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.turns
}

// Uploads returns the current upload gate.
func (c *Conversation) Uploads() *upload.Gate {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.uploads
}

// Reset discards the session and starts a new one. Identifiers are never
// rewritten in place; a new conversation gets a new store.
func (c *Conversation) Reset() error {
	if err := gate(c.auth); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.turns.Busy() {
		return &apperr.BusyError{Op: "reset"}
	}
	if c.uploads.Uploading() {
		return &apperr.BusyError{Op: "reset"}
	}
	c.build()
	return nil
}

// Resume loads a conversation kept by the orchestrator into a fresh session.
// It is only allowed before anything has been said in the current one.
func (c *Conversation) Resume(ctx context.Context, conversationID string) error {
	if conversationID == "" {
		return &apperr.ValidationError{Field: "conversation_id", Reason: "required"}
	}
	if err := gate(c.auth); err != nil {
		return err
	}
	c.mu.Lock()
	if len(c.store.Snapshot().Messages) > 0 || c.store.ConversationID() != "" {
		c.mu.Unlock()
		return &apperr.PreconditionError{Op: "resume", Reason: "current conversation already started; use /new first"}
	}
	c.mu.Unlock()

	h, err := c.clients.History(ctx, conversationID)
	if err != nil {
		return err
	}
	stage := session.StageGreeting
	if h.Stage != "" {
		if stage, err = session.ParseStage(h.Stage); err != nil {
			return &apperr.TransportError{Op: "history", Err: fmt.Errorf("malformed response: %w", err)}
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.turns.Busy() || c.uploads.Uploading() {
		return &apperr.BusyError{Op: "resume"}
	}
	if len(c.store.Snapshot().Messages) > 0 {
		return &apperr.PreconditionError{Op: "resume", Reason: "current conversation already started; use /new first"}
	}
	c.build()

	now := time.Now
	if c.opts.Now != nil {
		now = c.opts.Now
	}
	id := h.ConversationID
	if id == "" {
		id = conversationID
	}
	c.store.SetConversationID(id)
	c.store.SetApplicationID(h.ApplicationID)
	c.store.SetStage(stage)
	for _, m := range h.Messages {
		switch session.Role(m.Role) {
		case session.RoleUser:
			c.store.Append(session.NewUserMessage(m.Content, now()))
		case session.RoleAssistant:
			c.store.Append(session.NewAssistantMessage(m.Content, "", now()))
		default:
			// system prompts and unknown roles are not part of the transcript
		}
	}
	logger.L.Info("conversation resumed", "conversation_id", id, "stage", stage, "messages", len(h.Messages))
	return nil
}
