package chat

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/comigor/loanchat-go/internal/apperr"
	"github.com/comigor/loanchat-go/internal/auth"
	"github.com/comigor/loanchat-go/internal/orchestrator"
	"github.com/comigor/loanchat-go/internal/session"
	"github.com/comigor/loanchat-go/internal/upload"
)

type fakeAuth struct{ snap auth.Snapshot }

func (f fakeAuth) Snapshot() auth.Snapshot { return f.snap }

var signedIn = fakeAuth{auth.Snapshot{
	State:  auth.StateResolved,
	Status: auth.StatusResolved,
	User:   &orchestrator.User{ID: "u1", Email: "ana@example.com"},
	Token:  "tok",
}}

type fakeClients struct{}

func (fakeClients) Chat(context.Context, orchestrator.ChatRequest) (*orchestrator.ChatResponse, error) {
	return &orchestrator.ChatResponse{
		ConversationID: "c1", Message: "hello", AgentType: "master", Stage: "kyc_verification", ApplicationID: "LOAN-1",
	}, nil
}

func (fakeClients) History(_ context.Context, id string) (*orchestrator.History, error) {
	if id != "c7" {
		return nil, &apperr.TransportError{Op: "history", Status: 404, Body: "Conversation not found"}
	}
	return &orchestrator.History{
		ConversationID: "c7",
		Stage:          "salary_upload",
		ApplicationID:  "LOAN-7",
		Messages: []orchestrator.HistoryMessage{
			{Role: "system", Content: "internal prompt"},
			{Role: "user", Content: "I need a loan of 500000"},
			{Role: "assistant", Content: "Please upload your salary slip."},
		},
	}, nil
}

func (fakeClients) UploadSalarySlip(context.Context, string, string, string, io.Reader) (*orchestrator.UploadResponse, error) {
	return &orchestrator.UploadResponse{Success: true}, nil
}

func TestOpen_GatedOnAuth(t *testing.T) {
	_, err := Open(fakeAuth{auth.Snapshot{State: auth.StateVerifying, Status: auth.StatusPending}}, fakeClients{}, Options{})
	require.ErrorIs(t, err, apperr.ErrAuthPending)

	_, err = Open(fakeAuth{auth.Snapshot{State: auth.StateAnonymous, Status: auth.StatusResolved}}, fakeClients{}, Options{})
	require.ErrorIs(t, err, apperr.ErrUnauthenticated)

	c, err := Open(signedIn, fakeClients{}, Options{})
	require.NoError(t, err)
	require.Equal(t, session.StageGreeting, c.Store().Snapshot().Stage)
}

func TestConversation_EndToEnd(t *testing.T) {
	c, err := Open(signedIn, fakeClients{}, Options{Now: func() time.Time { return time.Unix(0, 0) }})
	require.NoError(t, err)

	_, err = c.Uploads().Offer(context.Background(), upload.File{Name: "slip.pdf", MediaType: "application/pdf", Size: 3, Body: strings.NewReader("pdf")})
	require.ErrorIs(t, err, apperr.ErrPrecondition)

	_, err = c.Turns().Submit(context.Background(), "I need a loan of 500000")
	require.NoError(t, err)
	require.Equal(t, "LOAN-1", c.Store().ApplicationID())

	_, err = c.Uploads().Offer(context.Background(), upload.File{Name: "slip.pdf", MediaType: "application/pdf", Size: 3, Body: strings.NewReader("pdf")})
	require.NoError(t, err)
	require.Len(t, c.Store().Snapshot().Messages, 4)
}

func TestConversation_ResetKeepsObservers(t *testing.T) {
	c, err := Open(signedIn, fakeClients{}, Options{})
	require.NoError(t, err)

	var events []session.EventKind
	c.Observe(func(e session.Event) { events = append(events, e.Kind) })

	_, err = c.Turns().Submit(context.Background(), "hi")
	require.NoError(t, err)
	first := c.Store()

	require.NoError(t, c.Reset())
	require.NotSame(t, first, c.Store())
	require.Empty(t, c.Store().ConversationID())
	require.Empty(t, c.Store().Snapshot().Messages)

	events = nil
	_, err = c.Turns().Submit(context.Background(), "again")
	require.NoError(t, err)
	require.NotEmpty(t, events)
	require.Equal(t, session.EventAppended, events[0])
}

func TestConversation_Resume(t *testing.T) {
	c, err := Open(signedIn, fakeClients{}, Options{Now: func() time.Time { return time.Unix(0, 0) }})
	require.NoError(t, err)

	var grew int
	c.Observe(func(e session.Event) {
		if e.Grew {
			grew++
		}
	})

	require.NoError(t, c.Resume(context.Background(), "c7"))
	snap := c.Store().Snapshot()
	require.Equal(t, "c7", snap.ConversationID)
	require.Equal(t, "LOAN-7", snap.ApplicationID)
	require.Equal(t, session.StageSalaryUpload, snap.Stage)
	require.Len(t, snap.Messages, 2)
	require.Equal(t, session.RoleUser, snap.Messages[0].Role)
	require.Equal(t, "Please upload your salary slip.", snap.Messages[1].Content)
	require.Equal(t, 2, grew)

	// the resumed application accepts uploads right away
	_, err = c.Uploads().Offer(context.Background(), upload.File{Name: "slip.pdf", MediaType: "application/pdf", Size: 3, Body: strings.NewReader("pdf")})
	require.NoError(t, err)

	err = c.Resume(context.Background(), "c7")
	require.ErrorIs(t, err, apperr.ErrPrecondition)
}

func TestConversation_ResumeFailureKeepsSession(t *testing.T) {
	c, err := Open(signedIn, fakeClients{}, Options{})
	require.NoError(t, err)
	before := c.Store()

	err = c.Resume(context.Background(), "missing")
	require.ErrorIs(t, err, apperr.ErrTransport)
	require.Same(t, before, c.Store())

	require.ErrorIs(t, c.Resume(context.Background(), ""), apperr.ErrValidation)
}
