package orchestrator

import (
	"context"
	"io"
)

// ChatClient is the subset of Client used by the turn controller; it is easy to mock in tests.
type ChatClient interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// HistoryClient is the subset of Client used to resume a conversation.
type HistoryClient interface {
	History(ctx context.Context, conversationID string) (*History, error)
}

// Uploader is the subset of Client used by the upload gate.
type Uploader interface {
	UploadSalarySlip(ctx context.Context, applicationID, filename, mediaType string, body io.Reader) (*UploadResponse, error)
}

// AuthAPI is the subset of Client used by the auth session manager.
type AuthAPI interface {
	Login(ctx context.Context, email, password string) (*TokenResponse, error)
	Me(ctx context.Context, token string) (*User, error)
	Signup(ctx context.Context, req SignupRequest) (*User, error)
}

var (
	_ ChatClient    = (*Client)(nil)
	_ HistoryClient = (*Client)(nil)
	_ Uploader      = (*Client)(nil)
	_ AuthAPI       = (*Client)(nil)
)
