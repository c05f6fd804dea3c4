// Package upload validates and submits salary-slip documents.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/comigor/loanchat-go/internal/apperr"
	"github.com/comigor/loanchat-go/internal/logger"
	"github.com/comigor/loanchat-go/internal/metrics"
	"github.com/comigor/loanchat-go/internal/orchestrator"
	"github.com/comigor/loanchat-go/internal/session"
)

// DefaultMaxBytes is the size ceiling used when none is configured.
const DefaultMaxBytes int64 = 5 << 20

// agentLabel tags the synthetic assistant message produced by an upload.
const agentLabel = "underwriting"

// File is a candidate document.
type File struct {
	Name      string
	MediaType string
	Size      int64
	Body      io.Reader
}

// Policy is the local acceptance rule applied before any network call.
type Policy struct {
	Allowed  []string
	MaxBytes int64
}

// DefaultPolicy accepts PDF, JPEG and PNG up to DefaultMaxBytes.
func DefaultPolicy() Policy {
	return Policy{
		Allowed:  []string{"application/pdf", "image/jpeg", "image/jpg", "image/png"},
		MaxBytes: DefaultMaxBytes,
	}
}

// Check rejects a negative size, then applies the type rule, then the size rule.
func (p Policy) Check(f File) error {
	if f.Size < 0 {
		return &apperr.ValidationError{Field: "size", Reason: "must not be negative"}
	}
	mt := strings.ToLower(strings.TrimSpace(f.MediaType))
	if !slices.Contains(p.Allowed, mt) {
		return &apperr.UnsupportedTypeError{MediaType: f.MediaType, Allowed: slices.Clone(p.Allowed)}
	}
	if f.Size > p.MaxBytes {
		return &apperr.TooLargeError{
			Size:  f.Size,
			Limit: p.MaxBytes,
			Human: fmt.Sprintf("%s > %s", humanize.IBytes(uint64(f.Size)), humanize.IBytes(uint64(p.MaxBytes))),
		}
	}
	return nil
}

// Result describes a completed upload.
type Result struct {
	Status        string
	DetectedValue float64
	HasValue      bool
}

// Gate submits documents for the current application, one at a time.
type Gate struct {
	store    *session.Store
	uploader orchestrator.Uploader
	policy   Policy
	now      func() time.Time

	mu        sync.Mutex
	uploading bool
	staged    *File
}

// New creates a Gate.
func New(store *session.Store, uploader orchestrator.Uploader, policy Policy) *Gate {
	if policy.MaxBytes <= 0 {
		policy.MaxBytes = DefaultMaxBytes
	}
	if len(policy.Allowed) == 0 {
		policy.Allowed = DefaultPolicy().Allowed
	}
	return &Gate{store: store, uploader: uploader, policy: policy, now: time.Now}
}

// Uploading reports whether an upload is in flight.
func (g *Gate) Uploading() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.uploading
}

// Staged returns the name of the file currently being uploaded, if any.
func (g *Gate) Staged() (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.staged == nil {
		return "", false
	}
	return g.staged.Name, true
}

// Offer validates f and, if acceptable, uploads it. On success two messages
// are appended: a user message naming the file and an assistant message with
// the outcome. Policy and precondition failures never reach the network and
// never touch the session.
func (g *Gate) Offer(ctx context.Context, f File) (*Result, error) {
	if err := g.policy.Check(f); err != nil {
		metrics.RecordUpload(outcomeOf(err))
		return nil, err
	}
	appID := g.store.ApplicationID()
	if appID == "" {
		metrics.RecordUpload("precondition")
		return nil, &apperr.PreconditionError{Op: "upload", Reason: "no application yet; continue the conversation first"}
	}

	g.mu.Lock()
	if g.uploading {
		g.mu.Unlock()
		metrics.RecordUpload("busy")
		return nil, &apperr.BusyError{Op: "upload"}
	}
	g.uploading = true
	g.staged = &f
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		g.uploading = false
		g.staged = nil
		g.mu.Unlock()
	}()

	ctx = logger.WithRequestID(ctx, uuid.NewString())
	log := logger.FromContext(ctx)
	log.Info("uploading salary slip", "application_id", appID, "file", f.Name, "size", humanize.IBytes(uint64(f.Size)))

	resp, err := g.uploader.UploadSalarySlip(ctx, appID, f.Name, strings.ToLower(f.MediaType), f.Body)
	if err != nil {
		metrics.RecordUpload("transport")
		log.Warn("upload failed", "error", err)
		var te *apperr.TransportError
		if errors.As(err, &te) {
			return nil, err
		}
		return nil, &apperr.TransportError{Op: "upload", Err: err}
	}

	res := &Result{Status: resp.Outcome()}
	res.DetectedValue, res.HasValue = resp.Detected()

	g.store.Append(session.NewUserMessage("Uploaded salary slip: "+f.Name, g.now()))
	g.store.Append(session.NewAssistantMessage(summary(res, resp.Message), agentLabel, g.now()))

	metrics.RecordUpload("success")
	return res, nil
}

func summary(r *Result, serverMsg string) string {
	var b strings.Builder
	if r.HasValue {
		fmt.Fprintf(&b, "Salary slip %s. Detected monthly salary: %s.", r.Status, humanize.CommafWithDigits(r.DetectedValue, 2))
	} else {
		fmt.Fprintf(&b, "Salary slip %s.", r.Status)
	}
	if serverMsg != "" {
		b.WriteString(" ")
		b.WriteString(serverMsg)
	}
	return b.String()
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, apperr.ErrUnsupportedType):
		return "unsupported_type"
	case errors.Is(err, apperr.ErrTooLarge):
		return "too_large"
	case errors.Is(err, apperr.ErrValidation):
		return "validation"
	default:
		return "unknown"
	}
}
