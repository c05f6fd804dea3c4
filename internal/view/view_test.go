package view

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/comigor/loanchat-go/internal/session"
)

var t0 = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

func TestTranscriptFollowsLatest(t *testing.T) {
	store := session.NewStore()
	tr := NewTranscript(40, 3, nil)
	store.Subscribe(tr.Observe)

	store.Append(session.NewUserMessage("one", t0))
	require.Equal(t, 0, tr.Offset())

	store.Append(session.NewAssistantMessage("two", "master", t0))
	store.Append(session.NewUserMessage("three", t0))
	// 3 messages x 2 lines, window of 3
	require.Equal(t, 3, tr.Offset())

	tr.Scroll(-10)
	require.Equal(t, 0, tr.Offset())
	require.Contains(t, tr.Render(), "one")

	// Non-growing mutations keep the manual position.
	store.SetStage(session.StageKYCVerification)
	require.Equal(t, 0, tr.Offset())

	store.Append(session.NewAssistantMessage("four", "kyc", t0))
	require.Equal(t, 5, tr.Offset())
	out := tr.Render()
	require.Contains(t, out, "four")
	require.NotContains(t, out, "one")
}

func TestTranscriptScrollClamped(t *testing.T) {
	store := session.NewStore()
	tr := NewTranscript(40, 2, nil)
	store.Subscribe(tr.Observe)
	store.Append(session.NewUserMessage("a", t0))
	store.Append(session.NewUserMessage("b", t0))

	tr.Scroll(100)
	require.Equal(t, 2, tr.Offset())
	tr.Scroll(-1)
	require.Equal(t, 1, tr.Offset())
}

func TestTranscriptPrintsEachMessageOnce(t *testing.T) {
	var buf bytes.Buffer
	store := session.NewStore()
	tr := NewTranscript(40, 0, &buf)
	store.Subscribe(tr.Observe)

	store.Append(session.NewUserMessage("hello", t0))
	store.SetConversationID("c1")
	store.Append(session.NewAssistantMessage("hi there", "master", t0))

	out := buf.String()
	require.Equal(t, 1, strings.Count(out, "hello"))
	require.Equal(t, 1, strings.Count(out, "hi there"))
	require.Contains(t, out, "master")
}

func TestStageBar(t *testing.T) {
	bar := StageBar(session.StageCreditCheck)
	require.Contains(t, bar, "✓ Greeting")
	require.Contains(t, bar, "● Credit check")
	require.Contains(t, bar, "○ Sanction letter")
	require.Equal(t, 1, strings.Count(bar, "●"))

	done := StageBar(session.StageCompleted)
	require.NotContains(t, done, "○")
	require.NotContains(t, done, "●")
	require.Contains(t, done, "■ Completed")
}

func TestStageList(t *testing.T) {
	out := StageList(session.StageNeedAnalysis)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, len(session.Stages()))
	require.Contains(t, lines[0], "completed")
	require.Contains(t, lines[1], "current")
	require.Contains(t, lines[2], "pending")
}

func sampleSnapshot() session.Snapshot {
	return session.Snapshot{
		ConversationID: "c1",
		ApplicationID:  "LOAN-1",
		Stage:          session.StageSalaryUpload,
		Messages: []session.Message{
			{ID: "m1", Role: session.RoleUser, Content: "I need a loan", CreatedAt: t0},
			{ID: "m2", Role: session.RoleAssistant, Content: "Upload your slip", CreatedAt: t0, AgentLabel: "underwriting"},
		},
	}
}

func TestExportYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Export(&buf, sampleSnapshot(), "yaml"))

	var back session.Snapshot
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &back))
	require.Equal(t, "LOAN-1", back.ApplicationID)
	require.Equal(t, session.StageSalaryUpload, back.Stage)
	require.Len(t, back.Messages, 2)
	require.Equal(t, "underwriting", back.Messages[1].AgentLabel)
}

func TestExportFormats(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Export(&buf, sampleSnapshot(), "json"))
	require.Contains(t, buf.String(), `"conversation_id": "c1"`)

	buf.Reset()
	require.NoError(t, Export(&buf, sampleSnapshot(), "markdown"))
	require.Contains(t, buf.String(), "**Assistant (underwriting)**")
	require.Contains(t, buf.String(), "Stage: Salary slip upload")

	require.Error(t, Export(&buf, sampleSnapshot(), "xml"))

	e, err := NewExporter("yml")
	require.NoError(t, err)
	require.Equal(t, "yaml", e.Extension())
}
