package session

import (
	"fmt"
	"strings"
)

// Stage is a workflow step as reported by the orchestrator.
type Stage string

const (
	StageGreeting             Stage = "greeting"
	StageNeedAnalysis         Stage = "need_analysis"
	StageCollectingDetails    Stage = "collecting_details"
	StageKYCVerification      Stage = "kyc_verification"
	StageOTPVerification      Stage = "otp_verification"
	StageCreditCheck          Stage = "credit_check"
	StageSalaryUpload         Stage = "salary_upload"
	StageUnderwriting         Stage = "underwriting"
	StageDecision             Stage = "decision"
	StageSchemeRecommendation Stage = "scheme_recommendation"
	StageRateNegotiation      Stage = "rate_negotiation"
	StageSanctionLetter       Stage = "sanction_letter"

	// Terminal outcomes. They sit past the end of the track.
	StageCompleted Stage = "completed"
	StageRejected  Stage = "rejected"
	StageError     Stage = "error"
)

// track is the ordered workflow. Order is significant.
var track = []Stage{
	StageGreeting,
	StageNeedAnalysis,
	StageCollectingDetails,
	StageKYCVerification,
	StageOTPVerification,
	StageCreditCheck,
	StageSalaryUpload,
	StageUnderwriting,
	StageDecision,
	StageSchemeRecommendation,
	StageRateNegotiation,
	StageSanctionLetter,
}

var labels = map[Stage]string{
	StageGreeting:             "Greeting",
	StageNeedAnalysis:         "Loan requirements",
	StageCollectingDetails:    "Personal details",
	StageKYCVerification:      "KYC verification",
	StageOTPVerification:      "OTP verification",
	StageCreditCheck:          "Credit check",
	StageSalaryUpload:         "Salary slip upload",
	StageUnderwriting:         "Underwriting",
	StageDecision:             "Decision",
	StageSchemeRecommendation: "Offer recommendation",
	StageRateNegotiation:      "Rate negotiation",
	StageSanctionLetter:       "Sanction letter",
	StageCompleted:            "Completed",
	StageRejected:             "Rejected",
	StageError:                "Error",
}

// Stages returns the ordered track (terminal outcomes excluded).
func Stages() []Stage {
	out := make([]Stage, len(track))
	copy(out, track)
	return out
}

// ParseStage maps a wire value onto the enumeration.
func ParseStage(raw string) (Stage, error) {
	s := Stage(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := labels[s]; !ok {
		return "", fmt.Errorf("unknown stage %q", raw)
	}
	return s, nil
}

// Terminal reports whether s ends the workflow.
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageRejected || s == StageError
}

// Index is the position of s in the track. Terminal outcomes return len(track),
// unknown values -1.
func (s Stage) Index() int {
	if s.Terminal() {
		return len(track)
	}
	for i, st := range track {
		if st == s {
			return i
		}
	}
	return -1
}

// Label is a human readable name for display.
func (s Stage) Label() string {
	if l, ok := labels[s]; ok {
		return l
	}
	return string(s)
}

// Progress classifies a track stage relative to the current one.
type Progress string

const (
	ProgressCompleted Progress = "completed"
	ProgressCurrent   Progress = "current"
	ProgressPending   Progress = "pending"
)

// StageStatus pairs a track stage with its classification.
type StageStatus struct {
	Stage    Stage
	Progress Progress
}

// ProgressOf classifies s against current.
func ProgressOf(s, current Stage) Progress {
	i, c := s.Index(), current.Index()
	switch {
	case i < c:
		return ProgressCompleted
	case i == c:
		return ProgressCurrent
	default:
		return ProgressPending
	}
}

// Classify returns every track stage classified against current. For a track
// value exactly one entry is current; for a terminal outcome all are completed.
func Classify(current Stage) []StageStatus {
	out := make([]StageStatus, 0, len(track))
	for _, st := range track {
		out = append(out, StageStatus{Stage: st, Progress: ProgressOf(st, current)})
	}
	return out
}
