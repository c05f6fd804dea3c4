package orchestrator

import "time"

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// ChatResponse is the orchestrator's reply to one turn. Stage is the raw
// wire value; the caller validates it.
type ChatResponse struct {
	ConversationID string         `json:"conversation_id"`
	Message        string         `json:"message"`
	AgentType      string         `json:"agent_type"`
	Stage          string         `json:"stage"`
	ApplicationID  string         `json:"application_id,omitempty"`
	Actions        []string       `json:"actions,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	RequiresInput  string         `json:"requires_input,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
}

// HistoryMessage is one entry of GET /chat/history/{id}.
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// History is the server-side transcript of a conversation.
type History struct {
	ConversationID string           `json:"conversation_id"`
	Stage          string           `json:"stage"`
	Messages       []HistoryMessage `json:"messages"`
	CustomerName   string           `json:"customer_name,omitempty"`
	ApplicationID  string           `json:"application_id,omitempty"`
}

// ExtractedSalary is the OCR result nested in an upload response.
type ExtractedSalary struct {
	NetSalary   *float64 `json:"net_salary,omitempty"`
	GrossSalary *float64 `json:"gross_salary,omitempty"`
}

// UploadResponse is the body returned by the salary-slip upload endpoint.
type UploadResponse struct {
	Success       bool             `json:"success"`
	Message       string           `json:"message,omitempty"`
	Status        string           `json:"status,omitempty"`
	DetectedValue *float64         `json:"detected_value,omitempty"`
	ExtractedData *ExtractedSalary `json:"extracted_data,omitempty"`
	FileURL       string           `json:"file_url,omitempty"`
}

// Detected picks the most specific salary figure the server reported.
func (r *UploadResponse) Detected() (float64, bool) {
	if r.DetectedValue != nil {
		return *r.DetectedValue, true
	}
	if r.ExtractedData != nil {
		if r.ExtractedData.NetSalary != nil {
			return *r.ExtractedData.NetSalary, true
		}
		if r.ExtractedData.GrossSalary != nil {
			return *r.ExtractedData.GrossSalary, true
		}
	}
	return 0, false
}

// Outcome is the status string to show the user.
func (r *UploadResponse) Outcome() string {
	switch {
	case r.Status != "":
		return r.Status
	case r.Success:
		return "processed"
	default:
		return "failed"
	}
}

// TokenResponse is the body of POST /auth/login.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
	ExpiresIn   int    `json:"expires_in,omitempty"`
}

// User is an authenticated identity as reported by GET /auth/me.
type User struct {
	ID       string `json:"id" yaml:"id"`
	Email    string `json:"email" yaml:"email"`
	FullName string `json:"full_name" yaml:"full_name"`
	Role     string `json:"role,omitempty" yaml:"role,omitempty"`
}

// SignupRequest is the body of POST /auth/signup.
type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}
