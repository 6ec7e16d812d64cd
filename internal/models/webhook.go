package models

// Acknowledgment statuses
const (
	StatusIgnored   = "ignored"
	StatusProcessed = "processed"
	StatusAccepted  = "accepted"
)

// StatusResponse is a bare acknowledgment, used for ignored deliveries
type StatusResponse struct {
	Status string `json:"status"`
}

// PushAckResponse acknowledges a processed push-event delivery
type PushAckResponse struct {
	Status        string        `json:"status"`
	RecordID      string        `json:"record_id,omitempty"`
	ManualCommits int           `json:"manual_commits"`
	BotCommits    int           `json:"bot_commits"`
	Errors        []CommitError `json:"errors,omitempty"`
}

// CommitError reports a commit that could not be classified
type CommitError struct {
	CommitID string `json:"commit_id"`
	Error    string `json:"error"`
}

// PromptRequest is the prompt-submission payload
type PromptRequest struct {
	Prompt *string `json:"prompt"`
}

// PromptResponse acknowledges an accepted prompt
type PromptResponse struct {
	Status        string   `json:"status"`
	Message       string   `json:"message"`
	PromptHistory []string `json:"prompt_history"`
}

// PromptHistoryResponse lists the current prompt history
type PromptHistoryResponse struct {
	Count         int      `json:"count"`
	PromptHistory []string `json:"prompt_history"`
}
