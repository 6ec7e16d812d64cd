package validation

import (
	"fmt"
	"strings"

	"github.com/nahidhasan98/finetune-relay/internal/errors"
	"github.com/nahidhasan98/finetune-relay/internal/models"
)

// MaxPromptLength bounds a single prompt, in bytes
const MaxPromptLength = 16 * 1024

// GitHub event names the webhook endpoint understands
const (
	EventPush = "push"
	EventPing = "ping"
)

// Validator provides validation methods
type Validator struct{}

// New creates a new validator instance
func New() *Validator {
	return &Validator{}
}

// ValidatePromptRequest validates a prompt submission.
// The prompt itself is left untouched.
func (v *Validator) ValidatePromptRequest(req *models.PromptRequest) *errors.AppError {
	if req == nil || req.Prompt == nil {
		return errors.PromptRequired()
	}

	prompt := *req.Prompt
	if strings.TrimSpace(prompt) == "" {
		return errors.PromptRequired()
	}

	if len(prompt) > MaxPromptLength {
		return errors.ValidationError(fmt.Sprintf("Prompt too long (maximum %d bytes)", MaxPromptLength))
	}

	return nil
}

// IsPushEvent reports whether the X-GitHub-Event header names a push.
// A missing header is treated as a push so plain JSON deliveries still work.
func (v *Validator) IsPushEvent(event string) bool {
	event = strings.TrimSpace(event)
	return event == "" || strings.EqualFold(event, EventPush)
}
