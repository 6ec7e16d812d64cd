package handlers

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/nahidhasan98/finetune-relay/internal/errors"
	"github.com/nahidhasan98/finetune-relay/internal/ledger"
	"github.com/nahidhasan98/finetune-relay/internal/models"
)

// SubmitPrompt records a prompt and returns the updated history
func (h *Handler) SubmitPrompt(w http.ResponseWriter, r *http.Request) {
	var req models.PromptRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPayloadBytes)).Decode(&req); err != nil {
		h.writeAppError(w, errors.PromptRequired().WithDetails("invalid JSON payload"))
		return
	}

	if appErr := h.validator.ValidatePromptRequest(&req); appErr != nil {
		h.writeAppError(w, appErr)
		return
	}

	history, err := h.pipeline.SubmitPrompt(r.Context(), *req.Prompt)
	if err != nil {
		if stderrors.Is(err, ledger.ErrEmptyPrompt) {
			h.writeAppError(w, errors.PromptRequired())
			return
		}
		h.writeAppError(w, errors.InternalError(err))
		return
	}

	h.writeJSON(w, &models.PromptResponse{
		Status:        models.StatusAccepted,
		Message:       "Prompt processed",
		PromptHistory: history,
	}, http.StatusOK)
}

// ListPrompts returns the current prompt history
func (h *Handler) ListPrompts(w http.ResponseWriter, r *http.Request) {
	history := h.pipeline.Prompts()
	h.writeJSON(w, &models.PromptHistoryResponse{
		Count:         len(history),
		PromptHistory: history,
	}, http.StatusOK)
}
