package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/nahidhasan98/finetune-relay/internal/errors"
	"github.com/nahidhasan98/finetune-relay/internal/models"
)

// GitHubWebhook handles GitHub push deliveries. Anything that is not a
// well-formed push is acknowledged as ignored.
func (h *Handler) GitHubWebhook(w http.ResponseWriter, r *http.Request) {
	event := r.Header.Get("X-GitHub-Event")
	log := h.log.With("delivery", r.Header.Get("X-GitHub-Delivery"))

	if !h.validator.IsPushEvent(event) {
		log.Infof("GitHub %q event ignored", event)
		h.writeIgnored(w)
		return
	}

	var payload models.GitHubPushPayload
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPayloadBytes)).Decode(&payload); err != nil {
		log.Warnf("Unreadable push payload ignored: %v", err)
		h.writeIgnored(w)
		return
	}

	log.With("repository", payload.GetRepositoryName()).
		With("branch", payload.GetBranch()).
		Infof("GitHub push received with %d commits", payload.GetCommitCount())

	// Finish the delivery even if the sender hangs up
	ctx := context.WithoutCancel(r.Context())
	outcome, err := h.pipeline.HandlePush(ctx, payload)
	if err != nil {
		h.writeAppError(w, errors.PersistenceFailed(err))
		return
	}

	if outcome.Status == models.StatusIgnored {
		h.writeIgnored(w)
		return
	}

	resp := &models.PushAckResponse{
		Status:        outcome.Status,
		ManualCommits: outcome.ManualCommits,
		BotCommits:    outcome.BotCommits,
		Errors:        outcome.Errors,
	}
	if outcome.Record != nil {
		resp.RecordID = outcome.Record.ID
	}
	h.writeJSON(w, resp, http.StatusOK)
}

func (h *Handler) writeIgnored(w http.ResponseWriter) {
	h.writeJSON(w, &models.StatusResponse{Status: models.StatusIgnored}, http.StatusOK)
}
