package handlers

import (
	"github.com/nahidhasan98/finetune-relay/internal/logger"
	"github.com/nahidhasan98/finetune-relay/internal/pipeline"
	"github.com/nahidhasan98/finetune-relay/internal/validation"
)

// maxPayloadBytes bounds webhook and prompt bodies
const maxPayloadBytes = 25 << 20

// Status reports component state for the health endpoint
type Status struct {
	StoreKind   string
	Subscribers func() int
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	pipeline  *pipeline.Pipeline
	status    Status
	log       *logger.Logger
	validator *validation.Validator
}

// New creates a new handler instance
func New(p *pipeline.Pipeline, status Status, log *logger.Logger) *Handler {
	return &Handler{
		pipeline:  p,
		status:    status,
		log:       log.Component("handlers"),
		validator: validation.New(),
	}
}
