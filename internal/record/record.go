// Package record assembles fine-tune training records and hands them to storage
// and live subscribers.
package record

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nahidhasan98/finetune-relay/internal/diff"
	"github.com/nahidhasan98/finetune-relay/internal/logger"
)

// ErrNoDiffs is returned when assembling a delivery without manual commits
var ErrNoDiffs = errors.New("record: no manual diffs to assemble")

// FineTuneRecord pairs the manual edits of one delivery with the prompt history
// that preceded them. Records are never mutated after assembly.
type FineTuneRecord struct {
	ID            string        `json:"id"`
	Repository    string        `json:"repository,omitempty"`
	Commits       []string      `json:"commits,omitempty"`
	ManualDiffs   []diff.Record `json:"manual_diffs"`
	PromptHistory []string      `json:"prompt_history"`
	CreatedAt     time.Time     `json:"created_at"`
}

// Delivery is the manual-commit outcome of one push event
type Delivery struct {
	Repository string
	CommitIDs  []string
	Diffs      []diff.Record
}

// Store appends records to durable storage.
// Append must not interleave concurrent writes.
type Store interface {
	Append(ctx context.Context, rec *FineTuneRecord) error
}

// Notifier pushes records to live subscribers
type Notifier interface {
	Notify(ctx context.Context, rec *FineTuneRecord) error
}

// Assembler builds, persists and announces records
type Assembler struct {
	store    Store
	notifier Notifier
	log      *logger.Logger

	now   func() time.Time
	newID func() string
}

// NewAssembler creates an assembler. notifier may be nil.
func NewAssembler(store Store, notifier Notifier, log *logger.Logger) *Assembler {
	return &Assembler{
		store:    store,
		notifier: notifier,
		log:      log.Component("record"),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    func() string { return uuid.New().String() },
	}
}

// Assemble pairs the delivery's diffs with a private copy of the prompt snapshot
func (a *Assembler) Assemble(d Delivery, snapshot []string) (*FineTuneRecord, error) {
	if len(d.Diffs) == 0 {
		return nil, ErrNoDiffs
	}

	prompts := make([]string, len(snapshot))
	copy(prompts, snapshot)

	diffs := make([]diff.Record, len(d.Diffs))
	for i, rec := range d.Diffs {
		diffs[i] = append(diff.Record{}, rec...)
	}

	var commits []string
	if len(d.CommitIDs) > 0 {
		commits = append([]string(nil), d.CommitIDs...)
	}

	return &FineTuneRecord{
		ID:            a.newID(),
		Repository:    d.Repository,
		Commits:       commits,
		ManualDiffs:   diffs,
		PromptHistory: prompts,
		CreatedAt:     a.now(),
	}, nil
}

// Commit persists rec and then notifies subscribers.
// Only persistence errors are returned; notification is best-effort.
func (a *Assembler) Commit(ctx context.Context, rec *FineTuneRecord) error {
	if err := a.store.Append(ctx, rec); err != nil {
		return fmt.Errorf("append record %s: %w", rec.ID, err)
	}
	a.log.With("record_id", rec.ID).
		With("diffs", len(rec.ManualDiffs)).
		With("prompts", len(rec.PromptHistory)).
		Info("Fine-tune record persisted")

	if a.notifier == nil {
		return nil
	}
	if err := a.notifier.Notify(ctx, rec); err != nil {
		a.log.With("record_id", rec.ID).Error("Record notification failed", err)
	}
	return nil
}

// AssembleAndCommit runs Assemble followed by Commit
func (a *Assembler) AssembleAndCommit(ctx context.Context, d Delivery, snapshot []string) (*FineTuneRecord, error) {
	rec, err := a.Assemble(d, snapshot)
	if err != nil {
		return nil, err
	}
	if err := a.Commit(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}
