// Package notify delivers persisted fine-tune records to live subscribers.
// Every channel is best-effort: a failing channel never blocks the others.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/nahidhasan98/finetune-relay/internal/logger"
	"github.com/nahidhasan98/finetune-relay/internal/record"
)

// EventUpdateFineTune is the event name carried by record frames
const EventUpdateFineTune = "update_finetune"

// Channel is a named record.Notifier
type Channel interface {
	record.Notifier
	Name() string
}

// Multi fans a record out to every channel
type Multi struct {
	channels []Channel
	log      *logger.Logger
}

// NewMulti creates a fan-out over channels; nil entries are skipped
func NewMulti(log *logger.Logger, channels ...Channel) *Multi {
	m := &Multi{log: log.Component("notify")}
	for _, ch := range channels {
		if ch != nil {
			m.channels = append(m.channels, ch)
		}
	}
	return m
}

// Add registers another channel
func (m *Multi) Add(ch Channel) {
	m.channels = append(m.channels, ch)
}

// Channels returns the registered channel names
func (m *Multi) Channels() []string {
	names := make([]string, 0, len(m.channels))
	for _, ch := range m.channels {
		names = append(names, ch.Name())
	}
	return names
}

// Notify delivers rec to every channel and joins their errors
func (m *Multi) Notify(ctx context.Context, rec *record.FineTuneRecord) error {
	var errs []error
	for _, ch := range m.channels {
		if err := ch.Notify(ctx, rec); err != nil {
			m.log.With("channel", ch.Name()).With("record_id", rec.ID).Warnf("Notification failed: %v", err)
			errs = append(errs, fmt.Errorf("%s: %w", ch.Name(), err))
		}
	}
	return errors.Join(errs...)
}
