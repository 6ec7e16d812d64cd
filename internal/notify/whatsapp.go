package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nahidhasan98/finetune-relay/internal/logger"
	"github.com/nahidhasan98/finetune-relay/internal/record"
)

// TextSender sends a plain text message to a recipient
type TextSender interface {
	SendText(ctx context.Context, recipient, text string) error
}

// WhatsApp sends a short record summary to one recipient.
// Sends run in the background so a slow session never delays an acknowledgment.
type WhatsApp struct {
	sender    TextSender
	recipient string
	timeout   time.Duration
	log       *logger.Logger

	wg sync.WaitGroup
}

// NewWhatsApp creates the notifier
func NewWhatsApp(sender TextSender, recipient string, log *logger.Logger) *WhatsApp {
	return &WhatsApp{
		sender:    sender,
		recipient: recipient,
		timeout:   30 * time.Second,
		log:       log.Component("whatsapp-notify"),
	}
}

// Name implements Channel
func (w *WhatsApp) Name() string { return "whatsapp" }

// Notify queues the summary message
func (w *WhatsApp) Notify(ctx context.Context, rec *record.FineTuneRecord) error {
	text := FormatSummary(rec)
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.timeout)

	w.wg.Go(func() {
		defer cancel()
		if err := w.sender.SendText(sendCtx, w.recipient, text); err != nil {
			w.log.With("record_id", rec.ID).Error("Failed to send WhatsApp summary", err)
			return
		}
		w.log.With("record_id", rec.ID).Debug("WhatsApp summary sent")
	})
	return nil
}

// Wait blocks until queued sends finish
func (w *WhatsApp) Wait() {
	w.wg.Wait()
}

// FormatSummary renders rec as a short chat message
func FormatSummary(rec *record.FineTuneRecord) string {
	var sb strings.Builder

	sb.WriteString("🧠 *New fine-tune record*\n\n")
	if rec.Repository != "" {
		sb.WriteString(fmt.Sprintf("📦 *Repository:* %s\n", rec.Repository))
	}

	lines := 0
	for _, d := range rec.ManualDiffs {
		lines += len(d)
	}
	sb.WriteString(fmt.Sprintf("✍️ *Manual commits:* %d (%d added lines)\n", len(rec.ManualDiffs), lines))
	sb.WriteString(fmt.Sprintf("💬 *Prompts:* %d\n", len(rec.PromptHistory)))

	if n := len(rec.PromptHistory); n > 0 {
		sb.WriteString(fmt.Sprintf("\n*Latest prompt:* %s\n", truncate(rec.PromptHistory[n-1], 120)))
	}

	sb.WriteString(fmt.Sprintf("\n🆔 %s", rec.ID))
	return sb.String()
}

// truncate shortens s to at most limit runes, ending in "..." when cut
func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-3]) + "..."
}
