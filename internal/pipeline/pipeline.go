// Package pipeline turns push deliveries and prompt submissions into ledger
// entries and fine-tune records.
package pipeline

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/nahidhasan98/finetune-relay/internal/classifier"
	"github.com/nahidhasan98/finetune-relay/internal/diff"
	"github.com/nahidhasan98/finetune-relay/internal/ledger"
	"github.com/nahidhasan98/finetune-relay/internal/logger"
	"github.com/nahidhasan98/finetune-relay/internal/models"
	"github.com/nahidhasan98/finetune-relay/internal/record"
)

// DefaultFetchLimit bounds concurrent diff requests per delivery
const DefaultFetchLimit = 8

// PromptCommitter records an accepted prompt as a bot commit
type PromptCommitter interface {
	CommitPrompt(ctx context.Context, prompt string) (string, error)
}

// Outcome summarises one push delivery
type Outcome struct {
	Status        string
	Record        *record.FineTuneRecord
	ManualCommits int
	BotCommits    int
	Errors        []models.CommitError
}

// Pipeline wires classification, diff retrieval and record assembly
type Pipeline struct {
	classifier *classifier.Classifier
	fetcher    diff.Fetcher
	ledger     *ledger.Ledger
	assembler  *record.Assembler
	committer  PromptCommitter
	fetchLimit int
	log        *logger.Logger
}

// New creates a pipeline
func New(cls *classifier.Classifier, fetcher diff.Fetcher, l *ledger.Ledger, assembler *record.Assembler, log *logger.Logger) *Pipeline {
	return &Pipeline{
		classifier: cls,
		fetcher:    fetcher,
		ledger:     l,
		assembler:  assembler,
		fetchLimit: DefaultFetchLimit,
		log:        log.Component("pipeline"),
	}
}

// SetFetchLimit caps in-flight diff requests. Values below 1 fall back to
// DefaultFetchLimit.
func (p *Pipeline) SetFetchLimit(n int) {
	if n < 1 {
		n = DefaultFetchLimit
	}
	p.fetchLimit = n
}

// SetPromptCommitter enables bot commits for accepted prompts
func (p *Pipeline) SetPromptCommitter(c PromptCommitter) {
	p.committer = c
}

func ignored() *Outcome {
	return &Outcome{Status: models.StatusIgnored}
}

// HandlePush classifies every commit, fetches the diffs of manual commits and
// persists one record when at least one manual commit was found.
// The only error returned is a persistence failure.
func (p *Pipeline) HandlePush(ctx context.Context, payload models.GitHubPushPayload) (*Outcome, error) {
	commits := payload.GetCommits()
	if len(commits) == 0 {
		p.log.Debug("Push without commits ignored")
		return ignored(), nil
	}
	repo := payload.GetRepositoryName()
	if repo == "" {
		p.log.Debug("Push without repository name ignored")
		return ignored(), nil
	}

	out := &Outcome{Status: models.StatusProcessed}
	var manual []string
	for _, c := range commits {
		kind, err := p.classifier.Classify(c)
		if err != nil {
			p.log.With("commit", c.ID).Warnf("Commit skipped: %v", err)
			out.Errors = append(out.Errors, models.CommitError{CommitID: c.ID, Error: err.Error()})
			continue
		}
		if kind == classifier.Bot {
			out.BotCommits++
			continue
		}
		manual = append(manual, c.ID)
	}
	out.ManualCommits = len(manual)

	log := p.log.With("repository", repo)
	if len(manual) == 0 {
		log.Infof("Push processed: %d bot commits, no manual commits", out.BotCommits)
		return out, nil
	}

	diffs := p.fetchAll(ctx, repo, manual)

	rec, err := p.assembler.AssembleAndCommit(ctx, record.Delivery{
		Repository: repo,
		CommitIDs:  manual,
		Diffs:      diffs,
	}, p.ledger.Snapshot())
	if err != nil {
		return nil, err
	}
	out.Record = rec

	log.With("record_id", rec.ID).Infof("Push processed: %d manual, %d bot commits", out.ManualCommits, out.BotCommits)
	return out, nil
}

// fetchAll retrieves diffs with at most fetchLimit requests in flight,
// keeping commit order. Fetch never fails, so the group error is always nil.
func (p *Pipeline) fetchAll(ctx context.Context, repo string, commitIDs []string) []diff.Record {
	diffs := make([]diff.Record, len(commitIDs))

	var g errgroup.Group
	g.SetLimit(p.fetchLimit)
	for i, id := range commitIDs {
		g.Go(func() error {
			diffs[i] = p.fetcher.Fetch(ctx, repo, id)
			return nil
		})
	}
	_ = g.Wait()

	return diffs
}

// SubmitPrompt appends prompt to the ledger and, when configured, commits it
// as the bot. A failed bot commit is logged and does not reject the prompt.
// It returns the ledger snapshot after the append.
func (p *Pipeline) SubmitPrompt(ctx context.Context, prompt string) ([]string, error) {
	if err := p.ledger.Append(prompt); err != nil {
		return nil, err
	}
	p.log.With("prompts", p.ledger.Len()).Info("Prompt recorded")

	if p.committer != nil {
		if hash, err := p.committer.CommitPrompt(ctx, prompt); err != nil {
			p.log.Error("Bot prompt commit failed", err)
		} else {
			p.log.With("commit", hash).Debug("Bot prompt commit pushed")
		}
	}

	return p.ledger.Snapshot(), nil
}

// Prompts returns the current prompt history
func (p *Pipeline) Prompts() []string {
	return p.ledger.Snapshot()
}

// PromptCount returns the number of recorded prompts
func (p *Pipeline) PromptCount() int {
	return p.ledger.Len()
}
