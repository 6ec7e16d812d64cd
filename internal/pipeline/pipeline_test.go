package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nahidhasan98/finetune-relay/internal/classifier"
	"github.com/nahidhasan98/finetune-relay/internal/diff"
	"github.com/nahidhasan98/finetune-relay/internal/ledger"
	"github.com/nahidhasan98/finetune-relay/internal/logger"
	"github.com/nahidhasan98/finetune-relay/internal/models"
	"github.com/nahidhasan98/finetune-relay/internal/record"
)

type memStore struct {
	mu      sync.Mutex
	records []*record.FineTuneRecord
	err     error
}

func (m *memStore) Append(_ context.Context, rec *record.FineTuneRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, rec)
	return nil
}

func (m *memStore) all() []*record.FineTuneRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*record.FineTuneRecord(nil), m.records...)
}

type fakeCommitter struct {
	err     error
	prompts []string
}

func (f *fakeCommitter) CommitPrompt(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	return "abc123", nil
}

func seededLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	l := ledger.New()
	require.NoError(t, l.Append("Add a login page"))
	require.NoError(t, l.Append("Fix the button styling"))
	return l
}

func newPipeline(fetcher diff.Fetcher, l *ledger.Ledger, store record.Store) *Pipeline {
	return New(classifier.New("lovable-bot"), fetcher, l, record.NewAssembler(store, nil, logger.Nop()), logger.Nop())
}

func commit(id, username, name string) models.GitHubCommit {
	return models.GitHubCommit{ID: id, Author: &models.GitHubCommitUser{Username: username, Name: name}}
}

func push(commits ...models.GitHubCommit) models.GitHubPushPayload {
	return models.GitHubPushPayload{
		Ref:        "refs/heads/main",
		Commits:    &commits,
		Repository: &models.GitHubRepository{FullName: "octo/repo"},
	}
}

func TestHandlePush_ManualCommitProducesRecord(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		assert.Equal(t, "/repos/octo/repo/commits/c2", r.URL.Path)
		fmt.Fprint(w, "diff --git a/file.js b/file.js\n--- a/file.js\n+++ b/file.js\n@@ -0,0 +1,2 @@\n+console.log('hi')\n+const x = 1\n")
	}))
	defer srv.Close()

	fetcher, err := diff.NewGitHubFetcher("ghp_test", srv.URL, 5*time.Second, logger.Nop())
	require.NoError(t, err)

	store := &memStore{}
	p := newPipeline(fetcher, seededLedger(t), store)

	out, err := p.HandlePush(context.Background(), push(
		commit("c1", "lovable-bot", ""),
		commit("c2", "alice", "Alice"),
	))
	require.NoError(t, err)

	assert.Equal(t, models.StatusProcessed, out.Status)
	assert.Equal(t, 1, out.ManualCommits)
	assert.Equal(t, 1, out.BotCommits)
	assert.Empty(t, out.Errors)
	assert.Equal(t, int32(1), atomic.LoadInt32(&requests), "bot commit diffs are never fetched")

	records := store.all()
	require.Len(t, records, 1)
	assert.Same(t, out.Record, records[0])
	assert.Equal(t, []diff.Record{{"console.log('hi')", "const x = 1"}}, records[0].ManualDiffs)
	assert.Equal(t, []string{"Add a login page", "Fix the button styling"}, records[0].PromptHistory)
	assert.Equal(t, []string{"c2"}, records[0].Commits)
	assert.Equal(t, "octo/repo", records[0].Repository)
}

func TestHandlePush_FailedFetchStillPersists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	fetcher, err := diff.NewGitHubFetcher("ghp_test", srv.URL, 5*time.Second, logger.Nop())
	require.NoError(t, err)

	store := &memStore{}
	p := newPipeline(fetcher, seededLedger(t), store)

	out, err := p.HandlePush(context.Background(), push(commit("c1", "alice", "")))
	require.NoError(t, err)
	require.NotNil(t, out.Record)

	records := store.all()
	require.Len(t, records, 1)
	assert.Equal(t, []diff.Record{{"Failed to fetch diff: 404"}}, records[0].ManualDiffs)
}

func TestHandlePush_Ignored(t *testing.T) {
	fetcher := diff.FetcherFunc(func(context.Context, string, string) diff.Record {
		t.Fatal("fetch must not be called")
		return nil
	})

	empty := []models.GitHubCommit{}
	tests := []struct {
		name    string
		payload models.GitHubPushPayload
	}{
		{name: "missing commits", payload: models.GitHubPushPayload{Repository: &models.GitHubRepository{FullName: "octo/repo"}}},
		{name: "zero commits", payload: models.GitHubPushPayload{Commits: &empty, Repository: &models.GitHubRepository{FullName: "octo/repo"}}},
		{name: "missing repository", payload: models.GitHubPushPayload{Commits: &[]models.GitHubCommit{commit("c1", "alice", "")}}},
		{name: "empty repository name", payload: models.GitHubPushPayload{
			Commits:    &[]models.GitHubCommit{commit("c1", "alice", "")},
			Repository: &models.GitHubRepository{},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &memStore{}
			l := seededLedger(t)
			p := newPipeline(fetcher, l, store)

			out, err := p.HandlePush(context.Background(), tt.payload)
			require.NoError(t, err)
			assert.Equal(t, models.StatusIgnored, out.Status)
			assert.Nil(t, out.Record)
			assert.Empty(t, store.all())
			assert.Equal(t, 2, l.Len())
		})
	}
}

func TestHandlePush_OnlyBotCommits(t *testing.T) {
	store := &memStore{}
	p := newPipeline(diff.FetcherFunc(func(context.Context, string, string) diff.Record {
		t.Fatal("fetch must not be called")
		return nil
	}), seededLedger(t), store)

	out, err := p.HandlePush(context.Background(), push(
		commit("c1", "lovable-bot", ""),
		commit("c2", "", "lovable-bot"),
	))
	require.NoError(t, err)

	assert.Equal(t, models.StatusProcessed, out.Status)
	assert.Equal(t, 2, out.BotCommits)
	assert.Zero(t, out.ManualCommits)
	assert.Nil(t, out.Record)
	assert.Empty(t, store.all())
}

func TestHandlePush_CommitWithoutIdentity(t *testing.T) {
	store := &memStore{}
	p := newPipeline(diff.FetcherFunc(func(_ context.Context, _, id string) diff.Record {
		return diff.Record{"from " + id}
	}), seededLedger(t), store)

	out, err := p.HandlePush(context.Background(), push(
		models.GitHubCommit{ID: "c1"},
		commit("c2", "", ""),
		commit("c3", "alice", ""),
	))
	require.NoError(t, err)

	require.Len(t, out.Errors, 2)
	assert.Equal(t, "c1", out.Errors[0].CommitID)
	assert.Equal(t, "c2", out.Errors[1].CommitID)
	assert.Equal(t, classifier.ErrNoAuthorIdentity.Error(), out.Errors[0].Error)

	assert.Equal(t, 1, out.ManualCommits)
	records := store.all()
	require.Len(t, records, 1)
	assert.Equal(t, []diff.Record{{"from c3"}}, records[0].ManualDiffs)
	assert.Equal(t, []string{"c3"}, records[0].Commits)
}

func TestHandlePush_PreservesCommitOrder(t *testing.T) {
	fetcher := diff.FetcherFunc(func(_ context.Context, _, id string) diff.Record {
		// Earlier commits finish last
		n := strings.TrimPrefix(id, "c")
		delay := map[string]time.Duration{"1": 30 * time.Millisecond, "2": 15 * time.Millisecond}[n]
		time.Sleep(delay)
		return diff.Record{id}
	})

	store := &memStore{}
	p := newPipeline(fetcher, seededLedger(t), store)

	_, err := p.HandlePush(context.Background(), push(
		commit("c1", "alice", ""),
		commit("c2", "bob", ""),
		commit("c3", "carol", ""),
	))
	require.NoError(t, err)

	records := store.all()
	require.Len(t, records, 1)
	assert.Equal(t, []diff.Record{{"c1"}, {"c2"}, {"c3"}}, records[0].ManualDiffs)
	assert.Equal(t, []string{"c1", "c2", "c3"}, records[0].Commits)
}

func manualCommits(n int) []models.GitHubCommit {
	commits := make([]models.GitHubCommit, n)
	for i := range commits {
		commits[i] = commit(fmt.Sprintf("c%03d", i), "alice", "")
	}
	return commits
}

func TestHandlePush_BoundsConcurrentFetches(t *testing.T) {
	var inFlight, peak int32
	fetcher := diff.FetcherFunc(func(_ context.Context, _, id string) diff.Record {
		n := atomic.AddInt32(&inFlight, 1)
		defer atomic.AddInt32(&inFlight, -1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		return diff.Record{id}
	})

	store := &memStore{}
	p := newPipeline(fetcher, seededLedger(t), store)
	p.SetFetchLimit(4)

	commits := manualCommits(200)
	_, err := p.HandlePush(context.Background(), push(commits...))
	require.NoError(t, err)

	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(4))
	assert.Positive(t, atomic.LoadInt32(&peak))

	records := store.all()
	require.Len(t, records, 1)
	require.Len(t, records[0].ManualDiffs, 200)
	for i, c := range commits {
		assert.Equal(t, diff.Record{c.ID}, records[0].ManualDiffs[i])
	}
}

func TestHandlePush_LargePushStaysUnderSecondaryRateLimit(t *testing.T) {
	var inFlight int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer atomic.AddInt32(&inFlight, -1)
		if atomic.AddInt32(&inFlight, 1) > DefaultFetchLimit {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		time.Sleep(time.Millisecond)
		fmt.Fprint(w, "+++ b/file.js\n+line\n")
	}))
	defer srv.Close()

	fetcher, err := diff.NewGitHubFetcher("ghp_test", srv.URL, 5*time.Second, logger.Nop())
	require.NoError(t, err)

	store := &memStore{}
	p := newPipeline(fetcher, seededLedger(t), store)

	_, err = p.HandlePush(context.Background(), push(manualCommits(120)...))
	require.NoError(t, err)

	records := store.all()
	require.Len(t, records, 1)
	for _, d := range records[0].ManualDiffs {
		assert.Equal(t, diff.Record{"line"}, d)
	}
}

func TestSetFetchLimit_FallsBackToDefault(t *testing.T) {
	p := newPipeline(diff.FetcherFunc(func(context.Context, string, string) diff.Record { return nil }), ledger.New(), &memStore{})
	assert.Equal(t, DefaultFetchLimit, p.fetchLimit)

	p.SetFetchLimit(0)
	assert.Equal(t, DefaultFetchLimit, p.fetchLimit)

	p.SetFetchLimit(3)
	assert.Equal(t, 3, p.fetchLimit)
}

func TestHandlePush_PersistenceFailure(t *testing.T) {
	diskFull := errors.New("disk full")
	store := &memStore{err: diskFull}
	p := newPipeline(diff.FetcherFunc(func(context.Context, string, string) diff.Record {
		return diff.Record{"x"}
	}), seededLedger(t), store)

	out, err := p.HandlePush(context.Background(), push(commit("c1", "alice", "")))
	assert.Nil(t, out)
	assert.ErrorIs(t, err, diskFull)
}

func TestHandlePush_SnapshotIsolation(t *testing.T) {
	store := &memStore{}
	l := seededLedger(t)
	p := newPipeline(diff.FetcherFunc(func(context.Context, string, string) diff.Record {
		return diff.Record{"x"}
	}), l, store)

	_, err := p.HandlePush(context.Background(), push(commit("c1", "alice", "")))
	require.NoError(t, err)

	_, err = p.SubmitPrompt(context.Background(), "Make it blue")
	require.NoError(t, err)

	records := store.all()
	require.Len(t, records, 1)
	assert.Equal(t, []string{"Add a login page", "Fix the button styling"}, records[0].PromptHistory)
	assert.Equal(t, 3, p.PromptCount())
}

func TestSubmitPrompt(t *testing.T) {
	p := newPipeline(nil, ledger.New(), &memStore{})
	committer := &fakeCommitter{}
	p.SetPromptCommitter(committer)

	history, err := p.SubmitPrompt(context.Background(), "Add a login page")
	require.NoError(t, err)
	assert.Equal(t, []string{"Add a login page"}, history)
	assert.Equal(t, []string{"Add a login page"}, committer.prompts)

	_, err = p.SubmitPrompt(context.Background(), "   ")
	assert.ErrorIs(t, err, ledger.ErrEmptyPrompt)
	assert.Len(t, committer.prompts, 1, "rejected prompts are not committed")
	assert.Equal(t, []string{"Add a login page"}, p.Prompts())
}

func TestSubmitPrompt_CommitFailureKeepsPrompt(t *testing.T) {
	p := newPipeline(nil, ledger.New(), &memStore{})
	p.SetPromptCommitter(&fakeCommitter{err: errors.New("push rejected")})

	history, err := p.SubmitPrompt(context.Background(), "Fix the button styling")
	require.NoError(t, err)
	assert.Equal(t, []string{"Fix the button styling"}, history)
}
