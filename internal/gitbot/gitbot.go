// Package gitbot records submitted prompts as bot-authored commits in a local
// working copy and pushes them to the tracked remote.
package gitbot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/nahidhasan98/finetune-relay/internal/config"
	"github.com/nahidhasan98/finetune-relay/internal/logger"
)

// Committer appends prompts to a tracked file and commits them as the bot
type Committer struct {
	repo        *git.Repository
	root        string
	promptsFile string
	author      string
	email       string
	push        bool
	auth        transport.AuthMethod
	log         *logger.Logger

	now func() time.Time
	mu  sync.Mutex
}

// Open opens the working copy at cfg.RepoPath. token, when set, authenticates
// pushes over HTTPS.
func Open(cfg config.BotConfig, botName, token string, log *logger.Logger) (*Committer, error) {
	repo, err := git.PlainOpen(cfg.RepoPath)
	if err != nil {
		return nil, fmt.Errorf("open bot repository %s: %w", cfg.RepoPath, err)
	}

	promptsFile := cfg.PromptsFile
	if promptsFile == "" {
		promptsFile = "prompts.txt"
	}

	c := &Committer{
		repo:        repo,
		root:        cfg.RepoPath,
		promptsFile: filepath.ToSlash(promptsFile),
		author:      botName,
		email:       cfg.Email,
		push:        cfg.Push,
		log:         log.Component("gitbot"),
		now:         time.Now,
	}
	if token != "" {
		c.auth = &githttp.BasicAuth{Username: "x-access-token", Password: token}
	}
	return c, nil
}

// CommitPrompt appends prompt to the prompts file, commits it with the bot
// signature and pushes to origin when enabled. It returns the new commit hash.
func (c *Committer) CommitPrompt(ctx context.Context, prompt string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.appendLine(prompt); err != nil {
		return "", err
	}

	wt, err := c.repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("open worktree: %w", err)
	}
	if _, err := wt.Add(c.promptsFile); err != nil {
		return "", fmt.Errorf("stage %s: %w", c.promptsFile, err)
	}

	sig := &object.Signature{Name: c.author, Email: c.email, When: c.now()}
	hash, err := wt.Commit(CommitMessage(prompt, c.author), &git.CommitOptions{
		Author:    sig,
		Committer: sig,
	})
	if err != nil {
		return "", fmt.Errorf("commit prompt: %w", err)
	}

	c.log.With("commit", hash.String()).Info("Prompt committed")

	if !c.push {
		return hash.String(), nil
	}

	err = c.repo.PushContext(ctx, &git.PushOptions{RemoteName: git.DefaultRemoteName, Auth: c.auth})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return hash.String(), fmt.Errorf("push prompt commit: %w", err)
	}
	return hash.String(), nil
}

func (c *Committer) appendLine(prompt string) error {
	path := filepath.Join(c.root, filepath.FromSlash(c.promptsFile))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create prompts directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open prompts file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(prompt + "\n"); err != nil {
		return fmt.Errorf("write prompts file: %w", err)
	}
	return nil
}

// CommitMessage is the subject used for prompt commits
func CommitMessage(prompt, botName string) string {
	// Keep the subject on one line
	subject := strings.Join(strings.Fields(prompt), " ")
	return fmt.Sprintf("Prompt: %s by %s", subject, botName)
}
