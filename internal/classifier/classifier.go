// Package classifier tells bot-authored commits apart from manual ones.
package classifier

import (
	"errors"

	"github.com/nahidhasan98/finetune-relay/internal/models"
)

// ErrNoAuthorIdentity is returned when a commit carries neither a handle nor a display name
var ErrNoAuthorIdentity = errors.New("classifier: commit has no author identity")

// Kind is the classification result
type Kind int

const (
	Manual Kind = iota
	Bot
)

func (k Kind) String() string {
	if k == Bot {
		return "bot"
	}
	return "manual"
}

// Classifier compares commit authors against the automation identity
type Classifier struct {
	botName string
}

// New creates a classifier for the given automation identity
func New(botName string) *Classifier {
	return &Classifier{botName: botName}
}

// BotName returns the automation identity
func (c *Classifier) BotName() string {
	return c.botName
}

// Classify returns Bot iff the commit author resolves to exactly the bot name
func (c *Classifier) Classify(commit models.GitHubCommit) (Kind, error) {
	author, err := ResolveAuthor(commit.Author)
	if err != nil {
		return Manual, err
	}
	if author == c.botName {
		return Bot, nil
	}
	return Manual, nil
}

// ResolveAuthor picks the identity to compare, in priority order:
//  1. the account handle (username)
//  2. the display name (name)
//
// Empty values count as absent.
func ResolveAuthor(author *models.GitHubCommitUser) (string, error) {
	if author == nil {
		return "", ErrNoAuthorIdentity
	}
	if author.Username != "" {
		return author.Username, nil
	}
	if author.Name != "" {
		return author.Name, nil
	}
	return "", ErrNoAuthorIdentity
}
