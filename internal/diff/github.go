package diff

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	"github.com/nahidhasan98/finetune-relay/internal/logger"
)

// GitHubFetcher fetches commit diffs through the GitHub REST API
type GitHubFetcher struct {
	client *github.Client
	log    *logger.Logger
}

// NewGitHubFetcher creates a fetcher authenticating with a bearer token.
// apiURL overrides the API base URL (GitHub Enterprise, tests); empty keeps api.github.com.
func NewGitHubFetcher(token, apiURL string, timeout time.Duration, log *logger.Logger) (*GitHubFetcher, error) {
	if token == "" {
		return nil, fmt.Errorf("github token is required")
	}

	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	tc := oauth2.NewClient(context.Background(), ts)
	tc.Timeout = timeout

	client := github.NewClient(tc)
	if apiURL != "" {
		if !strings.HasSuffix(apiURL, "/") {
			apiURL += "/"
		}
		base, err := url.Parse(apiURL)
		if err != nil {
			return nil, fmt.Errorf("invalid GitHub API URL: %w", err)
		}
		client.BaseURL = base
	}

	return &GitHubFetcher{
		client: client,
		log:    log.Component("diff"),
	}, nil
}

// Fetch requests the commit in diff format and extracts its added lines
func (f *GitHubFetcher) Fetch(ctx context.Context, repoFullName, commitID string) Record {
	owner, repo, err := SplitRepoName(repoFullName)
	if err != nil {
		f.log.Warnf("Cannot fetch diff for %s: %v", commitID, err)
		return Failed(err)
	}

	body, resp, err := f.client.Repositories.GetCommitRaw(ctx, owner, repo, commitID, github.RawOptions{Type: github.Diff})
	if err != nil {
		if resp != nil && resp.Response != nil {
			f.log.With("status", resp.StatusCode).Warnf("Diff fetch for %s@%s failed", repoFullName, commitID)
			return FailedStatus(resp.StatusCode)
		}
		f.log.Error(fmt.Sprintf("Diff request for %s@%s failed", repoFullName, commitID), err)
		return Failed(err)
	}

	added := ExtractAddedLines(body)
	f.log.Debugf("Fetched diff for %s@%s: %d added lines", repoFullName, commitID, len(added))
	return added
}

// SplitRepoName splits "owner/name" into its parts
func SplitRepoName(fullName string) (owner, repo string, err error) {
	parts := strings.Split(fullName, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repository name %q", fullName)
	}
	return parts[0], parts[1], nil
}
