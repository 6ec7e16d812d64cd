package models

import "strings"

// GitHubPushPayload represents the GitHub push webhook payload.
// Commits is a pointer so an absent sequence can be told apart from an empty one.
type GitHubPushPayload struct {
	Ref        string            `json:"ref"`
	Before     string            `json:"before"`
	After      string            `json:"after"`
	Compare    string            `json:"compare"`
	Commits    *[]GitHubCommit   `json:"commits"`
	HeadCommit *GitHubCommit     `json:"head_commit"`
	Repository *GitHubRepository `json:"repository"`
	Pusher     GitHubPusher      `json:"pusher"`
	Created    bool              `json:"created"`
	Deleted    bool              `json:"deleted"`
	Forced     bool              `json:"forced"`
}

// GitHubCommit represents a commit in the GitHub webhook
type GitHubCommit struct {
	ID        string            `json:"id"`
	TreeID    string            `json:"tree_id"`
	Distinct  bool              `json:"distinct"`
	Message   string            `json:"message"`
	Timestamp string            `json:"timestamp"`
	URL       string            `json:"url"`
	Author    *GitHubCommitUser `json:"author"`
	Committer *GitHubCommitUser `json:"committer"`
	Added     []string          `json:"added"`
	Removed   []string          `json:"removed"`
	Modified  []string          `json:"modified"`
}

// GitHubCommitUser represents a user in a commit.
// Username is only present when GitHub can map the email to an account.
type GitHubCommitUser struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Username string `json:"username"`
}

// GitHubRepository represents the repository in the GitHub webhook
type GitHubRepository struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	FullName      string `json:"full_name"`
	Private       bool   `json:"private"`
	HTMLURL       string `json:"html_url"`
	CloneURL      string `json:"clone_url"`
	DefaultBranch string `json:"default_branch"`
}

// GitHubPusher represents the pusher in the GitHub webhook
type GitHubPusher struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// GetRepositoryName returns the full repository name
func (p GitHubPushPayload) GetRepositoryName() string {
	if p.Repository == nil {
		return ""
	}
	return p.Repository.FullName
}

// GetBranch returns the branch name without refs/heads/ prefix
func (p GitHubPushPayload) GetBranch() string {
	return strings.TrimPrefix(p.Ref, "refs/heads/")
}

// GetCommits returns the commit sequence, nil when absent
func (p GitHubPushPayload) GetCommits() []GitHubCommit {
	if p.Commits == nil {
		return nil
	}
	return *p.Commits
}

// GetCommitCount returns the number of commits
func (p GitHubPushPayload) GetCommitCount() int {
	return len(p.GetCommits())
}
