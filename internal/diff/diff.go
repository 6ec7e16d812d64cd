// Package diff retrieves commit diffs and reduces them to their added lines.
package diff

import (
	"context"
	"fmt"
	"strings"
)

const (
	addedMarker      = "+"
	fileHeaderMarker = "+++"
)

// Record is the added-line content of one commit, in diff order.
// A failed fetch yields a single diagnostic entry instead.
type Record []string

// Fetcher retrieves the diff of one commit.
// Implementations make a single attempt and never fail the caller:
// problems are reported inside the returned Record.
type Fetcher interface {
	Fetch(ctx context.Context, repoFullName, commitID string) Record
}

// FetcherFunc adapts a function to the Fetcher interface
type FetcherFunc func(ctx context.Context, repoFullName, commitID string) Record

// Fetch calls f
func (f FetcherFunc) Fetch(ctx context.Context, repoFullName, commitID string) Record {
	return f(ctx, repoFullName, commitID)
}

// ExtractAddedLines returns every line that starts with "+" but not "+++",
// with the leading "+" removed and everything else kept byte for byte.
func ExtractAddedLines(body string) Record {
	added := Record{}
	for _, line := range splitLines(body) {
		if strings.HasPrefix(line, addedMarker) && !strings.HasPrefix(line, fileHeaderMarker) {
			added = append(added, line[len(addedMarker):])
		}
	}
	return added
}

// FailedStatus builds the diagnostic record for a non-success provider status
func FailedStatus(status int) Record {
	return Record{fmt.Sprintf("Failed to fetch diff: %d", status)}
}

// Failed builds the diagnostic record for a request that never produced a status
func Failed(err error) Record {
	return Record{fmt.Sprintf("Failed to fetch diff: %v", err)}
}

// splitLines splits on "\n" and "\r\n"; a trailing newline does not produce an extra line
func splitLines(body string) []string {
	if body == "" {
		return nil
	}
	lines := strings.Split(strings.TrimSuffix(body, "\n"), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}
