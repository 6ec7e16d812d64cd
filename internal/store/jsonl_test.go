package store

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nahidhasan98/finetune-relay/internal/config"
	"github.com/nahidhasan98/finetune-relay/internal/diff"
	"github.com/nahidhasan98/finetune-relay/internal/record"
)

func sampleRecord(id string) *record.FineTuneRecord {
	return &record.FineTuneRecord{
		ID:            id,
		Repository:    "octo/repo",
		ManualDiffs:   []diff.Record{{"console.log('hi')", "if (a < b && c > d) {}"}},
		PromptHistory: []string{"Add a login page", "Fix the button styling"},
		CreatedAt:     time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC),
	}
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.NoError(t, scanner.Err())
	return lines
}

func TestJSONL_AppendWritesOneLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "fine_tune_data.json")
	s, err := OpenJSONL(path)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Append(context.Background(), sampleRecord("r1")))

	lines := readLines(t, path)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `if (a < b && c > d) {}`)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &got))
	assert.Equal(t, "r1", got["id"])
	assert.Equal(t, []interface{}{[]interface{}{"console.log('hi')", "if (a < b && c > d) {}"}}, got["manual_diffs"])
	assert.Equal(t, []interface{}{"Add a login page", "Fix the button styling"}, got["prompt_history"])
}

func TestJSONL_ReopenAppendsWithoutTruncating(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fine_tune_data.json")

	s, err := OpenJSONL(path)
	require.NoError(t, err)
	require.NoError(t, s.Append(context.Background(), sampleRecord("r1")))
	require.NoError(t, s.Close())

	s, err = OpenJSONL(path)
	require.NoError(t, err)
	require.NoError(t, s.Append(context.Background(), sampleRecord("r2")))
	require.NoError(t, s.Close())

	lines := readLines(t, path)
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"id":"r1"`)
	assert.Contains(t, lines[1], `"id":"r2"`)
}

func TestJSONL_ConcurrentAppendsDoNotInterleave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fine_tune_data.json")
	s, err := OpenJSONL(path)
	require.NoError(t, err)
	defer s.Close()

	const n = 50
	big := make(diff.Record, 200)
	for i := range big {
		big[i] = fmt.Sprintf("line %d of a fairly long added line to widen each write", i)
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := sampleRecord(fmt.Sprintf("r%02d", i))
			rec.ManualDiffs = []diff.Record{big}
			assert.NoError(t, s.Append(context.Background(), rec))
		}(i)
	}
	wg.Wait()

	lines := readLines(t, path)
	require.Len(t, lines, n)

	seen := make(map[string]bool)
	for _, line := range lines {
		var rec record.FineTuneRecord
		require.NoError(t, json.Unmarshal([]byte(line), &rec), "line must be a whole record")
		assert.Len(t, rec.ManualDiffs[0], len(big))
		seen[rec.ID] = true
	}
	assert.Len(t, seen, n)
}

func TestJSONL_AppendAfterClose(t *testing.T) {
	s, err := OpenJSONL(filepath.Join(t.TempDir(), "x.json"))
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.Append(context.Background(), sampleRecord("r1")), ErrClosed)
}

func TestOpen_SelectsStore(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(context.Background(), config.StoreConfig{Kind: config.StoreFile, File: filepath.Join(dir, "a.json")})
	require.NoError(t, err)
	assert.Equal(t, config.StoreFile, s.Kind())
	require.NoError(t, s.Close())

	s, err = Open(context.Background(), config.StoreConfig{Kind: config.StoreSQLite, DSN: "file:" + filepath.Join(dir, "a.db")})
	require.NoError(t, err)
	assert.Equal(t, config.StoreSQLite, s.Kind())
	require.NoError(t, s.Close())

	_, err = Open(context.Background(), config.StoreConfig{Kind: "s3"})
	assert.Error(t, err)
}
