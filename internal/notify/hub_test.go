package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nahidhasan98/finetune-relay/internal/diff"
	"github.com/nahidhasan98/finetune-relay/internal/logger"
	"github.com/nahidhasan98/finetune-relay/internal/record"
)

func testRecord() *record.FineTuneRecord {
	return &record.FineTuneRecord{
		ID:            "rec-1",
		Repository:    "octo/repo",
		ManualDiffs:   []diff.Record{{"console.log('hi')", "const x = 1"}},
		PromptHistory: []string{"Add a login page", "Fix the button styling"},
		CreatedAt:     time.Unix(1700000000, 0).UTC(),
	}
}

func dialHub(t *testing.T, srv *httptest.Server, origin string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	return websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), header)
}

type rawFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func readFrame(t *testing.T, conn *websocket.Conn) rawFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var f rawFrame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func TestHub_GreetsAndBroadcasts(t *testing.T) {
	hub := NewHub([]string{"http://localhost:5173"}, logger.Nop())
	defer hub.Close()

	srv := httptest.NewServer(hub)
	defer srv.Close()

	c1, _, err := dialHub(t, srv, "http://localhost:5173")
	require.NoError(t, err)
	defer c1.Close()
	c2, _, err := dialHub(t, srv, "")
	require.NoError(t, err)
	defer c2.Close()

	for _, c := range []*websocket.Conn{c1, c2} {
		f := readFrame(t, c)
		assert.Equal(t, "test", f.Event)
		assert.JSONEq(t, `{"message":"Hello from server"}`, string(f.Data))
	}

	require.Eventually(t, func() bool { return hub.Subscribers() == 2 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Notify(context.Background(), testRecord()))

	for _, c := range []*websocket.Conn{c1, c2} {
		f := readFrame(t, c)
		assert.Equal(t, EventUpdateFineTune, f.Event)

		var rec record.FineTuneRecord
		require.NoError(t, json.Unmarshal(f.Data, &rec))
		assert.Equal(t, "rec-1", rec.ID)
		assert.Equal(t, []diff.Record{{"console.log('hi')", "const x = 1"}}, rec.ManualDiffs)
		assert.Equal(t, []string{"Add a login page", "Fix the button styling"}, rec.PromptHistory)
	}
}

func TestHub_RejectsUnknownOrigin(t *testing.T) {
	hub := NewHub([]string{"http://localhost:5173"}, logger.Nop())
	defer hub.Close()

	srv := httptest.NewServer(hub)
	defer srv.Close()

	_, resp, err := dialHub(t, srv, "http://evil.example")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, 0, hub.Subscribers())
}

func TestHub_UnregistersOnDisconnect(t *testing.T) {
	hub := NewHub([]string{"*"}, logger.Nop())
	defer hub.Close()

	srv := httptest.NewServer(hub)
	defer srv.Close()

	c, _, err := dialHub(t, srv, "http://anywhere.example")
	require.NoError(t, err)
	readFrame(t, c)
	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, 5*time.Second, 10*time.Millisecond)

	c.Close()
	require.Eventually(t, func() bool { return hub.Subscribers() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestHub_NotifyWithoutSubscribers(t *testing.T) {
	hub := NewHub(nil, logger.Nop())
	assert.NoError(t, hub.Notify(context.Background(), testRecord()))
	assert.Equal(t, "websocket", hub.Name())
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"http://localhost:5173"})

	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, check(r), "no origin header")

	r.Header.Set("Origin", "HTTP://LOCALHOST:5173")
	assert.True(t, check(r))

	r.Header.Set("Origin", "http://localhost:3000")
	assert.False(t, check(r))
}
