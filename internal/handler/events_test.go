package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fusetalk/fusetalk-server/internal/fanout"
)

func TestEventsHandler_RequiresUser(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodGet, "/api/events", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestEventsHandler_StreamsPersonalChannel(t *testing.T) {
	f := newAPIFixture(t)
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events", nil)
	require.NoError(t, err)
	req.Header.Set(testUserHeader, "alice")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	readEvent := func() (string, string) {
		t.Helper()
		var typ, data string
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			line = strings.TrimRight(line, "\n")
			switch {
			case strings.HasPrefix(line, "event: "):
				typ = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				data = strings.TrimPrefix(line, "data: ")
			case line == "" && typ != "":
				return typ, data
			}
		}
	}

	typ, _ := readEvent()
	require.Equal(t, "connected", typ)
	require.Eventually(t, func() bool {
		return f.hub.ClientCount(fanout.UserChannel("alice")) == 1
	}, time.Second, 10*time.Millisecond)

	ev, err := fanout.NewEvent(fanout.EventQueueUpdate, map[string]any{"position": 2})
	require.NoError(t, err)
	require.NoError(t, f.hub.Publish(ctx, fanout.UserChannel("alice"), ev))

	typ, data := readEvent()
	assert.Equal(t, "queue_update", typ)
	var payload map[string]int
	require.NoError(t, json.Unmarshal([]byte(data), &payload))
	assert.Equal(t, 2, payload["position"])
}

func TestEventsHandler_ShutdownReleasesStreams(t *testing.T) {
	f := newAPIFixture(t)
	srv := httptest.NewUnstartedServer(f.router)
	srv.Config.RegisterOnShutdown(f.hub.Close)
	srv.Start()
	t.Cleanup(srv.Close)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/events", nil)
	require.NoError(t, err)
	req.Header.Set(testUserHeader, "alice")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Eventually(t, func() bool {
		return f.hub.ClientCount(fanout.UserChannel("alice")) == 1
	}, time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Config.Shutdown(ctx))

	_, err = io.ReadAll(resp.Body)
	assert.NoError(t, err)
	assert.Equal(t, 0, f.hub.TotalClients())
}

func TestSSEStream_Send(t *testing.T) {
	rec := httptest.NewRecorder()

	err := sseStream{w: rec, f: rec}.send(fanout.Event{
		Type: "match_found",
		Data: json.RawMessage(`{"session_id":"s1"}`),
	})

	require.NoError(t, err)
	body := rec.Body.String()
	assert.Contains(t, body, "event: match_found\n")
	assert.Contains(t, body, `data: {"session_id":"s1"}`)
	assert.True(t, strings.HasSuffix(body, "\n\n"))
}
