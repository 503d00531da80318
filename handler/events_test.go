//go:build !js && !tinygo && !cloudflare

package handler

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/dashdeck/internal/export"
)

func TestEventsStreamUntilTerminal(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	resp, err := http.Post(ts.URL+"/exports", "application/json", strings.NewReader(dashboardJSON))
	require.NoError(t, err)
	started := decode[StartResponse](t, resp)

	u := "ws" + strings.TrimPrefix(ts.URL, "http") + "/exports/" + started.ID + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	defer conn.Close()

	var last export.JobStatus
	for {
		conn.SetReadDeadline(time.Now().Add(10 * time.Second))
		var st export.JobStatus
		if err := conn.ReadJSON(&st); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)
			break
		}
		assert.Equal(t, started.ID, st.ID)
		assert.GreaterOrEqual(t, st.Progress.Current, last.Progress.Current)
		last = st
	}
	assert.Equal(t, export.Completed, last.State)
	assert.Equal(t, 3, last.Progress.Current)
}

func TestEventsUnknownJob(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	u := "ws" + strings.TrimPrefix(ts.URL, "http") + "/exports/nope/events"
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
