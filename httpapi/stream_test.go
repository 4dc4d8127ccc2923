package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialStream(t *testing.T, httpURL, executionID string) *websocket.Conn {
	t.Helper()
	wsURL := strings.Replace(httpURL, "http://", "ws://", 1) +
		"/executions/" + executionID + "/stream"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestStreamDeliversEvents(t *testing.T) {
	ts, _ := newTestServer(t)
	snap := startExecution(t, ts)

	conn := dialStream(t, ts.URL, snap.ExecutionID)

	resp := postJSON(t, ts.URL+"/executions/"+snap.ExecutionID+"/messages",
		map[string]string{"text": "can we get a discount?"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// The bus dispatches asynchronously, so read frames until the user
	// message shows up.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	seen := make(map[string]bool)
	for !seen["message.appended"] {
		_, frame, err := conn.ReadMessage()
		require.NoError(t, err)

		var evt struct {
			Type        string `json:"type"`
			ExecutionID string `json:"execution_id"`
			WorkflowID  string `json:"workflow_id"`
		}
		require.NoError(t, json.Unmarshal(frame, &evt))
		assert.Equal(t, snap.ExecutionID, evt.ExecutionID)
		assert.Equal(t, "renewal-v2", evt.WorkflowID)
		seen[evt.Type] = true
	}
}

func TestStreamUnknownExecution(t *testing.T) {
	ts, _ := newTestServer(t)

	wsURL := strings.Replace(ts.URL, "http://", "ws://", 1) + "/executions/nope/stream"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	if conn != nil {
		conn.Close()
	}
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStreamClientDisconnect(t *testing.T) {
	ts, _ := newTestServer(t)
	snap := startExecution(t, ts)

	conn := dialStream(t, ts.URL, snap.ExecutionID)
	require.NoError(t, conn.Close())

	// The session keeps working after the stream client goes away.
	resp := postJSON(t, ts.URL+"/executions/"+snap.ExecutionID+"/messages",
		map[string]string{"text": "still here"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}
