package httpapi

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/HarborLabs/playbook/events"
	"github.com/HarborLabs/playbook/logger"
)

const (
	// streamBufferSize bounds the per-client event queue. Events beyond
	// the buffer are dropped rather than blocking the engine.
	streamBufferSize = 64

	// streamWriteTimeout bounds each WebSocket write.
	streamWriteTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// wireEvent is the JSON frame sent to stream clients.
type wireEvent struct {
	Type        events.EventType `json:"type"`
	Timestamp   time.Time        `json:"timestamp"`
	ExecutionID string           `json:"execution_id"`
	WorkflowID  string           `json:"workflow_id"`
	Data        events.EventData `json:"data,omitempty"`
}

// handleStream upgrades the connection and forwards the execution's events
// as JSON frames until the client disconnects.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, errExecutionNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		return
	}

	var closed atomic.Bool
	queue := make(chan *events.Event, streamBufferSize)

	// The closed flag guards the race between unsubscribing and an async
	// dispatch already holding the listener.
	unsubscribe := sess.bus.SubscribeAll(func(evt *events.Event) {
		if closed.Load() {
			return
		}
		select {
		case queue <- evt:
		default:
			// Slow consumer: drop rather than block the engine.
		}
	})

	// Reader goroutine detects client disconnect.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, readErr := conn.ReadMessage(); readErr != nil {
				return
			}
		}
	}()

	defer func() {
		closed.Store(true)
		unsubscribe()
		_ = conn.Close()
	}()

	for {
		select {
		case evt := <-queue:
			frame := wireEvent{
				Type:        evt.Type,
				Timestamp:   evt.Timestamp,
				ExecutionID: evt.ExecutionID,
				WorkflowID:  evt.WorkflowID,
				Data:        evt.Data,
			}
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := conn.WriteJSON(frame); err != nil {
				logger.Warn("stream write failed", "execution_id", evt.ExecutionID, "error", err)
				return
			}
		case <-done:
			return
		}
	}
}
