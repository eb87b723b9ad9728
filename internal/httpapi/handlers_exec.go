package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
)

var execUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsEvent is the exec terminal's wire message shape (§4.9): data, resize,
// out, err, connected, disconnected.
type wsEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type resizePayload struct {
	Height uint `json:"height"`
	Width  uint `json:"width"`
}

func sendEvent(conn *websocket.Conn, typ string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return conn.WriteJSON(wsEvent{Type: typ, Data: data})
}

// handleContainerExec implements the exec terminal (§4.9): a WebSocket that
// bridges an upgraded exec session's duplex byte stream to the browser.
func (s *Server) handleContainerExec(w http.ResponseWriter, r *http.Request) {
	nodeName := r.URL.Query().Get("node_name")
	containerID := r.URL.Query().Get("id")

	conn, err := execUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	state, ok := s.resolveNode(r)
	if !ok || nodeName == "" || containerID == "" {
		_ = sendEvent(conn, "err", "unknown node")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	execID, err := state.Engine.CreateExec(ctx, containerID, []string{"sh"})
	if err != nil {
		_ = sendEvent(conn, "err", err.Error())
		return
	}
	hijacked, err := state.Engine.StartExec(ctx, execID)
	if err != nil {
		_ = sendEvent(conn, "err", err.Error())
		return
	}
	defer hijacked.Close()

	_ = sendEvent(conn, "connected", "ok")

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		buf := make([]byte, 4096)
		for {
			n, err := hijacked.Reader.Read(buf)
			if n > 0 {
				if sendErr := sendEvent(conn, "out", string(buf[:n])); sendErr != nil {
					return
				}
			}
			if err != nil {
				return
			}
			select {
			case <-ctx.Done():
				return
			default:
			}
		}
	}()

	for {
		var evt wsEvent
		if err := conn.ReadJSON(&evt); err != nil {
			break
		}
		switch evt.Type {
		case "data":
			var text string
			if err := json.Unmarshal(evt.Data, &text); err == nil {
				_, _ = hijacked.Conn.Write([]byte(text))
			}
		case "resize":
			var sz resizePayload
			if err := json.Unmarshal(evt.Data, &sz); err == nil {
				_ = state.Engine.ResizeExec(ctx, execID, sz.Height, sz.Width)
			}
		}
	}

	_, _ = hijacked.Conn.Write([]byte("exit\n"))
	cancel()
	<-readerDone
	_ = sendEvent(conn, "disconnected", "ok")
}
