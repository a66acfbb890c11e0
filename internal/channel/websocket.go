package channel

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"linepreview/internal/bus"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	wsMaxMessage = maxBodySize
	wsOutBuffer  = 8
)

// WSMessage is the JSON protocol of /ws. Clients send "update" frames with
// the editor state; the server answers with "preview" frames and a
// "status" frame on connect. Server frames are previewFrame values.
type WSMessage struct {
	Type string `json:"type"` // "update"
	renderRequest
}

type statusFrame struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	Live    bool   `json:"live"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The server binds to loopback by default and can require Basic auth.
		return true
	},
}

func (w *Web) handleWebSocket(rw http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(rw, r, nil)
	if err != nil {
		w.logger.Error("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()
	defer w.metrics.ClientConnected("websocket")()

	remote := r.RemoteAddr
	w.logger.Info("websocket client connected", "remote", remote)
	defer w.logger.Info("websocket client disconnected", "remote", remote)

	// Renders requested by this client and previews published by other
	// hosts share one writer; frames are deduplicated by sequence number.
	out := make(chan previewFrame, wsOutBuffer)
	var events <-chan bus.Event
	if w.events != nil {
		ch, cancel := w.events.Subscribe(bus.EventPreviewRefreshed, wsOutBuffer)
		defer cancel()
		events = ch
	}

	done := make(chan struct{})
	go w.wsReadLoop(conn, out, done)

	if err := w.writeFrame(conn, statusFrame{Type: "status", Content: "connected", Live: w.events != nil}); err != nil {
		return
	}

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	var lastSeq uint64
	for {
		var frame previewFrame
		select {
		case <-done:
			return
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			continue
		case frame = <-out:
		case e := <-events:
			p, ok := e.Payload.(bus.PreviewRefreshed)
			if !ok {
				continue
			}
			frame = frameOfEvent(p)
		}
		if frame.Seq <= lastSeq {
			continue
		}
		lastSeq = frame.Seq
		if err := w.writeFrame(conn, frame); err != nil {
			w.logger.Debug("websocket write failed", "remote", remote, "err", err)
			return
		}
	}
}

// wsReadLoop decodes client frames until the connection fails, rendering
// each update and queueing the result on out. It closes done on exit.
func (w *Web) wsReadLoop(conn *websocket.Conn, out chan previewFrame, done chan<- struct{}) {
	defer close(done)

	conn.SetReadLimit(wsMaxMessage)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				w.logger.Error("websocket read error", "err", err)
			}
			return
		}

		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			w.logger.Warn("invalid websocket message", "err", err)
			continue
		}

		switch msg.Type {
		case "update":
			frame := frameOfResult(w.render(msg.renderRequest))
			// Keep only the newest pending frame when the writer lags.
			select {
			case out <- frame:
			default:
				select {
				case <-out:
				default:
				}
				out <- frame
			}
		default:
			w.logger.Debug("ignoring websocket frame", "type", msg.Type)
		}
	}
}

func (w *Web) writeFrame(conn *websocket.Conn, v any) error {
	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(v)
}
