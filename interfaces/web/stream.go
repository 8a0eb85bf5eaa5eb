package web

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/XXueTu/site_orchestrator/domain/messaging"
	"github.com/XXueTu/site_orchestrator/domain/trace"
)

// stream frame types
const (
	FrameSubscribed = "subscribed"
	FrameEvent      = "event"
	FrameMessage    = "message"
)

const (
	streamBuffer = 256
	writeTimeout = 5 * time.Second
)

// StreamFrame one JSON frame of the live stream
type StreamFrame struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleStream upgrades to a WebSocket and pushes trace events and bus
// messages as they happen. Frames are dropped when the client falls behind
// so that emitters never block on a slow reader.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	correlationID := r.URL.Query().Get("correlation_id")
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[web] websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	frames := make(chan StreamFrame, streamBuffer)
	push := func(f StreamFrame) {
		select {
		case frames <- f:
		default:
			log.Printf("[web] stream client behind, dropping %s frame", f.Type)
		}
	}
	stop := s.orchestrator.Watch(correlationID,
		func(e *trace.Event) { push(StreamFrame{Type: FrameEvent, Payload: e}) },
		func(m *messaging.Message) { push(StreamFrame{Type: FrameMessage, Payload: m}) },
	)
	defer stop()

	// the client only sends close frames; reading surfaces them
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Printf("[web] websocket read error: %v", err)
				}
				return
			}
		}
	}()

	if err := s.writeFrame(conn, StreamFrame{Type: FrameSubscribed, Payload: map[string]string{"correlation_id": correlationID}}); err != nil {
		return
	}
	for {
		select {
		case f := <-frames:
			if err := s.writeFrame(conn, f); err != nil {
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) writeFrame(conn *websocket.Conn, f StreamFrame) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	if err := conn.WriteJSON(f); err != nil {
		log.Printf("[web] websocket write error: %v", err)
		return err
	}
	return nil
}
