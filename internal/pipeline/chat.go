package pipeline

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/nbakr/marko/internal/feedback"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The API is local-first; cross-origin is handled by the CORS layer.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// chatMessage is one inbound websocket frame.
type chatMessage struct {
	Type string `json:"type"` // message, approve, revise, feedback
	Text string `json:"text,omitempty"`
	Note string `json:"note,omitempty"`

	Rating    int      `json:"rating,omitempty"`
	Comment   string   `json:"comment,omitempty"`
	Worked    []string `json:"worked,omitempty"`
	NeedsWork []string `json:"needs_work,omitempty"`
	Signal    string   `json:"signal,omitempty"`
}

type chatError struct {
	Error string `json:"error"`
}

// ChatHandler serves the interactive websocket chat for one conversation.
// Each inbound frame maps to the same operations as the REST API; every
// frame gets exactly one reply frame.
func ChatHandler(co *Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conversationID := chi.URLParam(r, "id")

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("pipeline: websocket upgrade: %v", err)
			return
		}
		defer conn.Close()

		for {
			var msg chatMessage
			if err := conn.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Printf("pipeline: websocket read: %v", err)
				}
				return
			}

			var reply *Reply
			switch msg.Type {
			case "message":
				reply, err = co.Message(r.Context(), conversationID, msg.Text)
			case "approve":
				reply, err = co.ApprovePreview(r.Context(), conversationID)
			case "revise":
				reply, err = co.RevisePreview(r.Context(), conversationID, msg.Note)
			case "feedback":
				reply, err = co.SubmitFeedback(r.Context(), conversationID, &feedback.Feedback{
					Rating:         msg.Rating,
					Comment:        msg.Comment,
					Worked:         msg.Worked,
					NeedsWork:      msg.NeedsWork,
					ImplicitSignal: feedback.ImplicitSignal(msg.Signal),
				})
			default:
				err = writeFrame(conn, chatError{Error: "unknown message type: " + msg.Type})
				if err != nil {
					return
				}
				continue
			}

			if err != nil {
				if writeFrame(conn, chatError{Error: err.Error()}) != nil {
					return
				}
				continue
			}
			if writeFrame(conn, reply) != nil {
				return
			}
		}
	}
}

func writeFrame(conn *websocket.Conn, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}
