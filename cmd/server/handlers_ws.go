package main

import (
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"athena/internal/turn"
)

// ========== Websocket Endpoint ==========

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The widget is embedded on arbitrary customer pages, same as the
	// CORS policy on the POST route.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsTurnRequest is a text-or-handles turn; binary uploads stay on the
// multipart POST route.
type wsTurnRequest struct {
	Message string   `json:"message"`
	FileIDs []string `json:"file_ids"`
	Lang    string   `json:"lang"`
}

type wsPhaseEvent struct {
	Phase string `json:"phase"`
}

// wsReplyEvent mirrors the POST route's body. FileIDs is always present,
// even when empty: it is the authoritative active set the client must
// store for the next turn.
type wsReplyEvent struct {
	Reply     string   `json:"reply"`
	FileIDs   []string `json:"file_ids"`
	Truncated bool     `json:"truncated,omitempty"`
}

type wsErrorEvent struct {
	Error string `json:"error"`
}

// handleChatWS runs turns over a websocket, emitting a {phase} event as
// the orchestrator advances and a final reply or error event per turn.
// Turns on one connection run sequentially, matching the client's
// single-flight discipline.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	connID := uuid.NewString()[:8]
	log.Printf("[ws %s] connected from %s", connID, r.RemoteAddr)

	for {
		var in wsTurnRequest
		if err := conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("[ws %s] read error: %v", connID, err)
			}
			return
		}

		req := &turn.Request{
			Message: in.Message,
			Lang:    s.langOrDefault(in.Lang),
			Handles: in.FileIDs,
		}

		progress := func(p turn.Phase) {
			_ = conn.WriteJSON(wsPhaseEvent{Phase: string(p)})
		}

		resp, err := s.orc.Run(r.Context(), req, progress)
		if err != nil {
			log.Printf("[ws %s] turn failed (%s): %v", connID, turn.KindOf(err), err)
			_ = conn.WriteJSON(wsErrorEvent{Error: err.Error()})
			continue
		}

		out := wsReplyEvent{
			Reply:     resp.Reply,
			FileIDs:   resp.Handles,
			Truncated: resp.Truncated,
		}
		if out.FileIDs == nil {
			out.FileIDs = []string{}
		}
		if err := conn.WriteJSON(out); err != nil {
			log.Printf("[ws %s] write error: %v", connID, err)
			return
		}
	}
}
