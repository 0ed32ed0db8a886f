package main

import (
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"athena/internal/turn"
)

// ========== Chat Endpoint ==========

// handleChat serves the single POST route the widget talks to. One call is
// one full turn: validate, upload new documents, merge handles, ask the
// model, reply with {reply, file_ids}.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	reqID := uuid.NewString()[:8]

	req, err := s.parseTurnRequest(r)
	if err != nil {
		jsonErr(w, err.Error(), http.StatusBadRequest)
		return
	}

	log.Printf("[%s] turn: text=%dB new_files=%d handles=%d lang=%s",
		reqID, len(req.Message), len(req.NewFiles), len(req.Handles), req.Lang)

	start := time.Now()
	resp, err := s.orc.Run(r.Context(), req, nil)
	if err != nil {
		kind := turn.KindOf(err)
		log.Printf("[%s] turn failed (%s) after %v: %v", reqID, kind, time.Since(start), err)
		jsonErr(w, err.Error(), turn.HTTPStatus(kind))
		return
	}

	log.Printf("[%s] turn ok in %v: reply=%dB active_docs=%d truncated=%v",
		reqID, time.Since(start), len(resp.Reply), len(resp.Handles), resp.Truncated)
	jsonResp(w, turnResponse(resp))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	jsonResp(w, map[string]interface{}{
		"status":          "ok",
		"max_active_docs": s.orc.MaxActiveDocs,
		"max_files":       s.orc.Policy.MaxFiles,
		"default_lang":    s.defaultLang,
	})
}
