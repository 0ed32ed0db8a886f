package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"athena/internal/turn"
)

// Server holds the shared collaborators. There is no per-conversation
// state here: every turn request carries its own document context.
type Server struct {
	orc         *turn.Orchestrator
	defaultLang string
}

// ----- Request / Response types -----

// TurnResponse is the JSON body of a successful turn. FileIDs is the
// authoritative active document set the client must resend next turn.
type TurnResponse struct {
	Reply     string   `json:"reply"`
	FileIDs   []string `json:"file_ids"`
	Truncated bool     `json:"truncated,omitempty"`
}

type jsonTurnRequest struct {
	Message string   `json:"message"`
	FileIDs []string `json:"file_ids"`
	Lang    string   `json:"lang"`
}

// parseTurnRequest accepts either a JSON body {message, file_ids, lang} or
// a multipart form with fields message, lang, repeated "file" parts, and
// file_ids (JSON array) or repeated file_id values.
func (s *Server) parseTurnRequest(r *http.Request) (*turn.Request, error) {
	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "multipart/form-data") {
		return s.parseMultipartTurn(r)
	}

	var body jsonTurnRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("invalid JSON body")
	}
	return &turn.Request{
		Message: body.Message,
		Lang:    s.langOrDefault(body.Lang),
		Handles: body.FileIDs,
	}, nil
}

func (s *Server) parseMultipartTurn(r *http.Request) (*turn.Request, error) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return nil, fmt.Errorf("invalid multipart form")
	}

	req := &turn.Request{
		Message: r.FormValue("message"),
		Lang:    s.langOrDefault(r.FormValue("lang")),
	}

	// file_ids as a JSON-encoded array, or repeated file_id fields
	if raw := r.FormValue("file_ids"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.Handles); err != nil {
			return nil, fmt.Errorf("file_ids is not a valid JSON array")
		}
	} else {
		req.Handles = r.MultipartForm.Value["file_id"]
	}

	files := r.MultipartForm.File["file"]
	if len(files) == 0 {
		files = r.MultipartForm.File["files"]
	}

	maxBytes := s.orc.Policy.MaxFileBytes
	for _, fh := range files {
		// Reject oversized parts before buffering them, and report the
		// real size, not the read cap.
		if fh.Size > maxBytes {
			return nil, fmt.Errorf("file %s is too large: %d MB, the per-file limit is %d MB",
				fh.Filename, fh.Size>>20, maxBytes>>20)
		}
		src, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("could not read uploaded file %s", fh.Filename)
		}
		data, err := io.ReadAll(io.LimitReader(src, maxBytes+1))
		src.Close()
		if err != nil {
			return nil, fmt.Errorf("could not read uploaded file %s", fh.Filename)
		}
		req.NewFiles = append(req.NewFiles, turn.NewFile{
			Name: fh.Filename,
			MIME: fh.Header.Get("Content-Type"),
			Data: data,
		})
	}

	return req, nil
}

func (s *Server) langOrDefault(lang string) string {
	if strings.TrimSpace(lang) == "" {
		return s.defaultLang
	}
	return lang
}

// turnResponse converts an orchestrator result, keeping file_ids a JSON
// array even when empty.
func turnResponse(resp *turn.Response) TurnResponse {
	out := TurnResponse{
		Reply:     resp.Reply,
		FileIDs:   resp.Handles,
		Truncated: resp.Truncated,
	}
	if out.FileIDs == nil {
		out.FileIDs = []string{}
	}
	return out
}

// ========== Middleware ==========

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ========== Helpers ==========

func jsonResp(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func jsonErr(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
