// Package session models the client side of the document-context protocol:
// which files are waiting to be uploaded, which document handles are active
// from earlier turns, and whether a turn is currently in flight. The
// server is stateless; this object is the only memory the conversation has.
package session

import (
	"errors"
	"sync"
	"time"

	"athena/internal/turn"
)

var (
	// ErrEmptyTurn means the turn carries no text, no new files and no
	// active documents, and must not be sent.
	ErrEmptyTurn = errors.New("nothing to send: type a message or attach a document")

	// ErrTurnInFlight means a previous turn has not resolved yet.
	ErrTurnInFlight = errors.New("a turn is already in progress")
)

// PendingFile is a locally chosen file that has not been uploaded yet.
// Name, Size and ModTime together identify a selection, so re-picking the
// same file is a no-op.
type PendingFile struct {
	Name    string
	Size    int64
	ModTime time.Time
	MIME    string
	Data    []byte
}

// Session tracks conversation state across turns. Safe for concurrent use.
type Session struct {
	mu       sync.Mutex
	lang     string
	pending  []PendingFile
	active   []string
	inFlight bool
}

// New creates an empty session for the given locale.
func New(lang string) *Session {
	return &Session{lang: lang}
}

// AddFiles appends newly chosen files to the pending-upload buffer,
// skipping any whose (name, size, mtime) triple is already pending.
// Returns how many were actually added.
func (s *Session) AddFiles(files ...PendingFile) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := 0
	for _, f := range files {
		if s.hasPending(f) {
			continue
		}
		s.pending = append(s.pending, f)
		added++
	}
	return added
}

func (s *Session) hasPending(f PendingFile) bool {
	for _, p := range s.pending {
		if p.Name == f.Name && p.Size == f.Size && p.ModTime.Equal(f.ModTime) {
			return true
		}
	}
	return false
}

// ClearDocuments drops both the pending buffer and the active document
// set: the user is starting a new, unrelated case.
func (s *Session) ClearDocuments() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = nil
	s.active = nil
}

// PendingCount reports how many files await upload.
func (s *Session) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// ActiveDocuments returns a copy of the active document set.
func (s *Session) ActiveDocuments() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.active))
	copy(out, s.active)
	return out
}

// ComposeTurn builds the next turn request from free text (possibly
// empty). On success the session is marked in flight until OnTurnSuccess
// or OnTurnFailure is called; further compose attempts are rejected in the
// meantime so two turns can never race on the same document set.
//
// Pending uploads always accumulate onto the prior active handles; earlier
// documents are never silently dropped short of ClearDocuments.
func (s *Session) ComposeTurn(text string) (*turn.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inFlight {
		return nil, ErrTurnInFlight
	}

	effective := turn.EffectiveMessage(text, len(s.pending) > 0, len(s.active) > 0, s.lang)
	if effective == "" {
		return nil, ErrEmptyTurn
	}

	req := &turn.Request{
		Message: effective,
		Lang:    s.lang,
		Handles: make([]string, len(s.active)),
	}
	copy(req.Handles, s.active)
	for _, p := range s.pending {
		req.NewFiles = append(req.NewFiles, turn.NewFile{
			Name: p.Name,
			MIME: p.MIME,
			Data: p.Data,
		})
	}

	s.inFlight = true
	return req, nil
}

// OnTurnSuccess absorbs the server's response: the returned handle list
// replaces the local one wholesale, and the pending buffer is cleared
// since those files now live in the remote store.
func (s *Session) OnTurnSuccess(resp *turn.Response) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.active = make([]string, len(resp.Handles))
	copy(s.active, resp.Handles)
	s.pending = nil
	s.inFlight = false
}

// OnTurnFailure releases the in-flight lock and leaves everything else
// untouched, so the user can simply retry.
func (s *Session) OnTurnFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = false
}
