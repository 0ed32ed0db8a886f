// Package turn implements the per-request orchestration of one chat turn:
// validate the request, upload any new documents to the remote file store,
// merge their handles with the handles the client already held, invoke the
// model with the full document context, and hand back the reply plus the
// authoritative handle list. The server keeps no state between turns; the
// client resends its handle list every time.
package turn

import (
	"context"
	"errors"
	"strings"
	"time"

	"athena/internal/docs"
	"athena/internal/llm"
)

// NewFile is one raw upload attached to a turn.
type NewFile struct {
	Name string
	MIME string
	Data []byte
}

// Request is one user turn as received by the gateway.
type Request struct {
	Message  string
	Lang     string
	NewFiles []NewFile
	Handles  []string // active document set as known by the client
}

// Response is the successful outcome of a turn. Handles is the
// authoritative active document set after this turn; the client replaces
// its local copy with it.
type Response struct {
	Reply     string
	Handles   []string
	Truncated bool
}

// Phase names the states a turn passes through. Callers may observe them
// through the progress callback (the websocket endpoint streams them).
type Phase string

const (
	PhaseValidating Phase = "validating"
	PhaseUploading  Phase = "uploading"
	PhaseMerging    Phase = "merging"
	PhaseInvoking   Phase = "invoking"
	PhaseExtracting Phase = "extracting"
	PhaseDone       Phase = "done"
)

// Uploader registers one file with the remote store, returning its handle.
type Uploader interface {
	Upload(ctx context.Context, name, mime string, data []byte) (string, error)
}

// Model performs one model invocation over the full document context.
type Model interface {
	Respond(ctx context.Context, message string, handles []string, lang string) (*llm.Reply, error)
}

// Orchestrator runs turns. It is stateless and safe for concurrent use;
// every request carries its own full context.
type Orchestrator struct {
	Store  Uploader
	Model  Model
	Policy docs.Policy

	MaxActiveDocs int           // cap on the merged active document set
	UploadTimeout time.Duration // per file
	ModelTimeout  time.Duration // per model invocation
}

// DefaultMaxActiveDocs bounds model context size and per-turn cost.
const DefaultMaxActiveDocs = 5

// NewOrchestrator wires an orchestrator with production bounds.
func NewOrchestrator(store Uploader, model Model) *Orchestrator {
	return &Orchestrator{
		Store:         store,
		Model:         model,
		Policy:        docs.DefaultPolicy(),
		MaxActiveDocs: DefaultMaxActiveDocs,
		UploadTimeout: 25 * time.Second,
		ModelTimeout:  35 * time.Second,
	}
}

// Run executes one turn. progress may be nil. No retries happen at any
// stage; a failed turn is retried only by the user.
func (o *Orchestrator) Run(ctx context.Context, req *Request, progress func(Phase)) (*Response, error) {
	report := func(p Phase) {
		if progress != nil {
			progress(p)
		}
	}

	report(PhaseValidating)
	effective, err := o.validate(req)
	if err != nil {
		return nil, err
	}

	var uploaded []string
	if len(req.NewFiles) > 0 {
		report(PhaseUploading)
		uploaded, err = o.uploadNew(ctx, req.NewFiles)
		if err != nil {
			return nil, err
		}
	}

	report(PhaseMerging)
	merged := MergeHandles(req.Handles, uploaded, o.MaxActiveDocs)

	report(PhaseInvoking)
	mctx, cancel := context.WithTimeout(ctx, o.ModelTimeout)
	defer cancel()
	reply, err := o.Model.Respond(mctx, effective, merged, req.Lang)
	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			return nil, failf(KindTimeout, "the assistant took too long to answer", err)
		case errors.Is(err, llm.ErrEmptyReply):
			return nil, failf(KindEmptyReply, "the assistant returned an empty reply", err)
		default:
			return nil, failf(KindUpstream, "the assistant could not answer", err)
		}
	}

	report(PhaseExtracting)
	if strings.TrimSpace(reply.Text) == "" {
		return nil, failf(KindEmptyReply, "the assistant returned an empty reply", nil)
	}

	report(PhaseDone)
	return &Response{
		Reply:     reply.Text,
		Handles:   merged,
		Truncated: reply.Truncated,
	}, nil
}

// validate applies the admission policy and returns the effective message.
// All checks run before any remote call.
func (o *Orchestrator) validate(req *Request) (string, error) {
	effective := EffectiveMessage(req.Message, len(req.NewFiles) > 0, len(req.Handles) > 0, req.Lang)
	if effective == "" {
		return "", failf(KindInvalidRequest, "empty message with no documents", nil)
	}

	var total int64
	for _, f := range req.NewFiles {
		total += int64(len(f.Data))
	}
	if err := o.Policy.CheckBatch(len(req.NewFiles), total); err != nil {
		return "", failf(KindValidation, err.Error(), nil)
	}
	for _, f := range req.NewFiles {
		if err := o.Policy.CheckFile(f.Name, f.MIME, f.Data); err != nil {
			return "", failf(KindValidation, err.Error(), nil)
		}
	}
	return effective, nil
}

// uploadNew registers each file sequentially. A single failure aborts the
// whole turn; there is no partial success, so the active document set can
// never end up half-updated.
func (o *Orchestrator) uploadNew(ctx context.Context, files []NewFile) ([]string, error) {
	ids := make([]string, 0, len(files))
	for _, f := range files {
		uctx, cancel := context.WithTimeout(ctx, o.UploadTimeout)
		id, err := o.Store.Upload(uctx, f.Name, f.MIME, f.Data)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, failf(KindTimeout, "upload timed out for "+f.Name, err)
			}
			return nil, failf(KindUpload, "upload failed for "+f.Name, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// MergeHandles produces the deduplicated union {incoming..., uploaded...},
// order-preserving, truncated to max keeping the most recently added
// entries. Newer documents win because they represent current intent.
func MergeHandles(incoming, uploaded []string, max int) []string {
	seen := make(map[string]bool, len(incoming)+len(uploaded))
	merged := make([]string, 0, len(incoming)+len(uploaded))
	for _, set := range [][]string{incoming, uploaded} {
		for _, id := range set {
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			merged = append(merged, id)
		}
	}
	if max > 0 && len(merged) > max {
		merged = merged[len(merged)-max:]
	}
	return merged
}
