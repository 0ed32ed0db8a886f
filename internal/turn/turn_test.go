package turn

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"athena/internal/llm"
)

// ========== Fakes ==========

type fakeStore struct {
	mu     sync.Mutex
	calls  int
	failOn int // 1-based call number that fails; 0 = never
	err    error
	delay  time.Duration
}

func (f *fakeStore) Upload(ctx context.Context, name, mime string, data []byte) (string, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.failOn != 0 && n == f.failOn {
		err := f.err
		if err == nil {
			err = errors.New("store rejected the file")
		}
		return "", err
	}
	return fmt.Sprintf("file-%d", n), nil
}

func (f *fakeStore) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeModel struct {
	reply     string
	truncated bool
	err       error
	delay     time.Duration

	calls      int
	gotMessage string
	gotHandles []string
	gotLang    string
}

func (m *fakeModel) Respond(ctx context.Context, message string, handles []string, lang string) (*llm.Reply, error) {
	m.calls++
	m.gotMessage = message
	m.gotHandles = handles
	m.gotLang = lang

	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	return &llm.Reply{Text: m.reply, Truncated: m.truncated}, nil
}

func newTestOrchestrator(store *fakeStore, model *fakeModel) *Orchestrator {
	o := NewOrchestrator(store, model)
	o.UploadTimeout = 200 * time.Millisecond
	o.ModelTimeout = 200 * time.Millisecond
	return o
}

func pngFile(name string, size int) NewFile {
	data := append([]byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}, make([]byte, size)...)
	return NewFile{Name: name, MIME: "image/png", Data: data}
}

// ========== MergeHandles ==========

func TestMergeHandles_DedupPreservesOrder(t *testing.T) {
	got := MergeHandles([]string{"a", "b"}, []string{"b", "c"}, 5)
	want := []string{"a", "b", "c"}
	if !equalStrings(got, want) {
		t.Errorf("merge = %v, want %v", got, want)
	}
}

func TestMergeHandles_TruncatesOldestFirst(t *testing.T) {
	got := MergeHandles([]string{"a", "b", "c"}, []string{"d"}, 3)
	want := []string{"b", "c", "d"}
	if !equalStrings(got, want) {
		t.Errorf("merge = %v, want %v", got, want)
	}
}

func TestMergeHandles_SkipsEmptyIDs(t *testing.T) {
	got := MergeHandles([]string{"", "a"}, []string{"", "b"}, 5)
	want := []string{"a", "b"}
	if !equalStrings(got, want) {
		t.Errorf("merge = %v, want %v", got, want)
	}
}

func TestMergeHandles_Empty(t *testing.T) {
	got := MergeHandles(nil, nil, 5)
	if len(got) != 0 {
		t.Errorf("expected empty merge, got %v", got)
	}
}

// ========== EffectiveMessage ==========

func TestEffectiveMessage_LiteralText(t *testing.T) {
	got := EffectiveMessage("  Τι καλύπτει ο ΦΠΑ;  ", true, true, "el")
	if got != "Τι καλύπτει ο ΦΠΑ;" {
		t.Errorf("effective = %q, want trimmed literal text", got)
	}
}

func TestEffectiveMessage_AnalyzeDefault(t *testing.T) {
	got := EffectiveMessage("", true, false, "el")
	if got != AnalyzeInstruction("el") {
		t.Errorf("effective = %q, want analyze instruction", got)
	}
	if !strings.Contains(got, "Καλύψεις") {
		t.Errorf("greek analyze instruction should name the sections, got %q", got)
	}
}

func TestEffectiveMessage_ContinueDefault(t *testing.T) {
	got := EffectiveMessage("", false, true, "en")
	if got != ContinueInstruction("en") {
		t.Errorf("effective = %q, want continue instruction", got)
	}
}

func TestEffectiveMessage_NewFilesWinOverActiveDocs(t *testing.T) {
	got := EffectiveMessage("", true, true, "el")
	if got != AnalyzeInstruction("el") {
		t.Errorf("effective = %q, want analyze instruction when new files are attached", got)
	}
}

func TestEffectiveMessage_Empty(t *testing.T) {
	if got := EffectiveMessage("   ", false, false, "el"); got != "" {
		t.Errorf("expected empty effective message, got %q", got)
	}
}

// ========== Run: validation ==========

func TestRun_RejectsEmptyTurn(t *testing.T) {
	store := &fakeStore{}
	model := &fakeModel{reply: "hi"}
	o := newTestOrchestrator(store, model)

	_, err := o.Run(context.Background(), &Request{Message: "  "}, nil)
	if KindOf(err) != KindInvalidRequest {
		t.Fatalf("kind = %v, want invalid_request (err: %v)", KindOf(err), err)
	}
	if store.callCount() != 0 || model.calls != 0 {
		t.Error("no remote calls expected for an invalid turn")
	}
}

func TestRun_RejectsDisallowedType(t *testing.T) {
	store := &fakeStore{}
	model := &fakeModel{reply: "hi"}
	o := newTestOrchestrator(store, model)

	req := &Request{NewFiles: []NewFile{{Name: "notes.txt", MIME: "text/plain", Data: []byte("hello")}}}
	_, err := o.Run(context.Background(), req, nil)
	if KindOf(err) != KindValidation {
		t.Fatalf("kind = %v, want validation (err: %v)", KindOf(err), err)
	}
	if !strings.Contains(err.Error(), "not allowed") {
		t.Errorf("error should name the type problem, got %q", err.Error())
	}
	if store.callCount() != 0 {
		t.Error("rejected file must not reach the remote store")
	}
}

func TestRun_RejectsOversizedFile(t *testing.T) {
	store := &fakeStore{}
	model := &fakeModel{reply: "hi"}
	o := newTestOrchestrator(store, model)

	req := &Request{NewFiles: []NewFile{{
		Name: "big.pdf",
		MIME: "application/pdf",
		Data: make([]byte, 11<<20),
	}}}
	_, err := o.Run(context.Background(), req, nil)
	if KindOf(err) != KindValidation {
		t.Fatalf("kind = %v, want validation (err: %v)", KindOf(err), err)
	}
	if !strings.Contains(err.Error(), "too large") || !strings.Contains(err.Error(), "10") {
		t.Errorf("error should reference the size limit, got %q", err.Error())
	}
	if store.callCount() != 0 {
		t.Error("oversized file must not reach the remote store")
	}
}

func TestRun_RejectsTooManyFiles(t *testing.T) {
	store := &fakeStore{}
	model := &fakeModel{reply: "hi"}
	o := newTestOrchestrator(store, model)

	var files []NewFile
	for i := 0; i < o.Policy.MaxFiles+1; i++ {
		files = append(files, pngFile(fmt.Sprintf("img%d.png", i), 64))
	}
	_, err := o.Run(context.Background(), &Request{NewFiles: files}, nil)
	if KindOf(err) != KindValidation {
		t.Fatalf("kind = %v, want validation (err: %v)", KindOf(err), err)
	}
	if !strings.Contains(err.Error(), "too many files") {
		t.Errorf("error = %q, want a too-many-files message", err.Error())
	}
}

func TestRun_RejectsOversizedBatch(t *testing.T) {
	store := &fakeStore{}
	model := &fakeModel{reply: "hi"}
	o := newTestOrchestrator(store, model)

	// Three files, each under the per-file cap, together over the total cap.
	req := &Request{NewFiles: []NewFile{
		pngFile("a.png", 7<<20),
		pngFile("b.png", 7<<20),
		pngFile("c.png", 7<<20),
	}}
	_, err := o.Run(context.Background(), req, nil)
	if KindOf(err) != KindValidation {
		t.Fatalf("kind = %v, want validation (err: %v)", KindOf(err), err)
	}
	if !strings.Contains(err.Error(), "attachments too large") {
		t.Errorf("error = %q, want an aggregate-size message", err.Error())
	}
}

// ========== Run: uploads ==========

func TestRun_UploadFailureAbortsTurn(t *testing.T) {
	store := &fakeStore{failOn: 2}
	model := &fakeModel{reply: "hi"}
	o := newTestOrchestrator(store, model)

	req := &Request{NewFiles: []NewFile{
		pngFile("a.png", 64),
		pngFile("b.png", 64),
		pngFile("c.png", 64),
	}}
	_, err := o.Run(context.Background(), req, nil)
	if KindOf(err) != KindUpload {
		t.Fatalf("kind = %v, want upload (err: %v)", KindOf(err), err)
	}
	if !strings.Contains(err.Error(), "b.png") {
		t.Errorf("error should identify the failed file, got %q", err.Error())
	}
	if model.calls != 0 {
		t.Error("model must not be invoked after an upload failure")
	}
}

func TestRun_UploadTimeoutIsDistinct(t *testing.T) {
	store := &fakeStore{delay: time.Second}
	model := &fakeModel{reply: "hi"}
	o := newTestOrchestrator(store, model)
	o.UploadTimeout = 20 * time.Millisecond

	req := &Request{NewFiles: []NewFile{pngFile("slow.png", 64)}}
	_, err := o.Run(context.Background(), req, nil)
	if KindOf(err) != KindTimeout {
		t.Fatalf("kind = %v, want timeout (err: %v)", KindOf(err), err)
	}
	if !strings.Contains(err.Error(), "upload timed out") {
		t.Errorf("error = %q, want an upload-timeout message", err.Error())
	}
}

// ========== Run: model ==========

func TestRun_ModelTimeout(t *testing.T) {
	store := &fakeStore{}
	model := &fakeModel{reply: "hi", delay: time.Second}
	o := newTestOrchestrator(store, model)
	o.ModelTimeout = 20 * time.Millisecond

	resp, err := o.Run(context.Background(), &Request{Message: "hello", Handles: []string{"a"}}, nil)
	if resp != nil {
		t.Fatal("expected no response on timeout")
	}
	if KindOf(err) != KindTimeout {
		t.Fatalf("kind = %v, want timeout (err: %v)", KindOf(err), err)
	}
}

func TestRun_EmptyReply(t *testing.T) {
	store := &fakeStore{}
	model := &fakeModel{err: llm.ErrEmptyReply}
	o := newTestOrchestrator(store, model)

	_, err := o.Run(context.Background(), &Request{Message: "hello"}, nil)
	if KindOf(err) != KindEmptyReply {
		t.Fatalf("kind = %v, want empty_reply (err: %v)", KindOf(err), err)
	}
}

func TestRun_UpstreamErrorPreservesMessage(t *testing.T) {
	store := &fakeStore{}
	model := &fakeModel{err: errors.New("openai api error: 429 - quota exceeded")}
	o := newTestOrchestrator(store, model)

	_, err := o.Run(context.Background(), &Request{Message: "hello"}, nil)
	if KindOf(err) != KindUpstream {
		t.Fatalf("kind = %v, want upstream (err: %v)", KindOf(err), err)
	}
	if !strings.Contains(err.Error(), "quota exceeded") {
		t.Errorf("upstream message should be preserved for diagnostics, got %q", err.Error())
	}
}

// ========== Run: happy paths ==========

func TestRun_TextOnly(t *testing.T) {
	store := &fakeStore{}
	model := &fakeModel{reply: "Η βασική κάλυψη περιλαμβάνει..."}
	o := newTestOrchestrator(store, model)

	resp, err := o.Run(context.Background(), &Request{Message: "Τι καλύπτει ο ΦΠΑ;", Lang: "el"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Reply == "" {
		t.Error("expected non-empty reply")
	}
	if len(resp.Handles) != 0 {
		t.Errorf("expected no handles, got %v", resp.Handles)
	}
	if model.gotMessage != "Τι καλύπτει ο ΦΠΑ;" {
		t.Errorf("model got %q, want the literal text", model.gotMessage)
	}
}

func TestRun_MergesAndPassesHandles(t *testing.T) {
	store := &fakeStore{}
	model := &fakeModel{reply: "ok"}
	o := newTestOrchestrator(store, model)

	req := &Request{
		Message:  "compare them",
		Handles:  []string{"a", "b"},
		NewFiles: []NewFile{pngFile("new.png", 64)},
	}
	resp, err := o.Run(context.Background(), req, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"a", "b", "file-1"}
	if !equalStrings(model.gotHandles, want) {
		t.Errorf("model handles = %v, want %v", model.gotHandles, want)
	}
	if !equalStrings(resp.Handles, want) {
		t.Errorf("response handles = %v, want %v", resp.Handles, want)
	}
}

func TestRun_DefaultAnalyzeInstruction(t *testing.T) {
	store := &fakeStore{}
	model := &fakeModel{reply: "ok"}
	o := newTestOrchestrator(store, model)

	req := &Request{Lang: "el", NewFiles: []NewFile{pngFile("scan.png", 64)}}
	if _, err := o.Run(context.Background(), req, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if model.gotMessage != AnalyzeInstruction("el") {
		t.Errorf("model got %q, want the analyze instruction", model.gotMessage)
	}
}

func TestRun_DefaultContinueInstruction(t *testing.T) {
	store := &fakeStore{}
	model := &fakeModel{reply: "ok"}
	o := newTestOrchestrator(store, model)

	req := &Request{Lang: "el", Handles: []string{"file-abc"}}
	if _, err := o.Run(context.Background(), req, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if model.gotMessage != ContinueInstruction("el") {
		t.Errorf("model got %q, want the continue instruction", model.gotMessage)
	}
	if !equalStrings(model.gotHandles, []string{"file-abc"}) {
		t.Errorf("model handles = %v, want the prior active set", model.gotHandles)
	}
}

func TestRun_TruncatedFlag(t *testing.T) {
	store := &fakeStore{}
	model := &fakeModel{reply: "partial answer", truncated: true}
	o := newTestOrchestrator(store, model)

	resp, err := o.Run(context.Background(), &Request{Message: "hello"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.Truncated {
		t.Error("expected truncated flag to pass through")
	}
}

func TestRun_ReportsPhases(t *testing.T) {
	store := &fakeStore{}
	model := &fakeModel{reply: "ok"}
	o := newTestOrchestrator(store, model)

	var phases []Phase
	req := &Request{Message: "hi", NewFiles: []NewFile{pngFile("a.png", 64)}}
	if _, err := o.Run(context.Background(), req, func(p Phase) { phases = append(phases, p) }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []Phase{PhaseValidating, PhaseUploading, PhaseMerging, PhaseInvoking, PhaseExtracting, PhaseDone}
	if len(phases) != len(want) {
		t.Fatalf("phases = %v, want %v", phases, want)
	}
	for i := range want {
		if phases[i] != want[i] {
			t.Fatalf("phases = %v, want %v", phases, want)
		}
	}
}

func TestRun_SkipsUploadPhaseWithoutFiles(t *testing.T) {
	store := &fakeStore{}
	model := &fakeModel{reply: "ok"}
	o := newTestOrchestrator(store, model)

	var phases []Phase
	if _, err := o.Run(context.Background(), &Request{Message: "hi"}, func(p Phase) { phases = append(phases, p) }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, p := range phases {
		if p == PhaseUploading {
			t.Error("uploading phase reported for a turn with no new files")
		}
	}
	if store.callCount() != 0 {
		t.Error("no uploads expected")
	}
}

// ========== Error helpers ==========

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		KindInvalidRequest: 400,
		KindValidation:     400,
		KindTimeout:        504,
		KindUpload:         502,
		KindUpstream:       502,
		KindEmptyReply:     502,
		KindInternal:       500,
	}
	for kind, want := range cases {
		if got := HTTPStatus(kind); got != want {
			t.Errorf("HTTPStatus(%s) = %d, want %d", kind, got, want)
		}
	}
}

func TestKindOf_PlainError(t *testing.T) {
	if got := KindOf(errors.New("boom")); got != KindInternal {
		t.Errorf("KindOf(plain) = %v, want internal", got)
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
