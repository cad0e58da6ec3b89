package gemini

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// fakeUpstream serves both the generation and discovery surfaces. Behavior
// is keyed by "model/apiVersion"; unknown pairs fail with a 404.
type fakeUpstream struct {
	mu     sync.Mutex
	ok     map[string]string // candidate -> reply text
	models []string          // discovery listing (raw names, may include models/ prefix)
	noList bool              // discovery endpoint returns 500
	calls  []string          // generation attempts in order
}

func (f *fakeUpstream) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/models") {
			f.mu.Lock()
			noList, models := f.noList, f.models
			f.mu.Unlock()
			if noList {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte(`{"error":{"message":"listing unavailable"}}`))
				return
			}
			var entries []string
			for _, name := range models {
				entries = append(entries, `{"name":"`+name+`","supportedGenerationMethods":["generateContent"]}`)
			}
			w.Write([]byte(`{"models":[` + strings.Join(entries, ",") + `]}`))
			return
		}

		// /{api}/models/{model}:generateContent
		parts := strings.SplitN(strings.TrimPrefix(r.URL.Path, "/"), "/", 3)
		api := parts[0]
		model := strings.TrimSuffix(parts[2], ":generateContent")
		key := model + "/" + api

		f.mu.Lock()
		f.calls = append(f.calls, key)
		text, ok := f.ok[key]
		f.mu.Unlock()

		if !ok {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":{"message":"model ` + key + ` not found"}}`))
			return
		}
		w.Write([]byte(genOK(text)))
	})
}

func (f *fakeUpstream) attempts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeUpstream) reset() {
	f.mu.Lock()
	f.calls = nil
	f.mu.Unlock()
}

func newTestOrchestrator(t *testing.T, f *fakeUpstream) (*Orchestrator, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	iv := NewInvoker(InvokerConfig{BaseURL: srv.URL, APIKey: "k"})
	return NewOrchestrator(iv, nil, nil), srv
}

func TestGenerate_ThirdCandidateSucceedsAndBecomesSticky(t *testing.T) {
	f := &fakeUpstream{ok: map[string]string{
		"gemini-1.5-pro/v1": "[REASONING_START]...[REASONING_END]Sure, here's a plan.",
	}}
	o, _ := newTestOrchestrator(t, f)

	history := []Turn{{Role: RoleUser, Text: "Hi"}}
	out := o.Generate(context.Background(), history, "Build a login page")
	if !out.OK() {
		t.Fatalf("expected success, got failure: %s", out.Err)
	}
	want := Candidate{Model: "gemini-1.5-pro", APIVersion: "v1"}
	if out.Used != want {
		t.Errorf("expected used candidate %v, got %v", want, out.Used)
	}
	if !strings.Contains(out.Text, "Sure, here's a plan.") {
		t.Errorf("unexpected text %q", out.Text)
	}

	sticky, ok := o.Sticky()
	if !ok || sticky != want {
		t.Errorf("expected sticky %v, got %v (ok=%v)", want, sticky, ok)
	}

	attempts := f.attempts()
	wantOrder := []string{"gemini-1.5-flash/v1", "gemini-1.5-flash/v1beta", "gemini-1.5-pro/v1"}
	if len(attempts) != len(wantOrder) {
		t.Fatalf("expected %d attempts, got %v", len(wantOrder), attempts)
	}
	for i, want := range wantOrder {
		if attempts[i] != want {
			t.Errorf("attempt %d: expected %s, got %s", i, want, attempts[i])
		}
	}
}

func TestGenerate_StickyTriedFirstOnNextCall(t *testing.T) {
	f := &fakeUpstream{ok: map[string]string{
		"gemini-1.5-pro/v1": "first win",
	}}
	o, _ := newTestOrchestrator(t, f)

	if out := o.Generate(context.Background(), nil, "p"); !out.OK() {
		t.Fatalf("setup call failed: %s", out.Err)
	}

	f.reset()
	if out := o.Generate(context.Background(), nil, "p2"); !out.OK() {
		t.Fatalf("second call failed: %s", out.Err)
	}
	attempts := f.attempts()
	if len(attempts) != 1 || attempts[0] != "gemini-1.5-pro/v1" {
		t.Errorf("expected only the sticky candidate to be dialed, got %v", attempts)
	}
}

func TestGenerate_StickyDuplicateExcludedFromFixedList(t *testing.T) {
	f := &fakeUpstream{ok: map[string]string{
		"gemini-pro/v1beta": "win",
	}}
	o, _ := newTestOrchestrator(t, f)

	if out := o.Generate(context.Background(), nil, "p"); !out.OK() {
		t.Fatalf("setup call failed: %s", out.Err)
	}

	// Make the sticky candidate fail so the whole order is walked.
	f.mu.Lock()
	f.ok = map[string]string{}
	f.mu.Unlock()
	f.reset()

	o.Generate(context.Background(), nil, "p2")
	seen := 0
	for _, a := range f.attempts() {
		if a == "gemini-pro/v1beta" {
			seen++
		}
	}
	if seen != 1 {
		t.Errorf("sticky pair should be dialed exactly once, got %d times: %v", seen, f.attempts())
	}
}

func TestGenerate_DiscoveryFallback(t *testing.T) {
	f := &fakeUpstream{
		ok:     map[string]string{"gemini-exp/v1beta": "discovered"},
		models: []string{"models/gemini-1.5-flash", "models/gemini-exp"},
	}
	o, _ := newTestOrchestrator(t, f)

	out := o.Generate(context.Background(), nil, "p")
	if !out.OK() {
		t.Fatalf("expected discovery to rescue the call, got %s", out.Err)
	}
	want := Candidate{Model: "gemini-exp", APIVersion: "v1beta"}
	if out.Used != want {
		t.Errorf("expected %v, got %v", want, out.Used)
	}
	if sticky, ok := o.Sticky(); !ok || sticky != want {
		t.Errorf("discovered candidate should become sticky, got %v (ok=%v)", sticky, ok)
	}

	// gemini-1.5-flash already failed in the fixed phase; discovery must
	// not dial it again.
	count := 0
	for _, a := range f.attempts() {
		if strings.HasPrefix(a, "gemini-1.5-flash/") {
			count++
		}
	}
	if count != 2 { // v1 and v1beta from the fixed list only
		t.Errorf("expected no duplicate discovery attempt for gemini-1.5-flash, attempts: %v", f.attempts())
	}
}

func TestGenerate_DiscoveryFailureKeepsLastCandidateError(t *testing.T) {
	f := &fakeUpstream{noList: true}
	o, _ := newTestOrchestrator(t, f)

	out := o.Generate(context.Background(), nil, "p")
	if out.OK() {
		t.Fatal("expected failure")
	}
	if !strings.Contains(out.Err, "gemini-pro/v1beta not found") {
		t.Errorf("expected last fixed candidate error, got %q", out.Err)
	}
}

func TestGenerate_AllDiscoveredFailCarriesMostRecentError(t *testing.T) {
	f := &fakeUpstream{models: []string{"models/gemini-exp"}}
	o, _ := newTestOrchestrator(t, f)

	out := o.Generate(context.Background(), nil, "p")
	if out.OK() {
		t.Fatal("expected failure")
	}
	if !strings.Contains(out.Err, "gemini-exp/v1beta not found") {
		t.Errorf("expected most recent (discovered) error, got %q", out.Err)
	}
}

func TestGenerate_FiltersEmptyHistoryTurns(t *testing.T) {
	f := &fakeUpstream{ok: map[string]string{"gemini-1.5-flash/v1": "ok"}}

	var contentsLen int
	wrapped := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			req := decodeRequest(t, r)
			contentsLen = len(req.Contents)
		}
		f.handler().ServeHTTP(w, r)
	}))
	t.Cleanup(wrapped.Close)

	iv := NewInvoker(InvokerConfig{BaseURL: wrapped.URL, APIKey: "k"})
	o := NewOrchestrator(iv, nil, nil)

	history := []Turn{
		{Role: RoleUser, Text: "Hi"},
		{Role: RoleModel, Text: "   "},
		{Role: RoleModel, Text: ""},
	}
	if out := o.Generate(context.Background(), history, "p"); !out.OK() {
		t.Fatalf("unexpected failure: %s", out.Err)
	}
	if contentsLen != 2 { // one surviving history turn + prompt
		t.Errorf("expected blank turns dropped (2 contents), got %d", contentsLen)
	}
}

func TestGenerate_OverlappingCallsDoNotTearSticky(t *testing.T) {
	f := &fakeUpstream{ok: map[string]string{
		"gemini-1.5-flash/v1": "fast path",
	}}
	o, _ := newTestOrchestrator(t, f)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if out := o.Generate(context.Background(), nil, "p"); !out.OK() {
				t.Errorf("unexpected failure: %s", out.Err)
			}
		}()
	}
	wg.Wait()

	sticky, ok := o.Sticky()
	want := Candidate{Model: "gemini-1.5-flash", APIVersion: "v1"}
	if !ok || sticky != want {
		t.Errorf("expected clean sticky %v, got %v (ok=%v)", want, sticky, ok)
	}
}
