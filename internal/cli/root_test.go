package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/sprite-ai/agstage/internal/config"
	"github.com/sprite-ai/agstage/internal/inbox"
	"github.com/sprite-ai/agstage/internal/model"
	"github.com/sprite-ai/agstage/internal/review"
)

func TestRootCommandHasSubcommands(t *testing.T) {
	cmds := rootCmd.Commands()
	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	for _, want := range []string{"propose", "serve", "agent", "replay", "history", "clean", "version"} {
		if !names[want] {
			t.Errorf("root command missing subcommand %q", want)
		}
	}
}

func TestVersionOutput(t *testing.T) {
	// version vars are set via ldflags; in tests they have their defaults
	if version != "dev" {
		t.Errorf("expected default version %q, got %q", "dev", version)
	}
}

func TestPromptDecision(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    model.Decision
		wantErr bool
		reasked int
	}{
		{name: "yes", input: "y\n", want: model.DecisionAccept},
		{name: "reject word", input: "reject\n", want: model.DecisionReject},
		{name: "blank then no", input: "\n\nn\n", want: model.DecisionReject, reasked: 2},
		{name: "garbage then accept", input: "maybe\naccept\n", want: model.DecisionAccept, reasked: 1},
		{name: "eof", input: "", wantErr: true},
		{name: "garbage then eof", input: "maybe\n", wantErr: true, reasked: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			got, err := promptDecision(strings.NewReader(tt.input), &out)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
			} else {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if got != tt.want {
					t.Errorf("decision = %v, want %v", got, tt.want)
				}
			}
			if n := strings.Count(out.String(), "[y/n]"); n != tt.reasked+1 {
				t.Errorf("prompted %d times, want %d", n, tt.reasked+1)
			}
		})
	}
}

func TestReadContent(t *testing.T) {
	fs := afero.NewMemMapFs()
	_ = afero.WriteFile(fs, "/new.go", []byte("package x\n"), 0o644)

	tests := []struct {
		name      string
		files     []string
		fromStdin bool
		want      string
		wantErr   bool
	}{
		{name: "file", files: []string{"/new.go"}, want: "package x\n"},
		{name: "stdin", fromStdin: true, want: "from stdin"},
		{name: "both", files: []string{"/new.go"}, fromStdin: true, wantErr: true},
		{name: "neither", wantErr: true},
		{name: "missing file", files: []string{"/nope"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readContent(fs, strings.NewReader("from stdin"), tt.files, tt.fromStdin)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("content = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPrintOutcome(t *testing.T) {
	finished := []review.Snapshot{
		{TargetPath: "/p/a.go", State: model.StateApplied},
		{TargetPath: "/p/b.go", State: model.StateDiscarded, Reason: "superseded"},
	}

	var out bytes.Buffer
	if err := printOutcome(&out, finished, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"applied    /p/a.go", "discarded  /p/b.go (superseded)"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}

	out.Reset()
	finished = append(finished, review.Snapshot{
		TargetPath:  "/p/c.go",
		State:       model.StateFailed,
		Error:       "commit_io: disk full",
		Retained:    true,
		StagingPath: "/tmp/agstage-1-c.go",
	})
	err := printOutcome(&out, finished, []error{errors.New("edit did not apply")})
	if err == nil {
		t.Fatal("expected error when a review failed")
	}
	if !strings.Contains(err.Error(), "2 of 4") {
		t.Errorf("error = %q, want count of failures", err)
	}
	for _, want := range []string{"failed     /p/c.go: commit_io: disk full", "/tmp/agstage-1-c.go", "skipped    edit did not apply"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestPostProposal(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/proposals" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(review.Snapshot{ID: "s1", TargetPath: got["target"], StateName: "presented"})
	}))
	defer srv.Close()

	snap, err := postProposal(context.Background(), srv.URL, model.ChangeProposal{TargetPath: "/p/a.go", Content: "new"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.ID != "s1" || snap.StateName != "presented" {
		t.Errorf("snapshot = %+v", snap)
	}
	if got["target"] != "/p/a.go" || got["content"] != "new" {
		t.Errorf("request body = %v", got)
	}
}

func TestPostProposalRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"no review client connected","code":"review.diff_unavailable"}`))
	}))
	defer srv.Close()

	_, err := postProposal(context.Background(), srv.URL, model.ChangeProposal{TargetPath: "/p/a.go"})
	if err == nil || !strings.Contains(err.Error(), "review.diff_unavailable") {
		t.Fatalf("err = %v, want refusal carrying the code", err)
	}
}

func newTestApp(t *testing.T, presenter string) (*app, afero.Fs) {
	t.Helper()
	cfg := config.Default()
	cfg.Project.Root = "/proj"
	cfg.Staging.Dir = "/stage"
	cfg.History.Path = ""
	cfg.Logging.Dir = ""
	cfg.Review.Presenter = presenter
	cfg.Review.DiffCommand = "true"

	fs := afero.NewMemMapFs()
	_ = afero.WriteFile(fs, "/proj/a.txt", []byte("old\n"), 0o644)

	a, err := newAppFrom(cfg, fs, true)
	if err != nil {
		t.Fatalf("newAppFrom: %v", err)
	}
	t.Cleanup(a.close)
	return a, fs
}

func TestCommandReview(t *testing.T) {
	a, fs := newTestApp(t, config.PresenterCommand)

	var out bytes.Buffer
	p := model.ChangeProposal{TargetPath: "/proj/a.txt", Content: "new\n"}
	if err := runCommandReview(&out, strings.NewReader("y\n"), a, p); err != nil {
		t.Fatalf("runCommandReview: %v\n%s", err, out.String())
	}
	data, _ := afero.ReadFile(fs, "/proj/a.txt")
	if string(data) != "new\n" {
		t.Errorf("target = %q, want accepted content", data)
	}
	if !strings.Contains(out.String(), "applied    /proj/a.txt") {
		t.Errorf("output missing outcome:\n%s", out.String())
	}
}

func TestHeadlessSubmitWithoutClients(t *testing.T) {
	a, _ := newTestApp(t, config.PresenterWeb)
	h := newHeadless(a)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = h.loop.Run(ctx) }()

	err := h.submit(ctx)(model.ChangeProposal{TargetPath: "a.txt", Content: "new\n"})
	if review.KindOf(err) != model.KindDiffUnavailable {
		t.Fatalf("err = %v, want diff unavailable with no review client", err)
	}
}

func TestHeadlessSubmitAndWaitIdle(t *testing.T) {
	a, fs := newTestApp(t, config.PresenterCommand)
	h := newHeadless(a)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = h.loop.Run(ctx) }()

	if err := h.submit(ctx)(model.ChangeProposal{TargetPath: "a.txt", Content: "new\n"}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	var pending bool
	_ = h.loop.Do(ctx, func() { pending = h.ctrl.Pending() })
	if !pending {
		t.Fatal("expected a pending review after submit")
	}

	idle := make(chan error, 1)
	go func() { idle <- h.waitIdle(ctx) }()

	_ = h.loop.Do(ctx, func() { a.bus.Fire(model.DecisionAccept) })
	if err := <-idle; err != nil {
		t.Fatalf("waitIdle: %v", err)
	}
	data, _ := afero.ReadFile(fs, "/proj/a.txt")
	if string(data) != "new\n" {
		t.Errorf("target = %q, want accepted content", data)
	}
}

func TestInboxBurstReviewsEveryProposal(t *testing.T) {
	prev := idlePoll
	idlePoll = 5 * time.Millisecond
	t.Cleanup(func() { idlePoll = prev })
	a, fs := newTestApp(t, config.PresenterCommand)
	_ = afero.WriteFile(fs, "/proj/b.txt", []byte("old b\n"), 0o644)
	_ = afero.WriteFile(fs, "/inbox/01.json", []byte(`{"target":"a.txt","content":"new a\n"}`), 0o644)
	_ = afero.WriteFile(fs, "/inbox/02.json", []byte(`{"target":"b.txt","content":"new b\n"}`), 0o644)
	h := newHeadless(a)

	var states []model.SessionState
	h.ctrl.AddObserver(review.ObserverFunc(func(ev review.Event) {
		if ev.Session.Terminal() {
			states = append(states, ev.Session.State)
		}
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = h.loop.Run(ctx) }()

	w := inbox.New(fs, "/inbox", h.enqueue(ctx), a.log)
	scanned := make(chan error, 1)
	go func() { scanned <- w.Scan() }()

	for _, target := range []string{"/proj/a.txt", "/proj/b.txt"} {
		deadline := time.Now().Add(5 * time.Second)
		for {
			var active review.Snapshot
			var pending bool
			_ = h.loop.Do(ctx, func() {
				pending = h.ctrl.Pending()
				active, _ = h.ctrl.Active()
			})
			if pending && active.TargetPath == target {
				break
			}
			if time.Now().After(deadline) {
				t.Fatalf("%s never came up for review", target)
			}
			time.Sleep(5 * time.Millisecond)
		}
		_ = h.loop.Do(ctx, func() { a.bus.Fire(model.DecisionAccept) })
	}
	if err := <-scanned; err != nil {
		t.Fatal(err)
	}

	for path, want := range map[string]string{"/proj/a.txt": "new a\n", "/proj/b.txt": "new b\n"} {
		data, _ := afero.ReadFile(fs, path)
		if string(data) != want {
			t.Errorf("%s = %q, want %q", path, data, want)
		}
	}
	var discarded int
	_ = h.loop.Do(ctx, func() {
		for _, s := range states {
			if s != model.StateApplied {
				discarded++
			}
		}
	})
	if discarded != 0 {
		t.Errorf("terminal states = %v, want every proposal applied", states)
	}
}
