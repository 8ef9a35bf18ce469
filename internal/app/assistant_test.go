package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/chriscorrea/lorekeeper/internal/analyze"
	"github.com/chriscorrea/lorekeeper/internal/corpus"
	"github.com/chriscorrea/lorekeeper/internal/counter"
	"github.com/chriscorrea/lorekeeper/internal/fetch"
	"github.com/chriscorrea/lorekeeper/internal/llm"
	"github.com/chriscorrea/lorekeeper/internal/relevance"
	"github.com/chriscorrea/lorekeeper/internal/retry"
	"github.com/chriscorrea/lorekeeper/internal/token"
)

const (
	stoneID   = "J. K. Rowling - Harry Potter 1 - Sorcerer's Stone (1).txt"
	stoneText = "CHAPTER ONE\nThe Boy Who Lived\n\nHarry found a wand. He was surprised. The wand was old.\n\n" +
		"CHAPTER TWO\nThe Vanishing Glass\n\nDudley shouted at the snake. The snake escaped."
)

// fakeCompleter records every conversation it is sent
type fakeCompleter struct {
	mu    sync.Mutex
	calls [][]llm.Message
	reply string
	err   error
}

func (f *fakeCompleter) Complete(ctx context.Context, messages []llm.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]llm.Message(nil), messages...))
	return f.reply, f.err
}

func (f *fakeCompleter) last(t *testing.T) []llm.Message {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		t.Fatal("completer was never called")
	}
	return f.calls[len(f.calls)-1]
}

func noSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

// newTestStore writes docs (name, text pairs) to a temp dir and builds an unloaded store
func newTestStore(t *testing.T, docs ...string) *corpus.Store {
	t.Helper()
	dir := t.TempDir()
	var ids []string
	for i := 0; i+1 < len(docs); i += 2 {
		if err := os.WriteFile(filepath.Join(dir, docs[i]), []byte(docs[i+1]), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
		ids = append(ids, docs[i])
	}
	scorer := relevance.NewScorer(token.NewPipeline(token.NewCanonicalizer(token.DefaultAliases())))
	return corpus.New(&fetch.DirSource{Dir: dir}, analyze.New(), scorer, corpus.WithDocuments(ids...))
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.LoadPolicy = retry.Policy{Attempts: 3, Sleep: noSleep}
	return opts
}

func TestAskGroundedPrompt(t *testing.T) {
	fc := &fakeCompleter{reply: "The wand chooses the wizard."}
	a := NewAssistant(newTestStore(t, stoneID, stoneText), fc, nil, testOptions())

	resp, err := a.Ask(context.Background(), Request{Message: "wand"})
	if err != nil {
		t.Fatalf("Ask() error: %v", err)
	}
	if resp.Answer != "The wand chooses the wizard." || resp.Fallback {
		t.Errorf("Answer = %q, Fallback = %v", resp.Answer, resp.Fallback)
	}
	if _, err := uuid.Parse(resp.SessionID); err != nil {
		t.Errorf("SessionID %q is not a UUID: %v", resp.SessionID, err)
	}
	if len(resp.Passages) != 1 || resp.Passages[0].Chapter != "CHAPTER ONE" {
		t.Fatalf("Passages = %+v", resp.Passages)
	}
	if resp.Context == "" || resp.Context != resp.Passages[0].Context {
		t.Errorf("Context = %q", resp.Context)
	}

	msgs := fc.last(t)
	if len(msgs) != 2 {
		t.Fatalf("sent %d messages, want system + prompt", len(msgs))
	}
	system := msgs[0]
	if system.Role != llm.RoleSystem || !strings.HasPrefix(system.Content, Standard.SystemPrompt()) {
		t.Errorf("system message = %+v", system)
	}
	if !strings.Contains(system.Content, "BOOK EXCERPTS:\nBOOK: Harry Potter 1") {
		t.Errorf("system message lacks the full context: %q", system.Content)
	}

	prompt := msgs[1]
	if prompt.Role != llm.RoleUser {
		t.Errorf("prompt role = %q", prompt.Role)
	}
	wantPassage := "Passage 1 from Harry Potter 1:\n" + resp.Passages[0].Context
	if !strings.Contains(prompt.Content, wantPassage) {
		t.Errorf("prompt %q lacks %q", prompt.Content, wantPassage)
	}
	if !strings.HasSuffix(prompt.Content, "User question: wand") {
		t.Errorf("prompt %q should end with the question", prompt.Content)
	}
}

func TestAskGeneralPrompt(t *testing.T) {
	fc := &fakeCompleter{reply: "I only have information about these books."}
	a := NewAssistant(newTestStore(t, stoneID, stoneText), fc, nil, testOptions())

	resp, err := a.Ask(context.Background(), Request{Message: "quidditch", SessionID: "s1"})
	if err != nil {
		t.Fatalf("Ask() error: %v", err)
	}
	if resp.SessionID != "s1" {
		t.Errorf("SessionID = %q, want s1", resp.SessionID)
	}
	if len(resp.Passages) != 0 || resp.Context != "" {
		t.Errorf("Passages = %+v, Context = %q", resp.Passages, resp.Context)
	}

	prompt := fc.last(t)[1].Content
	if !strings.Contains(prompt, `"quidditch"`) || strings.Contains(prompt, "Passage 1") {
		t.Errorf("general prompt = %q", prompt)
	}
}

func TestAskStructuredAndPersona(t *testing.T) {
	fc := &fakeCompleter{reply: "ok"}
	a := NewAssistant(newTestStore(t, stoneID, stoneText), fc, nil, testOptions())

	_, err := a.Ask(context.Background(), Request{Message: "wand", Mode: Structured, Persona: Snape})
	if err != nil {
		t.Fatalf("Ask() error: %v", err)
	}

	msgs := fc.last(t)
	if !strings.Contains(msgs[0].Content, "Severus Snape") {
		t.Errorf("system prompt does not use the Snape persona: %q", msgs[0].Content)
	}
	if !strings.HasPrefix(msgs[1].Content, structuredPrefix) {
		t.Errorf("structured prompt = %q", msgs[1].Content)
	}
}

func TestAskSendsRecentHistory(t *testing.T) {
	fc := &fakeCompleter{reply: "answer"}
	a := NewAssistant(newTestStore(t, stoneID, stoneText), fc, nil, testOptions())
	ctx := context.Background()

	wantLens := []int{2, 4, 6, 6}
	for i, want := range wantLens {
		if _, err := a.Ask(ctx, Request{Message: "wand", SessionID: "s"}); err != nil {
			t.Fatalf("Ask() error: %v", err)
		}
		msgs := fc.last(t)
		if len(msgs) != want {
			t.Errorf("call %d sent %d messages, want %d", i+1, len(msgs), want)
		}
	}

	msgs := fc.last(t)
	if msgs[1].Role != llm.RoleUser || msgs[2].Role != llm.RoleAssistant || msgs[2].Content != "answer" {
		t.Errorf("history messages = %+v", msgs[1:5])
	}

	// other sessions start empty
	if _, err := a.Ask(ctx, Request{Message: "wand", SessionID: "other"}); err != nil {
		t.Fatalf("Ask() error: %v", err)
	}
	if n := len(fc.last(t)); n != 2 {
		t.Errorf("new session sent %d messages, want 2", n)
	}
}

func TestHistoryLimit(t *testing.T) {
	opts := testOptions()
	opts.HistoryLimit = 4
	a := NewAssistant(newTestStore(t, stoneID, stoneText), &fakeCompleter{reply: "a"}, nil, opts)

	for _, q := range []string{"first", "second", "third"} {
		if _, err := a.Ask(context.Background(), Request{Message: q, SessionID: "s"}); err != nil {
			t.Fatalf("Ask() error: %v", err)
		}
	}

	h := a.History("s")
	if len(h) != 4 {
		t.Fatalf("History() has %d messages, want 4", len(h))
	}
	if h[0].Content != "second" || h[2].Content != "third" {
		t.Errorf("History() = %+v, want the last two exchanges", h)
	}

	a.Reset("s")
	if len(a.History("s")) != 0 {
		t.Error("Reset() should forget the session")
	}
}

func TestAskFallbacks(t *testing.T) {
	tests := []struct {
		name       string
		completer  llm.Completer
		message    string
		wantPrefix string
		fallback   bool
	}{
		{
			name:       "completion error quotes passages",
			completer:  &fakeCompleter{err: errors.New("503")},
			message:    "wand",
			wantPrefix: "I found this in the books:\n\nPassage 1 from Harry Potter 1:\n",
			fallback:   true,
		},
		{
			name:       "completion error without passages",
			completer:  &fakeCompleter{err: errors.New("503")},
			message:    "quidditch",
			wantPrefix: UnavailableAnswer,
			fallback:   true,
		},
		{
			name:       "no completer quotes passages",
			completer:  nil,
			message:    "wand",
			wantPrefix: "I found this in the books:",
			fallback:   true,
		},
		{
			name:       "blank reply",
			completer:  &fakeCompleter{reply: "  \n"},
			message:    "wand",
			wantPrefix: EmptyReplyAnswer,
			fallback:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAssistant(newTestStore(t, stoneID, stoneText), tt.completer, nil, testOptions())
			resp, err := a.Ask(context.Background(), Request{Message: tt.message, SessionID: "s"})
			if err != nil {
				t.Fatalf("Ask() error: %v", err)
			}
			if !strings.HasPrefix(resp.Answer, tt.wantPrefix) {
				t.Errorf("Answer = %q, want prefix %q", resp.Answer, tt.wantPrefix)
			}
			if resp.Fallback != tt.fallback {
				t.Errorf("Fallback = %v, want %v", resp.Fallback, tt.fallback)
			}
			// fallbacks are still recorded
			if got := len(a.History("s")); got != 2 {
				t.Errorf("History() has %d messages, want 2", got)
			}
		})
	}
}

func TestAskLoadFailure(t *testing.T) {
	fc := &fakeCompleter{reply: "unused"}
	// the store expects a document that was never written
	store := corpus.New(&fetch.DirSource{Dir: t.TempDir()}, analyze.New(), relevance.NewScorer(nil),
		corpus.WithDocuments("missing.txt"))
	a := NewAssistant(store, fc, nil, testOptions())

	resp, err := a.Ask(context.Background(), Request{Message: "wand"})
	if err != nil {
		t.Fatalf("Ask() error: %v", err)
	}
	if resp.Answer != LoadFailureAnswer || !resp.Fallback {
		t.Errorf("Answer = %q, Fallback = %v", resp.Answer, resp.Fallback)
	}
	if len(fc.calls) != 0 {
		t.Errorf("completer called %d times, want 0", len(fc.calls))
	}
	if store.Loaded() {
		t.Error("store should remain unloaded")
	}
}

func TestAskErrors(t *testing.T) {
	a := NewAssistant(newTestStore(t, stoneID, stoneText), &fakeCompleter{reply: "x"}, nil, testOptions())

	for _, msg := range []string{"", "   \n\t"} {
		if _, err := a.Ask(context.Background(), Request{Message: msg}); !errors.Is(err, ErrEmptyMessage) {
			t.Errorf("Ask(%q) error = %v, want ErrEmptyMessage", msg, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := a.Ask(ctx, Request{Message: "wand"}); !errors.Is(err, context.Canceled) {
		t.Errorf("Ask(cancelled) error = %v, want context.Canceled", err)
	}
}

func TestAskContextBudget(t *testing.T) {
	fc := &fakeCompleter{reply: "ok"}
	opts := testOptions()
	opts.ContextTokens = 5
	a := NewAssistant(newTestStore(t, stoneID, stoneText), fc, counter.WordCounter{}, opts)

	if _, err := a.Ask(context.Background(), Request{Message: "wand"}); err != nil {
		t.Fatalf("Ask() error: %v", err)
	}

	parts := strings.SplitN(fc.last(t)[0].Content, "BOOK EXCERPTS:\n", 2)
	if len(parts) != 2 {
		t.Fatal("system prompt has no excerpt block")
	}
	if n := (counter.WordCounter{}).Count(parts[1]); n > 5 {
		t.Errorf("excerpt block has %d words, want at most 5", n)
	}
	if !strings.HasPrefix(parts[1], "BOOK: Harry Potter 1") {
		t.Errorf("excerpt block = %q", parts[1])
	}
}

func TestAskConcurrentSessions(t *testing.T) {
	fc := &fakeCompleter{reply: "ok"}
	a := NewAssistant(newTestStore(t, stoneID, stoneText), fc, nil, testOptions())

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := string(rune('a' + i))
			for range 3 {
				if _, err := a.Ask(context.Background(), Request{Message: "wand", SessionID: id}); err != nil {
					t.Errorf("Ask() error: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	for i := range 8 {
		if got := len(a.History(string(rune('a' + i)))); got != 6 {
			t.Errorf("session %c has %d messages, want 6", 'a'+i, got)
		}
	}
}

func TestParsePersona(t *testing.T) {
	tests := []struct {
		in      string
		want    Persona
		wantErr bool
	}{
		{"", Standard, false},
		{"Dumbledore", Dumbledore, false},
		{" dobby ", Dobby, false},
		{"snape", Snape, false},
		{"voldemort", Standard, true},
	}
	for _, tt := range tests {
		got, err := ParsePersona(tt.in)
		if got != tt.want || (err != nil) != tt.wantErr {
			t.Errorf("ParsePersona(%q) = %q, %v", tt.in, got, err)
		}
	}

	if !strings.Contains(Dobby.SystemPrompt(), `"Dobby doesn't know that"`) {
		t.Errorf("Dobby prompt = %q", Dobby.SystemPrompt())
	}
	if Persona("unknown").SystemPrompt() != Standard.SystemPrompt() {
		t.Error("unknown persona should fall back to the standard prompt")
	}
	for _, p := range Personas() {
		if strings.Contains(p.SystemPrompt(), "{") {
			t.Errorf("%s prompt has unfilled placeholders", p)
		}
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"", Freeform, false},
		{"freeform", Freeform, false},
		{"Structured", Structured, false},
		{"bullet", Freeform, true},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if got != tt.want || (err != nil) != tt.wantErr {
			t.Errorf("ParseMode(%q) = %v, %v", tt.in, got, err)
		}
	}
	if Structured.String() != "structured" || Mode(9).String() != "unknown" {
		t.Error("Mode.String() mismatch")
	}
}
