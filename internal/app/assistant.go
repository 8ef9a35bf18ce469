// Package app contains the book assistant: it grounds chat answers in passages found by
// corpus search and keeps a short history per conversation.
//
// Processing Pipeline:
//  1. Make sure the corpus is loaded, retrying with the configured policy
//  2. Search the corpus and quote the top passages in the prompt
//  3. Send the persona prompt, the trimmed full context, recent history and the prompt
//     to the language model
//  4. Fall back to quoting the passages when the model cannot be reached
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/chriscorrea/lorekeeper/internal/corpus"
	"github.com/chriscorrea/lorekeeper/internal/counter"
	"github.com/chriscorrea/lorekeeper/internal/llm"
	"github.com/chriscorrea/lorekeeper/internal/retry"
)

// Static answers used when no model reply is available.
const (
	LoadFailureAnswer = "I'm having trouble loading the books right now. This could be a network " +
		"problem or missing files. Please try again in a moment."
	UnavailableAnswer = "I'm sorry, I couldn't reach my knowledge base. Please try again later."
	EmptyReplyAnswer  = "I can't find that information in the books."
)

// ErrEmptyMessage is returned by Ask for a blank question.
var ErrEmptyMessage = errors.New("message is required and cannot be empty")

// Mode selects the answer layout.
type Mode int

const (
	// Freeform answers in prose (default)
	Freeform Mode = iota
	// Structured answers with headers and bullet points
	Structured
)

// String returns the string representation of the mode
func (m Mode) String() string {
	switch m {
	case Freeform:
		return "freeform"
	case Structured:
		return "structured"
	default:
		return "unknown"
	}
}

// ParseMode accepts "freeform" or "structured"; empty means Freeform.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "freeform":
		return Freeform, nil
	case "structured":
		return Structured, nil
	default:
		return Freeform, fmt.Errorf("unknown response mode %q", s)
	}
}

// Request is one question.
type Request struct {
	Message   string
	SessionID string  // empty starts a new session
	Mode      Mode
	Persona   Persona // empty uses the assistant default
}

// Response is the answer with the passages it was grounded in.
type Response struct {
	SessionID string          `json:"session_id"`
	Answer    string          `json:"answer"`
	Context   string          `json:"context,omitempty"` // best passage
	Passages  []corpus.Result `json:"passages,omitempty"`
	Fallback  bool            `json:"fallback"` // answer did not come from the model
}

// Options shape the prompt and the history.
type Options struct {
	Persona       Persona
	Passages      int // top passages quoted per answer
	HistoryLimit  int // messages kept per session
	HistoryWindow int // messages sent with each request
	ContextTokens int // budget for the full-context block, in counter units
	LoadPolicy    retry.Policy
}

// DefaultOptions returns the standard persona, 3 passages, 20 kept and 4 sent
// history messages and a 6000 unit context budget.
func DefaultOptions() Options {
	return Options{
		Persona:       Standard,
		Passages:      3,
		HistoryLimit:  20,
		HistoryWindow: 4,
		ContextTokens: 6000,
		LoadPolicy:    retry.DefaultPolicy(),
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Persona == "" {
		o.Persona = d.Persona
	}
	if o.Passages <= 0 {
		o.Passages = d.Passages
	}
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = d.HistoryLimit
	}
	if o.HistoryWindow <= 0 {
		o.HistoryWindow = d.HistoryWindow
	}
	if o.ContextTokens <= 0 {
		o.ContextTokens = d.ContextTokens
	}
	if o.LoadPolicy.Attempts <= 0 {
		o.LoadPolicy = d.LoadPolicy
	}
	return o
}

// Assistant answers questions about the loaded books. It is safe for concurrent use.
type Assistant struct {
	store     *corpus.Store
	completer llm.Completer
	counter   counter.Counter
	opts      Options
	sessions  *sessions
}

// NewAssistant creates an assistant. A nil completer answers by quoting passages; a nil
// counter measures the context budget in words.
func NewAssistant(store *corpus.Store, completer llm.Completer, c counter.Counter, opts Options) *Assistant {
	if c == nil {
		c = counter.WordCounter{}
	}
	opts = opts.withDefaults()
	return &Assistant{
		store:     store,
		completer: completer,
		counter:   c,
		opts:      opts,
		sessions:  newSessions(opts.HistoryLimit),
	}
}

// Ask answers one question. Book loading failures produce a static apology rather than
// an error; only a blank message or a cancelled context are returned as errors.
func (a *Assistant) Ask(ctx context.Context, req Request) (*Response, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, ErrEmptyMessage
	}
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = NewSessionID()
	}
	persona := req.Persona
	if persona == "" {
		persona = a.opts.Persona
	}

	if err := a.ensureLoaded(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		slog.Error("Book loading failed", "error", err)
		return &Response{SessionID: sessionID, Answer: LoadFailureAnswer, Fallback: true}, nil
	}

	results := a.store.Search(message)
	if len(results) > a.opts.Passages {
		results = results[:a.opts.Passages]
	}
	passages := formatPassages(results)
	prompt := buildPrompt(message, passages, req.Mode)

	answer, fallback := a.complete(ctx, persona, sessionID, prompt, passages)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.sessions.record(sessionID, message, answer)

	resp := &Response{
		SessionID: sessionID,
		Answer:    answer,
		Passages:  results,
		Fallback:  fallback,
	}
	if len(results) > 0 {
		resp.Context = results[0].Context
	}

	slog.Debug("Answered question", "session", sessionID, "persona", persona, "mode", req.Mode,
		"passages", len(results), "fallback", fallback)
	return resp, nil
}

// History returns the kept messages of a session, oldest first.
func (a *Assistant) History(sessionID string) []llm.Message {
	return a.sessions.recent(sessionID, a.opts.HistoryLimit)
}

// Reset forgets a session.
func (a *Assistant) Reset(sessionID string) {
	a.sessions.reset(sessionID)
}

func (a *Assistant) ensureLoaded(ctx context.Context) error {
	if a.store.Loaded() {
		return nil
	}
	return retry.Do(ctx, a.opts.LoadPolicy, a.store.Load)
}

// complete asks the model, falling back to the passages when it fails
func (a *Assistant) complete(ctx context.Context, persona Persona, sessionID, prompt string, passages []string) (string, bool) {
	if a.completer == nil {
		return fallbackAnswer(passages), true
	}

	system, err := a.systemPrompt(ctx, persona)
	if err != nil {
		slog.Warn("Full context unavailable", "error", err)
		return fallbackAnswer(passages), true
	}

	messages := make([]llm.Message, 0, a.opts.HistoryWindow+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: system})
	messages = append(messages, a.sessions.recent(sessionID, a.opts.HistoryWindow)...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: prompt})

	reply, err := a.completer.Complete(ctx, messages)
	if err != nil {
		slog.Warn("Chat completion failed, quoting passages instead", "error", err)
		return fallbackAnswer(passages), true
	}
	if strings.TrimSpace(reply) == "" {
		return EmptyReplyAnswer, false
	}
	return reply, false
}

// systemPrompt is the persona instructions followed by the budgeted full context
func (a *Assistant) systemPrompt(ctx context.Context, persona Persona) (string, error) {
	full, err := a.store.FullContext(ctx)
	if err != nil {
		return "", err
	}

	trimmed := a.counter.Truncate(full, a.opts.ContextTokens)
	if len(trimmed) < len(full) {
		slog.Debug("Trimmed full context to budget", "unit", a.counter.Name(),
			"budget", a.opts.ContextTokens, "before", len(full), "after", len(trimmed))
	}
	return persona.SystemPrompt() + "\n\nBOOK EXCERPTS:\n" + trimmed, nil
}
