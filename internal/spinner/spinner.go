// Package spinner draws a one-line activity indicator on stderr while the corpus loads
// or the assistant waits for a reply.
package spinner

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
)

// Frames are drawn in order, one per tick.
var Frames = []string{"◜", "◠", "◝", "◞", "◡", "◟"}

// Spinner represents a spinning progress indicator.
type Spinner struct {
	frames  []string
	delay   time.Duration
	writer  io.Writer
	active  bool
	mu      sync.RWMutex
	ctx     context.Context
	cancel  context.CancelFunc
	message string
	wg      sync.WaitGroup
}

// New creates a spinner writing to w. Cancelling ctx stops the animation.
func New(ctx context.Context, w io.Writer, message string) *Spinner {
	spinnerCtx, cancel := context.WithCancel(ctx)
	return &Spinner{
		frames:  Frames,
		delay:   100 * time.Millisecond,
		writer:  w,
		message: message,
		ctx:     spinnerCtx,
		cancel:  cancel,
	}
}

// Start begins the animation. Starting twice is a no-op.
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active {
		return
	}
	s.active = true

	s.wg.Add(1)
	go s.run()
}

// Stop ends the animation and clears the line.
func (s *Spinner) Stop() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.active = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()

	if IsTerminal(s.writer) {
		fmt.Fprint(s.writer, "\r\033[2K")
	} else {
		fmt.Fprint(s.writer, "\r")
	}
}

// IsActive reports whether the animation is running.
func (s *Spinner) IsActive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// SetMessage replaces the text drawn next to the frame.
func (s *Spinner) SetMessage(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.message = message
}

// Message returns the current text.
func (s *Spinner) Message() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.message
}

// Progress reports a document being loaded; it has the shape of corpus.ProgressFunc.
func (s *Spinner) Progress(index, total int, document string) {
	name := strings.TrimSuffix(filepath.Base(document), filepath.Ext(document))
	s.SetMessage(fmt.Sprintf("Loading books %d/%d: %s", index+1, total, name))
}

func (s *Spinner) run() {
	defer s.wg.Done()

	frameIndex := 0
	ticker := time.NewTicker(s.delay)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.mu.RLock()
			frame := s.frames[frameIndex%len(s.frames)]
			message := s.message
			s.mu.RUnlock()

			fmt.Fprintf(s.writer, "\r%s %s", frame, message)
			frameIndex++
		}
	}
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
