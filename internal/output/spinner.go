package output

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

// writerIsTTY returns true if the given writer exposes an Fd() method
// (e.g. *os.File) and that fd is a terminal.
func writerIsTTY(w io.Writer) bool {
	type fder interface {
		Fd() uintptr
	}
	if f, ok := w.(fder); ok {
		return isatty.IsTerminal(f.Fd())
	}
	return false
}

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Spinner shows an animated line while waiting, e.g. for a unit to become
// healthy. On a non-TTY writer the message is printed once and nothing
// animates.
type Spinner struct {
	mu      sync.Mutex
	w       io.Writer
	message string
	started time.Time
	running bool
	stop    chan struct{}
	stopped chan struct{}
	width   int
}

// NewSpinner creates a stopped spinner writing to w.
func NewSpinner(w io.Writer, message string) *Spinner {
	return &Spinner{w: w, message: message}
}

// Start begins the animation. Starting a running spinner does nothing.
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.running = true
	s.started = time.Now()

	if !writerIsTTY(s.w) {
		fmt.Fprintf(s.w, "%s...\n", s.message)
		return
	}

	s.stop = make(chan struct{})
	s.stopped = make(chan struct{})
	go s.loop(s.stop, s.stopped)
}

func (s *Spinner) loop(stop, stopped chan struct{}) {
	defer close(stopped)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for i := 0; ; i++ {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			line := fmt.Sprintf("%s %s (%ds)", spinnerFrames[i%len(spinnerFrames)], s.message, int(time.Since(s.started).Seconds()))
			if len(line) > s.width {
				s.width = len(line)
			}
			fmt.Fprintf(s.w, "\r%s", line)
			s.mu.Unlock()
		}
	}
}

// Update replaces the message while running.
func (s *Spinner) Update(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.message = message
}

// Stop ends the animation and clears the line. Stopping a stopped spinner
// does nothing.
func (s *Spinner) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	stop, stopped := s.stop, s.stopped
	s.stop, s.stopped = nil, nil
	s.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-stopped

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.width > 0 {
		fmt.Fprintf(s.w, "\r%s\r", strings.Repeat(" ", s.width))
	}
}

// StopWithMessage stops the spinner and prints a final line.
func (s *Spinner) StopWithMessage(message string) {
	s.Stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.w, message)
}
