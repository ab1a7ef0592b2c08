package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"earshot/internal/domain"
)

// terminalSink prints session events as plain lines. Each segment is printed
// once, after its turn has completed.
type terminalSink struct {
	mu      sync.Mutex
	out     io.Writer
	printed map[string]bool
}

func newTerminalSink(out io.Writer) *terminalSink {
	return &terminalSink{out: out, printed: map[string]bool{}}
}

func (s *terminalSink) SessionStateChanged(status domain.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := string(status.State)
	if status.Reconnecting {
		state = "reconnecting"
	}
	if status.Message != "" {
		fmt.Fprintf(s.out, "[%s] %s\n", state, status.Message)
		return
	}
	fmt.Fprintf(s.out, "[%s]\n", state)
}

func (s *terminalSink) TranscriptUpdated(segments []domain.Segment) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(segments) == 0 {
		clear(s.printed)
		return
	}
	for _, segment := range segments {
		if segment.Partial || s.printed[segment.ID] {
			continue
		}
		s.printed[segment.ID] = true
		fmt.Fprintf(s.out, "%s: %s\n", segment.Sender, strings.TrimSpace(segment.Text))
	}
}

func (s *terminalSink) TranscriptFlushed(_ map[domain.Sender]string) {}

func (s *terminalSink) SessionError(code domain.ErrorCode, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fmt.Fprintf(s.out, "error (%s): %s\n", code, detail)
}
