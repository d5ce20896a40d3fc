package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/danmuck/clowdctl/internal/upload"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

// consoleSink prints transfer progress, one line per ten-percent step.
type consoleSink struct {
	mu    sync.Mutex
	w     io.Writer
	names map[upload.Handle]string
	steps map[upload.Handle]int
}

func newConsoleSink(w io.Writer) *consoleSink {
	return &consoleSink{
		w:     w,
		names: make(map[upload.Handle]string),
		steps: make(map[upload.Handle]int),
	}
}

func (s *consoleSink) Create(displayName string) upload.Handle {
	h := upload.Handle(uuid.NewString())
	s.mu.Lock()
	defer s.mu.Unlock()
	s.names[h] = displayName
	s.steps[h] = -1
	fmt.Fprintf(s.w, "uploading %s\n", displayName)
	return h
}

func (s *consoleSink) Update(h upload.Handle, percent float64, bytesWritten int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	step := int(percent) / 10
	if step <= s.steps[h] || percent >= 100 {
		return
	}
	s.steps[h] = step
	fmt.Fprintf(s.w, "  %s %3.0f%% (%s)\n", s.names[h], percent, humanize.Bytes(uint64(bytesWritten)))
}

func (s *consoleSink) Complete(h upload.Handle, actionLink string) {
	s.finish(h, "done", actionLink)
}

func (s *consoleSink) Fail(h upload.Handle, message string) {
	s.finish(h, "failed", message)
}

func (s *consoleSink) finish(h upload.Handle, verb, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, "%s %s: %s\n", verb, s.names[h], detail)
	delete(s.names, h)
	delete(s.steps, h)
}
