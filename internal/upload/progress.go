package upload

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Handle identifies one transfer within a Sink.
type Handle string

// Sink receives transfer progress. Implementations must be safe for
// concurrent use; Client calls them from the uploading goroutine.
type Sink interface {
	Create(displayName string) Handle
	Update(h Handle, percent float64, bytesWritten int64)
	Complete(h Handle, actionLink string)
	Fail(h Handle, message string)
}

// ProvisionalSink is implemented by sinks that want the action link of a
// chunked transfer as soon as the server assigns it, before completion.
type ProvisionalSink interface {
	Provisional(h Handle, displayName, actionLink string)
}

// Progress is the tracked state of one transfer.
type Progress struct {
	Handle       Handle
	DisplayName  string
	Percent      float64
	BytesWritten int64
	ActionLink   string
	Done         bool
	Failed       bool
	Message      string
	StartedAt    time.Time
	UpdatedAt    time.Time
}

// Tracker is an in-memory Sink keyed by handle.
type Tracker struct {
	mu    sync.RWMutex
	items map[Handle]Progress
	now   func() time.Time
}

func NewTracker() *Tracker {
	return &Tracker{
		items: make(map[Handle]Progress),
		now:   time.Now,
	}
}

func (t *Tracker) Create(displayName string) Handle {
	h := Handle(uuid.NewString())
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items[h] = Progress{
		Handle:      h,
		DisplayName: strings.TrimSpace(displayName),
		StartedAt:   now,
		UpdatedAt:   now,
	}
	return h
}

func (t *Tracker) Update(h Handle, percent float64, bytesWritten int64) {
	t.mutate(h, func(p *Progress) {
		p.Percent = percent
		p.BytesWritten = bytesWritten
	})
}

func (t *Tracker) Provisional(h Handle, displayName, actionLink string) {
	t.mutate(h, func(p *Progress) {
		if displayName != "" {
			p.DisplayName = displayName
		}
		p.ActionLink = actionLink
	})
}

func (t *Tracker) Complete(h Handle, actionLink string) {
	t.mutate(h, func(p *Progress) {
		p.Percent = 100
		p.ActionLink = actionLink
		p.Done = true
	})
}

func (t *Tracker) Fail(h Handle, message string) {
	t.mutate(h, func(p *Progress) {
		p.Failed = true
		p.Done = true
		p.Message = strings.TrimSpace(message)
	})
}

func (t *Tracker) mutate(h Handle, fn func(*Progress)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	item, ok := t.items[h]
	if !ok {
		return
	}
	fn(&item)
	item.UpdatedAt = t.now()
	t.items[h] = item
}

func (t *Tracker) Get(h Handle) (Progress, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	item, ok := t.items[h]
	return item, ok
}

func (t *Tracker) Remove(h Handle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.items, h)
}

// List returns every tracked transfer, oldest first.
func (t *Tracker) List() []Progress {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Progress, 0, len(t.items))
	for _, item := range t.items {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].Handle < out[j].Handle
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// MultiSink fans progress out to several sinks.
type MultiSink struct {
	sinks []Sink

	mu      sync.Mutex
	handles map[Handle][]Handle
}

func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks, handles: make(map[Handle][]Handle)}
}

func (m *MultiSink) Create(displayName string) Handle {
	h := Handle(uuid.NewString())
	children := make([]Handle, len(m.sinks))
	for i, s := range m.sinks {
		children[i] = s.Create(displayName)
	}
	m.mu.Lock()
	m.handles[h] = children
	m.mu.Unlock()
	return h
}

func (m *MultiSink) Update(h Handle, percent float64, bytesWritten int64) {
	m.each(h, false, func(s Sink, child Handle) { s.Update(child, percent, bytesWritten) })
}

func (m *MultiSink) Provisional(h Handle, displayName, actionLink string) {
	m.each(h, false, func(s Sink, child Handle) {
		if ps, ok := s.(ProvisionalSink); ok {
			ps.Provisional(child, displayName, actionLink)
		}
	})
}

func (m *MultiSink) Complete(h Handle, actionLink string) {
	m.each(h, true, func(s Sink, child Handle) { s.Complete(child, actionLink) })
}

func (m *MultiSink) Fail(h Handle, message string) {
	m.each(h, true, func(s Sink, child Handle) { s.Fail(child, message) })
}

func (m *MultiSink) each(h Handle, final bool, fn func(Sink, Handle)) {
	m.mu.Lock()
	children := m.handles[h]
	if final {
		delete(m.handles, h)
	}
	m.mu.Unlock()
	for i, child := range children {
		fn(m.sinks[i], child)
	}
}

// NopSink discards progress.
type NopSink struct{}

func (NopSink) Create(string) Handle { return "" }

func (NopSink) Update(Handle, float64, int64) {}

func (NopSink) Complete(Handle, string) {}

func (NopSink) Fail(Handle, string) {}
