package stream

import (
	"sync"

	"github.com/taskmgr818/rehab-client/internal/protocol"
)

// FrameRenderer consumes processed frames. The payload is the backend's
// base64 JPEG, passed through opaque; decoding is the renderer's concern.
type FrameRenderer interface {
	RenderFrame(data string)
}

// StatsListener consumes repetition statistics updates.
type StatsListener interface {
	UpdateStats(count int, stage string, angle float64)
}

// Sink fans parsed per-frame results out to the rendering and statistics
// consumers in arrival order. There is no buffering or reordering: the
// last delivered value wins for display purposes. Callers gate delivery
// on the session phase; the sink itself forwards unconditionally.
type Sink struct {
	mu        sync.Mutex
	renderers []FrameRenderer
	listeners []StatsListener
}

func New() *Sink {
	return &Sink{}
}

// AttachRenderer registers a frame consumer.
func (s *Sink) AttachRenderer(r FrameRenderer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.renderers = append(s.renderers, r)
}

// AttachStats registers a statistics consumer.
func (s *Sink) AttachStats(l StatsListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// OnFrame forwards one processed frame to all renderers.
func (s *Sink) OnFrame(f protocol.ProcessedFrame) {
	for _, r := range s.consumers() {
		r.RenderFrame(f.Data)
	}
}

// OnResult forwards one statistics update to all listeners.
func (s *Sink) OnResult(r protocol.Result) {
	for _, l := range s.stats() {
		l.UpdateStats(r.Count, r.Stage, r.Angle)
	}
}

// Reset pushes the placeholder statistics to all listeners. Used when an
// evaluation stops so the display never shows stale counts.
func (s *Sink) Reset() {
	for _, l := range s.stats() {
		l.UpdateStats(0, protocol.StageNone, 0)
	}
}

func (s *Sink) consumers() []FrameRenderer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]FrameRenderer, len(s.renderers))
	copy(out, s.renderers)
	return out
}

func (s *Sink) stats() []StatsListener {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]StatsListener, len(s.listeners))
	copy(out, s.listeners)
	return out
}
