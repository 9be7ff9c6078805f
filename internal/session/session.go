package session

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/taskmgr818/rehab-client/internal/protocol"
	"github.com/taskmgr818/rehab-client/internal/ws"
)

// Phase is the evaluation session phase.
type Phase string

const (
	PhaseIdle       Phase = "idle"       // no exercise selected
	PhaseReady      Phase = "ready"      // exercise selected, not evaluating
	PhaseEvaluating Phase = "evaluating" // exercise selected, evaluation running
)

var (
	// ErrPrecondition marks user actions rejected because the session is
	// not in a state that allows them. No state changes on rejection.
	ErrPrecondition = errors.New("precondition violated")

	// ErrUnknownExercise is returned when a selected id does not resolve
	// in the cached catalog.
	ErrUnknownExercise = errors.New("exercise not in catalog")

	// ErrFetchInFlight rejects control actions while a catalog fetch
	// issued by this session is still outstanding, since its outcome may
	// invalidate the selection.
	ErrFetchInFlight = errors.New("catalog fetch in progress")
)

// Stats is the per-session repetition statistics as last reported by the
// backend.
type Stats struct {
	Count int
	Stage string
	Angle float64
}

// resetStats is the placeholder display state outside of an evaluation.
func resetStats() Stats {
	return Stats{Stage: protocol.StageNone}
}

// Sender queues a command on the connection. Implemented by ws.Client.
type Sender interface {
	Send(cmd protocol.Command) bool
}

// ResultSink receives per-frame results in arrival order while the session
// is evaluating. Implemented by stream.Sink.
type ResultSink interface {
	OnFrame(f protocol.ProcessedFrame)
	OnResult(r protocol.Result)
	Reset()
}

// Observer is notified of session changes. Callbacks are invoked outside
// the session lock, one at a time, in event order.
type Observer interface {
	OnPhaseChange(phase Phase, selected *protocol.Exercise)
	OnStatsReset()
	OnConnectionLost()
	OnCatalogUpdate(catalog []protocol.Exercise)
}

// Session tracks the selected exercise, the evaluating/idle phase and the
// connection state, and guards user actions against invalid states. All
// methods are safe for concurrent use; inbound messages are processed to
// completion one at a time.
type Session struct {
	sender Sender
	sink   ResultSink

	mu            sync.Mutex
	phase         Phase
	connState     ws.State
	catalog       []protocol.Exercise
	selected      *protocol.Exercise
	stats         Stats
	fetchInFlight bool
	fetchReply    chan []protocol.Exercise
	observers     []Observer
}

// New creates an idle session with an empty catalog.
func New(sender Sender, sink ResultSink) *Session {
	return &Session{
		sender:    sender,
		sink:      sink,
		phase:     PhaseIdle,
		connState: ws.StateDisconnected,
		stats:     resetStats(),
	}
}

// Subscribe registers an observer for session updates.
func (s *Session) Subscribe(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// Phase returns the current session phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Evaluating reports whether an evaluation is running.
func (s *Session) Evaluating() bool {
	return s.Phase() == PhaseEvaluating
}

// Selected returns a copy of the currently selected exercise, or nil.
func (s *Session) Selected() *protocol.Exercise {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == nil {
		return nil
	}
	e := *s.selected
	return &e
}

// Catalog returns a copy of the cached exercise catalog.
func (s *Session) Catalog() []protocol.Exercise {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]protocol.Exercise, len(s.catalog))
	copy(out, s.catalog)
	return out
}

// Stats returns the last reported repetition statistics.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// ConnectionState returns the session's view of the connection.
func (s *Session) ConnectionState() ws.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connState
}

// SelectExercise resolves id in the cached catalog and moves the session
// to Ready. When called while evaluating, the swap is also announced to
// the backend with an action_select command.
func (s *Session) SelectExercise(id string) error {
	s.mu.Lock()
	if s.fetchInFlight {
		s.mu.Unlock()
		return ErrFetchInFlight
	}

	ex := findExercise(s.catalog, id)
	if ex == nil {
		s.mu.Unlock()
		return fmt.Errorf("select %q: %w", id, ErrUnknownExercise)
	}

	wasEvaluating := s.phase == PhaseEvaluating
	sel := *ex
	s.selected = &sel
	s.phase = PhaseReady
	notify := s.phaseNotification()
	s.mu.Unlock()

	if wasEvaluating {
		if !s.sender.Send(protocol.SelectAction{ActionID: id}) {
			log.Printf("[session] action_select for %q not accepted", id)
		}
	}
	notify()
	return nil
}

// Start begins an evaluation. Valid only from Ready with an open
// connection; otherwise the call is rejected with ErrPrecondition and the
// session is left unchanged.
func (s *Session) Start() error {
	s.mu.Lock()
	if s.fetchInFlight {
		s.mu.Unlock()
		return ErrFetchInFlight
	}

	switch {
	case s.phase == PhaseEvaluating:
		s.mu.Unlock()
		return fmt.Errorf("start: evaluation already running: %w", ErrPrecondition)
	case s.selected == nil:
		s.mu.Unlock()
		return fmt.Errorf("start: no exercise selected: %w", ErrPrecondition)
	case s.connState != ws.StateOpen:
		s.mu.Unlock()
		return fmt.Errorf("start: connection is %s, not open: %w", s.connState, ErrPrecondition)
	}

	id := s.selected.ID
	s.mu.Unlock()

	if !s.sender.Send(protocol.StartEvaluation{ActionID: id}) {
		return fmt.Errorf("start: command not accepted by connection: %w", ErrPrecondition)
	}

	// The lock was released across Send: the connection may have dropped or
	// the selection may have changed in the meantime. Re-check before
	// committing, otherwise a close event consumed in that window would
	// leave the session evaluating over a dead connection.
	s.mu.Lock()
	if s.phase != PhaseReady || s.selected == nil || s.selected.ID != id || s.connState != ws.StateOpen {
		s.mu.Unlock()
		return fmt.Errorf("start: connection or selection changed while starting: %w", ErrPrecondition)
	}
	s.phase = PhaseEvaluating
	notify := s.phaseNotification()
	s.mu.Unlock()

	notify()
	return nil
}

// Stop ends the running evaluation and moves back to Ready. The stop
// command is fire-and-forget: the displayed statistics are reset
// immediately whether or not it reaches the backend, so the UI never
// shows stale counts.
func (s *Session) Stop() error {
	s.mu.Lock()
	if s.phase != PhaseEvaluating {
		s.mu.Unlock()
		return fmt.Errorf("stop: no evaluation running: %w", ErrPrecondition)
	}
	s.phase = PhaseReady
	s.stats = resetStats()
	notify := s.phaseNotification()
	observers := s.observersLocked()
	s.mu.Unlock()

	if !s.sender.Send(protocol.StopEvaluation{}) {
		log.Printf("[session] stop_evaluation not accepted, resetting anyway")
	}

	s.sink.Reset()
	notify()
	for _, o := range observers {
		o.OnStatsReset()
	}
	return nil
}

// SetConnectionState records a connection lifecycle change. Losing the
// connection mid-evaluation forces the session back to Ready and surfaces
// a connection-lost condition; evaluation is never resumed automatically.
func (s *Session) SetConnectionState(st ws.State) {
	s.mu.Lock()
	s.connState = st
	lost := st != ws.StateOpen && s.phase == PhaseEvaluating
	var notify func()
	var observers []Observer
	if lost {
		s.phase = PhaseReady
		notify = s.phaseNotification()
		observers = s.observersLocked()
	}
	s.mu.Unlock()

	if lost {
		log.Printf("[session] connection lost during evaluation")
		notify()
		for _, o := range observers {
			o.OnConnectionLost()
		}
	}
}

// HandleMessage applies one classified inbound message to the session.
// It is the single entry point for the transport's read order: each
// message is processed to completion before the next.
func (s *Session) HandleMessage(msg protocol.Message) {
	switch m := msg.(type) {
	case protocol.ActionsList:
		s.applyCatalog(m.Actions)

	case protocol.Result:
		s.mu.Lock()
		deliver := s.phase == PhaseEvaluating
		if deliver {
			s.stats = Stats{Count: m.Count, Stage: m.Stage, Angle: m.Angle}
		}
		s.mu.Unlock()
		if deliver {
			s.sink.OnResult(m)
		}

	case protocol.ProcessedFrame:
		s.mu.Lock()
		deliver := s.phase == PhaseEvaluating
		s.mu.Unlock()
		if deliver {
			s.sink.OnFrame(m)
		}

	case protocol.EvaluationStarted:
		log.Printf("[session] backend confirmed evaluation of %q", m.ActionName)

	case protocol.ActionSelected:
		log.Printf("[session] backend confirmed selection of %q", m.ActionName)

	case protocol.ActionStopped:
		log.Printf("[session] backend confirmed stop")

	case protocol.Warning:
		log.Printf("[session] backend warning: %s", m.Message)

	case protocol.ServerError:
		log.Printf("[session] backend error: %s", m.Message)

	case protocol.Unknown:
		log.Printf("[session] ignoring unrecognized message (%d bytes)", len(m.Raw))
	}
}

// UpdateCatalog applies a catalog obtained out of band (the REST surface)
// under the same rules as an inbound actions_list.
func (s *Session) UpdateCatalog(actions []protocol.Exercise) {
	s.applyCatalog(actions)
}

// applyCatalog replaces the cached catalog. A selection whose id vanished
// drops the session back to Idle; a surviving selection is refreshed in
// place and, mid-evaluation, re-announced so server-side thresholds stay
// in sync with the latest edit.
func (s *Session) applyCatalog(actions []protocol.Exercise) {
	s.mu.Lock()
	s.catalog = make([]protocol.Exercise, len(actions))
	copy(s.catalog, actions)

	var reannounce string
	var notify func()
	if s.selected != nil {
		if ex := findExercise(s.catalog, s.selected.ID); ex == nil {
			s.selected = nil
			s.phase = PhaseIdle
			notify = s.phaseNotification()
		} else {
			sel := *ex
			s.selected = &sel
			if s.phase == PhaseEvaluating {
				reannounce = sel.ID
			}
		}
	}

	reply := s.fetchReply
	observers := s.observersLocked()
	catalog := make([]protocol.Exercise, len(s.catalog))
	copy(catalog, s.catalog)
	s.mu.Unlock()

	if reply != nil {
		select {
		case reply <- catalog:
		default:
		}
	}

	if reannounce != "" {
		if !s.sender.Send(protocol.SelectAction{ActionID: reannounce}) {
			log.Printf("[session] action_select refresh for %q not accepted", reannounce)
		}
	}
	if notify != nil {
		notify()
	}
	for _, o := range observers {
		o.OnCatalogUpdate(catalog)
	}
}

// phaseNotification captures the current phase and selection under the
// lock and returns a closure that notifies observers after it is released.
func (s *Session) phaseNotification() func() {
	phase := s.phase
	var selected *protocol.Exercise
	if s.selected != nil {
		sel := *s.selected
		selected = &sel
	}
	observers := s.observersLocked()
	return func() {
		for _, o := range observers {
			o.OnPhaseChange(phase, selected)
		}
	}
}

func (s *Session) observersLocked() []Observer {
	out := make([]Observer, len(s.observers))
	copy(out, s.observers)
	return out
}

func findExercise(catalog []protocol.Exercise, id string) *protocol.Exercise {
	for i := range catalog {
		if catalog[i].ID == id {
			return &catalog[i]
		}
	}
	return nil
}
