package dashboard

import (
	"context"
	"embed"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/taskmgr818/rehab-client/internal/catalog"
	"github.com/taskmgr818/rehab-client/internal/history"
	"github.com/taskmgr818/rehab-client/internal/protocol"
	"github.com/taskmgr818/rehab-client/internal/session"
)

//go:embed templates/*
var templates embed.FS

// Controller is the set of actions the dashboard can trigger on the
// running client.
type Controller interface {
	SelectExercise(id string) error
	StartEvaluation() error
	StopEvaluation() error
	Reconnect() error
	ApplySettings(s protocol.Settings) error
	SaveAction(ctx context.Context, ex protocol.Exercise) (protocol.Exercise, error)
	DeleteAction(ctx context.Context, id string) error
}

// Status is the dashboard's snapshot of the client state.
type Status struct {
	Connection string             `json:"connection"`
	Phase      string             `json:"phase"`
	Selected   *protocol.Exercise `json:"selected,omitempty"`

	Count int     `json:"count"`
	Stage string  `json:"stage"`
	Angle float64 `json:"angle"`

	TotalRuns int `json:"totalRuns"`
	TotalReps int `json:"totalReps"`
	TodayRuns int `json:"todayRuns"`
	TodayReps int `json:"todayReps"`
}

// Dashboard serves the local control and status page. It consumes the
// result stream (it is a frame renderer and statistics listener) and
// drives the session through the Controller.
type Dashboard struct {
	sess *session.Session
	hist *history.DB
	ctrl Controller

	mu    sync.Mutex
	frame []byte // latest decoded JPEG
	count int
	stage string
	angle float64
}

// NewDashboard creates a dashboard over the given session and history.
func NewDashboard(sess *session.Session, hist *history.DB, ctrl Controller) *Dashboard {
	return &Dashboard{sess: sess, hist: hist, ctrl: ctrl, stage: protocol.StageNone}
}

// RenderFrame implements stream.FrameRenderer: the latest backend-rendered
// frame is kept for /api/frame. Undecodable payloads are dropped.
func (d *Dashboard) RenderFrame(data string) {
	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		log.Printf("[dashboard] dropping undecodable frame: %v", err)
		return
	}
	d.mu.Lock()
	d.frame = decoded
	d.mu.Unlock()
}

// UpdateStats implements stream.StatsListener.
func (d *Dashboard) UpdateStats(count int, stage string, angle float64) {
	d.mu.Lock()
	d.count = count
	d.stage = stage
	d.angle = angle
	d.mu.Unlock()
}

// Routes builds the dashboard router.
func (d *Dashboard) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/", d.handleIndex)
	r.Route("/api", func(r chi.Router) {
		r.Get("/status", d.handleStatus)
		r.Get("/history", d.handleHistory)
		r.Get("/frame", d.handleFrame)
		r.Post("/select", d.handleSelect)
		r.Post("/start", d.handleStart)
		r.Post("/stop", d.handleStop)
		r.Post("/reconnect", d.handleReconnect)
		r.Post("/settings", d.handleSettings)
		r.Get("/actions", d.handleListActions)
		r.Post("/actions", d.handleSaveAction)
		r.Delete("/actions/{id}", d.handleDeleteAction)
	})

	return r
}

// ServeHTTP starts the dashboard server. It shuts down gracefully when ctx
// is cancelled.
func (d *Dashboard) ServeHTTP(ctx context.Context, addr string) error {
	server := &http.Server{Addr: addr, Handler: d.Routes()}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Printf("[dashboard] starting dashboard server on %s", addr)
	err := server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (d *Dashboard) handleIndex(w http.ResponseWriter, r *http.Request) {
	data, err := templates.ReadFile("templates/index.html")
	if err != nil {
		log.Printf("[dashboard] failed to read index.html: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

func (d *Dashboard) handleStatus(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	status := Status{
		Count: d.count,
		Stage: d.stage,
		Angle: d.angle,
	}
	d.mu.Unlock()

	status.Connection = string(d.sess.ConnectionState())
	status.Phase = string(d.sess.Phase())
	status.Selected = d.sess.Selected()

	if stats, err := d.hist.GetAggregateStats(); err != nil {
		log.Printf("[dashboard] history stats failed: %v", err)
	} else {
		status.TotalRuns = stats.TotalRuns
		status.TotalReps = stats.TotalReps
		status.TodayRuns = stats.TodayRuns
		status.TodayReps = stats.TodayReps
	}

	writeJSON(w, status)
}

func (d *Dashboard) handleHistory(w http.ResponseWriter, r *http.Request) {
	runs, err := d.hist.RecentRuns(50)
	if err != nil {
		log.Printf("[dashboard] history query failed: %v", err)
		writeError(w, http.StatusInternalServerError, "history unavailable")
		return
	}

	type runJSON struct {
		ID           string `json:"id"`
		ExerciseID   string `json:"exerciseId"`
		ExerciseName string `json:"exerciseName"`
		Reps         int    `json:"reps"`
		StartedAt    int64  `json:"startedAt"`
		EndedAt      int64  `json:"endedAt"`
	}
	out := make([]runJSON, 0, len(runs))
	for _, run := range runs {
		out = append(out, runJSON{
			ID:           run.ID,
			ExerciseID:   run.ExerciseID,
			ExerciseName: run.ExerciseName,
			Reps:         run.Reps,
			StartedAt:    run.StartedAt.Unix(),
			EndedAt:      run.EndedAt.Unix(),
		})
	}
	writeJSON(w, map[string]any{"runs": out})
}

func (d *Dashboard) handleFrame(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	frame := d.frame
	d.mu.Unlock()

	if frame == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(frame)
}

func (d *Dashboard) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := d.ctrl.SelectExercise(req.ID); err != nil {
		writeControlError(w, err)
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

func (d *Dashboard) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := d.ctrl.StartEvaluation(); err != nil {
		writeControlError(w, err)
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

func (d *Dashboard) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := d.ctrl.StopEvaluation(); err != nil {
		writeControlError(w, err)
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

func (d *Dashboard) handleReconnect(w http.ResponseWriter, r *http.Request) {
	log.Printf("[dashboard] manual reconnect requested")
	if err := d.ctrl.Reconnect(); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("reconnect failed: %v", err))
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

func (d *Dashboard) handleSettings(w http.ResponseWriter, r *http.Request) {
	var s protocol.Settings
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if s.Confidence < 0 || s.Confidence > 1 {
		writeError(w, http.StatusBadRequest, "confidence must be between 0 and 1")
		return
	}

	if err := d.ctrl.ApplySettings(s); err != nil {
		writeControlError(w, err)
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

func (d *Dashboard) handleListActions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"actions": d.sess.Catalog()})
}

func (d *Dashboard) handleSaveAction(w http.ResponseWriter, r *http.Request) {
	var ex protocol.Exercise
	if err := json.NewDecoder(r.Body).Decode(&ex); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	saved, err := d.ctrl.SaveAction(r.Context(), ex)
	if err != nil {
		writeControlError(w, err)
		return
	}
	writeJSON(w, map[string]any{"status": "ok", "action": saved})
}

func (d *Dashboard) handleDeleteAction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := d.ctrl.DeleteAction(r.Context(), id); err != nil {
		writeControlError(w, err)
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[dashboard] failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"status": "error", "message": msg})
}

// writeControlError maps session and backend errors to HTTP codes.
func writeControlError(w http.ResponseWriter, err error) {
	var rejected *catalog.RejectedError
	switch {
	case errors.Is(err, session.ErrUnknownExercise):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, session.ErrPrecondition), errors.Is(err, session.ErrFetchInFlight):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &rejected):
		writeError(w, rejected.Status, rejected.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
