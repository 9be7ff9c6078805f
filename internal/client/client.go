package client

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/taskmgr818/rehab-client/internal/capture"
	"github.com/taskmgr818/rehab-client/internal/catalog"
	"github.com/taskmgr818/rehab-client/internal/config"
	"github.com/taskmgr818/rehab-client/internal/dashboard"
	"github.com/taskmgr818/rehab-client/internal/history"
	"github.com/taskmgr818/rehab-client/internal/protocol"
	"github.com/taskmgr818/rehab-client/internal/session"
	"github.com/taskmgr818/rehab-client/internal/stream"
	"github.com/taskmgr818/rehab-client/internal/ws"
)

// Client ties the connection, session, result stream, catalog, history and
// dashboard together into one running evaluation client.
type Client struct {
	cfg  *config.Config
	sess *session.Session
	sink *stream.Sink
	rest *catalog.Client
	hist *history.DB
	dash *dashboard.Dashboard

	wg sync.WaitGroup

	mu       sync.Mutex
	wsClient *ws.Client
	settings protocol.Settings
	runStart time.Time
}

// New builds a client from configuration. Start must be called before any
// control action.
func New(cfg *config.Config) (*Client, error) {
	hist, err := history.NewDB(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("init history database: %w", err)
	}

	c := &Client{
		cfg:  cfg,
		sink: stream.New(),
		rest: catalog.NewClient(cfg.Server.RESTURL),
		hist: hist,
		settings: protocol.Settings{
			Confidence: cfg.Evaluator.Confidence,
			ImageSize:  cfg.Evaluator.ImageSize,
			LineWidth:  cfg.Evaluator.LineWidth,
		},
	}

	c.sess = session.New(c, c.sink)
	c.sess.Subscribe(c)

	c.dash = dashboard.NewDashboard(c.sess, hist, c)
	c.sink.AttachRenderer(c.dash)
	c.sink.AttachStats(c.dash)

	return c, nil
}

// Session exposes the session for read-only inspection.
func (c *Client) Session() *session.Session {
	return c.sess
}

// Start connects to the backend and brings up the dashboard and frame
// streamer. The ctx controls the client lifetime.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	c.wsClient = ws.NewClient(ctx, c.cfg.Server.WSURL, c)
	wsClient := c.wsClient
	c.mu.Unlock()

	if c.cfg.Dashboard.Enabled {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			if err := c.dash.ServeHTTP(ctx, c.cfg.Dashboard.Address); err != nil {
				log.Printf("[client] dashboard server error: %v", err)
			}
		}()
	}

	if err := wsClient.Connect(); err != nil {
		return fmt.Errorf("websocket connect failed: %w", err)
	}

	// The backend usually pushes the catalog on connect; the explicit
	// fetch covers backends that wait to be asked and exercises the REST
	// fallback when the push never arrives.
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.sess.FetchCatalog(ctx, c.rest); err != nil {
			log.Printf("[client] initial catalog fetch failed: %v", err)
		}
	}()

	if c.cfg.Capture.SourceDir != "" {
		source, err := capture.NewDirSource(c.cfg.Capture.SourceDir)
		if err != nil {
			return fmt.Errorf("init frame source: %w", err)
		}
		streamer := capture.NewStreamer(source, c, c.sess, c.cfg.Capture.FPS)
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			streamer.Run(ctx)
		}()
	}

	return nil
}

// Stop shuts the client down. The lifetime ctx should be cancelled first.
func (c *Client) Stop() error {
	c.mu.Lock()
	wsClient := c.wsClient
	c.mu.Unlock()

	if wsClient != nil {
		wsClient.Disconnect()
	}
	c.wg.Wait()
	return c.hist.Close()
}

// Send implements session.Sender by forwarding to the active connection.
func (c *Client) Send(cmd protocol.Command) bool {
	c.mu.Lock()
	wsClient := c.wsClient
	c.mu.Unlock()

	if wsClient == nil {
		return false
	}
	return wsClient.Send(cmd)
}

// ─────────────────────────────────────────────
// Connection events (implements ws.Handler)
// ─────────────────────────────────────────────

func (c *Client) OnOpened() {
	c.sess.SetConnectionState(ws.StateOpen)

	c.mu.Lock()
	settings := c.settings
	c.mu.Unlock()

	if !c.Send(protocol.SettingsChange{Settings: settings}) {
		log.Printf("[client] initial settings push not accepted")
	}
}

func (c *Client) OnClosed() {
	c.mu.Lock()
	wsClient := c.wsClient
	c.mu.Unlock()

	state := ws.StateClosed
	if wsClient != nil {
		state = wsClient.State()
	}
	c.sess.SetConnectionState(state)
}

func (c *Client) OnMessage(raw []byte) {
	c.sess.HandleMessage(protocol.Decode(raw))
}

func (c *Client) OnError(err error) {
	log.Printf("[client] connection error: %v", err)
}

// ─────────────────────────────────────────────
// Session events (implements session.Observer)
// ─────────────────────────────────────────────

func (c *Client) OnPhaseChange(phase session.Phase, selected *protocol.Exercise) {
	if selected != nil {
		log.Printf("[client] session %s (%s)", phase, selected.Name)
	} else {
		log.Printf("[client] session %s", phase)
	}
}

func (c *Client) OnStatsReset() {}

// OnConnectionLost records the interrupted run: the session dropped back
// to Ready without a user stop, so the stats still hold the last counts.
func (c *Client) OnConnectionLost() {
	log.Printf("[client] connection lost, evaluation interrupted")
	c.recordRun(c.sess.Selected(), c.sess.Stats().Count)
}

func (c *Client) OnCatalogUpdate(catalog []protocol.Exercise) {
	log.Printf("[client] catalog updated: %d exercises", len(catalog))
}

// ─────────────────────────────────────────────
// Control actions (implements dashboard.Controller)
// ─────────────────────────────────────────────

func (c *Client) SelectExercise(id string) error {
	return c.sess.SelectExercise(id)
}

func (c *Client) StartEvaluation() error {
	if err := c.sess.Start(); err != nil {
		return err
	}
	c.mu.Lock()
	c.runStart = time.Now()
	c.mu.Unlock()
	return nil
}

// StopEvaluation stops the run and records it. The final count is read
// before Stop resets the displayed statistics.
func (c *Client) StopEvaluation() error {
	reps := c.sess.Stats().Count
	selected := c.sess.Selected()

	if err := c.sess.Stop(); err != nil {
		return err
	}
	c.recordRun(selected, reps)
	return nil
}

func (c *Client) Reconnect() error {
	c.mu.Lock()
	wsClient := c.wsClient
	c.mu.Unlock()

	if wsClient == nil {
		return fmt.Errorf("client not started")
	}
	return wsClient.Reconnect()
}

// ApplySettings pushes evaluator settings to the backend and remembers
// them for the next reconnect.
func (c *Client) ApplySettings(s protocol.Settings) error {
	c.mu.Lock()
	c.settings = s
	c.mu.Unlock()

	if !c.Send(protocol.SettingsChange{Settings: s}) {
		return fmt.Errorf("settings push: %w: connection not open", session.ErrPrecondition)
	}
	return nil
}

// SaveAction creates or updates a custom exercise through the REST API,
// then refreshes the cached catalog so the new definition is selectable.
func (c *Client) SaveAction(ctx context.Context, ex protocol.Exercise) (protocol.Exercise, error) {
	saved, err := c.rest.SaveAction(ctx, ex)
	if err != nil {
		return protocol.Exercise{}, err
	}
	c.refreshCatalog(ctx)
	return saved, nil
}

// DeleteAction removes a custom exercise and refreshes the catalog; if the
// deleted exercise was selected, the session falls back to idle.
func (c *Client) DeleteAction(ctx context.Context, id string) error {
	if err := c.rest.DeleteAction(ctx, id); err != nil {
		return err
	}
	c.refreshCatalog(ctx)
	return nil
}

func (c *Client) refreshCatalog(ctx context.Context) {
	actions, err := c.rest.GetActions(ctx)
	if err != nil {
		log.Printf("[client] catalog refresh failed: %v", err)
		return
	}
	c.sess.UpdateCatalog(actions)
}

func (c *Client) recordRun(selected *protocol.Exercise, reps int) {
	if selected == nil {
		return
	}

	c.mu.Lock()
	started := c.runStart
	c.mu.Unlock()

	run := &history.Run{
		ExerciseID:   selected.ID,
		ExerciseName: selected.Name,
		Reps:         reps,
		StartedAt:    started,
		EndedAt:      time.Now(),
	}
	if err := c.hist.InsertRun(run); err != nil {
		log.Printf("[client] failed to record run: %v", err)
	}
}
