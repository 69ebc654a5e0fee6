package livediff

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/livefir/livediff/internal/memory"
	"github.com/livefir/livediff/internal/metrics"
	"github.com/livefir/livediff/internal/session"
	"github.com/livefir/livediff/internal/token"
)

// View is the application-side contract: render the current state as a
// tree and react to client events. A fresh View is built per connection.
type View interface {
	Render() (*Tree, error)
	HandleEvent(ctx context.Context, event string, data map[string]interface{}) error
}

// ViewFactory builds a per-connection View from the incoming request.
type ViewFactory func(r *http.Request) (View, error)

// Broadcaster allows views to push updates to their connection without
// client interaction. Examples: notifications, tickers, job status.
type Broadcaster interface {
	Send() error // Re-renders the view and sends the resulting diff
}

// BroadcastAware is implemented by views that need server-initiated
// updates.
type BroadcastAware interface {
	OnConnect(ctx context.Context, b Broadcaster) error
	OnDisconnect()
}

// Handler serves a view over WebSocket, retaining each connection's last
// rendered tree and shipping sparse diffs on every update. A plain HTTP
// request gets the flattened HTML instead.
type Handler struct {
	factory  ViewFactory
	config   *Config
	upgrader *websocket.Upgrader
	logger   *slog.Logger
	tokens   *token.Service
	sessions *session.Manager
	memory   *memory.Manager
	metrics  *metrics.Collector
	stop     chan struct{}
	stopOnce sync.Once
}

// Option configures a Handler.
type Option func(*Handler)

// WithConfig replaces the default configuration.
func WithConfig(c *Config) Option {
	return func(h *Handler) { h.config = c }
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// WithUpgrader replaces the default WebSocket upgrader, e.g. to restrict
// origins.
func WithUpgrader(u *websocket.Upgrader) Option {
	return func(h *Handler) { h.upgrader = u }
}

// WithMaxMemoryMB caps the memory spent retaining rendered trees.
func WithMaxMemoryMB(mb int) Option {
	return func(h *Handler) { h.config.MaxMemoryMB = mb }
}

// WithMinify enables static-segment minification on outgoing trees.
func WithMinify() Option {
	return func(h *Handler) { h.config.Minify = true }
}

// NewHandler builds a live handler around a view factory.
func NewHandler(factory ViewFactory, opts ...Option) (*Handler, error) {
	if factory == nil {
		return nil, fmt.Errorf("livediff: nil view factory")
	}

	h := &Handler{
		factory: factory,
		config:  DefaultConfig(),
		upgrader: &websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: slog.Default(),
		stop:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}

	tokens, err := token.NewService(&token.Config{
		TTL:         time.Duration(h.config.TokenTTL),
		NonceWindow: 5 * time.Minute,
	})
	if err != nil {
		return nil, fmt.Errorf("livediff: token service: %w", err)
	}
	h.tokens = tokens
	h.sessions = session.NewManager(time.Duration(h.config.SessionTTL))
	memCfg := memory.DefaultConfig()
	memCfg.MaxMemoryMB = h.config.MaxMemoryMB
	h.memory = memory.NewManager(memCfg)
	h.metrics = metrics.NewCollector()

	go h.janitor(memCfg.CleanupInterval)

	return h, nil
}

// Close stops the handler's background cleanup.
func (h *Handler) Close() {
	h.stopOnce.Do(func() { close(h.stop) })
}

func (h *Handler) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-h.stop:
			return
		case <-ticker.C:
			removed := h.sessions.CleanupExpired()
			h.tokens.CleanupExpiredNonces()
			if removed > 0 {
				h.metrics.IncrementCleanupOperation(int64(removed))
				h.logger.Debug("cleaned up expired sessions", "removed", removed)
			}
		}
	}
}

// Token issues a join token for a view, typically embedded in the page
// that opens the WebSocket.
func (h *Handler) Token(siteID, viewID string) (string, error) {
	t, err := h.tokens.Generate(siteID, viewID)
	if err != nil {
		return "", err
	}
	h.metrics.IncrementTokenGenerated()
	return t, nil
}

// Stats is a snapshot of handler counters.
type Stats struct {
	ActiveSessions int64   `json:"active_sessions"`
	SessionsOpened int64   `json:"sessions_opened"`
	FullRenders    int64   `json:"full_renders"`
	DiffsComputed  int64   `json:"diffs_computed"`
	DiffErrors     int64   `json:"diff_errors"`
	WireSavingsPct float64 `json:"wire_savings_pct"`
}

// Stats returns current handler counters.
func (h *Handler) Stats() Stats {
	m := h.metrics.GetMetrics()
	return Stats{
		ActiveSessions: m.ActiveSessions,
		SessionsOpened: m.SessionsOpened,
		FullRenders:    m.FullRenders,
		DiffsComputed:  m.DiffsComputed,
		DiffErrors:     m.DiffErrors,
		WireSavingsPct: h.metrics.GetWireSavings(),
	}
}

// eventMessage is what the client sends over the socket.
type eventMessage struct {
	Event string                 `json:"event"`
	Token string                 `json:"token,omitempty"`
	Data  map[string]interface{} `json:"data,omitempty"`
}

// updateResponse wraps an update with delivery metadata.
type updateResponse struct {
	Update *Update       `json:"update,omitempty"`
	Meta   *responseMeta `json:"meta,omitempty"`
}

type responseMeta struct {
	Success bool   `json:"success"`
	Event   string `json:"event,omitempty"`
	Error   string `json:"error,omitempty"`
	Session string `json:"session,omitempty"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		h.handleWebSocket(w, r)
		return
	}
	h.handleHTTP(w, r)
}

// handleHTTP serves the flattened HTML for clients without a socket.
func (h *Handler) handleHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodHead {
		return
	}

	view, err := h.factory(r)
	if err != nil {
		h.logger.Error("view factory failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	tree, err := view.Render()
	if err != nil {
		h.logger.Error("render failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if h.config.Minify {
		tree = MinifyTree(tree)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = io.WriteString(w, Flatten(tree))
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	// A token supplied by the page is verified before any state is built.
	if t := r.URL.Query().Get("token"); t != "" {
		if _, err := h.tokens.Verify(t); err != nil {
			h.metrics.IncrementTokenFailure()
			h.logger.Warn("join token rejected", "err", err, "remote", conn.RemoteAddr())
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "invalid token"),
				time.Now().Add(time.Second))
			return
		}
		h.metrics.IncrementTokenVerified()
	}

	view, err := h.factory(r)
	if err != nil {
		h.logger.Error("view factory failed", "err", err)
		return
	}

	sess, err := h.sessions.Create(r.Host, r.URL.Path, "")
	if err != nil {
		h.logger.Error("session create failed", "err", err)
		return
	}
	defer h.sessions.Delete(sess.ID)

	c := &liveConn{
		conn:    conn,
		view:    view,
		handler: h,
		session: sess,
	}

	h.metrics.IncrementSessionOpened()
	defer h.metrics.IncrementSessionClosed()
	defer h.memory.Release(sess.ID)

	h.logger.Debug("client connected", "remote", conn.RemoteAddr(), "session", sess.ID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if aware, ok := view.(BroadcastAware); ok {
		if err := aware.OnConnect(ctx, c); err != nil {
			h.logger.Error("view OnConnect failed", "err", err)
		}
		defer aware.OnDisconnect()
	}

	// Initial full tree
	if err := c.push(""); err != nil {
		h.logger.Error("initial render failed", "err", err)
		return
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read failed", "err", err)
			}
			break
		}

		var msg eventMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Warn("bad client message", "err", err)
			continue
		}
		if msg.Data == nil {
			msg.Data = make(map[string]interface{})
		}

		if err := view.HandleEvent(ctx, msg.Event, msg.Data); err != nil {
			h.logger.Warn("event handler failed", "event", msg.Event, "err", err)
			c.sendError(msg.Event, err)
			continue
		}

		if err := c.push(msg.Event); err != nil {
			h.logger.Error("update push failed", "event", msg.Event, "err", err)
			break
		}
	}

	h.logger.Debug("client disconnected", "session", sess.ID)
}

// liveConn is one attached client: the socket plus the retained tree its
// next diff is computed against.
type liveConn struct {
	conn    *websocket.Conn
	view    View
	handler *Handler
	session *session.Session
	prev    *Tree
	mu      sync.Mutex
}

// Send implements Broadcaster.
func (c *liveConn) Send() error {
	return c.push("")
}

// push re-renders the view and writes the resulting update: the full tree
// on first send, a sparse diff after that. An unchanged render sends
// nothing.
func (c *liveConn) push(event string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	h := c.handler

	next, err := c.view.Render()
	if err != nil {
		return fmt.Errorf("render failed: %w", err)
	}
	if h.config.Minify {
		next = MinifyTree(next)
	}

	size := treeSize(next)

	var update *Update
	if c.prev == nil {
		update = &Update{Full: next}
		h.metrics.IncrementFullRender()
		if err := h.memory.Retain(c.session.ID, size); err != nil {
			return fmt.Errorf("retained tree rejected: %w", err)
		}
	} else {
		changes, err := Diff(c.prev, next)
		if err != nil {
			// Statics changed under us, resync with a full tree.
			h.metrics.IncrementDiffError()
			update = &Update{Full: next}
			h.metrics.IncrementFullRender()
		} else {
			if len(changes) == 0 {
				return nil
			}
			update = &Update{Changes: changes}
		}
		if err := h.memory.Update(c.session.ID, size); err != nil {
			h.logger.Warn("retained tree over budget", "session", c.session.ID, "err", err)
		}
	}

	payload, err := json.Marshal(updateResponse{
		Update: update,
		Meta:   &responseMeta{Success: true, Event: event, Session: c.session.ID},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal update: %w", err)
	}

	if update.Changes != nil {
		h.metrics.IncrementDiffComputed(size, int64(len(payload)))
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("websocket write failed: %w", err)
	}

	c.prev = next
	return nil
}

func (c *liveConn) sendError(event string, evErr error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	payload, err := json.Marshal(updateResponse{
		Meta: &responseMeta{Success: false, Event: event, Error: evErr.Error()},
	})
	if err != nil {
		return
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.handler.logger.Warn("websocket write failed", "err", err)
	}
}

// treeSize approximates the retained cost of a tree by its wire size.
func treeSize(t *Tree) int64 {
	b, err := json.Marshal(t)
	if err != nil {
		return 0
	}
	return int64(len(b))
}
