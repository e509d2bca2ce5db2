// Package feed pushes orchestrator state to websocket clients and accepts
// claim requests from them.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/emmanuelist/wallet-wave/claim"
	"github.com/emmanuelist/wallet-wave/logger"
	"github.com/emmanuelist/wallet-wave/orchestrator"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	TypeState = "state"
	TypeError = "error"
	TypeClaim = "claim"
	// TypeRefresh asks for a fresh read.
	TypeRefresh = "refresh"

	writeWait  = 10 * time.Second
	sendBuffer = 16
)

// Source is the orchestrator surface the feed exposes.
type Source interface {
	State() orchestrator.State
	Subscribe(fn func(orchestrator.State)) (cancel func())
	RequestClaim(ctx context.Context) error
	Refresh(ctx context.Context) error
}

// Message is the envelope for both directions.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ErrorPayload is sent back when a client request fails.
type ErrorPayload struct {
	Request     string `json:"request"`
	Message     string `json:"message"`
	NotEligible bool   `json:"notEligible,omitempty"`
}

type Server struct {
	source   Source
	log      *logger.Logger
	upgrader websocket.Upgrader
	gatherer prometheus.Gatherer

	mu          sync.Mutex
	clients     map[*client]struct{}
	unsubscribe func()
	closed      bool
}

type Option func(*Server)

// WithGatherer serves the given registry on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(s *Server) {
		s.log = l
	}
}

// WithCheckOrigin overrides the websocket origin check.
func WithCheckOrigin(fn func(r *http.Request) bool) Option {
	return func(s *Server) {
		s.upgrader.CheckOrigin = fn
	}
}

func New(source Source, opts ...Option) *Server {
	s := &Server{
		source: source,
		log:    logger.GetLogger().Named("feed"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		clients: make(map[*client]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.unsubscribe = source.Subscribe(s.broadcast)
	return s
}

// Handler routes /ws, /state, /claim and, with a gatherer, /metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.serveWS)
	mux.HandleFunc("GET /state", s.serveState)
	mux.HandleFunc("POST /claim", s.serveClaim)
	if s.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{
			ErrorHandling: promhttp.ContinueOnError,
		}))
	}
	return mux
}

// ListenAndServe serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close unsubscribes from the source and disconnects every client.
func (s *Server) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	clients := s.clients
	s.clients = make(map[*client]struct{})
	s.mu.Unlock()

	s.unsubscribe()
	for c := range clients {
		c.close()
	}
}

// Clients is the number of connected websocket clients.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) serveState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.source.State())
}

func (s *Server) serveClaim(w http.ResponseWriter, r *http.Request) {
	if err := s.source.RequestClaim(r.Context()); err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, orchestrator.ErrNotEligible):
			status = http.StatusConflict
		case errors.Is(err, orchestrator.ErrWrongNetwork):
			status = http.StatusPreconditionFailed
		case errors.Is(err, orchestrator.ErrClosed):
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, errorPayload(TypeClaim, err))
		return
	}
	writeJSON(w, http.StatusAccepted, s.source.State())
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("websocket upgrade failed", "err", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer), done: make(chan struct{})}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.clients[c] = struct{}{}
	s.mu.Unlock()
	s.log.Debug("client connected", "remote", r.RemoteAddr)

	if msg, err := encode(TypeState, s.source.State()); err == nil {
		c.enqueue(msg)
	}
	go c.writeLoop()
	s.readLoop(c)
}

// readLoop handles client requests until the connection drops.
func (s *Server) readLoop(c *client) {
	defer s.drop(c)
	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		var err error
		switch msg.Type {
		case TypeClaim:
			err = s.source.RequestClaim(ctx)
		case TypeRefresh:
			err = s.source.Refresh(ctx)
		case TypeState:
			var out []byte
			if out, err = encode(TypeState, s.source.State()); err == nil {
				c.enqueue(out)
			}
		default:
			err = errors.New("unknown request type")
		}
		cancel()

		if err != nil {
			if out, eerr := encode(TypeError, errorPayload(msg.Type, err)); eerr == nil {
				c.enqueue(out)
			}
		}
	}
}

func (s *Server) broadcast(st orchestrator.State) {
	msg, err := encode(TypeState, st)
	if err != nil {
		s.log.Error("encode state", "err", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		if !c.enqueue(msg) {
			// slow consumer
			delete(s.clients, c)
			go c.close()
		}
	}
}

func (s *Server) drop(c *client) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
	c.close()
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

// enqueue never blocks; it reports false when the client cannot keep up.
func (c *client) enqueue(msg []byte) bool {
	select {
	case <-c.done:
		return true
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *client) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.close()
				return
			}
		}
	}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

func encode(typ string, v interface{}) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{Type: typ, Payload: payload})
}

func errorPayload(request string, err error) ErrorPayload {
	p := ErrorPayload{
		Request:     request,
		Message:     err.Error(),
		NotEligible: errors.Is(err, orchestrator.ErrNotEligible),
	}
	var cerr *claim.Error
	if errors.As(err, &cerr) {
		p.Message = cerr.Kind.Message()
	}
	return p
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
