package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/blockhost/blockwatch/internal/store"
	"github.com/blockhost/blockwatch/internal/synth"
)

const (
	// sseWriteTimeout is the maximum time allowed for a single SSE write
	// operation. This prevents goroutine leaks when clients are slow or
	// disconnected. Must be <= shutdown timeout to ensure clean shutdown.
	sseWriteTimeout = 5 * time.Second

	// block rotation window: the advertised block identifier changes at
	// a random point inside this range, like a chain producing blocks at
	// an uneven pace
	minRotateAfter = 20 * time.Second
	maxRotateAfter = 60 * time.Second

	// newly created deployments start in this state
	statusDeployed = "deployed"
)

// statusEnvelope is the wire format served by /api/status. Field names
// must stay aligned with the fetch package's envelope decoding.
type statusEnvelope struct {
	Success bool         `json:"success"`
	Status  *blockStatus `json:"status,omitempty"`
}

// blockStatus mirrors synth.Block with the wire's JSON tags.
type blockStatus struct {
	BlockID   string    `json:"block_id"`
	Height    int64     `json:"height"`
	Hash      string    `json:"hash"`
	CreatedAt time.Time `json:"created_at"`
	Active    bool      `json:"active"`
	Category  string    `json:"category"`
}

// deployRequest is the body accepted by POST /api/deployments.
type deployRequest struct {
	Repo     string `json:"repo"`
	Category string `json:"category"`
}

// Server is the mock hosting backend.
//
// It fabricates the API the demo front-end pretends to have:
//
//   - GET /api/status: current block status, with the block identifier
//     rotating on a randomized 20-60s schedule
//   - GET /api/deployments: all deployment records
//   - POST /api/deployments: create a record (CID and block assigned
//     server-side)
//   - DELETE /api/deployments/{id}: remove a record
//   - GET /api/events: Server-Sent Events stream of store changes
//
// The server is designed for graceful shutdown via context cancellation.
type Server struct {
	store      store.Store
	gen        *synth.Generator
	port       int
	logger     *slog.Logger
	httpServer *http.Server

	// rotateAfter returns how long the current block stays advertised.
	// Overridable in tests.
	rotateAfter func() time.Duration

	mu           sync.Mutex
	current      synth.Block
	nextRotateAt time.Time
}

// NewServer creates a new mock backend [Server].
//
// The first block is synthesized immediately so /api/status never serves
// an empty payload. The server is not started until [Server.Start] is
// called.
func NewServer(st store.Store, gen *synth.Generator, port int, logger *slog.Logger) *Server {
	return &Server{
		store:  st,
		gen:    gen,
		port:   port,
		logger: logger,
		rotateAfter: func() time.Duration {
			return minRotateAfter + time.Duration(rand.Int63n(int64(maxRotateAfter-minRotateAfter)))
		},
		current: gen.Block(0),
	}
}

// Start begins serving HTTP requests in a background goroutine.
//
// Start is non-blocking and returns immediately after confirming the
// server is listening. The server runs until the context is cancelled,
// at which point it initiates a graceful shutdown with a 5-second
// timeout.
//
// Returns an error if the server fails to bind to the configured port.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/deployments", s.handleDeployments)
	mux.HandleFunc("/api/deployments/", s.handleDeployment)
	mux.HandleFunc("/api/events", s.handleSSE)

	// create listener first to verify port availability synchronously
	addr := fmt.Sprintf(":%d", s.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.port, err)
	}

	s.httpServer = &http.Server{
		Handler: mux,
		// BaseContext derives all request contexts from the server
		// context, so cancelling ctx also unwinds long-running handlers
		// like SSE.
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
	}()

	return nil
}

// currentBlock returns the advertised block, rotating to a fresh one
// when the randomized schedule says it is due.
func (s *Server) currentBlock() synth.Block {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if s.nextRotateAt.IsZero() {
		s.nextRotateAt = now.Add(s.rotateAfter())
	}
	if now.After(s.nextRotateAt) {
		previous := s.current.BlockID
		s.current = s.gen.Block(s.current.Height)
		s.nextRotateAt = now.Add(s.rotateAfter())
		s.logger.Info("block rotated",
			"from", previous,
			"to", s.current.BlockID,
			"height", s.current.Height,
		)
	}
	return s.current
}

// handleStatus serves the status envelope.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	b := s.currentBlock()
	env := statusEnvelope{
		Success: true,
		Status: &blockStatus{
			BlockID:   b.BlockID,
			Height:    b.Height,
			Hash:      b.Hash,
			CreatedAt: b.CreatedAt,
			Active:    b.Active,
			Category:  b.Category,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")

	if err := json.NewEncoder(w).Encode(env); err != nil {
		s.logger.Error("failed to encode status response", "error", err)
	}
}

// handleDeployments serves the deployment collection: GET lists, POST
// creates.
func (s *Server) handleDeployments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache")
		if err := json.NewEncoder(w).Encode(s.store.List()); err != nil {
			s.logger.Error("failed to encode deployments response", "error", err)
		}

	case http.MethodPost:
		var req deployRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if req.Repo == "" {
			http.Error(w, "repo is required", http.StatusBadRequest)
			return
		}

		category := req.Category
		if category == "" {
			category = s.gen.Category()
		}

		d := store.Deployment{
			ID:        uuid.NewString(),
			Repo:      req.Repo,
			CID:       s.gen.CID(),
			BlockID:   s.currentBlock().BlockID,
			Category:  category,
			Status:    statusDeployed,
			CreatedAt: time.Now().UTC(),
		}
		if err := s.store.Add(d); err != nil {
			s.logger.Error("failed to store deployment", "error", err)
			http.Error(w, "failed to store deployment", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		if err := json.NewEncoder(w).Encode(d); err != nil {
			s.logger.Error("failed to encode deployment response", "error", err)
		}

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleDeployment serves a single record: DELETE removes it.
func (s *Server) handleDeployment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/deployments/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}

	removed, err := s.store.Remove(id)
	if err != nil {
		s.logger.Error("failed to remove deployment", "id", id, "error", err)
		http.Error(w, "failed to remove deployment", http.StatusInternalServerError)
		return
	}
	if !removed {
		http.NotFound(w, r)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSSE streams deployment store events via Server-Sent Events.
//
// The handler uses write deadlines to prevent goroutine leaks when
// clients are slow or disconnected. Without deadlines, a blocked write
// would prevent the handler from detecting context cancellation or
// channel closure.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	rc := http.NewResponseController(w)

	// track if write deadlines are supported (may not be for some
	// ResponseWriter impls)
	deadlinesSupported := true

	writeAndFlush := func(data []byte) error {
		if deadlinesSupported {
			if err := rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout)); err != nil {
				s.logger.Warn("sse write deadlines not supported", "error", err)
				deadlinesSupported = false
			}
		}

		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		return rc.Flush()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	ch := s.store.Subscribe()
	defer s.store.Unsubscribe(ch)

	// send the current records first so new clients start complete
	for _, d := range s.store.List() {
		data, err := json.Marshal(store.Event{Kind: store.EventAdded, Deployment: d})
		if err != nil {
			continue
		}
		if err := writeAndFlush(data); err != nil {
			return
		}
	}

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if err := writeAndFlush(data); err != nil {
				return
			}

		case <-r.Context().Done():
			// request context is derived from the server context via
			// BaseContext, so this fires on both client disconnect AND
			// server shutdown
			return
		}
	}
}
