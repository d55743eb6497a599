package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/abhayk2/localDrop/internal/config"
	"github.com/abhayk2/localDrop/internal/filestore"
	"github.com/abhayk2/localDrop/internal/relay"
)

const (
	// Time allowed to write one frame to a subscriber.
	writeWait = 10 * time.Second

	// Maximum size of one signaling message.
	maxMessageSize = 64 * 1024

	shutdownTimeout = 5 * time.Second
)

// Server exposes the relay and the file store over HTTP.
type Server struct {
	cfg    config.ServerConfig
	store  config.StoreConfig
	hub    *relay.Hub
	files  *filestore.Store
	logger *zap.Logger
	mux    *http.ServeMux
}

// New wires the routes. files may be nil, in which case the file routes
// answer 404.
func New(cfg *config.Config, hub *relay.Hub, files *filestore.Store, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Server.Heartbeat <= 0 {
		cfg.Server.Heartbeat = config.DefaultHeartbeat
	}
	if cfg.Server.OutboxSize <= 0 {
		cfg.Server.OutboxSize = config.DefaultOutboxSize
	}
	s := &Server{
		cfg:    cfg.Server,
		store:  cfg.Store,
		hub:    hub,
		files:  files,
		logger: logger,
		mux:    http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("GET /api/p2p", s.handleP2P)
	s.mux.HandleFunc("POST /api/p2p", s.handleP2P)
	s.mux.HandleFunc("GET /ws", s.handleWS)
	s.mux.HandleFunc("GET /api/rooms", s.handleRooms)

	if s.files != nil {
		s.mux.HandleFunc("POST /api/upload", s.handleUpload)
		s.mux.HandleFunc("GET /api/files", s.handleListFiles)
		s.mux.HandleFunc("GET /api/download/{filename}", s.handleDownload)
	}

	s.mux.HandleFunc("OPTIONS /api/", s.handlePreflight)
}

// Handler returns the root handler with logging and CORS applied.
func (s *Server) Handler() http.Handler {
	return s.withLogging(withCORS(s.mux))
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
// The orphan-room janitor runs for the lifetime of the server.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// request contexts end with ctx so open event streams unwind on shutdown
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	go s.hub.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("relay listening", zap.String("addr", s.cfg.Listen))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.logger.Info("relay stopped")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Signaling server is healthy."))
}

func (s *Server) handlePreflight(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Accept")
		next.ServeHTTP(w, r)
	})
}

// statusRecorder keeps the response status for the access log. It passes
// flushing and hijacking through so event streams and upgrades still work.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("hijacking not supported")
	}
	if r.status == 0 {
		r.status = http.StatusSwitchingProtocols
	}
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("took", time.Since(start)),
			zap.String("remote", r.RemoteAddr),
		)
	})
}
