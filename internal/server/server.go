// Package server exposes the bridge to the local web UI: a JSON API for
// commands, a WebSocket push channel for callbacks, Prometheus metrics and
// the built UI itself.
package server

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Fo4Ik-git/StreamPlayer/internal/constants"
	"github.com/Fo4Ik-git/StreamPlayer/internal/logger"
	"github.com/Fo4Ik-git/StreamPlayer/internal/metrics"
	"github.com/Fo4Ik-git/StreamPlayer/internal/provider"
)

// Facade is the command surface the API drives.
type Facade interface {
	ConnectWithToken(ctx context.Context, accessToken, refreshToken, clientID, clientSecret string) provider.ConnectResult
	ExchangeCode(ctx context.Context, code, clientID, clientSecret, redirectURI string) provider.ConnectResult
	Reconnect(ctx context.Context) provider.ConnectResult
	GetStatus() provider.StatusResult
	Disconnect(ctx context.Context) provider.Result
	GetTranscript(ctx context.Context, videoID string) provider.TranscriptResult
	TestConnection(ctx context.Context, clientID, clientSecret, accessToken string) provider.Result
	Ping() string
}

// Server serves the UI API and push channel.
type Server struct {
	addr    string
	log     *logger.Logger
	srv     *http.Server
	facade  Facade
	hub     *Hub
	started time.Time
}

// New creates a Server bound to addr. webDir, when non-empty, is served at /.
func New(addr string, facade Facade, hub *Hub, webDir string, log *logger.Logger) *Server {
	s := &Server{
		addr:    addr,
		log:     log,
		facade:  facade,
		hub:     hub,
		started: time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/donationalerts/connect", s.handleConnect)
	mux.HandleFunc("POST /api/donationalerts/exchange", s.handleExchange)
	mux.HandleFunc("GET /api/donationalerts/status", s.handleStatus)
	mux.HandleFunc("POST /api/donationalerts/disconnect", s.handleDisconnect)
	mux.HandleFunc("POST /api/donationalerts/reconnect", s.handleReconnect)
	mux.HandleFunc("POST /api/donationalerts/test", s.handleTestConnection)
	mux.HandleFunc("GET /api/transcript/{videoID}", s.handleTranscript)
	mux.HandleFunc("GET /api/ping", s.handlePing)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.Handle("GET /ws", hub)

	if ui, ok := uiHandler(webDir); ok {
		mux.Handle("GET /", ui)
	} else if webDir != "" {
		log.Warn("UI directory not found, serving API only", "dir", webDir)
	}

	// No read or write timeout: /ws connections are long lived.
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           withLogging(log, mux),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return context.Background()
		},
	}

	return s
}

// Handler returns the root handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Run starts the HTTP server and blocks until the context is cancelled.
// It performs graceful shutdown when the context is done.
func (s *Server) Run(ctx context.Context) error {
	s.log.Info("UI server starting", "addr", s.addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("ui server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.log.Info("UI server shutting down")
		// Hijacked push connections are not tracked by Shutdown.
		s.hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.DefaultGracefulShutdownTimeout)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("ui server shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		s.hub.Close()
		return err
	}
}

func withLogging(log *logger.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequestDuration.
			WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).
			Observe(time.Since(start).Seconds())

		log.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.statusCode,
			"duration", time.Since(start).String(),
		)
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader captures the status code before writing it.
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack lets the push endpoint take over the connection.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	rw.statusCode = http.StatusSwitchingProtocols
	return http.NewResponseController(rw.ResponseWriter).Hijack()
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
