// Package server exposes the formatter over HTTP using the blackd protocol,
// so editor integrations written for blackd work unchanged.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"straitjacket/internal/align"
	"straitjacket/internal/config"
	"straitjacket/internal/diff"
	"straitjacket/internal/logging"
	"straitjacket/internal/runner"
	"straitjacket/internal/upstream"
	"straitjacket/internal/version"
)

// Request and response headers.
const (
	HeaderProtocolVersion     = "X-Protocol-Version"
	HeaderFastOrSafe          = "X-Fast-Or-Safe"
	HeaderSkipStringNormalize = "X-Skip-String-Normalization"
	HeaderSkipAlignment       = "X-Skip-Alignment"
	HeaderDiff                = "X-Diff"
	HeaderVersion             = "X-Sjfmt-Version"
	HeaderRequestID           = "X-Request-ID"
)

// ProtocolVersion is the only protocol version understood.
const ProtocolVersion = "1"

// Server formats request bodies.
type Server struct {
	cfg       *config.Config
	formatter upstream.Formatter
	log       *zap.Logger
}

// New returns a server using f as the upstream formatter.
func New(cfg *config.Config, f upstream.Formatter, logger *zap.Logger) *Server {
	if f == nil {
		f = upstream.Passthrough{}
	}
	return &Server{
		cfg:       cfg,
		formatter: f,
		log:       logging.For(logger, logging.CategoryServer),
	}
}

// ListenAndServe listens on the configured address and serves until ctx is
// cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Server.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// gracefully. ln is closed on return.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:     s.Handler(),
		ReadTimeout: s.cfg.GetReadTimeout(),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.log.Info("listening", zap.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.GetShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		srv.Close()
		<-errCh
		return fmt.Errorf("shutdown: %w", err)
	}
	<-errCh
	s.log.Info("stopped")
	return nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.serveHTTP)
}

func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id := r.Header.Get(HeaderRequestID)
	if id == "" {
		id = uuid.NewString()
	}
	w.Header().Set(HeaderVersion, version.Version)
	w.Header().Set(HeaderRequestID, id)

	status, body := s.handle(w, r)
	if body != "" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	}
	w.WriteHeader(status)
	if body != "" {
		if _, err := io.WriteString(w, body); err != nil {
			s.log.Debug("failed to write response", zap.String("id", id), zap.Error(err))
		}
	}

	s.log.Debug("request",
		zap.String("id", id),
		zap.String("method", r.Method),
		zap.Int("status", status),
		zap.Int("bytes_out", len(body)),
		zap.Duration("elapsed", time.Since(start)),
	)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) (int, string) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		return http.StatusMethodNotAllowed, "Method not allowed"
	}
	if v := r.Header.Get(HeaderProtocolVersion); v != "" && v != ProtocolVersion {
		return http.StatusNotImplemented, "This server only supports protocol version 1"
	}

	fast := s.cfg.Engine.Fast
	switch v := strings.ToLower(r.Header.Get(HeaderFastOrSafe)); v {
	case "":
	case "fast":
		fast = true
	case "safe":
		fast = false
	default:
		return http.StatusBadRequest, fmt.Sprintf("invalid value for %s: %q", HeaderFastOrSafe, v)
	}

	opts := runner.EngineOptions(s.cfg)
	var err error
	if opts.SkipStringNormalization, err = boolHeader(r, HeaderSkipStringNormalize, opts.SkipStringNormalization); err != nil {
		return http.StatusBadRequest, err.Error()
	}
	if opts.SkipAlignment, err = boolHeader(r, HeaderSkipAlignment, opts.SkipAlignment); err != nil {
		return http.StatusBadRequest, err.Error()
	}
	wantDiff, err := boolHeader(r, HeaderDiff, false)
	if err != nil {
		return http.StatusBadRequest, err.Error()
	}

	var body io.Reader = r.Body
	if limit := s.cfg.Server.MaxBodyBytes; limit > 0 {
		body = http.MaxBytesReader(w, r.Body, limit)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return http.StatusRequestEntityTooLarge, fmt.Sprintf("Request body exceeds %d bytes", tooLarge.Limit)
		}
		return http.StatusBadRequest, "Failed to read request body"
	}

	src := string(data)
	out, err := runner.Format(r.Context(), s.formatter, src, opts, fast)
	if err != nil {
		var scanErr *align.ScanError
		if errors.As(err, &scanErr) || errors.Is(err, upstream.ErrFormatter) {
			return http.StatusBadRequest, "Cannot parse: " + err.Error()
		}
		s.log.Error("format failed", zap.Error(err))
		return http.StatusInternalServerError, err.Error()
	}

	if out == src {
		return http.StatusNoContent, ""
	}
	if wantDiff {
		return http.StatusOK, diff.Unified(diff.ComputeDiff("In", "Out", src, out))
	}
	return http.StatusOK, out
}

// boolHeader parses an optional boolean header; absent means def.
func boolHeader(r *http.Request, name string, def bool) (bool, error) {
	v := r.Header.Get(name)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid value for %s: %q", name, v)
	}
	return b, nil
}
