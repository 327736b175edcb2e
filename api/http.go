package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/VanDung-dev/HieraChain-Simulator/bridge"
	"github.com/VanDung-dev/HieraChain-Simulator/engine"
)

// Version is the current version of the HieraChain simulator servers.
const Version = "0.1.0"

// HeaderRequestID carries the request ID in both directions.
const HeaderRequestID = "X-Request-Id"

type ctxKey int

const requestIDKey ctxKey = iota

// RequestID tags each request with the caller's X-Request-Id, or a fresh
// UUID, and echoes it on the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

// RequestIDFrom returns the ID installed by RequestID.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// accessLog logs one line per request at debug level.
func accessLog(service string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			Logger().Debug("http request",
				zap.String("service", service),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", RequestIDFrom(r.Context())))
		})
	}
}

func health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		Logger().Error("failed to encode response", zap.Error(err))
		status = http.StatusInternalServerError
		body = []byte(`{"error":"failed to encode response"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// statusForError maps a handle error onto an HTTP status.
func statusForError(err error) int {
	var perr *bridge.ProtocolError
	switch {
	case errors.As(err, &perr):
		if perr.Code == bridge.CodeUnknownMethod {
			return http.StatusNotFound
		}
		return http.StatusBadRequest
	case errors.Is(err, bridge.ErrStateClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, bridge.ErrInvalidArgs),
		errors.Is(err, engine.ErrInvalidDuration),
		errors.Is(err, engine.ErrInsufficientGas),
		errors.Is(err, engine.ErrInvalidHex):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrCheckpointNotFound),
		errors.Is(err, engine.ErrObjectNotFound),
		errors.Is(err, engine.ErrTransactionNotFound),
		errors.Is(err, engine.ErrCommitteeNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// callJSON dispatches through the handle and decodes the result as T.
func callJSON[T any](h *bridge.Handle, method string, args any) (T, error) {
	res, err := h.Call(method, args)
	if err != nil {
		var zero T
		return zero, err
	}
	return bridge.DecodeResult[T](res)
}

// HTTPServer runs one router on one address.
type HTTPServer struct {
	name   string
	server *http.Server
}

// NewHTTPServer creates a server for handler on addr.
func NewHTTPServer(name, addr string, handler http.Handler) *HTTPServer {
	return &HTTPServer{
		name: name,
		server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Addr returns the listen address.
func (s *HTTPServer) Addr() string { return s.server.Addr }

// Start serves until Shutdown (blocking).
func (s *HTTPServer) Start() error {
	Logger().Info("http server listening", zap.String("service", s.name), zap.String("address", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
