package bridge

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/VanDung-dev/HieraChain-Simulator/config"
	"github.com/VanDung-dev/HieraChain-Simulator/engine"
	"github.com/VanDung-dev/HieraChain-Simulator/fixture"
	"github.com/VanDung-dev/HieraChain-Simulator/ingest"
	"github.com/VanDung-dev/HieraChain-Simulator/internal/logging"
	"github.com/VanDung-dev/HieraChain-Simulator/monitoring"
)

// Options configure NewHandle. Zero values select defaults.
type Options struct {
	Registry     *Registry
	Metrics      *monitoring.Metrics
	FaucetAmount uint64
	CacheSize    int
	CacheTTL     time.Duration
	// Closers are closed by Destroy after the state, in order.
	Closers []io.Closer
}

// Handle is one live simulator instance.
type Handle struct {
	state    *State
	registry *Registry
	metrics  *monitoring.Metrics
	closers  []io.Closer

	destroyOnce sync.Once
	destroyErr  error
}

// NewHandle wraps an existing ledger. A custom opts.Registry is sealed.
func NewHandle(l Ledger, opts Options) *Handle {
	if opts.Registry == nil {
		opts.Registry = DefaultRegistry()
	}
	opts.Registry.Seal()
	if opts.FaucetAmount == 0 {
		opts.FaucetAmount = config.Default().Bridge.FaucetAmount
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = config.Default().Bridge.CacheSize
	}
	return &Handle{
		state:    newState(l, opts.CacheSize, opts.CacheTTL, opts.FaucetAmount),
		registry: opts.Registry,
		metrics:  opts.Metrics,
		closers:  opts.Closers,
	}
}

// Create builds a handle from the HIE_SIM_* environment.
func Create() (*Handle, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, err
	}
	return CreateWithConfig(cfg)
}

// CreateWithConfig builds a fresh simulator, attaches the metrics and
// ingestion observers, and runs the fixture when enabled.
func CreateWithConfig(cfg config.Config) (*Handle, error) {
	InitDiagnostics(cfg.Log)

	sim := engine.New(cfg.Simulator.EngineConfig())
	metrics := monitoring.Default()
	sim.Subscribe(metrics)

	var closers []io.Closer
	if cfg.Ingestion.Path != "" {
		store, err := ingest.Open(cfg.Ingestion.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open ingestion store: %w", err)
		}
		store.SetMetrics(metrics)
		sim.Subscribe(store)
		closers = append(closers, store)
	}

	if cfg.Fixture.Enabled {
		if err := fixture.Bootstrap(sim, fixture.DefaultPhases(), cfg.Fixture.Seed); err != nil {
			for _, c := range closers {
				_ = c.Close()
			}
			return nil, fmt.Errorf("fixture bootstrap failed: %w", err)
		}
	}

	h := NewHandle(sim, Options{
		Metrics:      metrics,
		FaucetAmount: cfg.Bridge.FaucetAmount,
		CacheSize:    cfg.Bridge.CacheSize,
		CacheTTL:     cfg.Bridge.CacheTTL,
		Closers:      closers,
	})
	Logger().Info("Created simulator handle",
		zap.String("chain_identifier", sim.ChainIdentifier()),
		zap.Bool("fixture", cfg.Fixture.Enabled))
	return h, nil
}

// Destroy releases the simulator and every owned resource. A nil handle is
// a no-op. Later calls return the first call's result.
func (h *Handle) Destroy() error {
	if h == nil {
		return nil
	}
	h.destroyOnce.Do(func() {
		h.state.close()
		var errs []error
		for _, c := range h.closers {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		h.destroyErr = errors.Join(errs...)
		Logger().Debug("Destroyed simulator handle")
	})
	return h.destroyErr
}

// Registry returns the registry the handle dispatches through.
func (h *Handle) Registry() *Registry { return h.registry }

// Execute runs one encoded request and returns the encoded response. It
// never returns nil and never panics.
func (h *Handle) Execute(request []byte) (resp []byte) {
	start := time.Now()
	method, status := "invalid", "ok"

	defer func() {
		if r := recover(); r != nil {
			status = "panic"
			resp = EncodeFailure(fmt.Sprintf("Internal error: %v", r))
			Logger().Error("recovered panic in execute", zap.Any("panic", r))
		}
		if h != nil {
			h.metrics.RecordRequest(method, status, time.Since(start))
		}
	}()

	if h == nil || request == nil {
		status = CodeInvalidInput
		return EncodeFailure(msgInvalidHandle)
	}

	req, err := DecodeRequest(request)
	if err != nil {
		status = CodeParse
		return EncodeFailure("Failed to parse request: " + err.Error())
	}

	handler, ok := h.registry.Lookup(req.Method)
	if !ok {
		method, status = "unknown", CodeUnknownMethod
		return EncodeFailure("Unknown method: " + req.Method)
	}
	method = req.Method
	Logger().Debug("Received simulator request", zap.String("method", method))

	result, err := invoke(method, handler, h.state, req.Args)
	if err != nil {
		status = "error"
		return EncodeFailure(err.Error())
	}

	out, err := EncodeResult(result)
	if err != nil {
		status = CodeSerialization
		Logger().Warn("failed to serialize result", zap.String("method", method), zap.Error(err))
	}
	return out
}

// Call dispatches method with args (any JSON-encodable value, or nil)
// without the byte envelope. Errors are *ProtocolError or *HandlerError.
func (h *Handle) Call(method string, args any) (Result, error) {
	if h == nil {
		return nil, &ProtocolError{Code: CodeInvalidInput, Message: msgInvalidHandle}
	}
	handler, ok := h.registry.Lookup(method)
	if !ok {
		return nil, &ProtocolError{Code: CodeUnknownMethod, Message: "Unknown method: " + method}
	}
	raw, err := marshalArgs(args)
	if err != nil {
		return nil, &ProtocolError{Code: CodeInvalidInput, Message: err.Error(), Err: err}
	}

	start := time.Now()
	res, err := invoke(method, handler, h.state, raw)
	status := "ok"
	if err != nil {
		status = "error"
	}
	h.metrics.RecordRequest(method, status, time.Since(start))
	return res, err
}

// Subscribe attaches a checkpoint observer under the write lock.
func (h *Handle) Subscribe(o engine.CheckpointObserver) error {
	_, err := h.state.Write("subscribe", func(l Ledger) (Result, error) {
		l.Subscribe(o)
		return nil, nil
	})
	return err
}

// invoke guards handler code that runs outside State.Read/Write, such as
// argument decoding.
func invoke(method string, fn HandlerFunc, s *State, args []byte) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, panicError(method, r)
		}
	}()
	return fn(s, args)
}

var (
	diagOnce   sync.Once
	diagLogger *zap.Logger
)

// InitDiagnostics installs process-wide loggers. Only the first call has an
// effect; every call returns the installed logger.
func InitDiagnostics(cfg config.LogConfig) *zap.Logger {
	diagOnce.Do(func() {
		l, err := logging.New(cfg)
		if err != nil {
			l, _ = logging.New(config.Default().Log)
		}
		if l == nil {
			l = zap.NewNop()
		}
		diagLogger = l
		SetLogger(l.Named("bridge"))
		engine.SetLogger(l.Named("engine"))
		fixture.SetLogger(l.Named("fixture"))
		ingest.SetLogger(l.Named("ingest"))
	})
	return diagLogger
}
