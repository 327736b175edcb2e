package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/VanDung-dev/HieraChain-Simulator/bridge"
	"github.com/VanDung-dev/HieraChain-Simulator/engine"
	"github.com/VanDung-dev/HieraChain-Simulator/monitoring"
)

// DefaultQueueTimeout bounds how long a frame waits for a free worker. A
// frame a worker has picked up runs to completion.
const DefaultQueueTimeout = 30 * time.Second

// FrameServerConfig configures a FrameServer. Zero values select defaults.
type FrameServerConfig struct {
	Workers      int
	QueueTimeout time.Duration
	Auth         *Authenticator
	Metrics      *monitoring.Metrics
}

// FrameServer is a TCP server that answers length-prefixed request
// envelopes with response envelopes, one at a time per connection.
type FrameServer struct {
	handle       *bridge.Handle
	pool         *engine.WorkerPool
	auth         *Authenticator
	metrics      *monitoring.Metrics
	queueTimeout time.Duration

	listener net.Listener
	running  bool
	stopped  bool
	conns    map[net.Conn]struct{}
	mu       sync.Mutex
	quit     chan struct{}
	wg       sync.WaitGroup
}

// NewFrameServer creates a FrameServer dispatching to h.
func NewFrameServer(h *bridge.Handle, cfg FrameServerConfig) *FrameServer {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueTimeout <= 0 {
		cfg.QueueTimeout = DefaultQueueTimeout
	}
	return &FrameServer{
		handle:       h,
		pool:         engine.NewWorkerPool("frames", cfg.Workers),
		auth:         cfg.Auth,
		metrics:      cfg.Metrics,
		queueTimeout: cfg.QueueTimeout,
		conns:        make(map[net.Conn]struct{}),
		quit:         make(chan struct{}),
	}
}

// Start listens on address and serves until Stop is called.
func (s *FrameServer) Start(address string) error {
	lis, err := s.listen(address)
	if err != nil {
		return err
	}
	defer s.Stop()
	s.serve(lis)
	return nil
}

// StartAsync starts the server in a background goroutine.
func (s *FrameServer) StartAsync(address string) error {
	lis, err := s.listen(address)
	if err != nil {
		return err
	}
	go s.serve(lis)
	return nil
}

func (s *FrameServer) listen(address string) (net.Listener, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil, fmt.Errorf("server is already running")
	}
	if s.stopped {
		return nil, fmt.Errorf("server is stopped")
	}

	lis, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	s.listener = lis
	s.running = true
	Logger().Info("frame server listening", zap.String("address", lis.Addr().String()))
	return lis, nil
}

// Addr returns the bound address, or nil before Start.
func (s *FrameServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *FrameServer) serve(lis net.Listener) {
	for {
		conn, err := lis.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			Logger().Warn("accept failed", zap.Error(err))
			continue
		}

		if !s.track(conn) {
			_ = conn.Close()
			return
		}
		go s.handleConnection(conn)
	}
}

// track registers conn unless the server is stopping.
func (s *FrameServer) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return false
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *FrameServer) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	s.wg.Done()
}

// Stop closes the listener and every open connection, then drains the
// worker pool.
func (s *FrameServer) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.stopped = true
	close(s.quit)
	if s.listener != nil {
		if err := s.listener.Close(); err != nil {
			_ = err // G104: explicitly acknowledge during shutdown
		}
	}
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.pool.Shutdown()
	Logger().Info("frame server stopped")
}

// Stats returns the worker pool statistics.
func (s *FrameServer) Stats() engine.PoolStats {
	return s.pool.GetStats()
}

func (s *FrameServer) handleConnection(conn net.Conn) {
	defer s.untrack(conn)
	defer conn.Close()

	remote := conn.RemoteAddr().String()
	if err := s.auth.Handshake(conn); err != nil {
		s.metrics.RecordFrame("unauthorized")
		Logger().Warn("rejected connection", zap.String("remote", remote), zap.Error(err))
		return
	}

	for {
		data, err := ReadMessage(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.metrics.RecordFrame("read_error")
				Logger().Debug("failed to read frame", zap.String("remote", remote), zap.Error(err))
			}
			return
		}

		response := s.process(data)

		if err := WriteMessage(conn, response); err != nil {
			s.metrics.RecordFrame("write_error")
			Logger().Debug("failed to write frame", zap.String("remote", remote), zap.Error(err))
			return
		}
	}
}

// process runs one request envelope on the worker pool. It always returns
// a response envelope. Only a frame still queued when the queue timeout
// fires is refused; a started handler is never cut short.
func (s *FrameServer) process(data []byte) []byte {
	ctx, cancel := context.WithTimeout(context.Background(), s.queueTimeout)
	defer cancel()

	task := engine.NewTask(uuid.NewString(), data, func(in any) (any, error) {
		return s.handle.Execute(in.([]byte)), nil
	})

	result, err := s.pool.SubmitAndWait(ctx, task)
	s.metrics.UpdateWorkerPool(s.pool.GetStats())
	switch {
	case err != nil:
		s.metrics.RecordFrame("rejected")
		return bridge.EncodeFailure("Server busy: " + err.Error())
	case !result.OK():
		s.metrics.RecordFrame("failed")
		return bridge.EncodeFailure("Internal error: " + result.Err.Error())
	}

	s.metrics.RecordFrame("ok")
	return result.Output.([]byte)
}
