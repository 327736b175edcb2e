package network

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-zeromq/zmq4"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/VanDung-dev/HieraChain-Simulator/engine"
	"github.com/VanDung-dev/HieraChain-Simulator/monitoring"
)

// TopicCheckpoint is the first frame of every feed message.
const TopicCheckpoint = "checkpoint"

// DefaultQueueSize bounds the publisher's outbound queue.
const DefaultQueueSize = 1000

// Common errors for feed operations
var (
	ErrPublisherRunning = errors.New("publisher already running")
	ErrPublisherStopped = errors.New("publisher stopped")
	ErrMalformedFrame   = errors.New("malformed feed frame")
)

// FeedMessage is one checkpoint as published on the feed.
type FeedMessage struct {
	Type           string                     `json:"type"`
	SequenceNumber uint64                     `json:"sequence_number"`
	Epoch          uint64                     `json:"epoch"`
	Digest         engine.Digest              `json:"digest"`
	Checkpoint     *engine.VerifiedCheckpoint `json:"checkpoint"`
	Transactions   []engine.ExecutionDigests  `json:"transactions"`
	Timestamp      time.Time                  `json:"timestamp"`
	Nonce          string                     `json:"nonce"`
}

// NewFeedMessage wraps a certified checkpoint.
func NewFeedMessage(cp *engine.VerifiedCheckpoint, contents *engine.CheckpointContents) *FeedMessage {
	msg := &FeedMessage{
		Type:           TopicCheckpoint,
		SequenceNumber: cp.Data.SequenceNumber,
		Epoch:          cp.Data.Epoch,
		Digest:         cp.Data.Digest(),
		Checkpoint:     cp,
		Timestamp:      time.Now().UTC(),
		Nonce:          uuid.NewString(),
	}
	if contents != nil {
		msg.Transactions = contents.Transactions
	}
	return msg
}

// Publisher broadcasts checkpoints on a PUB socket. It implements
// engine.CheckpointObserver; OnCheckpoint never blocks the ledger.
type Publisher struct {
	address string
	metrics *monitoring.Metrics

	ctx    context.Context
	cancel context.CancelFunc

	pub   zmq4.Socket
	queue chan []byte

	mu      sync.RWMutex
	running bool
	wg      sync.WaitGroup
}

// NewPublisher creates a publisher that will bind to address, e.g.
// "tcp://127.0.0.1:30005". A queueSize <= 0 uses DefaultQueueSize.
func NewPublisher(address string, queueSize int, metrics *monitoring.Metrics) *Publisher {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Publisher{
		address: address,
		metrics: metrics,
		ctx:     ctx,
		cancel:  cancel,
		queue:   make(chan []byte, queueSize),
	}
}

// Address returns the bind address.
func (p *Publisher) Address() string { return p.address }

// Start binds the socket and begins draining the queue.
func (p *Publisher) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return ErrPublisherRunning
	}
	if p.ctx.Err() != nil {
		return ErrPublisherStopped
	}

	p.pub = zmq4.NewPub(p.ctx)
	if err := p.pub.Listen(p.address); err != nil {
		_ = p.pub.Close()
		return fmt.Errorf("failed to bind publisher: %w", err)
	}
	p.running = true

	p.wg.Add(1)
	go p.sendLoop()

	Logger().Info("checkpoint feed started", zap.String("address", p.address))
	return nil
}

// Stop shuts the publisher down. Queued messages are discarded and the
// publisher cannot be restarted.
func (p *Publisher) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()

	if err := p.pub.Close(); err != nil {
		_ = err // G104: explicitly acknowledge during shutdown
	}
	Logger().Info("checkpoint feed stopped", zap.String("address", p.address))
}

// Close stops the publisher; it lets a Publisher sit in a closer list.
func (p *Publisher) Close() error {
	p.Stop()
	return nil
}

// IsRunning reports whether Start succeeded and Stop has not been called.
func (p *Publisher) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

// OnCheckpoint queues the checkpoint for publishing. When the publisher
// is stopped or the queue is full the checkpoint is dropped.
func (p *Publisher) OnCheckpoint(cp *engine.VerifiedCheckpoint, contents *engine.CheckpointContents) {
	if !p.IsRunning() {
		p.metrics.RecordFeed(false)
		return
	}

	data, err := json.Marshal(NewFeedMessage(cp, contents))
	if err != nil {
		Logger().Error("failed to encode feed message",
			zap.Uint64("sequence_number", cp.Data.SequenceNumber), zap.Error(err))
		p.metrics.RecordFeed(false)
		return
	}

	select {
	case p.queue <- data:
	default:
		Logger().Warn("feed queue full, dropping checkpoint",
			zap.Uint64("sequence_number", cp.Data.SequenceNumber))
		p.metrics.RecordFeed(false)
	}
}

func (p *Publisher) sendLoop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case data := <-p.queue:
			msg := zmq4.NewMsgFrom([]byte(TopicCheckpoint), data)
			if err := p.pub.Send(msg); err != nil {
				if p.ctx.Err() != nil {
					return
				}
				Logger().Warn("failed to publish checkpoint", zap.Error(err))
				p.metrics.RecordFeed(false)
				continue
			}
			p.metrics.RecordFeed(true)
		}
	}
}

// Subscriber receives the checkpoint feed. Messages whose sequence number
// is not past the last delivered one are treated as replays and dropped.
type Subscriber struct {
	address string

	ctx    context.Context
	cancel context.CancelFunc

	sub      zmq4.Socket
	messages chan *FeedMessage

	lastSeq  uint64
	received bool

	wg sync.WaitGroup
}

// Subscribe dials address and starts receiving. The subscriber stops when
// ctx is cancelled or Close is called.
func Subscribe(ctx context.Context, address string) (*Subscriber, error) {
	ctx, cancel := context.WithCancel(ctx)
	s := &Subscriber{
		address:  address,
		ctx:      ctx,
		cancel:   cancel,
		sub:      zmq4.NewSub(ctx),
		messages: make(chan *FeedMessage, DefaultQueueSize),
	}

	if err := s.sub.Dial(address); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to dial feed: %w", err)
	}
	if err := s.sub.SetOption(zmq4.OptionSubscribe, TopicCheckpoint); err != nil {
		cancel()
		_ = s.sub.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	s.wg.Add(1)
	go s.receiverLoop()
	return s, nil
}

// Messages returns the decoded feed. It is closed once the subscriber stops.
func (s *Subscriber) Messages() <-chan *FeedMessage {
	return s.messages
}

// Close stops receiving and releases the socket.
func (s *Subscriber) Close() error {
	s.cancel()
	err := s.sub.Close()
	s.wg.Wait()
	return err
}

func (s *Subscriber) receiverLoop() {
	defer s.wg.Done()
	defer close(s.messages)

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		msg, err := s.sub.Recv()
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			Logger().Debug("feed receive failed", zap.String("address", s.address), zap.Error(err))
			continue
		}

		feed, err := DecodeFrames(msg.Frames)
		if err != nil {
			Logger().Warn("dropping feed message", zap.Error(err))
			continue
		}
		if !s.accept(feed.SequenceNumber) {
			continue
		}

		select {
		case s.messages <- feed:
		case <-s.ctx.Done():
			return
		}
	}
}

// accept records seq as delivered unless it is a replay.
func (s *Subscriber) accept(seq uint64) bool {
	if s.received && seq <= s.lastSeq {
		return false
	}
	s.lastSeq = seq
	s.received = true
	return true
}

// DecodeFrames parses a [topic, payload] feed message.
func DecodeFrames(frames [][]byte) (*FeedMessage, error) {
	if len(frames) != 2 {
		return nil, fmt.Errorf("%w: expected 2 frames, got %d", ErrMalformedFrame, len(frames))
	}
	if string(frames[0]) != TopicCheckpoint {
		return nil, fmt.Errorf("%w: unexpected topic %q", ErrMalformedFrame, frames[0])
	}

	var msg FeedMessage
	if err := json.Unmarshal(frames[1], &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if msg.Checkpoint == nil {
		return nil, fmt.Errorf("%w: missing checkpoint", ErrMalformedFrame)
	}
	return &msg, nil
}
