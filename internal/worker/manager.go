package worker

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"schoolportal/internal/logger"
	"schoolportal/internal/queue"
)

const (
	// DefaultWorkerCount is the default number of worker goroutines
	DefaultWorkerCount = 2

	// DefaultBatchSize is the number of messages to read per batch
	DefaultBatchSize = 10

	// DefaultBlockTimeout is how long to block waiting for new messages
	DefaultBlockTimeout = 5 * time.Second
)

// Manager orchestrates worker goroutines that consume the comment stream.
type Manager struct {
	consumer    queue.Consumer
	handler     *Handler
	workerCount int
	batchSize   int64
	blockTime   time.Duration
	log         *zap.Logger

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// ManagerConfig holds configuration for the worker manager.
type ManagerConfig struct {
	WorkerCount  int           // Number of worker goroutines
	BatchSize    int64         // Messages per read
	BlockTimeout time.Duration // Block time for XREADGROUP
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		WorkerCount:  DefaultWorkerCount,
		BatchSize:    DefaultBatchSize,
		BlockTimeout: DefaultBlockTimeout,
	}
}

// NewManager creates a new worker manager.
func NewManager(consumer queue.Consumer, handler *Handler, cfg ManagerConfig, log *zap.Logger) *Manager {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = DefaultWorkerCount
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = DefaultBlockTimeout
	}

	return &Manager{
		consumer:    consumer,
		handler:     handler,
		workerCount: cfg.WorkerCount,
		batchSize:   cfg.BatchSize,
		blockTime:   cfg.BlockTimeout,
		log:         logger.Component(log, "Manager"),
	}
}

// Start begins the worker goroutines.
// Call Stop() to gracefully shut down.
func (m *Manager) Start(ctx context.Context) error {
	m.ctx, m.cancel = context.WithCancel(ctx)

	if err := m.consumer.EnsureGroup(m.ctx, queue.StreamComments, queue.ConsumerGroupComments); err != nil {
		m.cancel()
		return err
	}

	host, _ := os.Hostname()
	for i := 0; i < m.workerCount; i++ {
		workerID := i + 1
		m.wg.Add(1)
		go m.runWorker(workerID, consumerName(host, workerID))
	}

	m.log.Info("workers started",
		zap.Int("count", m.workerCount),
		zap.String("stream", queue.StreamComments),
		zap.String("group", queue.ConsumerGroupComments))
	return nil
}

// Stop gracefully shuts down all workers.
// Blocks until all workers have finished.
func (m *Manager) Stop() {
	if m.cancel == nil {
		return
	}
	m.log.Info("stopping workers")
	m.cancel()
	m.wg.Wait()
	m.log.Info("all workers stopped")
}

// runWorker is the main loop for a single worker goroutine.
func (m *Manager) runWorker(workerID int, consumer string) {
	defer m.wg.Done()
	log := m.log.With(zap.Int("worker", workerID), zap.String("consumer", consumer))

	// First, process any pending messages from previous runs (crash recovery)
	m.processPending(log, consumer)

	for {
		select {
		case <-m.ctx.Done():
			log.Debug("shutting down")
			return
		default:
			m.processMessages(log, consumer)
		}
	}
}

// processPending handles messages that were delivered but not acknowledged.
func (m *Manager) processPending(log *zap.Logger, consumer string) {
	for m.ctx.Err() == nil {
		messages, err := m.consumer.ReadPending(m.ctx, queue.StreamComments, queue.ConsumerGroupComments, consumer, m.batchSize)
		if err != nil {
			log.Warn("error reading pending", zap.Error(err))
			return
		}
		if len(messages) == 0 {
			return
		}

		log.Info("processing pending messages", zap.Int("count", len(messages)))
		m.handleMessages(log, messages)
	}
}

// processMessages reads and handles a batch of messages.
func (m *Manager) processMessages(log *zap.Logger, consumer string) {
	messages, err := m.consumer.Read(m.ctx, queue.StreamComments, queue.ConsumerGroupComments, consumer, m.batchSize, m.blockTime)
	if err != nil {
		if m.ctx.Err() != nil {
			return
		}
		log.Warn("error reading", zap.Error(err))
		select {
		case <-m.ctx.Done():
		case <-time.After(time.Second): // Back off on error
		}
		return
	}

	if len(messages) == 0 {
		return // Timeout, no messages
	}
	m.handleMessages(log, messages)
}

// handleMessages processes a batch of messages and acknowledges them.
func (m *Manager) handleMessages(log *zap.Logger, messages []queue.Message) {
	for _, msg := range messages {
		if err := m.handler.HandleEvent(m.ctx, msg.Event); err != nil {
			// Still ACK to prevent infinite retry loops
			log.Warn("handler error", zap.String("msg_id", msg.ID), zap.Error(err))
		}

		if err := m.consumer.Ack(m.ctx, queue.StreamComments, queue.ConsumerGroupComments, msg.ID); err != nil {
			log.Warn("ack error", zap.String("msg_id", msg.ID), zap.Error(err))
		}
	}
}

// consumerName is unique per host and worker so instances never share a pending list.
func consumerName(host string, workerID int) string {
	if host == "" {
		host = "local"
	}
	return fmt.Sprintf("%s-worker-%d", host, workerID)
}
