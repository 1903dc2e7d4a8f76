// Package savequeue persists chat messages asynchronously so the streaming
// path never blocks on the database.
package savequeue

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/simon-0512/superrag/internal/domain/conversation"
	"github.com/simon-0512/superrag/internal/infrastructure/logger"
	"github.com/simon-0512/superrag/internal/infrastructure/metrics"
	"github.com/simon-0512/superrag/internal/utils/platformerrors"
)

const (
	defaultCapacity   = 256
	defaultMaxRetries = 3
	defaultBaseDelay  = time.Second
)

// Task is one message write. MessagePublicID is generated before enqueueing
// so a retried task can detect an earlier successful attempt.
type Task struct {
	ConversationPublicID string
	UserID               string
	MessagePublicID      string
	Role                 conversation.Role
	Content              string
	Metadata             map[string]any
	RetryCount           int
	EnqueuedAt           time.Time
}

// Store is the slice of the conversation service the queue needs.
type Store interface {
	GetConversationByPublicIDAndUserID(ctx context.Context, publicID string, userID string) (*conversation.Conversation, error)
	MessageExists(ctx context.Context, publicID string) (bool, error)
	AppendMessage(ctx context.Context, conv *conversation.Conversation, msg *conversation.Message) error
}

// Transactor wraps a unit of work in a database transaction.
type Transactor interface {
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Invalidator drops a conversation's cached history after a commit.
type Invalidator interface {
	Invalidate(conversationID uint)
}

// Config tunes queue capacity and retry behavior.
type Config struct {
	Capacity   int
	MaxRetries int
	BaseDelay  time.Duration
}

// Service is a FIFO write-behind queue with a single consumer goroutine.
// Tasks that fail are re-enqueued with exponential backoff and abandoned
// after MaxRetries attempts.
type Service struct {
	store       Store
	tx          Transactor
	invalidator Invalidator
	tasks       chan *Task
	maxRetries  int
	baseDelay   time.Duration
	log         zerolog.Logger

	mu       sync.Mutex
	timers   map[*time.Timer]struct{}
	draining bool

	wg sync.WaitGroup
}

func NewService(store Store, tx Transactor, invalidator Invalidator, cfg Config) *Service {
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = defaultMaxRetries
	}
	baseDelay := cfg.BaseDelay
	if baseDelay <= 0 {
		baseDelay = defaultBaseDelay
	}
	return &Service{
		store:       store,
		tx:          tx,
		invalidator: invalidator,
		tasks:       make(chan *Task, capacity),
		maxRetries:  maxRetries,
		baseDelay:   baseDelay,
		log:         logger.With("savequeue"),
		timers:      make(map[*time.Timer]struct{}),
	}
}

// Start launches the consumer goroutine. It runs until ctx is cancelled and
// the queue has drained.
func (s *Service) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.consume(ctx)
}

// Enqueue submits a task without blocking. A full queue rejects the task so
// the chat path degrades instead of stalling.
func (s *Service) Enqueue(task *Task) error {
	if task.EnqueuedAt.IsZero() {
		task.EnqueuedAt = time.Now().UTC()
	}

	// Sends are serialized with Shutdown's close under the mutex.
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.draining {
		return platformerrors.NewError(context.Background(), platformerrors.LayerInfrastructure, platformerrors.ErrorTypeUnavailable, "save queue is shutting down", nil, "5d8b1e4a-7c0f-4a3d-96e2-b5f8c1d4a7e0")
	}

	select {
	case s.tasks <- task:
		metrics.SaveQueueDepth.Set(float64(len(s.tasks)))
		return nil
	default:
		metrics.RecordSaveQueueTask("rejected")
		s.log.Error().
			Str("conversation_id", task.ConversationPublicID).
			Str("message_id", task.MessagePublicID).
			Msg("save queue full, task rejected")
		return platformerrors.NewError(context.Background(), platformerrors.LayerInfrastructure, platformerrors.ErrorTypeUnavailable, "save queue is full", nil, "2f7a0d3c-9e6b-4c1f-85a4-d7e0b3f6c9a2")
	}
}

// Shutdown stops accepting new tasks, waits for queued tasks to be
// processed, then stops the consumer. Pending retry timers are cancelled;
// their tasks are logged as unsaved.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.draining = true
	for timer := range s.timers {
		timer.Stop()
	}
	pendingRetries := len(s.timers)
	s.timers = make(map[*time.Timer]struct{})
	close(s.tasks)
	s.mu.Unlock()

	if pendingRetries > 0 {
		s.log.Warn().Int("pending_retries", pendingRetries).Msg("shutdown cancelled pending retry timers")
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return platformerrors.AsError(ctx, platformerrors.LayerInfrastructure, ctx.Err(), "save queue drain timed out")
	}
}

func (s *Service) consume(ctx context.Context) {
	defer s.wg.Done()

	// Writes must outlive the run context: when Shutdown drains the queue
	// the run context is typically already cancelled.
	ctx = context.WithoutCancel(ctx)

	for task := range s.tasks {
		metrics.SaveQueueDepth.Set(float64(len(s.tasks)))
		s.process(ctx, task)
	}
}

func (s *Service) process(ctx context.Context, task *Task) {
	conv, err := s.store.GetConversationByPublicIDAndUserID(ctx, task.ConversationPublicID, task.UserID)
	if err != nil {
		if platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound) {
			// The conversation was deleted while the task waited. Retrying
			// cannot succeed, so the task is dropped.
			metrics.RecordSaveQueueTask("dropped")
			s.log.Warn().
				Str("conversation_id", task.ConversationPublicID).
				Str("message_id", task.MessagePublicID).
				Msg("conversation missing, dropping save task")
			return
		}
		s.retryOrAbandon(task, err)
		return
	}

	exists, err := s.store.MessageExists(ctx, task.MessagePublicID)
	if err != nil {
		s.retryOrAbandon(task, err)
		return
	}
	if exists {
		// An earlier attempt committed before its acknowledgment was
		// observed. Nothing to do.
		metrics.RecordSaveQueueTask("skipped")
		s.log.Debug().
			Str("message_id", task.MessagePublicID).
			Msg("message already persisted, skipping")
		return
	}

	msg := conversation.NewMessage(task.MessagePublicID, conv.ID, task.Role, task.Content, task.Metadata)
	err = s.tx.RunInTransaction(ctx, func(txCtx context.Context) error {
		return s.store.AppendMessage(txCtx, conv, msg)
	})
	if err != nil {
		s.retryOrAbandon(task, err)
		return
	}

	if s.invalidator != nil {
		s.invalidator.Invalidate(conv.ID)
	}
	metrics.RecordSaveQueueTask("persisted")
	s.log.Debug().
		Str("conversation_id", task.ConversationPublicID).
		Str("message_id", task.MessagePublicID).
		Str("role", string(task.Role)).
		Int("retry_count", task.RetryCount).
		Msg("message persisted")
}

func (s *Service) retryOrAbandon(task *Task, cause error) {
	if task.RetryCount >= s.maxRetries {
		metrics.RecordSaveQueueTask("abandoned")
		s.log.Error().
			Err(cause).
			Str("conversation_id", task.ConversationPublicID).
			Str("message_id", task.MessagePublicID).
			Str("role", string(task.Role)).
			Int("retry_count", task.RetryCount).
			Msg("save task abandoned after max retries")
		return
	}

	delay := s.baseDelay << task.RetryCount
	task.RetryCount++
	metrics.SaveQueueRetriesTotal.Inc()
	s.log.Warn().
		Err(cause).
		Str("message_id", task.MessagePublicID).
		Int("retry_count", task.RetryCount).
		Dur("delay", delay).
		Msg("save task failed, scheduling retry")

	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		s.log.Error().
			Str("message_id", task.MessagePublicID).
			Msg("queue draining, retry not scheduled")
		return
	}
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.timers, timer)
		if s.draining {
			return
		}
		select {
		case s.tasks <- task:
			metrics.SaveQueueDepth.Set(float64(len(s.tasks)))
		default:
			metrics.RecordSaveQueueTask("rejected")
			s.log.Error().
				Str("message_id", task.MessagePublicID).
				Msg("save queue full, retry rejected")
		}
	})
	s.timers[timer] = struct{}{}
	s.mu.Unlock()
}
