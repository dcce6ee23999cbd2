package services

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/hibiken/asynq"
	"github.com/taskhub/backend/internal/config"
	"github.com/taskhub/backend/pkg/logger"
)

const (
	TaskTypeActivity = "activity:record"
)

// ActivityProcessor handles one activity event.
type ActivityProcessor func(context.Context, *ActivityEvent) error

// ActivityQueue defines how activity events reach their processor
type ActivityQueue interface {
	// Enqueue hands an event over for processing
	Enqueue(ctx context.Context, event *ActivityEvent) error
	// IsAsync returns true if queue processes events asynchronously
	IsAsync() bool
	// Close gracefully shuts down the queue
	Close() error
}

var (
	globalActivityQueue ActivityQueue
	activityQueueOnce   sync.Once
)

// InitActivityQueue initializes the global queue based on config. Without
// Redis, or when Redis is unreachable, events are processed inline by processor.
func InitActivityQueue(cfg *config.Config, processor ActivityProcessor) ActivityQueue {
	activityQueueOnce.Do(func() {
		if cfg.Redis.Enabled {
			queue, err := NewAsyncQueue(&cfg.Redis)
			if err != nil {
				logger.Warnf("[ActivityQueue] Redis unavailable, falling back to sync mode: %v", err)
			} else {
				logger.Infof("[ActivityQueue] Async queue initialized with Redis at %s", cfg.Redis.Addr)
				globalActivityQueue = queue
				return
			}
		} else {
			logger.Infof("[ActivityQueue] Sync queue initialized (Redis disabled)")
		}
		syncQueue := NewSyncQueue()
		syncQueue.SetProcessor(processor)
		globalActivityQueue = syncQueue
	})
	return globalActivityQueue
}

// AsyncQueue implements ActivityQueue using asynq (Redis-based)
type AsyncQueue struct {
	client *asynq.Client
}

func redisClientOpt(cfg *config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

// NewAsyncQueue creates a new Redis-based async queue
func NewAsyncQueue(cfg *config.RedisConfig) (*AsyncQueue, error) {
	redisOpt := redisClientOpt(cfg)
	client := asynq.NewClient(redisOpt)

	// ping Redis through the inspector before committing to async mode
	inspector := asynq.NewInspector(redisOpt)
	defer inspector.Close()

	if _, err := inspector.Queues(); err != nil {
		client.Close()
		return nil, err
	}

	return &AsyncQueue{client: client}, nil
}

// NewActivityTask wraps an event into an asynq task.
func NewActivityTask(event *ActivityEvent) (*asynq.Task, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeActivity, payload), nil
}

func (q *AsyncQueue) Enqueue(ctx context.Context, event *ActivityEvent) error {
	task, err := NewActivityTask(event)
	if err != nil {
		return err
	}

	info, err := q.client.EnqueueContext(ctx, task,
		asynq.Queue("default"),
		asynq.MaxRetry(3),
	)
	if err != nil {
		return err
	}

	logger.Debug().Str("task_id", info.ID).Str("queue", info.Queue).Str("action", event.Action).Msg("activity enqueued")
	return nil
}

func (q *AsyncQueue) IsAsync() bool {
	return true
}

func (q *AsyncQueue) Close() error {
	return q.client.Close()
}

// SyncQueue implements ActivityQueue with inline processing (no Redis)
type SyncQueue struct {
	processor ActivityProcessor
}

func NewSyncQueue() *SyncQueue {
	return &SyncQueue{}
}

// SetProcessor sets the function to process events synchronously
func (q *SyncQueue) SetProcessor(processor ActivityProcessor) {
	q.processor = processor
}

// Enqueue processes the event in the calling goroutine. Processing errors are
// logged, not returned, so the originating request is unaffected.
func (q *SyncQueue) Enqueue(ctx context.Context, event *ActivityEvent) error {
	if q.processor == nil {
		logger.Warnf("[SyncQueue] no processor set, event %s dropped", event.Action)
		return nil
	}

	if err := q.processor(context.WithoutCancel(ctx), event); err != nil {
		logger.Error().Err(err).Str("action", event.Action).Msg("[SyncQueue] activity processing failed")
	}
	return nil
}

func (q *SyncQueue) IsAsync() bool {
	return false
}

func (q *SyncQueue) Close() error {
	return nil
}
