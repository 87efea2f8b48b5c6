// Package jobqueue provides a River-based job queue for webhook event
// processing. Events survive restarts once inserted; the HTTP handler
// can ack deliveries immediately and let workers process out of band.
package jobqueue

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"

	"github.com/joegemini/internal/event"
)

// Processor runs the per-event pipeline. The orchestrator implements
// it; declaring it here keeps the import direction one-way.
type Processor interface {
	ProcessEvent(ctx context.Context, evt event.Event) error
}

// EventJobArgs wraps one webhook event for queued processing.
type EventJobArgs struct {
	Event event.Event `json:"event"`
}

// Kind returns the job kind for River.
func (EventJobArgs) Kind() string {
	return "process_webhook_event"
}

// EventWorker hands queued events to the processor.
type EventWorker struct {
	river.WorkerDefaults[EventJobArgs]
	processor Processor
	timeout   time.Duration
}

// Work processes one queued event under the job timeout.
func (w *EventWorker) Work(ctx context.Context, job *river.Job[EventJobArgs]) error {
	evt := job.Args.Event
	log.Printf("[INFO] Processing queued event %s for %s (attempt %d)",
		evt.DeliveryID, evt.ThreadID(), job.Attempt)

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	if err := w.processor.ProcessEvent(ctx, evt); err != nil {
		log.Printf("[ERROR] Queued event %s failed: %v", evt.DeliveryID, err)
		return fmt.Errorf("process event %s: %w", evt.DeliveryID, err)
	}
	return nil
}

// JobQueue manages the River job queue.
type JobQueue struct {
	client *river.Client[pgx.Tx]
	pool   *pgxpool.Pool
	config *QueueConfig
}

// NewJobQueue creates a new job queue instance and registers the event
// worker.
func NewJobQueue(databaseURL string, processor Processor) (*JobQueue, error) {
	config := DefaultQueueConfig()

	pool, err := pgxpool.New(context.Background(), databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, &EventWorker{processor: processor, timeout: config.JobTimeout})

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues:  config.RiverQueueConfig(),
		Workers: workers,
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create River client: %w", err)
	}

	return &JobQueue{
		client: client,
		pool:   pool,
		config: config,
	}, nil
}

// Start starts the job queue workers.
func (jq *JobQueue) Start(ctx context.Context) error {
	return jq.client.Start(ctx)
}

// Stop stops the job queue workers and releases the pool.
func (jq *JobQueue) Stop(ctx context.Context) error {
	err := jq.client.Stop(ctx)
	jq.pool.Close()
	return err
}

// EnqueueEvent inserts one event for asynchronous processing.
func (jq *JobQueue) EnqueueEvent(ctx context.Context, evt event.Event) error {
	_, err := jq.client.Insert(ctx, EventJobArgs{Event: evt}, &river.InsertOpts{
		MaxAttempts: jq.config.MaxAttempts,
	})
	if err != nil {
		return fmt.Errorf("failed to queue event %s: %w", evt.DeliveryID, err)
	}
	return nil
}
