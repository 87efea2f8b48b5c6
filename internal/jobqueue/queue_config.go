package jobqueue

import (
	"time"

	"github.com/riverqueue/river"
)

// QueueConfig holds the tunable parameters for the event queue.
type QueueConfig struct {
	// MaxWorkers is the number of concurrent event workers. Processing
	// is I/O bound (GitHub round trips plus a model call), so a small
	// pool keeps well under GitHub's secondary rate limits.
	MaxWorkers int

	// MaxAttempts is the total tries per job before River discards it.
	MaxAttempts int

	// JobTimeout bounds one pipeline run.
	JobTimeout time.Duration
}

// DefaultQueueConfig returns settings sized for a single bot instance.
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		MaxWorkers:  5,
		MaxAttempts: 3,
		JobTimeout:  3 * time.Minute,
	}
}

// RiverQueueConfig converts our config to River's queue configuration
// format.
func (c *QueueConfig) RiverQueueConfig() map[string]river.QueueConfig {
	return map[string]river.QueueConfig{
		river.QueueDefault: {
			MaxWorkers: c.MaxWorkers,
		},
	}
}
