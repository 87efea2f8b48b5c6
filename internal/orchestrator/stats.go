package orchestrator

import (
	"sync"
	"time"
)

// Stats tracks processing counters across the orchestrator's lifetime.
type Stats struct {
	mu          sync.Mutex
	accepted    int64
	processed   int64
	ignored     int64
	failed      int64
	lastEventAt time.Time
}

// Snapshot is a point-in-time copy of the counters, shaped for the
// stats endpoint.
type Snapshot struct {
	Accepted     int64  `json:"accepted"`
	Processed    int64  `json:"processed"`
	Ignored      int64  `json:"ignored"`
	Failed       int64  `json:"failed"`
	LastEventAt  string `json:"last_event_at,omitempty"`
	QueueEnabled bool   `json:"queue_enabled"`
}

func (s *Stats) RecordAccepted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accepted++
	s.lastEventAt = time.Now().UTC()
}

func (s *Stats) RecordProcessed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed++
}

func (s *Stats) RecordIgnored() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ignored++
}

func (s *Stats) RecordFailed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed++
}

func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Accepted:  s.accepted,
		Processed: s.processed,
		Ignored:   s.ignored,
		Failed:    s.failed,
	}
	if !s.lastEventAt.IsZero() {
		snap.LastEventAt = s.lastEventAt.Format(time.RFC3339)
	}
	return snap
}

// StatsSnapshot reports the orchestrator's counters plus dispatch mode.
func (o *Orchestrator) StatsSnapshot() Snapshot {
	snap := o.stats.Snapshot()
	snap.QueueEnabled = o.queue != nil
	return snap
}
