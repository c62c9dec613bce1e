package coordinator

import (
	"time"

	"github.com/syncline/syncline/internal/config"
)

// Config holds the scheduling knobs for the coordinator.
type Config struct {
	// PollInterval is the base interval between ticks
	PollInterval time.Duration

	// PollJitter is the maximum random offset applied to the interval so
	// replicas don't poll the database in lockstep
	PollJitter time.Duration

	// HeartbeatInterval is how often a running worker refreshes its
	// heartbeat row
	HeartbeatInterval time.Duration

	// OverlapWindow is subtracted from the observed maximum cursor at the
	// end of a successful run
	OverlapWindow time.Duration

	// MaxConcurrentRuns bounds in-process parallelism across keys
	MaxConcurrentRuns int

	// MaxPagesPerRun caps pages per run; 0 means unbounded. A capped run
	// does not mark its backfill complete.
	MaxPagesPerRun int
}

// defaultPollJitter is ±30s around the base polling interval
const defaultPollJitter = 30 * time.Second

// ConfigFromScheduler builds a coordinator Config from the file configuration
func ConfigFromScheduler(s *config.SchedulerConfig) Config {
	return Config{
		PollInterval:      s.GetPollInterval(),
		PollJitter:        defaultPollJitter,
		HeartbeatInterval: s.GetHeartbeatInterval(),
		OverlapWindow:     s.GetOverlapWindow(),
		MaxConcurrentRuns: s.GetMaxConcurrentRuns(),
		MaxPagesPerRun:    s.MaxPagesPerRun,
	}
}
