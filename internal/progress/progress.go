// Package progress relays per-page analysis progress to live clients.
// Delivery is best effort: publishers never block on slow or absent subscribers.
package progress

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/inkcost/internal/analyzer"
	"github.com/local/inkcost/internal/metrics"
)

// Event is a single progress notification for a job.
type Event struct {
	JobID    string `json:"job_id"`
	Progress int    `json:"progress"`
	Done     bool   `json:"done,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Broker fans progress events out to subscribers.
type Broker interface {
	Publish(ctx context.Context, ev Event) error
	// Subscribe returns a channel of events for jobID and a function that
	// ends the subscription. The channel is closed after cancel is called.
	Subscribe(ctx context.Context, jobID string) (<-chan Event, func())
	// Last returns the most recent event published for jobID, if still known.
	Last(ctx context.Context, jobID string) (Event, bool)
}

// publishTimeout bounds how long a single notification may take.
const publishTimeout = 500 * time.Millisecond

// Sink adapts a broker to the analyzer's progress callback. Failures are
// logged and dropped.
func Sink(b Broker, jobID string) analyzer.ProgressFunc {
	if b == nil || jobID == "" {
		return nil
	}
	return func(percent int) {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := b.Publish(ctx, Event{JobID: jobID, Progress: percent}); err != nil {
			metrics.IncProgressDropped()
			log.Warn().Err(err).Str("job_id", jobID).Int("progress", percent).Msg("progress notification dropped")
		}
	}
}

// Finish publishes the terminal event for a job.
func Finish(b Broker, jobID string, err error) {
	if b == nil || jobID == "" {
		return
	}
	ev := Event{JobID: jobID, Progress: 100, Done: true}
	if err != nil {
		ev.Progress = 0
		ev.Error = err.Error()
		if last, ok := b.Last(context.Background(), jobID); ok {
			ev.Progress = last.Progress
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if perr := b.Publish(ctx, ev); perr != nil {
		metrics.IncProgressDropped()
		log.Warn().Err(perr).Str("job_id", jobID).Msg("final progress notification dropped")
	}
}
