package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/local/inkcost/internal/metrics"
)

// RedisBroker relays progress through Redis pub/sub so any instance behind a
// load balancer can serve the websocket for a job. The last event is kept in a
// short-lived hash for polling clients; nothing outlives the TTL.
//
// Publish only enqueues. A single writer drains the queue in order, so a slow
// Redis never stalls page rendering; events that do not fit are dropped.
type RedisBroker struct {
	client *redis.Client
	keyNS  string
	ttl    time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan Event
	wg     sync.WaitGroup
}

// redisQueueSize bounds the events waiting for the writer.
const redisQueueSize = 256

// NewRedisBroker connects to redisURL and verifies the connection.
func NewRedisBroker(redisURL string, ttl time.Duration) (*RedisBroker, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	c := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return newRedisBroker(c, ttl, redisQueueSize), nil
}

func newRedisBroker(c *redis.Client, ttl time.Duration, queueSize int) *RedisBroker {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	b := &RedisBroker{client: c, keyNS: "inkcost", ttl: ttl, queue: make(chan Event, queueSize)}
	b.wg.Add(1)
	go b.writer()
	return b
}

func (b *RedisBroker) channel(jobID string) string { return fmt.Sprintf("%s:progress:%s", b.keyNS, jobID) }
func (b *RedisBroker) key(jobID string) string     { return fmt.Sprintf("%s:job:%s:status", b.keyNS, jobID) }

// Publish implements Broker. It never blocks: the event is queued for the
// writer, or dropped and counted when the queue is full or the broker closed.
func (b *RedisBroker) Publish(_ context.Context, ev Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		metrics.IncProgressDropped()
		return nil
	}
	select {
	case b.queue <- ev:
	default:
		metrics.IncProgressDropped()
		log.Debug().Str("job_id", ev.JobID).Int("progress", ev.Progress).Msg("redis progress queue full")
	}
	return nil
}

// writer drains the queue until Close.
func (b *RedisBroker) writer() {
	defer b.wg.Done()
	for ev := range b.queue {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		err := b.write(ctx, ev)
		cancel()
		if err != nil {
			metrics.IncProgressDropped()
			log.Warn().Err(err).Str("job_id", ev.JobID).Int("progress", ev.Progress).Msg("progress notification dropped")
		}
	}
}

func (b *RedisBroker) write(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	m := map[string]interface{}{
		"progress": ev.Progress,
		"done":     strconv.FormatBool(ev.Done),
		"error":    ev.Error,
	}
	pipe := b.client.TxPipeline()
	pipe.HSet(ctx, b.key(ev.JobID), m)
	pipe.Expire(ctx, b.key(ev.JobID), b.ttl)
	pipe.Publish(ctx, b.channel(ev.JobID), data)
	_, err = pipe.Exec(ctx)
	return err
}

// Subscribe implements Broker.
func (b *RedisBroker) Subscribe(ctx context.Context, jobID string) (<-chan Event, func()) {
	ps := b.client.Subscribe(ctx, b.channel(jobID))
	// Wait for the confirmation so events published after Subscribe returns
	// are delivered.
	if _, err := ps.Receive(ctx); err != nil {
		log.Warn().Err(err).Str("job_id", jobID).Msg("redis subscribe failed")
	}
	out := make(chan Event, subscriberBuffer)
	done := make(chan struct{})

	go func() {
		defer close(out)
		msgs := ps.Channel()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					log.Warn().Err(err).Str("job_id", jobID).Msg("malformed progress message")
					continue
				}
				select {
				case out <- ev:
				default:
				}
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = ps.Close()
		})
	}
	return out, cancel
}

// Last implements Broker.
func (b *RedisBroker) Last(ctx context.Context, jobID string) (Event, bool) {
	res, err := b.client.HGetAll(ctx, b.key(jobID)).Result()
	if err != nil || len(res) == 0 {
		return Event{}, false
	}
	ev := Event{JobID: jobID, Error: res["error"]}
	if p, err := strconv.Atoi(res["progress"]); err == nil {
		ev.Progress = p
	}
	ev.Done, _ = strconv.ParseBool(res["done"])
	return ev, true
}

// Ping checks redis connectivity.
func (b *RedisBroker) Ping(ctx context.Context) error { return b.client.Ping(ctx).Err() }

// Close flushes queued events and closes the connection.
func (b *RedisBroker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.queue)
	b.mu.Unlock()

	b.wg.Wait()
	return b.client.Close()
}
