package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/axiomhq/axiom-go/axiom"
	"github.com/axiomhq/axiom-go/axiom/ingest"
	"github.com/rs/zerolog"
)

const (
	axiomBuffer        = 1000
	axiomBatch         = 200
	axiomIngestTimeout = 15 * time.Second
)

type ingestFunc func(ctx context.Context, dataset string, events []axiom.Event) error

// axiomShipper turns zerolog JSON lines into Axiom events and ingests them in
// batches from a single goroutine. Write never blocks; overflow is counted.
type axiomShipper struct {
	ingest     ingestFunc
	dataset    string
	flushEvery time.Duration

	events  chan axiom.Event
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
	dropped atomic.Int64
}

func dialAxiom(opts Options) (*axiomShipper, error) {
	copts := []axiom.Option{axiom.SetToken(opts.AxiomAPIKey)}
	if opts.AxiomOrgID != "" {
		copts = append(copts, axiom.SetOrganizationID(opts.AxiomOrgID))
	}
	c, err := axiom.NewClient(copts...)
	if err != nil {
		return nil, err
	}
	dataset := opts.AxiomDataset
	if dataset == "" {
		dataset = "dev_" + serviceName
	}
	send := func(ctx context.Context, ds string, events []axiom.Event) error {
		_, err := c.IngestEvents(ctx, ds, events)
		return err
	}
	return newAxiomShipper(send, dataset, opts.AxiomFlush, axiomBuffer), nil
}

func newAxiomShipper(send ingestFunc, dataset string, flushEvery time.Duration, buffer int) *axiomShipper {
	if flushEvery <= 0 {
		flushEvery = 10 * time.Second
	}
	s := &axiomShipper{
		ingest:     send,
		dataset:    dataset,
		flushEvery: flushEvery,
		events:     make(chan axiom.Event, buffer),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	go s.run()
	return s
}

// Write implements io.Writer for one zerolog line. The zerolog time field
// becomes the Axiom event time.
func (s *axiomShipper) Write(p []byte) (int, error) {
	var ev axiom.Event
	if err := json.Unmarshal(p, &ev); err != nil {
		ev = axiom.Event{zerolog.MessageFieldName: string(bytes.TrimSpace(p))}
	}
	ev["service"] = serviceName
	if raw, ok := ev[zerolog.TimestampFieldName].(string); ok {
		if ts, err := time.Parse(zerolog.TimeFieldFormat, raw); err == nil {
			ev[ingest.TimestampField] = ts
			delete(ev, zerolog.TimestampFieldName)
		}
	}
	if _, ok := ev[ingest.TimestampField]; !ok {
		ev[ingest.TimestampField] = time.Now()
	}

	select {
	case s.events <- ev:
	default:
		s.dropped.Add(1)
	}
	return len(p), nil
}

func (s *axiomShipper) run() {
	defer close(s.done)
	ticker := time.NewTicker(s.flushEvery)
	defer ticker.Stop()

	batch := make([]axiom.Event, 0, axiomBatch)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), axiomIngestTimeout)
		if err := s.ingest(ctx, s.dataset, batch); err != nil {
			fmt.Fprintf(os.Stderr, "axiom ingest of %d events failed: %v\n", len(batch), err)
		}
		cancel()
		batch = make([]axiom.Event, 0, axiomBatch)
	}
	add := func(ev axiom.Event) {
		batch = append(batch, ev)
		if len(batch) >= axiomBatch {
			flush()
		}
	}

	for {
		select {
		case ev := <-s.events:
			add(ev)
		case <-ticker.C:
			flush()
		case <-s.stop:
			for {
				select {
				case ev := <-s.events:
					add(ev)
				default:
					flush()
					return
				}
			}
		}
	}
}

// Close ingests whatever is buffered and stops the shipper.
func (s *axiomShipper) Close() error {
	s.once.Do(func() {
		close(s.stop)
		<-s.done
		if n := s.dropped.Load(); n > 0 {
			fmt.Fprintf(os.Stderr, "axiom: dropped %d log events\n", n)
		}
	})
	return nil
}
