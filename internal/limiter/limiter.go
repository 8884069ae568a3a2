// Package limiter caps how many documents are analyzed at once.
package limiter

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/local/inkcost/internal/metrics"
)

// Gate is a weighted semaphore sized to the number of concurrent analyses.
type Gate struct {
	sem *semaphore.Weighted
	max int64
}

// New returns a gate admitting at most max analyses; max < 1 is treated as 1.
func New(max int) *Gate {
	if max < 1 {
		max = 1
	}
	return &Gate{sem: semaphore.NewWeighted(int64(max)), max: int64(max)}
}

// Max reports the gate capacity.
func (g *Gate) Max() int { return int(g.max) }

// Allow tries to reserve a slot without waiting.
// Returns a release function and true if allowed; otherwise a no-op and false.
func (g *Gate) Allow() (func(), bool) {
	if !g.sem.TryAcquire(1) {
		return func() {}, false
	}
	return g.release(), true
}

// Wait blocks until a slot is free or ctx is done.
func (g *Gate) Wait(ctx context.Context) (func(), error) {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return func() {}, err
	}
	return g.release(), nil
}

func (g *Gate) release() func() {
	done := metrics.TrackInflight()
	var once sync.Once
	return func() {
		once.Do(func() {
			done()
			g.sem.Release(1)
		})
	}
}
