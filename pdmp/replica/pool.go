// Package replica runs independent simulation replicas on a bounded pool of
// goroutines.
package replica

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Task runs replica id. Each replica owns everything it simulates; tasks
// share nothing but their inputs.
type Task[T any] func(ctx context.Context, id int) (T, error)

// Result holds per-replica outcomes, indexed by replica id.
type Result[T any] struct {
	BatchID   string
	Values    []T
	Durations []time.Duration
}

// Pool bounds how many replicas run at once.
type Pool struct {
	// Workers is the concurrency limit; zero or less uses GOMAXPROCS.
	Workers int
}

func (p Pool) workers(n int) int {
	w := p.Workers
	if w <= 0 {
		w = runtime.GOMAXPROCS(0)
	}
	return min(w, n)
}

// ReplicaError reports the failure of one replica.
type ReplicaError struct {
	Replica int
	Err     error
}

func (e *ReplicaError) Error() string {
	return fmt.Sprintf("replica %d: %v", e.Replica, e.Err)
}

func (e *ReplicaError) Unwrap() error { return e.Err }

// Run executes n replicas of task. Results merge into replica order under a
// single mutex. The first failure cancels replicas that have not started
// yet and is returned; cancelling ctx does the same.
func Run[T any](ctx context.Context, p Pool, n int, task Task[T]) (Result[T], error) {
	res := Result[T]{BatchID: uuid.NewString()}
	if n < 0 {
		return res, fmt.Errorf("replica count must be non-negative, got %d", n)
	}
	res.Values = make([]T, n)
	res.Durations = make([]time.Duration, n)
	if n == 0 {
		return res, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	log := logrus.WithField("batch_id", res.BatchID)
	workers := p.workers(n)
	log.Infof("running %d replicas on %d workers", n, workers)

	sem := make(chan struct{}, workers)
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		firstErr error
	)
	start := time.Now()

dispatch:
	for id := 0; id < n; id++ {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			break dispatch
		}
		if ctx.Err() != nil {
			<-sem
			break dispatch
		}
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			defer func() { <-sem }()

			began := time.Now()
			v, err := task(ctx, id)
			took := time.Since(began)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = &ReplicaError{Replica: id, Err: err}
					cancel()
				}
				return
			}
			res.Values[id] = v
			res.Durations[id] = took
			log.WithField("replica", id).Debugf("replica finished in %v", took)
		}(id)
	}
	wg.Wait()

	if firstErr != nil {
		return res, firstErr
	}
	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("replicas cancelled: %w", err)
	}
	log.Infof("%d replicas finished in %v", n, time.Since(start))
	return res, nil
}
