package replica

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_ResultsInReplicaOrder(t *testing.T) {
	res, err := Run(context.Background(), Pool{Workers: 3}, 10, func(_ context.Context, id int) (int, error) {
		// later replicas finish first
		time.Sleep(time.Duration(10-id) * time.Millisecond)
		return id * id, nil
	})
	require.NoError(t, err)
	require.Len(t, res.Values, 10)
	require.Len(t, res.Durations, 10)
	for id, v := range res.Values {
		assert.Equal(t, id*id, v)
		assert.Positive(t, res.Durations[id])
	}
	assert.NotEmpty(t, res.BatchID)
}

func TestRun_BoundsConcurrency(t *testing.T) {
	var running, peak int32
	_, err := Run(context.Background(), Pool{Workers: 2}, 8, func(context.Context, int) (struct{}, error) {
		now := atomic.AddInt32(&running, 1)
		for {
			old := atomic.LoadInt32(&peak)
			if now <= old || atomic.CompareAndSwapInt32(&peak, old, now) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return struct{}{}, nil
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestRun_PropagatesFirstError(t *testing.T) {
	boom := errors.New("boom")
	var started int32
	_, err := Run(context.Background(), Pool{Workers: 1}, 5, func(_ context.Context, id int) (int, error) {
		atomic.AddInt32(&started, 1)
		if id == 1 {
			return 0, boom
		}
		return id, nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	var re *ReplicaError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, 1, re.Replica)
	// with one worker, nothing starts after the failing replica
	assert.Equal(t, int32(2), atomic.LoadInt32(&started))
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var started int32
	_, err := Run(ctx, Pool{Workers: 2}, 4, func(context.Context, int) (int, error) {
		atomic.AddInt32(&started, 1)
		return 0, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), atomic.LoadInt32(&started))
}

func TestRun_EdgeCounts(t *testing.T) {
	res, err := Run(context.Background(), Pool{}, 0, func(context.Context, int) (int, error) { return 1, nil })
	require.NoError(t, err)
	assert.Empty(t, res.Values)

	_, err = Run(context.Background(), Pool{}, -1, func(context.Context, int) (int, error) { return 1, nil })
	assert.Error(t, err)
}
