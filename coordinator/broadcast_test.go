package coordinator

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/reactmesh/core"
	"github.com/hupe1980/reactmesh/model"
)

func TestBroadcast(t *testing.T) {
	t.Run("quorum reached despite provider failure", func(t *testing.T) {
		res, err := New().Run(context.Background(), Plan{
			Pattern: PatternBroadcast,
			Agents:  []Runner{answering(t, "agent1", "A"), failing(t, "agent2"), answering(t, "agent3", "C")},
			Quorum:  2,
		}, "task")
		require.NoError(t, err)

		assert.Equal(t, core.StatusCompleted, res.Status)
		require.Len(t, res.Results, 3)

		var names []string
		for _, r := range res.Completed() {
			names = append(names, r.Agent)
		}

		assert.Equal(t, []string{"agent1", "agent3"}, names)

		r2, ok := res.ByAgent("agent2")
		require.True(t, ok)
		assert.Equal(t, core.StatusFailed, r2.Status)
	})

	t.Run("quorum cancels the rest", func(t *testing.T) {
		res, err := New().Run(context.Background(), Plan{
			Pattern: PatternBroadcast,
			Agents:  []Runner{answering(t, "fast", "A"), blocking(t, "slow")},
			Quorum:  1,
		}, "task")
		require.NoError(t, err)

		assert.Equal(t, core.StatusCompleted, res.Status)

		slow, ok := res.ByAgent("slow")
		require.True(t, ok)
		assert.Equal(t, core.StatusFailed, slow.Status)
		assert.Equal(t, core.KindCancellation, slow.ErrorKind())
	})

	t.Run("quorum unreachable", func(t *testing.T) {
		res, err := New().Run(context.Background(), Plan{
			Pattern: PatternBroadcast,
			Agents:  []Runner{failing(t, "a"), answering(t, "b", "B")},
			Quorum:  2,
		}, "task")
		require.ErrorIs(t, err, ErrQuorumNotReached)
		assert.Equal(t, core.StatusFailed, res.Status)
		assert.Len(t, res.Results, 2)
	})

	t.Run("fail fast", func(t *testing.T) {
		res, err := New().Run(context.Background(), Plan{
			Pattern:  PatternBroadcast,
			Agents:   []Runner{failing(t, "a"), blocking(t, "b")},
			FailFast: true,
		}, "task")
		require.ErrorIs(t, err, ErrAgentFailed)
		assert.Equal(t, core.StatusFailed, res.Status)

		b, ok := res.ByAgent("b")
		require.True(t, ok)
		assert.Equal(t, core.KindCancellation, b.ErrorKind())
	})

	t.Run("without quorum one failure does not abort siblings", func(t *testing.T) {
		res, err := New().Run(context.Background(), Plan{
			Pattern: PatternBroadcast,
			Agents:  []Runner{failing(t, "a"), answering(t, "b", "B"), answering(t, "c", "C")},
		}, "task")
		require.NoError(t, err)
		assert.Equal(t, core.StatusCompleted, res.Status)
		assert.Len(t, res.Completed(), 2)
	})

	t.Run("all failed", func(t *testing.T) {
		res, err := New().Run(context.Background(), Plan{
			Pattern: PatternBroadcast,
			Agents:  []Runner{failing(t, "a"), failing(t, "b")},
		}, "task")
		require.ErrorIs(t, err, ErrQuorumNotReached)
		assert.Equal(t, core.StatusFailed, res.Status)
	})
}

func TestBroadcast_FanOutBound(t *testing.T) {
	var running, peak atomic.Int32

	slowAnswer := func(name string) Runner {
		return newAgent(t, name, model.NewFunc(name, func(ctx context.Context, _ model.Request) (string, error) {
			n := running.Add(1)
			defer running.Add(-1)

			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}

			select {
			case <-time.After(10 * time.Millisecond):
				return final(name), nil
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}))
	}

	res, err := New(func(o *Options) { o.FanOut = 2 }).Run(context.Background(), Plan{
		Pattern: PatternBroadcast,
		Agents:  []Runner{slowAnswer("a"), slowAnswer("b"), slowAnswer("c"), slowAnswer("d")},
	}, "task")
	require.NoError(t, err)

	assert.Len(t, res.Completed(), 4)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}
