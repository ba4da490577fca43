package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"renal-risk-stream/internal/fusion"
	"renal-risk-stream/internal/risk"
	"renal-risk-stream/internal/simulator"
	"renal-risk-stream/internal/stream"
)

type fixedSource float64

func (f fixedSource) Float64() float64 { return float64(f) }

func setupTestRedis(t *testing.T, opts Options) (*miniredis.Miniredis, *redis.Client, *SnapshotCache) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client, New(client, opts)
}

func testSnapshot(t *testing.T, elapsed time.Duration) stream.Snapshot {
	t.Helper()
	sim, err := simulator.New(simulator.Options{Source: fixedSource(0.5)})
	require.NoError(t, err)
	sess, err := stream.NewSession(uuid.New(), time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC), sim, risk.FiveLevel, fusion.NewScoreBased(), stream.DefaultCadence())
	require.NoError(t, err)
	snap, _, err := sess.Advance(elapsed)
	require.NoError(t, err)
	return snap
}

func TestPutAndLatestRoundTrip(t *testing.T) {
	mr, _, c := setupTestRedis(t, Options{KeyPrefix: "rw", SnapshotTTL: time.Minute})
	ctx := context.Background()
	snap := testSnapshot(t, 2*time.Minute)

	require.NoError(t, c.Put(ctx, snap))
	assert.Equal(t, "rw:stream:"+snap.StreamID.String()+":latest", c.LatestKey(snap.StreamID))
	assert.True(t, mr.Exists(c.LatestKey(snap.StreamID)))
	assert.Equal(t, time.Minute, mr.TTL(c.LatestKey(snap.StreamID)))

	got, err := c.Latest(ctx, snap.StreamID)
	require.NoError(t, err)
	assert.Equal(t, snap.StreamID, got.StreamID)
	assert.Equal(t, snap.Seq, got.Seq)
	assert.Equal(t, snap.Urea.Value, got.Urea.Value)
	assert.Equal(t, snap.Urea.Risk, got.Urea.Risk)
	require.NotNil(t, got.Fluid.PhaseAngle)
	assert.Equal(t, *snap.Fluid.PhaseAngle, *got.Fluid.PhaseAngle)
	assert.Equal(t, snap.Fusion.FinalRisk, got.Fusion.FinalRisk)
	assert.True(t, snap.GeneratedAt.Equal(got.GeneratedAt))
}

func TestLatestNotFound(t *testing.T) {
	_, _, c := setupTestRedis(t, Options{})
	_, err := c.Latest(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrSnapshotNotFound)
}

func TestPutAppendsToFeed(t *testing.T) {
	_, client, c := setupTestRedis(t, Options{FeedStream: "rw:fusion", FeedMaxLen: 100})
	ctx := context.Background()
	snap := testSnapshot(t, simulator.DefaultDuration)

	require.NoError(t, c.Put(ctx, snap))
	require.NoError(t, c.Put(ctx, snap))

	msgs, err := client.XRange(ctx, "rw:fusion", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, snap.StreamID.String(), msgs[0].Values["stream_id"])
	assert.Equal(t, snap.Fusion.FinalRisk.String(), msgs[0].Values["final_risk"])
	assert.Equal(t, fusion.StrategyScore, msgs[0].Values["strategy"])
	assert.Contains(t, msgs[0].Values["data"], `"final_risk"`)
}

func TestPutWithoutFeed(t *testing.T) {
	mr, _, c := setupTestRedis(t, Options{})
	require.NoError(t, c.Put(context.Background(), testSnapshot(t, 0)))
	assert.Len(t, mr.Keys(), 1)
}

func TestPutFailsWhenRedisDown(t *testing.T) {
	mr, _, c := setupTestRedis(t, Options{})
	mr.Close()
	assert.Error(t, c.Put(context.Background(), testSnapshot(t, 0)))
}
