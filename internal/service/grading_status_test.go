package service

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestGradingTrackerMarkers(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer client.Close()

	tracker := NewGradingTracker(client, time.Minute, testLogger())
	ctx := context.Background()

	require.NoError(t, tracker.MarkGrading(ctx, 7))
	require.True(t, server.Exists("autoeval:grading:7"))

	states, err := tracker.InProgress(ctx, []uint{7, 8})
	require.NoError(t, err)
	require.True(t, states[7])
	require.False(t, states[8])

	server.FastForward(2 * time.Minute)
	states, err = tracker.InProgress(ctx, []uint{7})
	require.NoError(t, err)
	require.False(t, states[7])

	require.NoError(t, tracker.MarkGrading(ctx, 9))
	require.NoError(t, tracker.ClearGrading(ctx, 9))
	require.False(t, server.Exists("autoeval:grading:9"))
}

func TestGradingTrackerWithoutRedis(t *testing.T) {
	tracker := NewGradingTracker(nil, time.Minute, testLogger())

	require.NoError(t, tracker.MarkGrading(context.Background(), 1))
	states, err := tracker.InProgress(context.Background(), []uint{1})
	require.NoError(t, err)
	require.False(t, states[1])
}
