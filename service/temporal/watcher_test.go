package temporal

import (
	"context"
	"errors"
	"testing"

	"github.com/brojonat/roxscan/service/cluster"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchID(t *testing.T) {
	assert.Equal(t, "watch-tx-devnet-abc", WatchID(cluster.Devnet, "abc"))
	assert.NotEqual(t, WatchID(cluster.MainnetBeta, "abc"), WatchID(cluster.Devnet, "abc"))
}

func TestMockWatcher(t *testing.T) {
	ctx := context.Background()
	sig := testSignature()
	w := NewMockWatcher()

	_, err := w.DescribeWatch(ctx, cluster.Devnet, sig)
	assert.ErrorIs(t, err, ErrWatchNotFound)

	run, err := w.StartWatch(ctx, WatchInput{Signature: sig, Cluster: cluster.Devnet})
	require.NoError(t, err)
	assert.Equal(t, WatchID(cluster.Devnet, sig), run.WorkflowID)

	again, err := w.StartWatch(ctx, WatchInput{Signature: sig, Cluster: cluster.Devnet})
	require.NoError(t, err)
	assert.Equal(t, run, again)
	assert.Equal(t, 1, w.WatchCount())

	in, ok := w.Input(cluster.Devnet, sig)
	require.True(t, ok)
	assert.Equal(t, DefaultWatchInterval, in.Interval)

	status, err := w.DescribeWatch(ctx, cluster.Devnet, sig)
	require.NoError(t, err)
	assert.Equal(t, WatchRunning, status.Status)

	require.NoError(t, w.CancelWatch(ctx, cluster.Devnet, sig))
	status, err = w.DescribeWatch(ctx, cluster.Devnet, sig)
	require.NoError(t, err)
	assert.Equal(t, WatchCancelled, status.Status)

	assert.ErrorIs(t, w.CancelWatch(ctx, cluster.MainnetBeta, sig), ErrWatchNotFound)

	w.SetStartError(errors.New("temporal down"))
	_, err = w.StartWatch(ctx, WatchInput{Signature: sig, Cluster: cluster.MainnetBeta})
	assert.Error(t, err)
}
