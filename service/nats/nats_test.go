package nats

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/brojonat/roxscan/service/txstatus"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubject(t *testing.T) {
	assert.Equal(t, "txstatus.abc", Subject("abc"))
	assert.Equal(t, "txstatus.*", SubscribeOptions{}.FilterSubject())
	assert.Equal(t, "txstatus.abc", SubscribeOptions{Signature: "abc"}.FilterSubject())
}

func TestStreamConfig(t *testing.T) {
	cfg := StreamConfig()
	assert.Equal(t, StreamName, cfg.Name)
	assert.Equal(t, []string{StreamSubjects}, cfg.Subjects)
	assert.Equal(t, int64(1), cfg.MaxMsgsPerSubject)
	assert.Equal(t, jetstream.FileStorage, cfg.Storage)
}

func TestFromSnapshot(t *testing.T) {
	updated := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("found", func(t *testing.T) {
		ts := int64(1_700_000_000)
		snap := txstatus.Snapshot{
			Signature:   "sig1",
			FetchStatus: txstatus.Fetched,
			Info: &txstatus.StatusInfo{
				Slot:               42,
				Confirmations:      txstatus.ConfirmationCount(12),
				ConfirmationStatus: "confirmed",
				Timestamp:          &ts,
			},
			Mode:      txstatus.Active,
			UpdatedAt: updated,
		}

		event := FromSnapshot("devnet", snap)
		assert.Equal(t, "sig1", event.Signature)
		assert.Equal(t, "devnet", event.Cluster)
		assert.Equal(t, "fetched", event.FetchStatus)
		assert.True(t, event.Found)
		assert.Equal(t, uint64(42), event.Slot)
		assert.Equal(t, "12", event.Confirmations)
		assert.False(t, event.Finalized)
		assert.Equal(t, "active", event.Mode)
		require.NotNil(t, event.BlockTime)
		assert.Equal(t, ts, *event.BlockTime)
		assert.Equal(t, updated, event.UpdatedAt)
		assert.WithinDuration(t, time.Now(), event.PublishedAt, 5*time.Second)
	})

	t.Run("finalized", func(t *testing.T) {
		snap := txstatus.Snapshot{
			Signature:   "sig2",
			FetchStatus: txstatus.Fetched,
			Info:        &txstatus.StatusInfo{Confirmations: txstatus.MaxConfirmations()},
		}
		event := FromSnapshot("mainnet-beta", snap)
		assert.True(t, event.Finalized)
		assert.Equal(t, "max", event.Confirmations)
	})

	t.Run("not found", func(t *testing.T) {
		event := FromSnapshot("mainnet-beta", txstatus.Snapshot{Signature: "sig3", FetchStatus: txstatus.Fetched})
		assert.False(t, event.Found)
		assert.Empty(t, event.Confirmations)
	})

	t.Run("fetch failed", func(t *testing.T) {
		event := FromSnapshot("mainnet-beta", txstatus.Snapshot{
			Signature:   "sig4",
			FetchStatus: txstatus.FetchFailed,
			Error:       "timeout",
		})
		assert.Equal(t, "fetch_failed", event.FetchStatus)
		assert.Equal(t, "timeout", event.Error)
	})
}

func TestDecodeEvent(t *testing.T) {
	data, err := json.Marshal(&TxStatusEvent{Signature: "sig", Cluster: "devnet", Confirmations: "max", Finalized: true})
	require.NoError(t, err)

	event, err := DecodeEvent(data)
	require.NoError(t, err)
	assert.Equal(t, "sig", event.Signature)
	assert.True(t, event.Finalized)

	_, err = DecodeEvent([]byte("{"))
	assert.Error(t, err)

	_, err = DecodeEvent([]byte(`{"cluster":"devnet"}`))
	assert.ErrorContains(t, err, "missing signature")
}

func TestMockPublisher(t *testing.T) {
	ctx := context.Background()
	m := NewMockPublisher()

	require.NoError(t, m.PublishStatus(ctx, &TxStatusEvent{Signature: "a"}))
	require.NoError(t, m.PublishStatus(ctx, &TxStatusEvent{Signature: "b"}))
	require.NoError(t, m.PublishStatus(ctx, &TxStatusEvent{Signature: "a"}))

	assert.Equal(t, 3, m.GetPublishedEventCount())
	assert.Len(t, m.GetPublishedEventsForSignature("a"), 2)

	m.SetPublishError(errors.New("nats down"))
	assert.Error(t, m.PublishStatus(ctx, &TxStatusEvent{Signature: "c"}))
	assert.Equal(t, 3, m.GetPublishedEventCount())

	require.NoError(t, m.Close())
	assert.True(t, m.IsClosed())

	m.Reset()
	assert.Zero(t, m.GetPublishedEventCount())
	assert.False(t, m.IsClosed())
}
