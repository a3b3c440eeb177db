package db

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrations_Ordered(t *testing.T) {
	files, err := Migrations()
	require.NoError(t, err)
	require.NotEmpty(t, files)
	assert.Equal(t, "001_finalized_transactions.sql", files[0])
	for i := 1; i < len(files); i++ {
		assert.Less(t, files[i-1], files[i])
	}
}

func TestFinalizedTransaction_Failed(t *testing.T) {
	assert.False(t, (&FinalizedTransaction{}).Failed())
	assert.False(t, (&FinalizedTransaction{Err: json.RawMessage("null")}).Failed())
	assert.True(t, (&FinalizedTransaction{Err: json.RawMessage(`{"InstructionError":[0,"Custom"]}`)}).Failed())
}

func TestPgTimestamptzHelpers(t *testing.T) {
	assert.False(t, pgTimestamptzFromPtr(nil).Valid)
	assert.Nil(t, timePtrFromPgTimestamptz(pgTimestamptzFromPtr(nil)))

	now := time.Now().UTC()
	got := timePtrFromPgTimestamptz(pgTimestamptzFromPtr(&now))
	require.NotNil(t, got)
	assert.True(t, now.Equal(*got))
}

func TestNullableJSON(t *testing.T) {
	assert.Nil(t, nullableJSON(nil))
	assert.Nil(t, nullableJSON(json.RawMessage("null")))
	assert.Equal(t, []byte(`"x"`), nullableJSON(json.RawMessage(`"x"`)))
}

func TestStore_PutGet(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()
	blockTime := time.Now().UTC().Truncate(time.Second)

	t.Run("successful transaction", func(t *testing.T) {
		txn := &FinalizedTransaction{
			Signature: "sig-ok",
			Cluster:   "mainnet-beta",
			Slot:      12345,
			BlockTime: &blockTime,
			Fee:       5000,
			Payload:   json.RawMessage(`{"slot":12345}`),
		}
		inserted, err := store.Put(ctx, txn)
		require.NoError(t, err)
		assert.True(t, inserted)

		got, err := store.Get(ctx, "mainnet-beta", "sig-ok")
		require.NoError(t, err)
		assert.Equal(t, txn.Signature, got.Signature)
		assert.Equal(t, txn.Slot, got.Slot)
		assert.Equal(t, txn.Fee, got.Fee)
		require.NotNil(t, got.BlockTime)
		assert.WithinDuration(t, blockTime, *got.BlockTime, time.Second)
		assert.Nil(t, got.Err)
		assert.False(t, got.Failed())
		assert.JSONEq(t, `{"slot":12345}`, string(got.Payload))
		assert.WithinDuration(t, time.Now(), got.CreatedAt, 5*time.Second)
	})

	t.Run("failed transaction without block time", func(t *testing.T) {
		txn := &FinalizedTransaction{
			Signature: "sig-err",
			Cluster:   "devnet",
			Slot:      7,
			Err:       json.RawMessage(`{"InstructionError":[0,"Custom"]}`),
		}
		_, err := store.Put(ctx, txn)
		require.NoError(t, err)

		got, err := store.Get(ctx, "devnet", "sig-err")
		require.NoError(t, err)
		assert.Nil(t, got.BlockTime)
		assert.True(t, got.Failed())
		assert.JSONEq(t, `{}`, string(got.Payload))
	})

	t.Run("same signature on another cluster is separate", func(t *testing.T) {
		_, err := store.Get(ctx, "devnet", "sig-ok")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("put is insert-or-ignore", func(t *testing.T) {
		inserted, err := store.Put(ctx, &FinalizedTransaction{
			Signature: "sig-ok",
			Cluster:   "mainnet-beta",
			Slot:      99999,
		})
		require.NoError(t, err)
		assert.False(t, inserted)

		got, err := store.Get(ctx, "mainnet-beta", "sig-ok")
		require.NoError(t, err)
		assert.Equal(t, int64(12345), got.Slot)
	})

	t.Run("missing keys rejected", func(t *testing.T) {
		_, err := store.Put(ctx, &FinalizedTransaction{Signature: "x"})
		assert.Error(t, err)
	})
}

func TestStore_ListAndDelete(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()
	for i, c := range []string{"mainnet-beta", "mainnet-beta", "devnet"} {
		_, err := store.Put(ctx, &FinalizedTransaction{
			Signature: "sig-" + string(rune('a'+i)),
			Cluster:   c,
			Slot:      int64(i),
		})
		require.NoError(t, err)
	}

	all, err := store.List(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	mainnet, err := store.List(ctx, "mainnet-beta", 10)
	require.NoError(t, err)
	assert.Len(t, mainnet, 2)

	limited, err := store.List(ctx, "", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	require.NoError(t, store.Delete(ctx, "devnet", "sig-c"))
	assert.ErrorIs(t, store.Delete(ctx, "devnet", "sig-c"), ErrNotFound)
}
