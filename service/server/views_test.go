package server

import (
	"context"
	"testing"

	"github.com/brojonat/roxscan/service/cluster"
	"github.com/brojonat/roxscan/service/txstatus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startedPoller(t *testing.T) *txstatus.Poller {
	t.Helper()
	p := txstatus.New(testSignature(), newFakeNode(), txstatus.Options{ClusterStatus: cluster.Failure})
	p.Start(context.Background())
	return p
}

func closed(p *txstatus.Poller) bool {
	select {
	case <-p.Done():
		return true
	default:
		return false
	}
}

func TestViewRegistry(t *testing.T) {
	views := NewViewRegistry(quietLogger())
	sel := cluster.Selection{Cluster: cluster.Devnet}

	p1 := startedPoller(t)
	p2 := startedPoller(t)
	v1 := views.Add(testSignature(), sel, p1)
	v2 := views.Add(testSignature(), sel, p2)

	assert.NotEqual(t, v1.ID, v2.ID)
	assert.Equal(t, 2, views.Len())

	got, ok := views.Get(v1.ID)
	require.True(t, ok)
	assert.Same(t, p1, got.Poller)
	assert.Equal(t, sel, got.Selection)

	assert.True(t, views.Remove(v1.ID))
	assert.False(t, views.Remove(v1.ID))
	assert.True(t, closed(p1))
	assert.False(t, closed(p2))

	_, ok = views.Get(v1.ID)
	assert.False(t, ok)

	views.CloseAll()
	assert.Equal(t, 0, views.Len())
	assert.True(t, closed(p2))
}

func TestViewRegistry_NilLogger(t *testing.T) {
	views := NewViewRegistry(nil)
	v := views.Add(testSignature(), cluster.Selection{}, startedPoller(t))
	assert.True(t, views.Remove(v.ID))
}
