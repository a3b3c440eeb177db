package temporal

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/brojonat/roxscan/service/cluster"
	"github.com/brojonat/roxscan/service/metrics"
	natspkg "github.com/brojonat/roxscan/service/nats"
	"github.com/brojonat/roxscan/service/txstatus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockStatusFetcher is a mock StatusFetcher.
type MockStatusFetcher struct {
	mock.Mock
}

func (m *MockStatusFetcher) FetchStatus(ctx context.Context, signature string) (*txstatus.StatusInfo, error) {
	args := m.Called(ctx, signature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*txstatus.StatusInfo), args.Error(1)
}

// fixedFetchers always returns f and records the selections it was asked for.
func fixedFetchers(f StatusFetcher, seen *[]cluster.Selection) FetcherFactory {
	return func(sel cluster.Selection) StatusFetcher {
		if seen != nil {
			*seen = append(*seen, sel)
		}
		return f
	}
}

func TestActivities_FetchStatus(t *testing.T) {
	sig := testSignature()

	tests := []struct {
		name           string
		input          FetchStatusInput
		setupMock      func(*MockStatusFetcher)
		expectedResult *txstatus.StatusInfo
		expectedError  bool
	}{
		{
			name:  "confirmed transaction",
			input: FetchStatusInput{Signature: sig, Cluster: cluster.MainnetBeta},
			setupMock: func(m *MockStatusFetcher) {
				m.On("FetchStatus", mock.Anything, sig).Return(confirmed(12), nil)
			},
			expectedResult: confirmed(12),
		},
		{
			name:  "not found",
			input: FetchStatusInput{Signature: sig, Cluster: cluster.Devnet},
			setupMock: func(m *MockStatusFetcher) {
				m.On("FetchStatus", mock.Anything, sig).Return(nil, nil)
			},
			expectedResult: nil,
		},
		{
			name:  "node error",
			input: FetchStatusInput{Signature: sig, Cluster: cluster.MainnetBeta},
			setupMock: func(m *MockStatusFetcher) {
				m.On("FetchStatus", mock.Anything, sig).Return(nil, errors.New("connection refused"))
			},
			expectedError: true,
		},
		{
			name:          "invalid signature",
			input:         FetchStatusInput{Signature: "not-a-signature", Cluster: cluster.MainnetBeta},
			setupMock:     func(m *MockStatusFetcher) {},
			expectedError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetcher := new(MockStatusFetcher)
			tt.setupMock(fetcher)

			m := metrics.NewMetrics(prometheus.NewRegistry())
			activities := NewActivities(fixedFetchers(fetcher, nil), nil, m, slog.Default())

			result, err := activities.FetchStatus(context.Background(), tt.input)

			if tt.expectedError {
				assert.Error(t, err)
				assert.Nil(t, result)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.expectedResult, result)
			}

			fetcher.AssertExpectations(t)
		})
	}
}

func TestActivities_FetchStatus_Selection(t *testing.T) {
	fetcher := new(MockStatusFetcher)
	fetcher.On("FetchStatus", mock.Anything, mock.Anything).Return(finalized(), nil)

	var seen []cluster.Selection
	activities := NewActivities(fixedFetchers(fetcher, &seen), nil, nil, nil)

	_, err := activities.FetchStatus(context.Background(), FetchStatusInput{
		Signature: testSignature(),
		Cluster:   cluster.Custom,
		CustomURL: "http://127.0.0.1:8899",
	})
	require.NoError(t, err)
	require.Len(t, seen, 1)
	assert.Equal(t, cluster.Selection{Cluster: cluster.Custom, CustomURL: "http://127.0.0.1:8899"}, seen[0])
}

func TestActivities_FetchStatus_NoFetchers(t *testing.T) {
	activities := NewActivities(nil, nil, nil, nil)
	_, err := activities.FetchStatus(context.Background(), FetchStatusInput{Signature: testSignature()})
	assert.Error(t, err)
}

func TestActivities_PublishStatus(t *testing.T) {
	sig := testSignature()
	snap := txstatus.Snapshot{
		Signature:   sig,
		FetchStatus: txstatus.Fetched,
		Info:        confirmed(3),
		Mode:        txstatus.Active,
		UpdatedAt:   time.Now(),
	}

	t.Run("publishes event", func(t *testing.T) {
		publisher := natspkg.NewMockPublisher()
		activities := NewActivities(nil, publisher, nil, nil)

		err := activities.PublishStatus(context.Background(), PublishStatusInput{Cluster: cluster.Devnet, Snapshot: snap})
		require.NoError(t, err)

		events := publisher.GetPublishedEventsForSignature(sig)
		require.Len(t, events, 1)
		assert.Equal(t, "devnet", events[0].Cluster)
		assert.True(t, events[0].Found)
		assert.Equal(t, "3", events[0].Confirmations)
		assert.Equal(t, "active", events[0].Mode)
	})

	t.Run("publisher error", func(t *testing.T) {
		publisher := natspkg.NewMockPublisher()
		publisher.SetPublishError(errors.New("nats down"))
		activities := NewActivities(nil, publisher, nil, nil)

		err := activities.PublishStatus(context.Background(), PublishStatusInput{Cluster: cluster.Devnet, Snapshot: snap})
		assert.Error(t, err)
	})

	t.Run("no publisher", func(t *testing.T) {
		activities := NewActivities(nil, nil, nil, nil)
		err := activities.PublishStatus(context.Background(), PublishStatusInput{Snapshot: snap})
		assert.NoError(t, err)
	})

	t.Run("records outcome", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		activities := NewActivities(nil, nil, metrics.NewMetrics(reg), nil)

		err := activities.PublishStatus(context.Background(), PublishStatusInput{
			Cluster:   cluster.MainnetBeta,
			Snapshot:  snap,
			Outcome:   OutcomeFinalized,
			StartedAt: time.Now().Add(-5 * time.Second),
		})
		require.NoError(t, err)

		families, err := reg.Gather()
		require.NoError(t, err)
		var executions float64
		for _, mf := range families {
			if mf.GetName() != "watch_workflow_executions_total" {
				continue
			}
			for _, m := range mf.GetMetric() {
				executions += m.GetCounter().GetValue()
			}
		}
		assert.Equal(t, float64(1), executions)
	})
}

func TestSolanaFetchers(t *testing.T) {
	resolver := cluster.NewResolver(cluster.Env{MainnetURL: "http://127.0.0.1:1"})

	f := SolanaFetchers(resolver, time.Second, nil, slog.Default())(cluster.Selection{Cluster: cluster.MainnetBeta})
	_, ok := f.(timeoutFetcher)
	assert.True(t, ok)

	f = SolanaFetchers(resolver, 0, nil, slog.Default())(cluster.Selection{Cluster: cluster.MainnetBeta})
	_, ok = f.(timeoutFetcher)
	assert.False(t, ok)
}

func TestTimeoutFetcher(t *testing.T) {
	fetcher := new(MockStatusFetcher)
	fetcher.On("FetchStatus", mock.MatchedBy(func(ctx context.Context) bool {
		_, ok := ctx.Deadline()
		return ok
	}), "sig").Return(confirmed(1), nil)

	info, err := timeoutFetcher{next: fetcher, timeout: time.Minute}.FetchStatus(context.Background(), "sig")
	require.NoError(t, err)
	assert.Equal(t, confirmed(1), info)
	fetcher.AssertExpectations(t)
}
