package ops

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "unykorn/pkg/platform/audit"
	"unykorn/pkg/platform/audit/store/memory"
)

type flakyStore struct {
	inner *memory.InMemoryStore
	fail  bool
	calls int
}

func (f *flakyStore) Append(ctx context.Context, e audit.Event) error {
	f.calls++
	if f.fail {
		return errors.New("connection refused")
	}
	return f.inner.Append(ctx, e)
}

func event(action audit.AuditEvent) audit.Event {
	return audit.Event{Action: string(action), Subject: "0xabc"}
}

func TestSamplingOnlyTouchesOperations(t *testing.T) {
	inner := memory.NewInMemoryStore()
	m := NewMetrics(prometheus.NewRegistry())
	s := New(inner, WithSampler(NewSampler(0)), WithMetrics(m))
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, event(audit.EventTokensTransferred)))
	require.NoError(t, s.Append(ctx, event(audit.EventTokensMinted)))
	require.NoError(t, s.Append(ctx, event(audit.EventRoleGranted)))

	assert.Equal(t, []string{"tokens_minted", "role_granted"}, inner.Actions())
	assert.Equal(t, float64(1), promtest.ToFloat64(m.Sampled))
}

func TestSamplerOverrides(t *testing.T) {
	s := NewSampler(0.5)
	s.draw = func() float64 { return 0.7 }
	assert.False(t, s.Keep("tokens_transferred"))

	s.SetRate("tokens_transferred", 0.9)
	assert.True(t, s.Keep("tokens_transferred"))

	s.SetRate("vote_cast", 7)
	s.draw = func() float64 { return 0.9999 }
	assert.True(t, s.Keep("vote_cast"), "rates clamp to one")
}

func TestCircuitDropsOperationsWhileStoreFails(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(2, time.Minute)
	cb.now = func() time.Time { return now }

	inner := &flakyStore{inner: memory.NewInMemoryStore(), fail: true}
	m := NewMetrics(prometheus.NewRegistry())
	s := New(inner, WithCircuitBreaker(cb), WithMetrics(m))
	ctx := context.Background()

	assert.Error(t, s.Append(ctx, event(audit.EventVoteCast)))
	assert.Error(t, s.Append(ctx, event(audit.EventVoteCast)))
	assert.True(t, cb.IsOpen())
	assert.Equal(t, float64(1), promtest.ToFloat64(m.CircuitState))

	assert.NoError(t, s.Append(ctx, event(audit.EventVoteCast)))
	assert.Equal(t, 2, inner.calls, "open circuit skips the store")
	assert.Equal(t, float64(1), promtest.ToFloat64(m.Dropped))

	// Compliance events are never gated.
	assert.Error(t, s.Append(ctx, event(audit.EventTaxDistributed)))
	assert.Equal(t, 3, inner.calls)

	now = now.Add(time.Minute)
	inner.fail = false
	require.NoError(t, s.Append(ctx, event(audit.EventVoteCast)))
	assert.False(t, cb.IsOpen())
	assert.Equal(t, float64(0), promtest.ToFloat64(m.CircuitState))
	assert.Equal(t, []string{"vote_cast"}, inner.inner.Actions())
}

func TestHalfOpenReopensOnFailure(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(3, time.Second)
	cb.now = func() time.Time { return now }

	for range 3 {
		cb.RecordFailure()
	}
	require.False(t, cb.Allow())

	now = now.Add(time.Second)
	require.True(t, cb.Allow())
	assert.True(t, cb.RecordFailure(), "a failed probe opens the circuit again")
	assert.False(t, cb.Allow())
}

func TestReaderPassthrough(t *testing.T) {
	inner := memory.NewInMemoryStore()
	s := New(inner)
	require.NoError(t, s.Append(context.Background(), event(audit.EventCheckInRecorded)))

	got, err := s.ListBySubject(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.Len(t, got, 1)

	_, err = New(&flakyStore{}).ListRecent(context.Background(), 10)
	assert.ErrorIs(t, err, errNoReader)
}
