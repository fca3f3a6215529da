package publisher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	audit "consent-ledger/pkg/platform/audit"
	"consent-ledger/pkg/platform/audit/metrics"
	"consent-ledger/pkg/platform/audit/store/memory"
)

type failingStore struct {
	err error
}

func (s *failingStore) Append(context.Context, audit.Event) error { return s.err }

func (s *failingStore) ListBySubject(context.Context, string) ([]audit.Event, error) {
	return nil, nil
}

func (s *failingStore) ListRecent(context.Context, int) ([]audit.Event, error) {
	return nil, nil
}

const subject = "0x52908400098527886e0f7030069857d2e4169ee7"

func TestPublisher_EmitStoresEvent(t *testing.T) {
	pub := NewPublisher(memory.NewInMemoryStore())

	err := pub.Emit(context.Background(), audit.Event{Subject: subject, Action: string(audit.EventStudyCreated)})
	require.NoError(t, err)

	events, err := pub.ListBySubject(context.Background(), subject)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, string(audit.EventStudyCreated), events[0].Action)
}

func TestPublisher_SetsTimestamp(t *testing.T) {
	pub := NewPublisher(memory.NewInMemoryStore())

	before := time.Now()
	require.NoError(t, pub.Emit(context.Background(), audit.Event{Subject: subject}))
	after := time.Now()

	events, err := pub.ListBySubject(context.Background(), subject)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.False(t, events[0].Timestamp.Before(before))
	assert.False(t, events[0].Timestamp.After(after))
}

func TestPublisher_PreservesExistingTimestamp(t *testing.T) {
	pub := NewPublisher(memory.NewInMemoryStore())
	customTime := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, pub.Emit(context.Background(), audit.Event{Subject: subject, Timestamp: customTime}))

	events, err := pub.ListBySubject(context.Background(), subject)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, customTime, events[0].Timestamp)
}

func TestPublisher_EmitReturnsError(t *testing.T) {
	storeErr := errors.New("append failed")
	pub := NewPublisher(&failingStore{err: storeErr})

	err := pub.Emit(context.Background(), audit.Event{Action: string(audit.EventStudyCreated)})
	require.ErrorIs(t, err, storeErr)
}

func TestPublisher_AsyncDrainsOnClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(16))
	for range 5 {
		require.NoError(t, pub.Emit(context.Background(), audit.Event{Subject: subject}))
	}
	pub.Close()

	events, err := store.ListBySubject(context.Background(), subject)
	require.NoError(t, err)
	assert.Len(t, events, 5)
}

func TestPublisher_RecordsMetrics(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := metrics.New(prometheus.NewRegistry())
	pub := NewPublisher(&failingStore{err: errors.New("down")}, WithAsyncBuffer(4), WithMetrics(m))
	for range 3 {
		require.NoError(t, pub.Emit(context.Background(), audit.Event{Subject: subject}))
	}
	pub.Close()

	assert.Equal(t, 3.0, promtest.ToFloat64(m.EventsEnqueued))
	assert.Equal(t, 3.0, promtest.ToFloat64(m.PersistFailures))
	assert.Equal(t, 0.0, promtest.ToFloat64(m.QueueDepth))
}
