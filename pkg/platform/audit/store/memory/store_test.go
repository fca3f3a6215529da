package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "consent-ledger/pkg/platform/audit"
)

func TestInMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	require.NoError(t, store.Append(ctx, audit.Event{Subject: "0xa", Action: "first"}))
	require.NoError(t, store.Append(ctx, audit.Event{Subject: "0xb", Action: "second"}))
	require.NoError(t, store.Append(ctx, audit.Event{Subject: "0xa", Action: "third"}))

	bySubject, err := store.ListBySubject(ctx, "0xa")
	require.NoError(t, err)
	require.Len(t, bySubject, 2)
	assert.Equal(t, "third", bySubject[0].Action)
	assert.Equal(t, "first", bySubject[1].Action)

	recent, err := store.ListRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "third", recent[0].Action)

	store.Clear()
	recent, err = store.ListRecent(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, recent)
}
