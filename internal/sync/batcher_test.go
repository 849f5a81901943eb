package sync

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/audience-sync/internal/airtable"
)

// fakeStore records every batch call and enforces the batch contract.
type fakeStore struct {
	t             *testing.T
	createBatches [][]airtable.Record
	updateBatches [][]airtable.Record
	failNext      error
}

func (f *fakeStore) CreateRecords(ctx context.Context, table string, records []airtable.Record) ([]airtable.Record, error) {
	if len(records) == 0 || len(records) > airtable.MaxBatchSize {
		f.t.Fatalf("create batch of illegal size %d", len(records))
	}
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return nil, err
	}
	f.createBatches = append(f.createBatches, records)
	return records, nil
}

func (f *fakeStore) UpdateRecords(ctx context.Context, table string, records []airtable.Record) ([]airtable.Record, error) {
	if len(records) == 0 || len(records) > airtable.MaxBatchSize {
		f.t.Fatalf("update batch of illegal size %d", len(records))
	}
	f.updateBatches = append(f.updateBatches, records)
	return records, nil
}

func TestBatcherCreateFlushesAtTen(t *testing.T) {
	store := &fakeStore{t: t}
	b := NewBatcher(store, "Contacts")
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		require.NoError(t, b.EnqueueCreate(ctx, map[string]interface{}{"Email": fmt.Sprintf("c%d@example.com", i)}))
	}
	require.NoError(t, b.Flush(ctx))

	require.Len(t, store.createBatches, 3)
	assert.Len(t, store.createBatches[0], 10)
	assert.Len(t, store.createBatches[1], 10)
	assert.Len(t, store.createBatches[2], 5)
	assert.Equal(t, 25, b.Created)
}

func TestBatcherQueuesAreIndependent(t *testing.T) {
	store := &fakeStore{t: t}
	b := NewBatcher(store, "Contacts")
	ctx := context.Background()

	for i := 0; i < 9; i++ {
		require.NoError(t, b.EnqueueCreate(ctx, map[string]interface{}{"n": i}))
		require.NoError(t, b.EnqueueUpdate(ctx, fmt.Sprintf("rec%d", i), map[string]interface{}{"n": i}))
	}
	// Neither queue reached ten, so nothing flushed yet.
	assert.Empty(t, store.createBatches)
	assert.Empty(t, store.updateBatches)

	require.NoError(t, b.Flush(ctx))
	require.Len(t, store.createBatches, 1)
	require.Len(t, store.updateBatches, 1)
	assert.Equal(t, 9, b.Created)
	assert.Equal(t, 9, b.Updated)
}

func TestBatcherFlushEmptyDoesNothing(t *testing.T) {
	store := &fakeStore{t: t}
	b := NewBatcher(store, "Contacts")
	require.NoError(t, b.Flush(context.Background()))
	assert.Empty(t, store.createBatches)
	assert.Empty(t, store.updateBatches)
}

func TestBatcherFlushErrorPropagates(t *testing.T) {
	store := &fakeStore{t: t, failNext: fmt.Errorf("store down")}
	b := NewBatcher(store, "Contacts")
	ctx := context.Background()

	require.NoError(t, b.EnqueueCreate(ctx, map[string]interface{}{"Email": "a@example.com"}))
	err := b.Flush(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store down")
	assert.Equal(t, 0, b.Created)
}

func TestBatcherUpdateKeepsRecordIDs(t *testing.T) {
	store := &fakeStore{t: t}
	b := NewBatcher(store, "Contacts")
	ctx := context.Background()

	require.NoError(t, b.EnqueueUpdate(ctx, "recA", map[string]interface{}{"Email": "a@example.com"}))
	require.NoError(t, b.Flush(ctx))

	require.Len(t, store.updateBatches, 1)
	assert.Equal(t, "recA", store.updateBatches[0][0].ID)
}
