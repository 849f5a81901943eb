package sync

import (
	"context"
	"fmt"

	"github.com/ignite/audience-sync/internal/airtable"
)

// storeWriter is the slice of the record-store client the batcher
// needs; tests substitute a fake.
type storeWriter interface {
	CreateRecords(ctx context.Context, table string, records []airtable.Record) ([]airtable.Record, error)
	UpdateRecords(ctx context.Context, table string, records []airtable.Record) ([]airtable.Record, error)
}

// Batcher accumulates pending creates and updates in two independent
// queues and flushes each the moment it reaches the store's batch
// ceiling. A flush is all-or-nothing: a failed batch call aborts the
// run with the queue contents lost.
type Batcher struct {
	store   storeWriter
	table   string
	creates []airtable.Record
	updates []airtable.Record

	// Created and Updated count records successfully flushed.
	Created int
	Updated int
}

// NewBatcher creates a batcher writing to the given table.
func NewBatcher(store storeWriter, table string) *Batcher {
	return &Batcher{store: store, table: table}
}

// EnqueueCreate queues a new record, flushing if the create queue is
// full.
func (b *Batcher) EnqueueCreate(ctx context.Context, fields map[string]interface{}) error {
	b.creates = append(b.creates, airtable.Record{Fields: fields})
	if len(b.creates) >= airtable.MaxBatchSize {
		return b.flushCreates(ctx)
	}
	return nil
}

// EnqueueUpdate queues a full-replace update for an existing record,
// flushing if the update queue is full.
func (b *Batcher) EnqueueUpdate(ctx context.Context, recordID string, fields map[string]interface{}) error {
	b.updates = append(b.updates, airtable.Record{ID: recordID, Fields: fields})
	if len(b.updates) >= airtable.MaxBatchSize {
		return b.flushUpdates(ctx)
	}
	return nil
}

// Flush drains both queues. Call once the input stream is exhausted;
// empty queues are left alone so the store never sees a zero-record
// batch.
func (b *Batcher) Flush(ctx context.Context) error {
	if len(b.creates) > 0 {
		if err := b.flushCreates(ctx); err != nil {
			return err
		}
	}
	if len(b.updates) > 0 {
		if err := b.flushUpdates(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (b *Batcher) flushCreates(ctx context.Context) error {
	batch := b.creates
	b.creates = nil
	if _, err := b.store.CreateRecords(ctx, b.table, batch); err != nil {
		return fmt.Errorf("create batch of %d failed: %w", len(batch), err)
	}
	b.Created += len(batch)
	return nil
}

func (b *Batcher) flushUpdates(ctx context.Context) error {
	batch := b.updates
	b.updates = nil
	if _, err := b.store.UpdateRecords(ctx, b.table, batch); err != nil {
		return fmt.Errorf("update batch of %d failed: %w", len(batch), err)
	}
	b.Updated += len(batch)
	return nil
}
