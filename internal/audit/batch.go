package audit

import (
	"context"
	"sync"
)

type batchKey struct{}

// Batch holds entries recorded inside a database transaction so that their
// log lines, metrics and feed events only go out once the transaction commits.
type Batch struct {
	mu      sync.Mutex
	rec     *Recorder
	entries []Entry
}

// BeginBatch returns a context whose Record calls are buffered in the batch.
func (r *Recorder) BeginBatch(ctx context.Context) (context.Context, *Batch) {
	b := &Batch{rec: r}
	return context.WithValue(ctx, batchKey{}, b), b
}

func batchFromContext(ctx context.Context) *Batch {
	b, _ := ctx.Value(batchKey{}).(*Batch)
	return b
}

func (b *Batch) add(e Entry) {
	b.mu.Lock()
	b.entries = append(b.entries, e)
	b.mu.Unlock()
}

// Commit emits every buffered entry.
func (b *Batch) Commit(ctx context.Context) {
	b.mu.Lock()
	entries := b.entries
	b.entries = nil
	b.mu.Unlock()
	for _, e := range entries {
		b.rec.emit(ctx, e)
	}
}

// Discard drops buffered entries without emitting them.
func (b *Batch) Discard() {
	b.mu.Lock()
	b.entries = nil
	b.mu.Unlock()
}
