package importer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bherila/k1flow/src/logger"
	"github.com/bherila/k1flow/src/models"
)

// DefaultChunkSize bounds the number of line items written per transaction.
const DefaultChunkSize = 100

// State is the lifecycle phase of one import batch.
type State string

const (
	StateIdle       State = "idle"
	StatePreviewing State = "previewing"
	StateImporting  State = "importing"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
	StateRetrying   State = "retrying"
	StateCancelled  State = "cancelled"
)

var (
	ErrNotPreviewing = errors.New("import batch is not in the previewing state")
	ErrNotFailed     = errors.New("import batch has not failed")
)

// ChunkWriteError wraps a storage failure with the zero-based index of the
// chunk that failed. Earlier chunks stay committed.
type ChunkWriteError struct {
	Chunk int
	Err   error
}

func (e *ChunkWriteError) Error() string {
	return fmt.Sprintf("failed writing import chunk %d: %v", e.Chunk, e.Err)
}

func (e *ChunkWriteError) Unwrap() error { return e.Err }

// ChunkWriter persists one chunk of line items atomically. A non-nil error
// means the whole chunk was rolled back.
type ChunkWriter func(ctx context.Context, accountID int64, items []models.LineItem) error

// Batch drives a chunked import: items confirmed in a preview are written
// sequentially, one transaction per chunk, so a mid-batch failure leaves a
// clean prefix of committed chunks and a known resume point.
type Batch struct {
	mu          sync.Mutex
	state       State
	accountID   int64
	items       []models.LineItem
	chunkSize   int
	processed   int
	failedChunk int
	write       ChunkWriter
}

// NewBatch creates an idle batch. chunkSize values below 1 fall back to
// DefaultChunkSize.
func NewBatch(accountID int64, write ChunkWriter, chunkSize int) *Batch {
	if chunkSize < 1 {
		chunkSize = DefaultChunkSize
	}
	return &Batch{
		state:       StateIdle,
		accountID:   accountID,
		chunkSize:   chunkSize,
		failedChunk: -1,
		write:       write,
	}
}

// Preview stages the deduplicated items for confirmation and moves the
// batch to previewing. Staging replaces any previously staged set.
func (b *Batch) Preview(items []models.LineItem) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = items
	b.state = StatePreviewing
	b.processed = 0
	b.failedChunk = -1
}

// Run confirms the preview and writes all staged chunks in order. On a
// chunk failure the batch stops, records the failed chunk and returns a
// ChunkWriteError; processed counts only fully committed chunks.
func (b *Batch) Run(ctx context.Context) error {
	b.mu.Lock()
	if b.state != StatePreviewing {
		b.mu.Unlock()
		return ErrNotPreviewing
	}
	b.state = StateImporting
	b.mu.Unlock()

	return b.writeFrom(ctx, 0)
}

// Retry resumes a failed batch from the chunk that failed. Chunks before
// it are already committed and are not rewritten.
func (b *Batch) Retry(ctx context.Context) error {
	b.mu.Lock()
	if b.state != StateFailed {
		b.mu.Unlock()
		return ErrNotFailed
	}
	from := b.failedChunk
	b.state = StateRetrying
	b.mu.Unlock()

	return b.writeFrom(ctx, from)
}

// Cancel abandons a failed batch. Chunks committed before the failure stay
// in storage; cancel only stops further writes.
func (b *Batch) Cancel() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateFailed {
		return ErrNotFailed
	}
	b.state = StateCancelled
	return nil
}

func (b *Batch) writeFrom(ctx context.Context, startChunk int) error {
	// Retrying is only the transition out of failed; once writes begin the
	// batch is importing again.
	b.mu.Lock()
	b.state = StateImporting
	b.mu.Unlock()

	total := b.chunkCount()
	for chunk := startChunk; chunk < total; chunk++ {
		lo := chunk * b.chunkSize
		hi := lo + b.chunkSize
		if hi > len(b.items) {
			hi = len(b.items)
		}
		if err := b.write(ctx, b.accountID, b.items[lo:hi]); err != nil {
			b.mu.Lock()
			b.state = StateFailed
			b.failedChunk = chunk
			b.mu.Unlock()
			logger.FromContext(ctx).Error("import chunk write failed",
				"account_id", b.accountID, "chunk", chunk, "error", err)
			return &ChunkWriteError{Chunk: chunk, Err: err}
		}
		b.mu.Lock()
		b.processed = hi
		b.mu.Unlock()
	}
	b.mu.Lock()
	b.state = StateSucceeded
	b.failedChunk = -1
	b.mu.Unlock()
	return nil
}

func (b *Batch) chunkCount() int {
	return (len(b.items) + b.chunkSize - 1) / b.chunkSize
}

// State returns the current lifecycle phase.
func (b *Batch) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Progress reports how many items have been committed out of the staged
// total, plus the failed chunk index (-1 when none).
func (b *Batch) Progress() (processed, total, failedChunk int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.processed, len(b.items), b.failedChunk
}
