package services

import (
	"context"
	"errors"

	"github.com/bherila/k1flow/src/importer"
	"github.com/bherila/k1flow/src/models"
	"github.com/bherila/k1flow/src/parsers"
)

// PreviewResult is what an import preview shows before anything is written:
// the rows that would be inserted, the rows recognized as already present,
// per-row normalization problems, and any statement metadata the file
// carried.
type PreviewResult struct {
	Format     parsers.Format         `json:"format"`
	NewItems   []models.LineItem      `json:"new_items"`
	Duplicates []models.LineItem      `json:"duplicates"`
	RowErrors  []string               `json:"row_errors,omitempty"`
	Statement  *models.StatementData  `json:"statement,omitempty"`
}

// ImportStatus reports the lifecycle of an account's active import batch.
type ImportStatus struct {
	State       importer.State `json:"state"`
	Processed   int            `json:"processed"`
	Total       int            `json:"total"`
	FailedChunk int            `json:"failed_chunk"` // -1 when no chunk has failed
	// StatementError is set when the line items committed but the
	// accompanying statement detail could not be stored; the client can
	// re-submit it through the statement endpoint.
	StatementError string `json:"statement_error,omitempty"`
}

// Define common service errors
var (
	ErrParsingFailed  = errors.New("file parsing failed")
	ErrNoActiveImport = errors.New("no active import for this account")
)

// ImportService drives the full import pipeline for one account at a time:
// preview, confirm with chunked writes, retry or cancel after a failure,
// plus the review surfaces built on the stored items.
type ImportService interface {
	PreviewImport(ctx context.Context, accountID int64, filename string, data []byte) (*PreviewResult, error)
	ConfirmImport(ctx context.Context, accountID int64) (*ImportStatus, error)
	RetryImport(ctx context.Context, accountID int64) (*ImportStatus, error)
	CancelImport(accountID int64) (*ImportStatus, error)
	Status(accountID int64) (*ImportStatus, error)

	ListItems(accountID int64, year int) ([]models.LineItem, error)
	CreateItem(accountID int64, item models.LineItem) (*models.LineItem, error)
	UpdateItemField(accountID, itemID int64, field string, value interface{}) error
	DeleteItem(accountID, itemID int64) error

	DuplicateGroups(accountID int64, year int) ([]models.DuplicateGroup, error)
	ResolveDuplicates(accountID int64, deleteIDs []int64) error
	MarkNotDuplicate(ids []int64) error

	LinkCandidates(itemID int64, year int) ([]models.LinkablePair, error)
	Link(a, b int64) error
	Unlink(parentID, childID int64) error

	StatementDetail(accountID int64) (*models.StatementData, error)
	SaveStatementDetail(accountID int64, data *models.StatementData) error
	InvalidateAccountCache(accountID int64)
}
