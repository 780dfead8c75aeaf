package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/bherila/k1flow/src/config"
	"github.com/bherila/k1flow/src/dedup"
	"github.com/bherila/k1flow/src/importer"
	"github.com/bherila/k1flow/src/linker"
	"github.com/bherila/k1flow/src/logger"
	"github.com/bherila/k1flow/src/model"
	"github.com/bherila/k1flow/src/models"
	"github.com/bherila/k1flow/src/parsers"
	"github.com/bherila/k1flow/src/processors"
)

const (
	ckAccountItems         = "items_account_%d"
	ckDuplicateGroups      = "dup_groups_account_%d_year_%d"
	DefaultCacheExpiration = 15 * time.Minute
	CacheCleanupInterval   = 30 * time.Minute
)

// pendingImport holds one account's staged batch between preview and
// confirmation.
type pendingImport struct {
	batch     *importer.Batch
	statement *models.StatementData
}

type importServiceImpl struct {
	db          *sql.DB
	reportCache *cache.Cache
	enricher    *processors.EnrichmentProcessor

	mu          sync.Mutex
	pending     map[int64]*pendingImport
	importLocks map[int64]*sync.Mutex
}

func NewImportService(db *sql.DB, reportCache *cache.Cache) ImportService {
	return &importServiceImpl{
		db:          db,
		reportCache: reportCache,
		enricher:    processors.NewEnrichmentProcessor(),
		pending:     map[int64]*pendingImport{},
		importLocks: map[int64]*sync.Mutex{},
	}
}

// importLock returns the mutex serializing preview/confirm/retry/cancel for
// one account. A preview computed while another request's chunk writes are
// in flight would classify rows against a stale snapshot, so the whole
// operation runs under the account's lock.
func (s *importServiceImpl) importLock(accountID int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lk := s.importLocks[accountID]
	if lk == nil {
		lk = &sync.Mutex{}
		s.importLocks[accountID] = lk
	}
	return lk
}

// PreviewImport sniffs the file format, parses and normalizes the rows,
// detects duplicates against the account's stored items and stages the new
// rows for confirmation. Nothing is written yet.
func (s *importServiceImpl) PreviewImport(ctx context.Context, accountID int64, filename string, data []byte) (*PreviewResult, error) {
	log := logger.FromContext(ctx)
	log.Info("import preview start", "accountID", accountID, "filename", filename, "bytes", len(data))

	lk := s.importLock(accountID)
	lk.Lock()
	defer lk.Unlock()

	if _, err := model.GetAccountByID(s.db, accountID); err != nil {
		return nil, err
	}
	result, err := parsers.Parse(data, filename)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParsingFailed, err)
	}

	enriched := s.enricher.Process(result.LineItems)

	existing, err := s.accountItems(accountID)
	if err != nil {
		return nil, err
	}
	detected := dedup.Detect(enriched, existing)

	preview := &PreviewResult{
		Format:     result.Format,
		NewItems:   detected.NewItems,
		Duplicates: detected.Duplicates,
		RowErrors:  result.RowErrors,
		Statement:  result.Statement,
	}

	batch := importer.NewBatch(accountID, s.writeChunk, config.Cfg.ImportChunkSize)
	batch.Preview(detected.NewItems)

	s.mu.Lock()
	s.pending[accountID] = &pendingImport{batch: batch, statement: result.Statement}
	s.mu.Unlock()

	log.Info("import preview ready", "accountID", accountID, "format", result.Format,
		"new", len(detected.NewItems), "duplicates", len(detected.Duplicates), "rowErrors", len(result.RowErrors))
	return preview, nil
}

// ConfirmImport writes the staged rows in order, one transaction per
// chunk. On a chunk failure the returned status carries the failed chunk
// index and the batch stays resumable.
func (s *importServiceImpl) ConfirmImport(ctx context.Context, accountID int64) (*ImportStatus, error) {
	lk := s.importLock(accountID)
	lk.Lock()
	defer lk.Unlock()

	p := s.pendingFor(accountID)
	if p == nil {
		return nil, ErrNoActiveImport
	}
	err := p.batch.Run(ctx)
	return s.finishRun(ctx, accountID, p, err)
}

// RetryImport resumes a failed batch from its failed chunk.
func (s *importServiceImpl) RetryImport(ctx context.Context, accountID int64) (*ImportStatus, error) {
	lk := s.importLock(accountID)
	lk.Lock()
	defer lk.Unlock()

	p := s.pendingFor(accountID)
	if p == nil {
		return nil, ErrNoActiveImport
	}
	err := p.batch.Retry(ctx)
	return s.finishRun(ctx, accountID, p, err)
}

func (s *importServiceImpl) finishRun(ctx context.Context, accountID int64, p *pendingImport, runErr error) (*ImportStatus, error) {
	// Some chunks may have committed even on failure.
	s.InvalidateAccountCache(accountID)

	if runErr != nil {
		var chunkErr *importer.ChunkWriteError
		if errors.As(runErr, &chunkErr) {
			return s.statusOf(p.batch), runErr
		}
		return nil, runErr
	}

	status := s.statusOf(p.batch)
	if p.statement != nil {
		if _, err := model.InsertStatementDetail(s.db, accountID, p.statement); err != nil {
			logger.FromContext(ctx).Error("storing statement detail failed", "accountID", accountID, "error", err)
			status.StatementError = fmt.Sprintf("statement detail was not stored: %v", err)
		}
	}
	return status, nil
}

// CancelImport abandons a failed batch. Committed chunks stay.
func (s *importServiceImpl) CancelImport(accountID int64) (*ImportStatus, error) {
	lk := s.importLock(accountID)
	lk.Lock()
	defer lk.Unlock()

	p := s.pendingFor(accountID)
	if p == nil {
		return nil, ErrNoActiveImport
	}
	if err := p.batch.Cancel(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	delete(s.pending, accountID)
	s.mu.Unlock()
	return s.statusOf(p.batch), nil
}

func (s *importServiceImpl) Status(accountID int64) (*ImportStatus, error) {
	p := s.pendingFor(accountID)
	if p == nil {
		return nil, ErrNoActiveImport
	}
	return s.statusOf(p.batch), nil
}

func (s *importServiceImpl) pendingFor(accountID int64) *pendingImport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending[accountID]
}

func (s *importServiceImpl) statusOf(b *importer.Batch) *ImportStatus {
	processed, total, failedChunk := b.Progress()
	return &ImportStatus{
		State:       b.State(),
		Processed:   processed,
		Total:       total,
		FailedChunk: failedChunk,
	}
}

func (s *importServiceImpl) writeChunk(_ context.Context, accountID int64, items []models.LineItem) error {
	return model.InsertLineItems(s.db, accountID, items)
}

func (s *importServiceImpl) ListItems(accountID int64, year int) ([]models.LineItem, error) {
	if year == 0 {
		return s.accountItems(accountID)
	}
	return model.ListLineItems(s.db, accountID, year)
}

// CreateItem inserts one manually entered line item. The same enrichment
// that runs on imported rows applies.
func (s *importServiceImpl) CreateItem(accountID int64, item models.LineItem) (*models.LineItem, error) {
	if _, err := model.GetAccountByID(s.db, accountID); err != nil {
		return nil, err
	}
	items := s.enricher.Process([]models.LineItem{item})
	if err := model.InsertLineItems(s.db, accountID, items); err != nil {
		return nil, err
	}
	s.InvalidateAccountCache(accountID)
	return &items[0], nil
}

func (s *importServiceImpl) UpdateItemField(accountID, itemID int64, field string, value interface{}) error {
	item, err := model.GetLineItem(s.db, itemID)
	if err != nil {
		return err
	}
	if item.AccountID != accountID {
		return model.ErrLineItemNotFound
	}
	if err := model.UpdateLineItemField(s.db, itemID, field, value); err != nil {
		return err
	}
	s.InvalidateAccountCache(accountID)
	return nil
}

func (s *importServiceImpl) DeleteItem(accountID, itemID int64) error {
	item, err := model.GetLineItem(s.db, itemID)
	if err != nil {
		return err
	}
	if item.AccountID != accountID {
		return model.ErrLineItemNotFound
	}
	if err := model.DeleteLineItem(s.db, itemID); err != nil {
		return err
	}
	s.InvalidateAccountCache(accountID)
	return nil
}

// DuplicateGroups surfaces groups of stored items that look like the same
// real-world transaction, minus any group the user has confirmed distinct.
// year 0 means all years.
func (s *importServiceImpl) DuplicateGroups(accountID int64, year int) ([]models.DuplicateGroup, error) {
	cacheKey := fmt.Sprintf(ckDuplicateGroups, accountID, year)
	if cached, found := s.reportCache.Get(cacheKey); found {
		return cached.([]models.DuplicateGroup), nil
	}

	items, err := s.ListItems(accountID, year)
	if err != nil {
		return nil, err
	}
	sets, err := model.ListNotDuplicateSets(s.db)
	if err != nil {
		return nil, err
	}
	groups := dedup.DetectGroups(items, sets)
	s.reportCache.Set(cacheKey, groups, DefaultCacheExpiration)
	return groups, nil
}

// ResolveDuplicates deletes the confirmed extra copies of a duplicate
// group in one transaction.
func (s *importServiceImpl) ResolveDuplicates(accountID int64, deleteIDs []int64) error {
	items, err := model.GetLineItems(s.db, deleteIDs)
	if err != nil {
		return err
	}
	if len(items) != len(deleteIDs) {
		return model.ErrLineItemNotFound
	}
	for _, item := range items {
		if item.AccountID != accountID {
			return model.ErrLineItemNotFound
		}
	}
	if err := model.DeleteLineItems(s.db, deleteIDs); err != nil {
		return err
	}
	s.InvalidateAccountCache(accountID)
	return nil
}

func (s *importServiceImpl) MarkNotDuplicate(ids []int64) error {
	items, err := model.GetLineItems(s.db, ids)
	if err != nil {
		return err
	}
	if len(items) != len(ids) {
		return model.ErrLineItemNotFound
	}
	if err := model.MarkNotDuplicate(s.db, ids); err != nil {
		return err
	}
	for _, item := range items {
		s.InvalidateAccountCache(item.AccountID)
	}
	return nil
}

// LinkCandidates proposes opposite legs for a transfer, drawn from every
// other account's items. year 0 means all years.
func (s *importServiceImpl) LinkCandidates(itemID int64, year int) ([]models.LinkablePair, error) {
	item, err := model.GetLineItem(s.db, itemID)
	if err != nil {
		return nil, err
	}
	legs, err := s.linkedLegs(item)
	if err != nil {
		return nil, err
	}
	others, err := model.ListOtherAccountItems(s.db, item.AccountID)
	if err != nil {
		return nil, err
	}
	filtered := others[:0]
	for _, o := range others {
		if year > 0 && o.DateOnly().Year() != year {
			continue
		}
		// An item that already has a parent can never take another link,
		// and a parent whose legs balance out is settled.
		if o.ParentID != nil {
			continue
		}
		if len(o.ChildIDs) > 0 {
			oLegs, err := model.GetLineItems(s.db, o.ChildIDs)
			if err != nil {
				return nil, err
			}
			if linker.Balanced(o, oLegs) {
				continue
			}
		}
		filtered = append(filtered, o)
	}
	return linker.FindCandidates(*item, legs, filtered), nil
}

// Link joins two items as legs of one transfer. The outflow leg becomes
// the parent regardless of argument order.
func (s *importServiceImpl) Link(a, b int64) error {
	itemA, err := model.GetLineItem(s.db, a)
	if err != nil {
		return err
	}
	itemB, err := model.GetLineItem(s.db, b)
	if err != nil {
		return err
	}
	parent, child := linker.Direction(*itemA, *itemB)
	if err := linker.ValidateLink(parent, child); err != nil {
		return err
	}
	if err := model.LinkItems(s.db, parent.ID, child.ID); err != nil {
		return err
	}
	s.InvalidateAccountCache(parent.AccountID)
	s.InvalidateAccountCache(child.AccountID)
	return nil
}

func (s *importServiceImpl) Unlink(parentID, childID int64) error {
	parent, err := model.GetLineItem(s.db, parentID)
	if err != nil {
		return err
	}
	child, err := model.GetLineItem(s.db, childID)
	if err != nil {
		return err
	}
	if err := model.UnlinkItems(s.db, parentID, childID); err != nil {
		return err
	}
	s.InvalidateAccountCache(parent.AccountID)
	s.InvalidateAccountCache(child.AccountID)
	return nil
}

func (s *importServiceImpl) StatementDetail(accountID int64) (*models.StatementData, error) {
	return model.GetStatementDetail(s.db, accountID)
}

// SaveStatementDetail persists statement metadata supplied directly, for
// sources where the statement arrives separately from its transactions.
func (s *importServiceImpl) SaveStatementDetail(accountID int64, data *models.StatementData) error {
	if _, err := model.GetAccountByID(s.db, accountID); err != nil {
		return err
	}
	_, err := model.InsertStatementDetail(s.db, accountID, data)
	return err
}

func (s *importServiceImpl) InvalidateAccountCache(accountID int64) {
	s.reportCache.Delete(fmt.Sprintf(ckAccountItems, accountID))
	// Duplicate-group reports are keyed per year; drop them all.
	prefix := fmt.Sprintf("dup_groups_account_%d_", accountID)
	for key := range s.reportCache.Items() {
		if strings.HasPrefix(key, prefix) {
			s.reportCache.Delete(key)
		}
	}
}

func (s *importServiceImpl) accountItems(accountID int64) ([]models.LineItem, error) {
	cacheKey := fmt.Sprintf(ckAccountItems, accountID)
	if cached, found := s.reportCache.Get(cacheKey); found {
		return cached.([]models.LineItem), nil
	}
	items, err := model.ListLineItems(s.db, accountID, 0)
	if err != nil {
		return nil, err
	}
	s.reportCache.Set(cacheKey, items, DefaultCacheExpiration)
	return items, nil
}

func (s *importServiceImpl) linkedLegs(item *models.LineItem) ([]models.LineItem, error) {
	ids := append([]int64{}, item.ChildIDs...)
	if item.ParentID != nil {
		ids = append(ids, *item.ParentID)
	}
	return model.GetLineItems(s.db, ids)
}
