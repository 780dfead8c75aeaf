package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/bherila/k1flow/src/linker"
	"github.com/bherila/k1flow/src/logger"
	"github.com/bherila/k1flow/src/model"
	"github.com/bherila/k1flow/src/models"
	"github.com/bherila/k1flow/src/normalizer"
	"github.com/bherila/k1flow/src/security/validation"
	"github.com/bherila/k1flow/src/services"
	"github.com/bherila/k1flow/src/utils"
)

type LineItemHandler struct {
	importService services.ImportService
}

func NewLineItemHandler(service services.ImportService) *LineItemHandler {
	return &LineItemHandler{importService: service}
}

// HandleListItems returns an account's line items, optionally filtered to
// one calendar year via ?year=.
func (h *LineItemHandler) HandleListItems(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountIDFromURL(w, r)
	if !ok {
		return
	}
	year, ok := yearFromQuery(w, r)
	if !ok {
		return
	}

	items, err := h.importService.ListItems(accountID, year)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to list line items", "accountID", accountID, "error", err)
		utils.SendJSONError(w, "Failed to list line items", http.StatusInternalServerError)
		return
	}
	if items == nil {
		items = []models.LineItem{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(items)
}

type createItemRequest struct {
	Date        string   `json:"date"`
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Symbol      string   `json:"symbol"`
	Quantity    float64  `json:"quantity"`
	Price       float64  `json:"price"`
	Commission  float64  `json:"commission"`
	Fee         float64  `json:"fee"`
	Amount      float64  `json:"amount"`
	Memo        string   `json:"memo"`
	Tags        []string `json:"tags"`
}

// cleanUserText strips markup and neutralizes spreadsheet formula triggers
// in user-supplied text before it is stored.
func cleanUserText(s string) string {
	return validation.SanitizeForFormulaInjection(validation.SanitizeText(s))
}

// HandleCreateItem inserts one manually entered line item.
func (h *LineItemHandler) HandleCreateItem(w http.ResponseWriter, r *http.Request) {
	ctxLogger := logger.FromContext(r.Context())
	accountID, ok := accountIDFromURL(w, r)
	if !ok {
		return
	}
	var req createItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	date, err := normalizer.ParseDate(req.Date)
	if err != nil {
		utils.SendJSONError(w, "Invalid or missing date", http.StatusBadRequest)
		return
	}
	if err := validation.ValidateStringMaxLength(req.Description, validation.MaxDescriptionLength, "description"); err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	for _, tag := range req.Tags {
		if err := validation.ValidateTag(tag); err != nil {
			utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	item := models.LineItem{
		Date:        date,
		Type:        validation.SanitizeText(req.Type),
		Description: cleanUserText(req.Description),
		Symbol:      strings.ToUpper(strings.TrimSpace(req.Symbol)),
		Quantity:    req.Quantity,
		Price:       req.Price,
		Commission:  req.Commission,
		Fee:         req.Fee,
		Amount:      req.Amount,
		Memo:        cleanUserText(req.Memo),
		Tags:        req.Tags,
	}
	created, err := h.importService.CreateItem(accountID, item)
	if err != nil {
		if errors.Is(err, model.ErrAccountNotFound) {
			utils.SendJSONError(w, "Account not found", http.StatusNotFound)
			return
		}
		ctxLogger.Error("Failed to create line item", "accountID", accountID, "error", err)
		utils.SendJSONError(w, "Failed to create line item", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(created)
}

type updateFieldRequest struct {
	Field string      `json:"field"`
	Value interface{} `json:"value"`
}

// HandleUpdateItemField edits one whitelisted field of one line item.
func (h *LineItemHandler) HandleUpdateItemField(w http.ResponseWriter, r *http.Request) {
	ctxLogger := logger.FromContext(r.Context())
	accountID, ok := accountIDFromURL(w, r)
	if !ok {
		return
	}
	itemID, ok := itemIDFromURL(w, r)
	if !ok {
		return
	}

	var req updateFieldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Field == "" {
		utils.SendJSONError(w, "Field name is required", http.StatusBadRequest)
		return
	}
	if s, isString := req.Value.(string); isString {
		if err := validation.ValidateStringMaxLength(s, validation.MaxDescriptionLength, req.Field); err != nil {
			utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Field == "date" {
			req.Value = s
		} else {
			req.Value = cleanUserText(s)
		}
	}

	if err := h.importService.UpdateItemField(accountID, itemID, req.Field, req.Value); err != nil {
		if errors.Is(err, model.ErrLineItemNotFound) {
			utils.SendJSONError(w, "Line item not found", http.StatusNotFound)
			return
		}
		ctxLogger.Warn("Failed to update line item field", "itemID", itemID, "field", req.Field, "error", err)
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *LineItemHandler) HandleDeleteItem(w http.ResponseWriter, r *http.Request) {
	ctxLogger := logger.FromContext(r.Context())
	accountID, ok := accountIDFromURL(w, r)
	if !ok {
		return
	}
	itemID, ok := itemIDFromURL(w, r)
	if !ok {
		return
	}
	if err := h.importService.DeleteItem(accountID, itemID); err != nil {
		if errors.Is(err, model.ErrLineItemNotFound) {
			utils.SendJSONError(w, "Line item not found", http.StatusNotFound)
			return
		}
		ctxLogger.Error("Failed to delete line item", "itemID", itemID, "error", err)
		utils.SendJSONError(w, "Failed to delete line item", http.StatusInternalServerError)
		return
	}
	ctxLogger.Info("Line item deleted", "accountID", accountID, "itemID", itemID)
	w.WriteHeader(http.StatusNoContent)
}

// HandleGetDuplicates returns duplicate groups among the account's stored
// items, excluding any set already confirmed distinct.
func (h *LineItemHandler) HandleGetDuplicates(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountIDFromURL(w, r)
	if !ok {
		return
	}
	year, ok := yearFromQuery(w, r)
	if !ok {
		return
	}
	groups, err := h.importService.DuplicateGroups(accountID, year)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to detect duplicates", "accountID", accountID, "error", err)
		utils.SendJSONError(w, "Failed to detect duplicates", http.StatusInternalServerError)
		return
	}
	if groups == nil {
		groups = []models.DuplicateGroup{}
	}
	// The report is cached server-side; an ETag lets the review screen poll
	// cheaply.
	if etag, err := utils.GenerateETag(groups); err == nil {
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", etag)
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(groups)
}

type resolveDuplicatesRequest struct {
	DeleteIDs []int64 `json:"delete_ids"`
}

// HandleResolveDuplicates deletes the confirmed extra copies of a
// duplicate group.
func (h *LineItemHandler) HandleResolveDuplicates(w http.ResponseWriter, r *http.Request) {
	ctxLogger := logger.FromContext(r.Context())
	accountID, ok := accountIDFromURL(w, r)
	if !ok {
		return
	}
	var req resolveDuplicatesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.DeleteIDs) == 0 {
		utils.SendJSONError(w, "delete_ids is required", http.StatusBadRequest)
		return
	}
	if err := h.importService.ResolveDuplicates(accountID, req.DeleteIDs); err != nil {
		if errors.Is(err, model.ErrLineItemNotFound) {
			utils.SendJSONError(w, "One or more line items were not found in this account", http.StatusNotFound)
			return
		}
		ctxLogger.Error("Failed to resolve duplicates", "accountID", accountID, "error", err)
		utils.SendJSONError(w, "Failed to resolve duplicates", http.StatusInternalServerError)
		return
	}
	ctxLogger.Info("Duplicates resolved", "accountID", accountID, "deleted", len(req.DeleteIDs))
	w.WriteHeader(http.StatusNoContent)
}

type notDuplicateRequest struct {
	IDs []int64 `json:"ids"`
}

// HandleMarkNotDuplicate records a set of items as confirmed distinct so
// the duplicate review stops flagging them together.
func (h *LineItemHandler) HandleMarkNotDuplicate(w http.ResponseWriter, r *http.Request) {
	var req notDuplicateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.IDs) < 2 {
		utils.SendJSONError(w, "At least two item IDs are required", http.StatusBadRequest)
		return
	}
	if err := h.importService.MarkNotDuplicate(req.IDs); err != nil {
		if errors.Is(err, model.ErrLineItemNotFound) {
			utils.SendJSONError(w, "One or more line items were not found", http.StatusNotFound)
			return
		}
		logger.FromContext(r.Context()).Error("Failed to mark items not duplicate", "error", err)
		utils.SendJSONError(w, "Failed to mark items as not duplicate", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleLinkCandidates proposes transfer counterparts for one item from
// every other account.
func (h *LineItemHandler) HandleLinkCandidates(w http.ResponseWriter, r *http.Request) {
	itemID, ok := itemIDFromURL(w, r)
	if !ok {
		return
	}
	year, ok := yearFromQuery(w, r)
	if !ok {
		return
	}
	pairs, err := h.importService.LinkCandidates(itemID, year)
	if err != nil {
		if errors.Is(err, model.ErrLineItemNotFound) {
			utils.SendJSONError(w, "Line item not found", http.StatusNotFound)
			return
		}
		logger.FromContext(r.Context()).Error("Failed to find link candidates", "itemID", itemID, "error", err)
		utils.SendJSONError(w, "Failed to find link candidates", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(pairs)
}

type linkRequest struct {
	ItemID  int64 `json:"item_id"`
	OtherID int64 `json:"other_id"`
}

// HandleLink joins two items as legs of one transfer. The outflow leg
// becomes the parent regardless of which side was submitted first.
func (h *LineItemHandler) HandleLink(w http.ResponseWriter, r *http.Request) {
	ctxLogger := logger.FromContext(r.Context())
	var req linkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.ItemID == 0 || req.OtherID == 0 {
		utils.SendJSONError(w, "item_id and other_id are required", http.StatusBadRequest)
		return
	}
	if err := h.importService.Link(req.ItemID, req.OtherID); err != nil {
		var conflict *linker.LinkConflict
		if errors.As(err, &conflict) {
			utils.SendJSONError(w, conflict.Error(), http.StatusConflict)
			return
		}
		if errors.Is(err, model.ErrLineItemNotFound) {
			utils.SendJSONError(w, "Line item not found", http.StatusNotFound)
			return
		}
		ctxLogger.Error("Failed to link items", "itemID", req.ItemID, "otherID", req.OtherID, "error", err)
		utils.SendJSONError(w, "Failed to link items", http.StatusInternalServerError)
		return
	}
	ctxLogger.Info("Items linked", "itemID", req.ItemID, "otherID", req.OtherID)
	w.WriteHeader(http.StatusNoContent)
}

type unlinkRequest struct {
	ParentID int64 `json:"parent_id"`
	ChildID  int64 `json:"child_id"`
}

func (h *LineItemHandler) HandleUnlink(w http.ResponseWriter, r *http.Request) {
	var req unlinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.importService.Unlink(req.ParentID, req.ChildID); err != nil {
		if errors.Is(err, model.ErrLineItemNotFound) {
			utils.SendJSONError(w, "Link not found", http.StatusNotFound)
			return
		}
		logger.FromContext(r.Context()).Error("Failed to unlink items", "parentID", req.ParentID, "childID", req.ChildID, "error", err)
		utils.SendJSONError(w, "Failed to unlink items", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleGetStatement returns the most recent stored statement detail for
// the account.
func (h *LineItemHandler) HandleGetStatement(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountIDFromURL(w, r)
	if !ok {
		return
	}
	data, err := h.importService.StatementDetail(accountID)
	if err != nil {
		if errors.Is(err, model.ErrStatementNotFound) {
			utils.SendJSONError(w, "No statement stored for this account", http.StatusNotFound)
			return
		}
		logger.FromContext(r.Context()).Error("Failed to get statement detail", "accountID", accountID, "error", err)
		utils.SendJSONError(w, "Failed to get statement detail", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

// HandleSaveStatement stores statement metadata supplied directly, for
// statements that arrive without a transaction file.
func (h *LineItemHandler) HandleSaveStatement(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountIDFromURL(w, r)
	if !ok {
		return
	}
	var data models.StatementData
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.importService.SaveStatementDetail(accountID, &data); err != nil {
		if errors.Is(err, model.ErrAccountNotFound) {
			utils.SendJSONError(w, "Account not found", http.StatusNotFound)
			return
		}
		logger.FromContext(r.Context()).Error("Failed to save statement detail", "accountID", accountID, "error", err)
		utils.SendJSONError(w, "Failed to save statement detail", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func yearFromQuery(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("year")
	if raw == "" {
		return 0, true
	}
	year, err := strconv.Atoi(raw)
	if err != nil || year < 1900 || year > 2200 {
		utils.SendJSONError(w, "Invalid year filter", http.StatusBadRequest)
		return 0, false
	}
	return year, true
}

func itemIDFromURL(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "itemID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		utils.SendJSONError(w, "Invalid line item ID", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}
