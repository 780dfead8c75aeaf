package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/dustin/go-humanize"

	"github.com/bherila/k1flow/src/config"
	"github.com/bherila/k1flow/src/extraction"
	"github.com/bherila/k1flow/src/importer"
	"github.com/bherila/k1flow/src/logger"
	"github.com/bherila/k1flow/src/security/validation"
	"github.com/bherila/k1flow/src/services"
	"github.com/bherila/k1flow/src/utils"
)

type ImportHandler struct {
	importService services.ImportService
	extractor     *extraction.Extractor
}

// NewImportHandler wires the import pipeline endpoints. extractor may be
// nil when PDF extraction is not configured.
func NewImportHandler(service services.ImportService, extractor *extraction.Extractor) *ImportHandler {
	return &ImportHandler{
		importService: service,
		extractor:     extractor,
	}
}

// HandlePreview accepts a statement file, sniffs its format and returns
// what an import would do without writing anything.
func (h *ImportHandler) HandlePreview(w http.ResponseWriter, r *http.Request) {
	ctxLogger := logger.FromContext(r.Context())
	accountID, ok := accountIDFromURL(w, r)
	if !ok {
		return
	}

	filename, data, ok := h.readUpload(w, r, false)
	if !ok {
		return
	}

	preview, err := h.importService.PreviewImport(r.Context(), accountID, filename, data)
	if err != nil {
		if errors.Is(err, services.ErrParsingFailed) {
			utils.SendJSONError(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		ctxLogger.Error("Import preview failed", "accountID", accountID, "filename", filename, "error", err)
		utils.SendJSONError(w, "Failed to preview import", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(preview)
}

// HandleConfirm writes the previewed rows in chunks. A chunk failure
// returns 500 with the resume point in the status body.
func (h *ImportHandler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	h.runBatch(w, r, h.importService.ConfirmImport)
}

// HandleRetry resumes a failed import from the chunk that failed.
func (h *ImportHandler) HandleRetry(w http.ResponseWriter, r *http.Request) {
	h.runBatch(w, r, h.importService.RetryImport)
}

func (h *ImportHandler) runBatch(w http.ResponseWriter, r *http.Request,
	run func(ctx context.Context, accountID int64) (*services.ImportStatus, error)) {
	ctxLogger := logger.FromContext(r.Context())
	accountID, ok := accountIDFromURL(w, r)
	if !ok {
		return
	}

	status, err := run(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, services.ErrNoActiveImport) {
			utils.SendJSONError(w, err.Error(), http.StatusConflict)
			return
		}
		if errors.Is(err, importer.ErrNotPreviewing) || errors.Is(err, importer.ErrNotFailed) {
			utils.SendJSONError(w, err.Error(), http.StatusConflict)
			return
		}
		var chunkErr *importer.ChunkWriteError
		if errors.As(err, &chunkErr) && status != nil {
			ctxLogger.Error("Import stopped on chunk failure", "accountID", accountID, "chunk", chunkErr.Chunk, "error", err)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"error":  chunkErr.Error(),
				"status": status,
			})
			return
		}
		ctxLogger.Error("Import failed", "accountID", accountID, "error", err)
		utils.SendJSONError(w, "Import failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

// HandleCancel abandons a failed import. Chunks already committed stay.
func (h *ImportHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountIDFromURL(w, r)
	if !ok {
		return
	}
	status, err := h.importService.CancelImport(accountID)
	if err != nil {
		if errors.Is(err, services.ErrNoActiveImport) || errors.Is(err, importer.ErrNotFailed) {
			utils.SendJSONError(w, err.Error(), http.StatusConflict)
			return
		}
		utils.SendJSONError(w, "Failed to cancel import", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

func (h *ImportHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountIDFromURL(w, r)
	if !ok {
		return
	}
	status, err := h.importService.Status(accountID)
	if err != nil {
		if errors.Is(err, services.ErrNoActiveImport) {
			utils.SendJSONError(w, err.Error(), http.StatusNotFound)
			return
		}
		utils.SendJSONError(w, "Failed to get import status", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

// HandleExtractPDF sends a PDF statement through the extraction model and
// previews the result like any other import.
func (h *ImportHandler) HandleExtractPDF(w http.ResponseWriter, r *http.Request) {
	ctxLogger := logger.FromContext(r.Context())
	accountID, ok := accountIDFromURL(w, r)
	if !ok {
		return
	}
	if h.extractor == nil {
		utils.SendJSONError(w, "PDF extraction is not configured", http.StatusServiceUnavailable)
		return
	}

	filename, data, ok := h.readUpload(w, r, true)
	if !ok {
		return
	}

	envelope, err := h.extractor.ExtractPDF(r.Context(), data)
	if err != nil {
		ctxLogger.Error("PDF extraction failed", "accountID", accountID, "filename", filename, "error", err)
		utils.SendJSONError(w, "Failed to extract transactions from PDF", http.StatusBadGateway)
		return
	}

	preview, err := h.importService.PreviewImport(r.Context(), accountID, filename+".json", envelope)
	if err != nil {
		ctxLogger.Error("Preview of extracted transactions failed", "accountID", accountID, "error", err)
		utils.SendJSONError(w, "Failed to preview extracted transactions", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(preview)
}

// readUpload pulls the "file" part out of a multipart request and applies
// the size and content-type checks. pdfOnly restricts the upload to PDF.
func (h *ImportHandler) readUpload(w http.ResponseWriter, r *http.Request, pdfOnly bool) (string, []byte, bool) {
	ctxLogger := logger.FromContext(r.Context())

	if err := r.ParseMultipartForm(config.Cfg.MaxUploadSizeBytes); err != nil {
		ctxLogger.Warn("Failed to parse multipart form or request too large", "error", err, "limit", config.Cfg.MaxUploadSizeBytes)
		utils.SendJSONError(w, fmt.Sprintf("Failed to read upload or file too large (max %s)",
			humanize.Bytes(uint64(config.Cfg.MaxUploadSizeBytes))), http.StatusBadRequest)
		return "", nil, false
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		ctxLogger.Warn("Failed to retrieve file from request", "error", err)
		utils.SendJSONError(w, "Failed to retrieve file from request. Ensure 'file' field is used.", http.StatusBadRequest)
		return "", nil, false
	}
	defer file.Close()

	if fileHeader.Size > config.Cfg.MaxUploadSizeBytes {
		ctxLogger.Warn("Uploaded file too large", "fileSize", fileHeader.Size, "limit", config.Cfg.MaxUploadSizeBytes)
		utils.SendJSONError(w, fmt.Sprintf("File too large, max %s",
			humanize.Bytes(uint64(config.Cfg.MaxUploadSizeBytes))), http.StatusBadRequest)
		return "", nil, false
	}

	if clientContentType := fileHeader.Header.Get("Content-Type"); clientContentType != "" {
		if err := validation.ValidateClientContentType(clientContentType); err != nil {
			utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
			return "", nil, false
		}
	}

	detectedContentType, err := validation.ValidateFileContentByMagicBytes(file)
	if err != nil {
		ctxLogger.Warn("File content validation failed", "filename", fileHeader.Filename, "error", err)
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return "", nil, false
	}
	if pdfOnly && detectedContentType != "application/pdf" {
		utils.SendJSONError(w, "A PDF file is required for extraction", http.StatusBadRequest)
		return "", nil, false
	}

	data, err := io.ReadAll(io.LimitReader(file, config.Cfg.MaxUploadSizeBytes+1))
	if err != nil {
		ctxLogger.Error("Failed to read uploaded file", "filename", fileHeader.Filename, "error", err)
		utils.SendJSONError(w, "Failed to read uploaded file", http.StatusInternalServerError)
		return "", nil, false
	}
	return fileHeader.Filename, data, true
}
