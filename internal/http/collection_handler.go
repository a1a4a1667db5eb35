package http

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"collections/internal/collections"
	"collections/internal/exporter"
	"collections/internal/importer"
)

// maxCSVUploadBytes bounds an import upload including multipart overhead.
const maxCSVUploadBytes int64 = 1 << 20

// CollectionHandler exposes the signed-in user's collections.
type CollectionHandler struct {
	service  *collections.Service
	exporter *exporter.CSVExporter
	importer *importer.CSVImporter
	logger   *slog.Logger
}

// NewCollectionHandler creates a handler.
func NewCollectionHandler(service *collections.Service, logger *slog.Logger) *CollectionHandler {
	return &CollectionHandler{
		service:  service,
		exporter: exporter.NewCSVExporter(),
		importer: importer.NewCSVImporter(service),
		logger:   logger,
	}
}

// List returns the caller's collections, newest first.
func (h *CollectionHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := requestUserID(r)
	list, err := h.service.List(r.Context(), userID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"collections": list})
}

// Create stores a new collection owned by the caller.
func (h *CollectionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var payload collections.CreateCollectionInput
	if err := decodeJSONBody(w, r, &payload); err != nil {
		writeJSONError(w, err)
		return
	}

	created, err := h.service.Create(r.Context(), requestUserID(r), payload)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// Get returns one collection with its items.
func (h *CollectionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	collection, err := h.service.Get(r.Context(), id, requestUserID(r))
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, collection)
}

// Delete removes a collection and its items.
func (h *CollectionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), id, requestUserID(r)); err != nil {
		h.handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddItem appends an image or link to a collection.
func (h *CollectionHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	var payload collections.AddItemInput
	if err := decodeJSONBody(w, r, &payload); err != nil {
		writeJSONError(w, err)
		return
	}

	item, err := h.service.AddItem(r.Context(), id, requestUserID(r), payload)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

// RemoveItem deletes one item from a collection.
func (h *CollectionHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}
	itemID, ok := parseUUIDParam(w, r, "itemID")
	if !ok {
		return
	}

	if err := h.service.RemoveItem(r.Context(), id, itemID, requestUserID(r)); err != nil {
		h.handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ReorderItems applies a new item order and returns the collection.
func (h *CollectionHandler) ReorderItems(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	var payload collections.ReorderInput
	if err := decodeJSONBody(w, r, &payload); err != nil {
		writeJSONError(w, err)
		return
	}

	collection, err := h.service.ReorderItems(r.Context(), id, requestUserID(r), payload)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, collection)
}

// Export downloads a collection as CSV.
func (h *CollectionHandler) Export(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	collection, err := h.service.Get(r.Context(), id, requestUserID(r))
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := h.exporter.Export(&buf, collection); err != nil {
		h.logger.Error("export collection", "collection_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to export collection")
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"collection-%s.csv\"", id))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// Import appends items from an uploaded CSV file to a collection.
func (h *CollectionHandler) Import(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxCSVUploadBytes)
	if err := r.ParseMultipartForm(maxCSVUploadBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("CSV upload is too large (max %d bytes)", maxErr.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, "invalid CSV upload")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "CSV file is required")
		return
	}
	defer func() { _ = file.Close() }()

	summary, err := h.importer.Import(r.Context(), file, id, requestUserID(r))
	if err != nil {
		if errors.Is(err, importer.ErrInvalidCSV) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *CollectionHandler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, collections.ErrNotFound):
		writeError(w, http.StatusNotFound, "collection not found")
	case errors.Is(err, collections.ErrItemNotFound):
		writeError(w, http.StatusNotFound, "item not found")
	case errors.Is(err, collections.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("collection service error", "error", err)
		writeError(w, http.StatusInternalServerError, "unexpected error")
	}
}

// requestUserID returns the signed-in user's id. Routes using it sit behind
// requireAuthenticated.
func requestUserID(r *http.Request) string {
	state, _ := StateFromContext(r.Context())
	return state.UserID()
}
