package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-intake/pkg/models"
	"github.com/ekaya-inc/ekaya-intake/pkg/services"
)

// DefaultMaxUploadBytes caps a single uploaded source file.
const DefaultMaxUploadBytes = 32 << 20

// ============================================================================
// Request Types
// ============================================================================

// AnswerRequest for POST /api/imports/{id}/answers
type AnswerRequest struct {
	Answer string `json:"answer"`
}

// ColumnDispositionRequest for POST /api/imports/{id}/columns/{column}
type ColumnDispositionRequest struct {
	Disposition models.Disposition `json:"disposition"`
}

// ConfirmMappingRequest for POST /api/imports/{id}/mappings
type ConfirmMappingRequest struct {
	SourceField string `json:"source_field"`
	TargetField string `json:"target_field"`
}

// ConfirmRequest for POST /api/imports/{id}/confirm
type ConfirmRequest struct {
	Digest string `json:"digest"`
}

// ============================================================================
// Handler
// ============================================================================

// ImportsHandler exposes the import session lifecycle over HTTP.
type ImportsHandler struct {
	intake   services.IntakeService
	maxBytes int64
	logger   *zap.Logger
}

// NewImportsHandler creates a new imports handler.
func NewImportsHandler(intake services.IntakeService, maxBytes int64, logger *zap.Logger) *ImportsHandler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	return &ImportsHandler{
		intake:   intake,
		maxBytes: maxBytes,
		logger:   logger.Named("imports-handler"),
	}
}

// RegisterRoutes registers the imports handler's routes on the given mux.
func (h *ImportsHandler) RegisterRoutes(mux *http.ServeMux) {
	base := "/api/imports"

	mux.HandleFunc("POST "+base, h.Create)
	mux.HandleFunc("GET "+base+"/{id}", h.Get)
	mux.HandleFunc("POST "+base+"/{id}/answers", h.Answer)
	mux.HandleFunc("POST "+base+"/{id}/columns/{column}", h.ResolveColumn)
	mux.HandleFunc("POST "+base+"/{id}/mappings", h.ConfirmMapping)
	mux.HandleFunc("POST "+base+"/{id}/reanalyze", h.Reanalyze)
	mux.HandleFunc("POST "+base+"/{id}/confirm", h.Confirm)
	mux.HandleFunc("POST "+base+"/{id}/cancel", h.Cancel)
	mux.HandleFunc("POST "+base+"/{id}/retry-commit", h.RetryCommit)
}

// Create handles POST /api/imports (multipart field "file", optional "mime_type").
func (h *ImportsHandler) Create(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "upload_too_large",
				fmt.Sprintf("Upload exceeds %d bytes", h.maxBytes))
			return
		}
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Expected a multipart form with a file field")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "missing_file", "The file field is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.logger.Error("Failed to read upload", zap.Error(err))
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Could not read the uploaded file")
		return
	}

	mimeType := r.FormValue("mime_type")
	if mimeType == "" {
		mimeType = header.Header.Get("Content-Type")
	}

	state, err := h.intake.Create(r.Context(), services.Upload{
		Data:     data,
		Filename: header.Filename,
		MIMEType: mimeType,
	})
	if err != nil {
		h.serviceError(w, "create", uuid.Nil, state, err)
		return
	}

	status := http.StatusCreated
	if state.Coalesced {
		status = http.StatusOK
	}
	h.writeData(w, status, state)
}

// Get handles GET /api/imports/{id}
func (h *ImportsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseSessionID(w, r, h.logger)
	if !ok {
		return
	}
	state, err := h.intake.GetState(r.Context(), id)
	if err != nil {
		h.serviceError(w, "get", id, nil, err)
		return
	}
	h.writeData(w, http.StatusOK, state)
}

// Answer handles POST /api/imports/{id}/answers
func (h *ImportsHandler) Answer(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseSessionID(w, r, h.logger)
	if !ok {
		return
	}
	var req AnswerRequest
	if !h.decode(w, r, &req) {
		return
	}
	state, err := h.intake.SubmitAnswer(r.Context(), id, req.Answer)
	h.respond(w, "answer", id, state, err)
}

// ResolveColumn handles POST /api/imports/{id}/columns/{column}
func (h *ImportsHandler) ResolveColumn(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseSessionID(w, r, h.logger)
	if !ok {
		return
	}
	column, ok := ParseColumnName(w, r, h.logger)
	if !ok {
		return
	}
	var req ColumnDispositionRequest
	if !h.decode(w, r, &req) {
		return
	}
	state, err := h.intake.ResolveUnmappedColumn(r.Context(), id, column, req.Disposition)
	h.respond(w, "resolve_column", id, state, err)
}

// ConfirmMapping handles POST /api/imports/{id}/mappings
func (h *ImportsHandler) ConfirmMapping(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseSessionID(w, r, h.logger)
	if !ok {
		return
	}
	var req ConfirmMappingRequest
	if !h.decode(w, r, &req) {
		return
	}
	state, err := h.intake.ConfirmMapping(r.Context(), id, req.SourceField, req.TargetField)
	h.respond(w, "confirm_mapping", id, state, err)
}

// Reanalyze handles POST /api/imports/{id}/reanalyze
func (h *ImportsHandler) Reanalyze(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseSessionID(w, r, h.logger)
	if !ok {
		return
	}
	state, err := h.intake.Reanalyze(r.Context(), id)
	h.respond(w, "reanalyze", id, state, err)
}

// Confirm handles POST /api/imports/{id}/confirm
func (h *ImportsHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseSessionID(w, r, h.logger)
	if !ok {
		return
	}
	var req ConfirmRequest
	if !h.decode(w, r, &req) {
		return
	}
	state, err := h.intake.Confirm(r.Context(), id, req.Digest)
	h.respond(w, "confirm", id, state, err)
}

// Cancel handles POST /api/imports/{id}/cancel
func (h *ImportsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseSessionID(w, r, h.logger)
	if !ok {
		return
	}
	state, err := h.intake.Cancel(r.Context(), id)
	h.respond(w, "cancel", id, state, err)
}

// RetryCommit handles POST /api/imports/{id}/retry-commit
func (h *ImportsHandler) RetryCommit(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseSessionID(w, r, h.logger)
	if !ok {
		return
	}
	state, err := h.intake.RetryCommit(r.Context(), id)
	h.respond(w, "retry_commit", id, state, err)
}

func (h *ImportsHandler) respond(w http.ResponseWriter, op string, id uuid.UUID, state *models.SessionState, err error) {
	if err != nil {
		h.serviceError(w, op, id, state, err)
		return
	}
	h.writeData(w, http.StatusOK, state)
}

func (h *ImportsHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return false
	}
	return true
}

func (h *ImportsHandler) serviceError(w http.ResponseWriter, op string, id uuid.UUID, state *models.SessionState, err error) {
	fields := []zap.Field{zap.String("op", op), zap.Error(err)}
	if id != uuid.Nil {
		fields = append(fields, zap.String("session_id", id.String()))
	}
	if StatusFor(err) == http.StatusInternalServerError {
		h.logger.Error("Import operation failed", fields...)
	} else {
		h.logger.Info("Import operation rejected", fields...)
	}

	var data any
	if state != nil {
		data = state
	}
	if err := WriteServiceError(w, err, data); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}

func (h *ImportsHandler) writeData(w http.ResponseWriter, status int, state *models.SessionState) {
	if err := WriteJSON(w, status, ApiResponse{Success: true, Data: state}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (h *ImportsHandler) writeError(w http.ResponseWriter, status int, code, message string) {
	if err := ErrorResponse(w, status, code, message); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}
