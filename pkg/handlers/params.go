package handlers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maxColumnNameLen bounds source column names accepted in paths.
const maxColumnNameLen = 256

// ParseSessionID reads the {id} path value as an import session UUID. On
// failure it writes a 400 and returns false.
func ParseSessionID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeBadPath(w, "invalid_session_id", "Invalid import session ID format", logger)
		return uuid.Nil, false
	}
	return id, true
}

// ParseColumnName reads the {column} path value as a source column name.
// Surrounding whitespace is dropped; blank or oversized names get a 400.
func ParseColumnName(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (string, bool) {
	column := strings.TrimSpace(r.PathValue("column"))
	if column == "" || len(column) > maxColumnNameLen {
		writeBadPath(w, "invalid_column", "Source column name is required", logger)
		return "", false
	}
	return column, true
}

func writeBadPath(w http.ResponseWriter, code, message string, logger *zap.Logger) {
	if err := ErrorResponse(w, http.StatusBadRequest, code, message); err != nil {
		logger.Error("Failed to write error response", zap.Error(err))
	}
}
