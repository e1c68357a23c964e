package app

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"ptedit/api/internal/auth"
	"ptedit/api/internal/editable"
	"ptedit/api/internal/gitrepo"
	"ptedit/api/internal/patch"
	"ptedit/api/internal/schema"
	"ptedit/api/internal/session"
	"ptedit/api/internal/store"
	"ptedit/api/internal/translate"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

var (
	errForbidden       = domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	errSessionNotFound = domainError(http.StatusNotFound, "SESSION_NOT_FOUND", "Session not found", nil)
)

func mapError(err error) (status int, code, message string, details any) {
	var (
		domainErr *DomainError
		invalid   *schema.InvalidValueError
	)
	switch {
	case errors.As(err, &domainErr):
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	case errors.Is(err, sql.ErrNoRows), errors.Is(err, gitrepo.ErrNoRepo):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	case errors.Is(err, session.ErrClosed):
		return http.StatusGone, "SESSION_CLOSED", "Session closed", nil
	case errors.Is(err, store.ErrRevisionConflict):
		return http.StatusConflict, "REVISION_CONFLICT", "Document changed concurrently", nil
	case errors.As(err, &invalid):
		return http.StatusUnprocessableEntity, "SCHEMA_MISMATCH", err.Error(), map[string]any{"resolution": invalid.Resolution}
	case errors.Is(err, schema.ErrSchemaMismatch):
		return http.StatusUnprocessableEntity, "SCHEMA_MISMATCH", err.Error(), nil
	case errors.Is(err, editable.ErrInvalidOperation):
		return http.StatusUnprocessableEntity, "INVALID_OPERATION", err.Error(), nil
	case errors.Is(err, translate.ErrInvalidPatch), errors.Is(err, patch.ErrInvalidPatch):
		return http.StatusUnprocessableEntity, "INVALID_PATCH", err.Error(), nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
