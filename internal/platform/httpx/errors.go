package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors for transport-level failures.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrConflict     = errors.New("conflict")
	ErrValidation   = errors.New("validation failed")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
)

// Mapper translates package errors into one of the sentinels above. It returns
// nil when it does not recognise the error.
type Mapper func(err error) error

// RespondError maps errors to HTTP responses using RFC7807. Mappers run in order
// before the sentinels are matched; the detail is always the original message.
func RespondError(w http.ResponseWriter, err error, mappers ...Mapper) {
	kind := err
	for _, m := range mappers {
		if mapped := m(err); mapped != nil {
			kind = mapped
			break
		}
	}
	switch {
	case errors.Is(kind, ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(kind, ErrConflict):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(kind, ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(kind, ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(kind, ErrUnauthorized):
		Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
