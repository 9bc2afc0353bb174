package httpserver

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"templatestore/internal/domain"
)

const msgPaymentUnknown = "payment status unknown, try again later"

// statusFor maps a service error to an HTTP status and a client-safe message.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrAlreadyApplied):
		return http.StatusConflict, err.Error()
	case errors.Is(err, domain.ErrAlreadyExists):
		return http.StatusConflict, "already exists"
	case errors.Is(err, domain.ErrLimitExceeded):
		return http.StatusForbidden, domain.ErrLimitExceeded.Error()
	case errors.Is(err, domain.ErrExpired):
		return http.StatusNotFound, domain.ErrExpired.Error()
	case errors.Is(err, domain.ErrReferenceNotFound):
		return http.StatusNotFound, "unknown payment reference"
	case errors.Is(err, domain.ErrInvalidCode):
		return http.StatusNotFound, "invalid or inactive code"
	case errors.Is(err, domain.ErrFileMissing):
		return http.StatusNotFound, "file not available"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, domain.ErrExternalService):
		return http.StatusServiceUnavailable, "upstream service unavailable, try again later"
	case errors.Is(err, domain.ErrConsistency):
		return http.StatusInternalServerError, "order needs attention, contact support"
	}
	return http.StatusInternalServerError, "internal error"
}

func writeJSONError(c *gin.Context, err error) {
	status, msg := statusFor(err)
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

func writeTextError(c *gin.Context, err error) {
	status, msg := statusFor(err)
	c.String(status, msg)
	c.Abort()
}
