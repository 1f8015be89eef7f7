package handlers

import (
	"errors"
	"net/http"

	"github.com/0xArchitect/ludo-backend/internal/types"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type errorMapping struct {
	err    error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{types.ErrUnauthorized, http.StatusUnauthorized, "UNAUTHORIZED"},
	{types.ErrUnauthenticated, http.StatusUnauthorized, "INVALID_OTP"},
	{types.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
	{types.ErrInsufficientFunds, http.StatusUnprocessableEntity, "INSUFFICIENT_FUNDS"},
	{types.ErrValidation, http.StatusBadRequest, "VALIDATION_ERROR"},
	{types.ErrExternalUnavailable, http.StatusServiceUnavailable, "EXTERNAL_UNAVAILABLE"},
}

// statusFor maps the error taxonomy to an HTTP status and response code
func statusFor(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "INTERNAL_ERROR"
}

// respondWithError unified error response function.
// Only request errors echo their message; server side failures stay generic.
func respondWithError(c *gin.Context, logger logrus.FieldLogger, err error) {
	status, code := statusFor(err)

	message := err.Error()
	if !types.IsRequestError(err) {
		message = http.StatusText(status)
		logger.WithError(err).WithFields(logrus.Fields{
			"path":   c.Request.URL.Path,
			"status": status,
		}).Error("❌ Request failed")
	}

	c.JSON(status, gin.H{
		"success": false,
		"error":   http.StatusText(status),
		"message": message,
		"code":    code,
	})
}
