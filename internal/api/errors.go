package api

import (
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"notification-workers/internal/common/errors"
)

// statusFor maps the error taxonomy onto HTTP statuses. Unrecognized errors
// are internal.
func statusFor(code errors.Code) int {
	switch code {
	case errors.CodeTemplateNotFound, errors.CodeNotificationNotFound:
		return http.StatusNotFound
	case errors.CodeMissingVariables, errors.CodeInvalidContent, errors.CodeInvalidSlug,
		errors.CodeInvalidRecurrence, errors.CodeUnrecognizedChannel,
		errors.CodeInvalidContacts, errors.CodeInvalidSearchParams,
		errors.CodeBaseTemplateMissing:
		return http.StatusBadRequest
	case errors.CodeTemplateInUse, errors.CodeBaseTemplateExists, errors.CodeBaseTemplateDelete:
		return http.StatusConflict
	case errors.CodeConnectionFailure, errors.CodeEnrichmentFailed:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (h *Handler) fail(c *gin.Context, err error) {
	code := errors.CodeOf(err)
	status := statusFor(code)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(status, gin.H{"error": gin.H{"code": "INTERNAL", "message": "internal error"}})
		return
	}

	body := gin.H{"code": code, "message": err.Error()}
	var e *errors.Error
	if stderrors.As(err, &e) && e.Details != "" {
		body["details"] = e.Details
	}
	c.JSON(status, gin.H{"error": body})
}
