package handlers

import (
	"log/slog"
	"net/http"

	"github.com/geocoder89/taskhub/internal/apperr"
	"github.com/gin-gonic/gin"
)

type APIError struct {
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	RequestID string      `json:"requestId,omitempty"`
	Details   interface{} `json:"details,omitempty"`
}

func requestIDFrom(ctx *gin.Context) string {
	if id := ctx.GetString("request_id"); id != "" {
		return id
	}

	// fallback header
	return ctx.GetHeader("X-Request-Id")
}

func RespondError(ctx *gin.Context, status int, code, message string, details interface{}) {
	ctx.JSON(status, gin.H{
		"error": APIError{
			Code:      code,
			Message:   message,
			RequestID: requestIDFrom(ctx),
			Details:   details,
		},
	})
}

func RespondBadRequest(ctx *gin.Context, message string, details interface{}) {
	RespondError(ctx, http.StatusBadRequest, "invalid_request", message, details)
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindAlreadyExists:
		return http.StatusConflict
	case apperr.KindInvalidCredentials, apperr.KindUnauthenticated:
		return http.StatusUnauthorized
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// RespondErr renders any error returned by the service layer. Causes of
// infrastructure failures are logged, never sent to the client.
func RespondErr(ctx *gin.Context, err error) {
	e := apperr.As(err)
	status := statusFor(e.Kind)

	if status >= http.StatusInternalServerError {
		slog.Default().ErrorContext(ctx.Request.Context(), "request failed",
			"kind", string(e.Kind),
			"code", e.Code,
			"err", e.Err,
			"request_id", requestIDFrom(ctx),
		)
	}

	var details interface{}
	if len(e.Fields) > 0 {
		details = gin.H{"fields": e.Fields}
	}

	RespondError(ctx, status, e.Code, e.Message, details)
}
