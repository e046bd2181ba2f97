package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/billforge/billforge/internal/document/calc"
	documentdomain "github.com/billforge/billforge/internal/document/domain"
	paymentdomain "github.com/billforge/billforge/internal/payment/domain"
	scheduledomain "github.com/billforge/billforge/internal/schedule/domain"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrInternal       = errors.New("internal_error")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func newValidationError(field, code, message string) ValidationErrors {
	return ValidationErrors{Errors: []ValidationError{{
		Field:   field,
		Code:    code,
		Message: message,
	}}}
}

func mapError(err error) (int, errorPayload) {
	var validation ValidationErrors
	if errors.As(err, &validation) {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation failed",
			Errors:  validation.Errors,
		}
	}

	switch {
	case errors.Is(err, documentdomain.ErrDocumentNotFound),
		errors.Is(err, paymentdomain.ErrPaymentNotFound),
		errors.Is(err, scheduledomain.ErrScheduleNotFound),
		errors.Is(err, gorm.ErrRecordNotFound),
		errors.Is(err, ErrNotFound):
		return http.StatusNotFound, errorPayload{Type: "not_found", Message: err.Error()}

	case errors.Is(err, documentdomain.ErrInvalidOrganization),
		errors.Is(err, paymentdomain.ErrInvalidOrganization),
		errors.Is(err, scheduledomain.ErrInvalidOrganization),
		errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{Type: "unauthorized", Message: err.Error()}

	case errors.Is(err, documentdomain.ErrInvalidTransition):
		return http.StatusConflict, errorPayload{Type: "invalid_transition", Message: err.Error()}

	case errors.Is(err, documentdomain.ErrDuplicateNumber):
		return http.StatusConflict, errorPayload{Type: "duplicate_document_number", Message: err.Error()}

	case errors.Is(err, calc.ErrInvalidInput),
		errors.Is(err, documentdomain.ErrInvalidDocumentID),
		errors.Is(err, documentdomain.ErrNotSendable),
		errors.Is(err, documentdomain.ErrAuditNoteRequired),
		errors.Is(err, paymentdomain.ErrInvalidAmount),
		errors.Is(err, paymentdomain.ErrInvalidRefund),
		errors.Is(err, paymentdomain.ErrInvalidPaymentID),
		errors.Is(err, paymentdomain.ErrRefundExceedsPaid),
		errors.Is(err, scheduledomain.ErrInvalidScheduleID),
		errors.Is(err, scheduledomain.ErrInvalidFrequency),
		errors.Is(err, scheduledomain.ErrInvalidNextRunDate),
		errors.Is(err, scheduledomain.ErrTemplateUnavailable),
		errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, errorPayload{Type: "invalid_request", Message: err.Error()}
	}

	return http.StatusInternalServerError, errorPayload{Type: "internal_error", Message: "internal error"}
}

// classifyErrorForLog keeps request-log labels low cardinality.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	status, payload := mapError(err)
	code := strings.ReplaceAll(strings.ToLower(payload.Type), " ", "_")
	switch {
	case status >= http.StatusInternalServerError:
		return "server_error", code
	case status == http.StatusBadRequest:
		return "validation_error", code
	default:
		return "client_error", code
	}
}
