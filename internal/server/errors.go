package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	accesscontroldomain "github.com/smallbiznis/merchline/internal/accesscontrol/domain"
	accountdomain "github.com/smallbiznis/merchline/internal/account/domain"
	campaigndomain "github.com/smallbiznis/merchline/internal/campaign/domain"
	catalogdomain "github.com/smallbiznis/merchline/internal/catalog/domain"
	orderdomain "github.com/smallbiznis/merchline/internal/order/domain"
	orderquantitydomain "github.com/smallbiznis/merchline/internal/orderquantity/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field         string `json:"field"`
	Code          string `json:"code"`
	Message       string `json:"message"`
	ArticleNumber string `json:"article_number,omitempty"`
	Bound         *int   `json:"bound,omitempty"`
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
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
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

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	var lineErr *orderquantitydomain.LineError
	if errors.As(err, &lineErr) {
		return mapLineError(lineErr)
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case isForbiddenError(err):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case errors.Is(err, campaigndomain.ErrLimitExceeded),
		errors.Is(err, campaigndomain.ErrQuotaExceeded):
		return http.StatusConflict, errorPayload{
			Type:    "limit_exceeded",
			Message: limitExceededMessage(err),
		}
	case errors.Is(err, ErrConflict),
		errors.Is(err, catalogdomain.ErrAlreadyExists),
		errors.Is(err, accesscontroldomain.ErrAlreadyExists):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "conflict",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, campaigndomain.ErrLedgerBusy):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func mapLineError(lineErr *orderquantitydomain.LineError) (int, errorPayload) {
	detail := ValidationError{
		Field:         "lines",
		Code:          lineErr.Reason.Error(),
		Message:       lineErr.Error(),
		ArticleNumber: lineErr.ArticleNumber,
	}
	if errors.Is(lineErr.Reason, orderquantitydomain.ErrNotFound) {
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: lineErr.Error(),
			Errors:  []ValidationError{detail},
		}
	}
	bound := lineErr.Bound
	detail.Bound = &bound
	return http.StatusBadRequest, errorPayload{
		Type:    "validation_error",
		Message: "validation error",
		Errors:  []ValidationError{detail},
	}
}

func limitExceededMessage(err error) string {
	if errors.Is(err, campaigndomain.ErrQuotaExceeded) {
		return "campaign quota exceeded"
	}
	return "order limit exceeded"
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, orderquantitydomain.ErrEmptyOrder):
		return true
	case isAccountValidationError(err),
		isAccessControlValidationError(err),
		isCatalogValidationError(err),
		isCampaignValidationError(err):
		return true
	default:
		return false
	}
}

func isForbiddenError(err error) bool {
	switch {
	case errors.Is(err, ErrForbidden),
		errors.Is(err, accesscontroldomain.ErrForbidden),
		errors.Is(err, catalogdomain.ErrForbidden),
		errors.Is(err, campaigndomain.ErrForbidden),
		errors.Is(err, orderdomain.ErrForbidden):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, accountdomain.ErrNotFound),
		errors.Is(err, accesscontroldomain.ErrNotFound),
		errors.Is(err, catalogdomain.ErrNotFound),
		errors.Is(err, campaigndomain.ErrNotFound),
		errors.Is(err, orderdomain.ErrNotFound),
		errors.Is(err, orderquantitydomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func isAccountValidationError(err error) bool {
	switch {
	case errors.Is(err, accountdomain.ErrInvalidName),
		errors.Is(err, accountdomain.ErrInvalidEmail),
		errors.Is(err, accountdomain.ErrInvalidRole),
		errors.Is(err, accountdomain.ErrInvalidCompany),
		errors.Is(err, accountdomain.ErrCrossTenant):
		return true
	default:
		return false
	}
}

func isAccessControlValidationError(err error) bool {
	switch {
	case errors.Is(err, accesscontroldomain.ErrInvalidName),
		errors.Is(err, accesscontroldomain.ErrInvalidMember),
		errors.Is(err, accesscontroldomain.ErrCrossTenant):
		return true
	default:
		return false
	}
}

func isCatalogValidationError(err error) bool {
	switch {
	case errors.Is(err, catalogdomain.ErrInvalidName),
		errors.Is(err, catalogdomain.ErrInvalidSKU),
		errors.Is(err, catalogdomain.ErrInvalidPrice),
		errors.Is(err, catalogdomain.ErrInvalidTagType),
		errors.Is(err, catalogdomain.ErrInvalidBand),
		errors.Is(err, catalogdomain.ErrOverlappingBands),
		errors.Is(err, catalogdomain.ErrCrossTenant):
		return true
	default:
		return false
	}
}

func isCampaignValidationError(err error) bool {
	switch {
	case errors.Is(err, campaigndomain.ErrInvalidQuota),
		errors.Is(err, campaigndomain.ErrInvalidRole),
		errors.Is(err, campaigndomain.ErrInvalidName),
		errors.Is(err, campaigndomain.ErrInvalidLimit),
		errors.Is(err, campaigndomain.ErrInvalidThreshold),
		errors.Is(err, campaigndomain.ErrInvalidFrequency),
		errors.Is(err, campaigndomain.ErrNoRecipients):
		return true
	default:
		return false
	}
}

// validationErrorCode returns the innermost sentinel text so wrapped errors keep a stable code.
func validationErrorCode(err error) string {
	if errors.Is(err, ErrInvalidRequest) {
		return "invalid_request"
	}
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_request":
		return "request"
	case "empty_order":
		return "lines"
	case "no_recipients":
		return "recipients"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "empty_order":
		return "order has no lines"
	default:
		return "invalid value"
	}
}

// classifyErrorForLog reduces an error to the type and code used in request logs.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}
