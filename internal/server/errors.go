package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	commissiondomain "github.com/smallbiznis/rewardly/internal/commission/domain"
	pointsdomain "github.com/smallbiznis/rewardly/internal/points/domain"
	rateconfigdomain "github.com/smallbiznis/rewardly/internal/rateconfig/domain"
	migrationdomain "github.com/smallbiznis/rewardly/internal/ratiomigration/domain"
	referraldomain "github.com/smallbiznis/rewardly/internal/referral/domain"
	"gorm.io/gorm"
)

var (
	ErrNotFound     = errors.New("not_found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrRateLimited  = errors.New("rate_limited")
)

// APIError is the wire shape for every non-2xx response.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (e *APIError) Error() string { return e.Code }

func invalidRequestError() error {
	return &APIError{
		Status:  http.StatusBadRequest,
		Code:    "invalid_request",
		Message: "invalid request body",
	}
}

func newValidationError(field, code, message string) error {
	return &APIError{
		Status:  http.StatusBadRequest,
		Code:    code,
		Field:   field,
		Message: message,
	}
}

// AbortWithError maps a domain error to its HTTP status and writes the
// error body. Unknown errors become opaque 500s.
func AbortWithError(c *gin.Context, err error) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		c.AbortWithStatusJSON(apiErr.Status, gin.H{"error": apiErr})
		return
	}

	status := http.StatusInternalServerError
	code := "internal_error"
	message := "internal error"

	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound),
		errors.Is(err, migrationdomain.ErrMigrationNotFound):
		status = http.StatusNotFound
		code = notFoundCode(err)
		message = "resource not found"
	case errors.Is(err, ErrUnauthorized):
		status = http.StatusUnauthorized
		code = "unauthorized"
		message = "unauthorized"
	case errors.Is(err, ErrForbidden):
		status = http.StatusForbidden
		code = "forbidden"
		message = "forbidden"
	case errors.Is(err, ErrRateLimited):
		status = http.StatusTooManyRequests
		code = "rate_limited"
		message = "too many requests"
	case isValidationError(err):
		status = http.StatusBadRequest
		code = err.Error()
		message = "invalid request"
	case isConflictError(err):
		status = http.StatusConflict
		code = err.Error()
		message = "request conflicts with current state"
	case isUnprocessableError(err):
		status = http.StatusUnprocessableEntity
		code = err.Error()
		message = "request cannot be applied"
	}

	c.AbortWithStatusJSON(status, gin.H{"error": &APIError{
		Status:  status,
		Code:    code,
		Message: message,
	}})
}

func notFoundCode(err error) string {
	if errors.Is(err, migrationdomain.ErrMigrationNotFound) {
		return migrationdomain.ErrMigrationNotFound.Error()
	}
	return "not_found"
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, pointsdomain.ErrInvalidCustomer),
		errors.Is(err, pointsdomain.ErrInvalidOrder),
		errors.Is(err, pointsdomain.ErrInvalidRate),
		errors.Is(err, pointsdomain.ErrInvalidPoints),
		errors.Is(err, pointsdomain.ErrInvalidTransactionType),
		errors.Is(err, commissiondomain.ErrInvalidOrder),
		errors.Is(err, commissiondomain.ErrInvalidCoach),
		errors.Is(err, commissiondomain.ErrInvalidCustomer),
		errors.Is(err, referraldomain.ErrInvalidCoach),
		errors.Is(err, referraldomain.ErrInvalidCustomer),
		errors.Is(err, rateconfigdomain.ErrInvalidRate),
		errors.Is(err, rateconfigdomain.ErrUnknownRole),
		errors.Is(err, migrationdomain.ErrInvalidRates):
		return true
	}
	return false
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, pointsdomain.ErrNegativeBalanceViolation),
		errors.Is(err, migrationdomain.ErrMigrationAlreadyRunning),
		errors.Is(err, migrationdomain.ErrMigrationNotResumable),
		errors.Is(err, migrationdomain.ErrRollbackUnavailable):
		return true
	}
	return false
}

func isUnprocessableError(err error) bool {
	switch {
	case errors.Is(err, pointsdomain.ErrInsufficientBalance),
		errors.Is(err, pointsdomain.ErrExceedsCartTotal),
		errors.Is(err, pointsdomain.ErrOrderNotEligible),
		errors.Is(err, rateconfigdomain.ErrIncompleteConfig),
		errors.Is(err, rateconfigdomain.ErrSnapshotUnavailable),
		errors.Is(err, migrationdomain.ErrMigrationBackupFailed),
		errors.Is(err, migrationdomain.ErrMigrationVerificationFailed):
		return true
	}
	return false
}
