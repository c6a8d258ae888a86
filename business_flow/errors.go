// Package businessflow contains the use cases of the attribution service: recording and resolving
// tracked links, correlation runs, reports and bot authentication
package businessflow

import (
	"errors"
	"fmt"
)

// Business flow error constants
var (
	// Bot-related errors
	ErrBotNotFound       = errors.New("bot not found")
	ErrBotInactive       = errors.New("bot is inactive")
	ErrIncorrectPassword = errors.New("incorrect password")
	ErrInvalidRefresh    = errors.New("invalid refresh token")

	// Click-related errors
	ErrClickNotFound          = errors.New("click not found")
	ErrInvalidDestinationURL  = errors.New("destination url must be an absolute http(s) url")
	ErrUserIDRequired         = errors.New("user id is required")
	ErrClickIDRequired        = errors.New("click id is required")
	ErrClickStoreNotAvailable = errors.New("click store not available")

	// Correlation-related errors
	ErrInvalidSellerID          = errors.New("seller id is required")
	ErrInvalidLookback          = errors.New("lookback hours must be positive")
	ErrInvalidOrderLimit        = errors.New("order limit must be positive")
	ErrOrderLimitTooLarge       = errors.New("order limit exceeds the configured maximum")
	ErrCorrelationRunInProgress = errors.New("a correlation run is already in progress for this seller")
	ErrCacheNotAvailable        = errors.New("cache not available")

	// Report-related errors
	ErrStartDateAfterEndDate = errors.New("start date must be before end date")
	ErrReportRangeTooLarge   = errors.New("report range is too large")
)

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func NewBusinessErrorf(code, message string, err error, args ...any) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: fmt.Sprintf(message, args...),
		Err:     err,
	}
}

func IsBotNotFound(err error) bool {
	return errors.Is(err, ErrBotNotFound)
}

func IsBotInactive(err error) bool {
	return errors.Is(err, ErrBotInactive)
}

func IsIncorrectPassword(err error) bool {
	return errors.Is(err, ErrIncorrectPassword)
}

func IsInvalidRefresh(err error) bool {
	return errors.Is(err, ErrInvalidRefresh)
}

func IsClickNotFound(err error) bool {
	return errors.Is(err, ErrClickNotFound)
}

func IsInvalidDestinationURL(err error) bool {
	return errors.Is(err, ErrInvalidDestinationURL)
}

func IsUserIDRequired(err error) bool {
	return errors.Is(err, ErrUserIDRequired)
}

func IsClickIDRequired(err error) bool {
	return errors.Is(err, ErrClickIDRequired)
}

func IsInvalidSellerID(err error) bool {
	return errors.Is(err, ErrInvalidSellerID)
}

func IsInvalidLookback(err error) bool {
	return errors.Is(err, ErrInvalidLookback)
}

func IsInvalidOrderLimit(err error) bool {
	return errors.Is(err, ErrInvalidOrderLimit)
}

func IsOrderLimitTooLarge(err error) bool {
	return errors.Is(err, ErrOrderLimitTooLarge)
}

func IsCorrelationRunInProgress(err error) bool {
	return errors.Is(err, ErrCorrelationRunInProgress)
}

func IsStartDateAfterEndDate(err error) bool {
	return errors.Is(err, ErrStartDateAfterEndDate)
}

func IsReportRangeTooLarge(err error) bool {
	return errors.Is(err, ErrReportRangeTooLarge)
}

func IsClickStoreNotAvailable(err error) bool {
	return errors.Is(err, ErrClickStoreNotAvailable)
}

// IsValidationError reports whether err is a business error raised for malformed input
func IsValidationError(err error) bool {
	var be *BusinessError
	return errors.As(err, &be) && be.Code == "VALIDATION_ERROR"
}
