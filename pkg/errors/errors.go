package errors

import (
	"errors"
	"net/http"
)

var (
	ErrUnauthorized            = errors.New("unauthorized")
	ErrInvalidToken            = errors.New("invalid token")
	ErrTokenExpired            = errors.New("token expired")
	ErrInvalidInput            = errors.New("invalid input")
	ErrNotAMember              = errors.New("not a member of this group")
	ErrInsufficientPermissions = errors.New("insufficient permissions")
	ErrGroupNotFound           = errors.New("group not found")
	ErrMessageNotFound         = errors.New("message not found")
	ErrReplyTargetNotFound     = errors.New("reply target not found")
	ErrRateLimited             = errors.New("rate limit exceeded")
	ErrStorageExhausted        = errors.New("storage limit reached, the operation could not be completed")
	ErrStorageUnavailable      = errors.New("storage unavailable")
)

type APIError struct {
	Message string `json:"error"`
	Code    int    `json:"code"`
}

func (e *APIError) Error() string {
	return e.Message
}

func NewAPIError(message string, code int) *APIError {
	return &APIError{
		Message: message,
		Code:    code,
	}
}

func HTTPStatusFromError(err error) int {
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr.Code
	case errors.Is(err, ErrMessageNotFound), errors.Is(err, ErrReplyTargetNotFound), errors.Is(err, ErrGroupNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrInvalidToken), errors.Is(err, ErrTokenExpired):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNotAMember), errors.Is(err, ErrInsufficientPermissions):
		return http.StatusForbidden
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrStorageExhausted):
		return http.StatusInsufficientStorage
	case errors.Is(err, ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage возвращает текст ошибки, безопасный для клиента.
// Внутренние ошибки не раскрываются.
func PublicMessage(err error) string {
	if HTTPStatusFromError(err) == http.StatusInternalServerError {
		return "internal server error"
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	for _, known := range []error{
		ErrUnauthorized, ErrInvalidToken, ErrTokenExpired, ErrNotAMember,
		ErrInsufficientPermissions, ErrGroupNotFound, ErrMessageNotFound,
		ErrReplyTargetNotFound, ErrRateLimited, ErrStorageExhausted, ErrStorageUnavailable,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return err.Error()
}
