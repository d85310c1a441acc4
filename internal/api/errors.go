package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/npezzotti/go-convo/internal/chat"
)

type ApiError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Code       string `json:"code,omitempty"`
	Retryable  bool   `json:"retryable,omitempty"`
	Err        error  `json:"-"`
}

func (e *ApiError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}

	return e.Message
}

func (e *ApiError) Unwrap() error {
	return e.Err
}

func lower(s string) string {
	return strings.ToLower(s)
}

func NewBadRequestError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusBadRequest,
		Message:    lower(http.StatusText(http.StatusBadRequest)),
		Code:       string(chat.KindInvalidArgument),
	}
}

func NewNotFoundError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusNotFound,
		Message:    lower(http.StatusText(http.StatusNotFound)),
		Code:       string(chat.KindNotFound),
	}
}

func NewInternalServerError(err error) *ApiError {
	return &ApiError{
		StatusCode: http.StatusInternalServerError,
		Message:    lower(http.StatusText(http.StatusInternalServerError)),
		Code:       string(chat.KindInternal),
		Err:        err,
	}
}

func NewUnauthorizedError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusUnauthorized,
		Message:    lower(http.StatusText(http.StatusUnauthorized)),
		Code:       string(chat.KindNotAuthenticated),
	}
}

func NewForbiddenError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusForbidden,
		Message:    lower(http.StatusText(http.StatusForbidden)),
		Code:       string(chat.KindForbidden),
	}
}

// NewChatError maps a core error to its HTTP status. Internal errors keep
// their cause out of the response body.
func NewChatError(err error) *ApiError {
	var apiErr *ApiError
	switch kind := chat.KindOf(err); kind {
	case chat.KindNotAuthenticated:
		apiErr = NewUnauthorizedError()
	case chat.KindUnknownUser:
		apiErr = NewNotFoundError()
		apiErr.Code = string(kind)
	case chat.KindNotFound:
		apiErr = NewNotFoundError()
	case chat.KindForbidden:
		apiErr = NewForbiddenError()
	case chat.KindInvalidArgument:
		apiErr = NewBadRequestError()
	default:
		return NewInternalServerError(err)
	}

	apiErr.Message = err.Error()
	apiErr.Err = err
	return apiErr
}
