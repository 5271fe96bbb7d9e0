package endpoints

import (
	"errors"
	"fmt"
	"net/http"

	authsvc "support-chat-backend/internal/service/auth"
	conversationservice "support-chat-backend/internal/service/conversation"
)

var conversationStatus = map[conversationservice.ErrorCode]int{
	conversationservice.ErrorCodeValidation:   http.StatusBadRequest,
	conversationservice.ErrorCodeUnauthorized: http.StatusUnauthorized,
	conversationservice.ErrorCodeForbidden:    http.StatusForbidden,
	conversationservice.ErrorCodeNotFound:     http.StatusNotFound,
	conversationservice.ErrorCodeConflict:     http.StatusConflict,
}

var authStatus = map[authsvc.ErrorCode]int{
	authsvc.ErrorCodeValidation:   http.StatusBadRequest,
	authsvc.ErrorCodeUnauthorized: http.StatusUnauthorized,
	authsvc.ErrorCodeNotFound:     http.StatusNotFound,
	authsvc.ErrorCodeConflict:     http.StatusConflict,
}

// serviceError maps a service error onto the HTTP error the client sees.
// Internal failures never leak their message.
func serviceError(err error) error {
	if err == nil {
		return nil
	}

	var convErr *conversationservice.Error
	if errors.As(err, &convErr) {
		return toHTTPError(conversationStatus[convErr.Code], convErr.Message, convErr.Err, err)
	}

	var authErr *authsvc.Error
	if errors.As(err, &authErr) {
		return toHTTPError(authStatus[authErr.Code], authErr.Message, authErr.Err, err)
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr
	}

	return &HTTPError{
		StatusCode: http.StatusInternalServerError,
		Message:    "Internal server error",
		ErrorLog:   err,
	}
}

func toHTTPError(status int, message string, cause, err error) *HTTPError {
	logErr := err
	if cause != nil {
		logErr = fmt.Errorf("%s: %w", message, cause)
	}
	if status == 0 {
		return &HTTPError{StatusCode: http.StatusInternalServerError, Message: "Internal server error", ErrorLog: logErr}
	}
	return &HTTPError{StatusCode: status, Message: message, ErrorLog: logErr}
}
