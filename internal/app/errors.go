package app

import (
	"fmt"
	"net/http"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// Messages shown to the user. Raw errors never reach the page.
const (
	MsgCooldown      = "Please wait a moment before trying again."
	MsgNamesRequired = "Please fill in all name fields."
	MsgGenderMissing = "Please select gender for both."
	MsgCreateFailed  = "Failed to create proposal. Please try again."
	MsgNotFound      = "This proposal could not be found."
	MsgNotAccepted   = "This proposal has not been accepted yet."
	MsgKeepsake      = "Could not generate screenshot"
)

var (
	errRateLimited   = domainError(http.StatusTooManyRequests, "RATE_LIMITED", MsgCooldown, nil)
	errNamesRequired = domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", MsgNamesRequired, nil)
	errGenderMissing = domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", MsgGenderMissing, nil)
	errCreateFailed  = domainError(http.StatusServiceUnavailable, "CREATE_FAILED", MsgCreateFailed, nil)
	errNotFound      = domainError(http.StatusNotFound, "NOT_FOUND", MsgNotFound, nil)
	errNotAccepted   = domainError(http.StatusConflict, "NOT_ACCEPTED", MsgNotAccepted, nil)
	errAcceptBusy    = domainError(http.StatusConflict, "ACCEPT_IN_PROGRESS", "Your answer is already on its way.", nil)
)
