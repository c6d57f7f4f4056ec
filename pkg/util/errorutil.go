package util

import (
	"errors"
	"fmt"
	"net/http"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

// NewPermissionDenied reports a missing administrative or staff capability.
func NewPermissionDenied(message string) error {
	return NewDomainError("PERMISSION_DENIED", message, http.StatusForbidden, nil)
}

// NewForbidden reports a role-gated category selected without the role.
func NewForbidden(message string) error {
	return NewDomainError("FORBIDDEN", message, http.StatusForbidden, nil)
}

// NewDuplicateTicket reports an existing open ticket for the same opener
// and category. The existing channel id travels in Details for reporting.
func NewDuplicateTicket(channelID string) error {
	message := fmt.Sprintf("you already have an open ticket in this category: <#%s>", channelID)
	return NewDomainError("DUPLICATE_TICKET", message, http.StatusConflict, map[string]any{
		"channel_id": channelID,
	})
}

// NewUnknownCategory reports a category value absent from configuration.
func NewUnknownCategory(value string) error {
	return NewDomainError("UNKNOWN_CATEGORY", "that ticket category is not available", http.StatusBadRequest, map[string]any{
		"value": value,
	})
}

// NewProvisioningFailed reports a rejected channel creation.
func NewProvisioningFailed(err error) error {
	return &DomainError{
		Code:       "PROVISIONING_FAILED",
		Message:    "could not create your ticket channel, please try again later",
		HTTPStatus: http.StatusBadGateway,
		Err:        err,
	}
}

// NewArchiverUnavailable reports a failed transcript render or delivery.
func NewArchiverUnavailable(err error) error {
	return &DomainError{
		Code:       "ARCHIVER_UNAVAILABLE",
		Message:    "transcript could not be archived, the ticket was left open",
		HTTPStatus: http.StatusBadGateway,
		Err:        err,
	}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError("VALIDATION_FAILED", message, http.StatusBadRequest, details)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "something went wrong handling your request",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if de, ok := NewInternalError(err).(*DomainError); ok {
		return de
	}
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "something went wrong handling your request",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// CodeOf returns the DomainError code for an error, mapping unknown errors
// to INTERNAL_ERROR.
func CodeOf(err error) string {
	de := ToDomainError(err)
	if de == nil {
		return ""
	}
	return de.Code
}
