package engine

import (
	"errors"
	"fmt"
	"time"
)

// RuntimeError represents a failure detected by the engine itself rather
// than reported by an action handler.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// RuleID identifies the affected rule.
	RuleID string

	// ActionID identifies the affected action, if any.
	ActionID string
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeUnknownAction indicates no handler is registered for the action type.
	ErrCodeUnknownAction RuntimeErrorCode = "UNKNOWN_ACTION"

	// ErrCodeActionTimeout indicates a handler exceeded the per-action timeout.
	ErrCodeActionTimeout RuntimeErrorCode = "ACTION_TIMEOUT"

	// ErrCodeActionPanic indicates a handler panicked.
	ErrCodeActionPanic RuntimeErrorCode = "ACTION_PANIC"

	// ErrCodeMalformedRule indicates the rule could not be executed at all.
	ErrCodeMalformedRule RuntimeErrorCode = "MALFORMED_RULE"

	// ErrCodeTenantMismatch indicates a rule of another tenant reached the executor.
	ErrCodeTenantMismatch RuntimeErrorCode = "TENANT_MISMATCH"

	// ErrCodeCancelled indicates the host context ended before the action ran
	// to completion.
	ErrCodeCancelled RuntimeErrorCode = "CANCELLED"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.RuleID != "" && e.ActionID != "" {
		return fmt.Sprintf("%s: %s (rule=%s, action=%s)", e.Code, e.Message, e.RuleID, e.ActionID)
	}
	if e.RuleID != "" {
		return fmt.Sprintf("%s: %s (rule=%s)", e.Code, e.Message, e.RuleID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// CodeOf returns the RuntimeErrorCode carried by err, or "" when err is not
// a RuntimeError. Uses errors.As to handle wrapped errors.
func CodeOf(err error) RuntimeErrorCode {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}

// IsTimeout reports whether err is a per-action timeout.
func IsTimeout(err error) bool {
	return CodeOf(err) == ErrCodeActionTimeout
}

func newUnknownActionError(ruleID, actionID string) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeUnknownAction,
		Message:  "unknown action type",
		RuleID:   ruleID,
		ActionID: actionID,
	}
}

func newTimeoutError(ruleID, actionID string, limit time.Duration) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeActionTimeout,
		Message:  fmt.Sprintf("action exceeded timeout of %s", limit),
		RuleID:   ruleID,
		ActionID: actionID,
	}
}

func newPanicError(ruleID, actionID string, recovered any) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeActionPanic,
		Message:  fmt.Sprintf("handler panicked: %v", recovered),
		RuleID:   ruleID,
		ActionID: actionID,
	}
}

func newCancelledError(ruleID, actionID string, cause error) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeCancelled,
		Message:  cause.Error(),
		RuleID:   ruleID,
		ActionID: actionID,
	}
}
