// Package services provides the analytics query surface between the HTTP
// handlers and the engines. Every entry point answers with a models.Envelope.
package services

import (
	"context"
	"errors"

	"github.com/soltixdb/insight/internal/aggregation"
	"github.com/soltixdb/insight/internal/analytics"
	"github.com/soltixdb/insight/internal/source"
)

// Error codes carried by failed envelopes
const (
	CodeInsufficientData = "INSUFFICIENT_DATA"
	CodeStorageFailure   = "STORAGE_FAILURE"
	CodeInvalidRule      = "INVALID_RULE"
	CodeAggregationError = "AGGREGATION_ERROR"
	CodeInternalError    = "INTERNAL_ERROR"
	CodeNotFound         = "NOT_FOUND"
)

// ServiceError represents a service layer error
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}

// NewServiceError creates a new ServiceError
func NewServiceError(code, message string) *ServiceError {
	return &ServiceError{
		Code:    code,
		Message: message,
	}
}

// NewServiceErrorWithDetails creates a new ServiceError with details
func NewServiceErrorWithDetails(code, message string, details map[string]interface{}) *ServiceError {
	return &ServiceError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// Classify maps an engine error to a ServiceError. Errors of no known kind
// get the fallback code. A nil error yields nil.
func Classify(err error, fallback string) *ServiceError {
	if err == nil {
		return nil
	}

	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr
	}

	var insufficient *analytics.InsufficientDataError
	if errors.As(err, &insufficient) {
		return NewServiceErrorWithDetails(CodeInsufficientData, insufficient.Error(), map[string]interface{}{
			"dataPoints":     insufficient.DataPoints,
			"requiredPoints": insufficient.RequiredPoints,
		})
	}
	if errors.Is(err, analytics.ErrInsufficientData) {
		return NewServiceError(CodeInsufficientData, err.Error())
	}

	var ruleErr *aggregation.RuleError
	if errors.As(err, &ruleErr) {
		return NewServiceErrorWithDetails(CodeInvalidRule, ruleErr.Error(), map[string]interface{}{
			"field":  ruleErr.Field,
			"reason": ruleErr.Reason,
		})
	}
	if errors.Is(err, aggregation.ErrInvalidRule) {
		return NewServiceError(CodeInvalidRule, err.Error())
	}

	if errors.Is(err, source.ErrStorage) || errors.Is(err, context.DeadlineExceeded) {
		return NewServiceError(CodeStorageFailure, err.Error())
	}

	return NewServiceError(fallback, err.Error())
}

// invalid wraps a request validation failure
func invalid(err error) *ServiceError {
	return NewServiceError(CodeInvalidRule, err.Error())
}
