// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package failure holds the error kinds shared by the map pipeline.
//
// Parameter and band problems are ConfigurationErrors, caught before any
// computation. Prompt and dimension problems are ValidationErrors, caught
// when a request is assembled. Anything the image service does wrong is an
// ExternalServiceError with a Reason.
package failure

import (
	"errors"
	"fmt"
)

// ErrNoTerrain is returned when a preview or final generation is requested
// before a field was ever generated.
var ErrNoTerrain = &ValidationError{Field: "terrain", Reason: "no terrain generated yet"}

// ConfigurationError means invalid noise or band parameters.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (err *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s: %s", err.Field, err.Reason)
}

// Configuration is shorthand for a formatted *ConfigurationError.
func Configuration(field, format string, args ...interface{}) error {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// ValidationError means a request could not be assembled.
type ValidationError struct {
	Field  string
	Reason string
}

func (err *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", err.Field, err.Reason)
}

// Validation is shorthand for a formatted *ValidationError.
func Validation(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Reason distinguishes external service failures.
type Reason uint8

const (
	Network Reason = iota
	PolicyRejected
	QuotaExceeded
	MalformedResponse
)

var reasonNames = [...]string{
	Network:           "network",
	PolicyRejected:    "policyRejected",
	QuotaExceeded:     "quotaExceeded",
	MalformedResponse: "malformedResponse",
}

func (r Reason) String() string {
	if int(r) < len(reasonNames) {
		return reasonNames[r]
	}
	return "unknown"
}

// ExternalServiceError is a failed call to the image generation service.
type ExternalServiceError struct {
	Reason Reason
	Err    error
}

func (err *ExternalServiceError) Error() string {
	if err.Err == nil {
		return "external service: " + err.Reason.String()
	}
	return "external service: " + err.Reason.String() + ": " + err.Err.Error()
}

func (err *ExternalServiceError) Unwrap() error {
	return err.Err
}

// External wraps err as an *ExternalServiceError with the given reason.
func External(reason Reason, err error) error {
	return &ExternalServiceError{Reason: reason, Err: err}
}

// ReasonOf reports the Reason of an ExternalServiceError anywhere in err's chain.
func ReasonOf(err error) (Reason, bool) {
	var ext *ExternalServiceError
	if errors.As(err, &ext) {
		return ext.Reason, true
	}
	return 0, false
}

// Kind names the category of err for clients and logs.
func Kind(err error) string {
	var (
		conf *ConfigurationError
		val  *ValidationError
		ext  *ExternalServiceError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &conf):
		return "configuration"
	case errors.As(err, &val):
		return "validation"
	case errors.As(err, &ext):
		return "external"
	default:
		return "internal"
	}
}

// ParseReason is the inverse of Reason.String.
func ParseReason(name string) (Reason, bool) {
	for r, n := range reasonNames {
		if n == name {
			return Reason(r), true
		}
	}
	return 0, false
}
