// errors.go - Error taxonomy for configuration updates
package models

import (
	"errors"
	"fmt"
)

// Error kinds. Use errors.Is against these to tell failures apart.
var (
	ErrRead         = errors.New("read error")
	ErrBackup       = errors.New("backup error")
	ErrWrite        = errors.New("write error")
	ErrVerification = errors.New("verification error")
)

// OpError is a failure of a configuration update or backup step.
type OpError struct {
	Kind    error
	Path    string
	Message string
	Cause   error
}

// Error implements the error interface
func (e *OpError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Path != "" {
		msg += " (" + e.Path + ")"
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the underlying cause.
func (e *OpError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

// NewReadError reports that a source could not be read.
func NewReadError(path string, cause error) *OpError {
	return &OpError{Kind: ErrRead, Path: path, Message: "could not read file", Cause: cause}
}

// NewBackupError reports a backup directory or copy failure.
func NewBackupError(path, message string, cause error) *OpError {
	return &OpError{Kind: ErrBackup, Path: path, Message: message, Cause: cause}
}

// NewWriteError reports that the destination could not be fully written.
func NewWriteError(path, message string, cause error) *OpError {
	return &OpError{Kind: ErrWrite, Path: path, Message: message, Cause: cause}
}

// NewVerificationError reports that post-write content does not match.
func NewVerificationError(path string, mismatched []string) *OpError {
	return &OpError{
		Kind:    ErrVerification,
		Path:    path,
		Message: fmt.Sprintf("constants not applied after write: %v", mismatched),
	}
}
