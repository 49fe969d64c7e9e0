package integration

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	ErrInvalidMarketplace    = errors.New("integration: invalid marketplace")
	ErrInvalidStoreID        = errors.New("integration: invalid store ID")
	ErrInvalidCredential     = errors.New("integration: invalid credential secrets")
	ErrCredentialNotFound    = errors.New("integration: credential not found")
	ErrCredentialDisabled    = errors.New("integration: credential disabled")
	ErrCredentialExists      = errors.New("integration: credential already exists")
	ErrAdapterNotRegistered  = errors.New("integration: no adapter registered for marketplace")
	ErrRemoteLocationMissing = errors.New("integration: no remote location mapped for location")
)

// Sentinels matched by errors.Is against a *RemoteAPIError of the corresponding kind
var (
	ErrAuth                = errors.New("integration: remote authentication rejected")
	ErrValidation          = errors.New("integration: remote rejected payload")
	ErrNotFound            = errors.New("integration: remote resource not found")
	ErrRateLimited         = errors.New("integration: remote rate limited")
	ErrTransient           = errors.New("integration: transient remote failure")
	ErrPlaceholderConflict = errors.New("integration: placeholder variant already holds these options")
)

// ErrorKind classifies remote failures once at the adapter boundary
type ErrorKind string

const (
	KindAuth                ErrorKind = "auth"
	KindValidation          ErrorKind = "validation"
	KindNotFound            ErrorKind = "not_found"
	KindRateLimited         ErrorKind = "rate_limited"
	KindTransient           ErrorKind = "transient"
	KindPlaceholderConflict ErrorKind = "placeholder_conflict"
	KindUnknown             ErrorKind = "unknown"
)

// String returns the string representation of ErrorKind
func (k ErrorKind) String() string {
	return string(k)
}

// Retryable returns true for kinds a later pass may succeed on without operator action
func (k ErrorKind) Retryable() bool {
	return k == KindRateLimited || k == KindTransient
}

// Sentinel returns the sentinel error for the kind, nil for KindUnknown
func (k ErrorKind) Sentinel() error {
	switch k {
	case KindAuth:
		return ErrAuth
	case KindValidation:
		return ErrValidation
	case KindNotFound:
		return ErrNotFound
	case KindRateLimited:
		return ErrRateLimited
	case KindTransient:
		return ErrTransient
	case KindPlaceholderConflict:
		return ErrPlaceholderConflict
	default:
		return nil
	}
}

// RemoteAPIError is the structured failure every adapter method returns
type RemoteAPIError struct {
	Kind       ErrorKind
	Code       string
	Message    string
	Retryable  bool
	StatusCode int
	Err        error
}

// NewRemoteError creates a remote error of the given kind
func NewRemoteError(kind ErrorKind, code, message string) *RemoteAPIError {
	return &RemoteAPIError{
		Kind:      kind,
		Code:      code,
		Message:   message,
		Retryable: kind.Retryable(),
	}
}

// WrapRemoteError creates a remote error of the given kind around a cause
func WrapRemoteError(kind ErrorKind, code string, err error) *RemoteAPIError {
	e := NewRemoteError(kind, code, err.Error())
	e.Err = err
	return e
}

// Error implements the error interface
func (e *RemoteAPIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause
func (e *RemoteAPIError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's kind
func (e *RemoteAPIError) Is(target error) bool {
	s := e.Kind.Sentinel()
	return s != nil && target == s
}

// KindOf returns the classification of any error returned across the adapter boundary
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var remote *RemoteAPIError
	if errors.As(err, &remote) {
		return remote.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTransient
	}
	return KindUnknown
}

// AsRemoteError normalizes any error into a *RemoteAPIError
func AsRemoteError(err error) *RemoteAPIError {
	if err == nil {
		return nil
	}
	var remote *RemoteAPIError
	if errors.As(err, &remote) {
		return remote
	}
	return WrapRemoteError(KindOf(err), "", err)
}

// IsRetryable reports whether a later pass may succeed without operator action
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return AsRemoteError(err).Retryable
}
