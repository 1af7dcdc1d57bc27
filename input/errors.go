package input

import (
	"errors"
	"fmt"
)

// ConfigurationError reports an invalid or missing input setting.
// It is raised at load time and the input is never scheduled.
type ConfigurationError struct {
	Input string
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("input %q: %v", e.Input, e.Err)
	}
	return fmt.Sprintf("input %q: %s: %v", e.Input, e.Field, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// CredentialError means the API rejected the configured credentials.
// The cycle is aborted and retried on the next scheduled run.
type CredentialError struct {
	URL        string
	StatusCode int
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("credentials rejected by %s (status %d)", e.URL, e.StatusCode)
}

// TransientError wraps timeouts, connection failures and unexpected statuses
type TransientError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: unexpected status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// ProtocolError means the response body could not be understood
type ProtocolError struct {
	URL string
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("malformed response from %s: %v", e.URL, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// PersistenceError wraps checkpoint store failures
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("checkpoint %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Kind names the class of err for logs and metrics
func Kind(err error) string {
	var (
		cfgErr   *ConfigurationError
		credErr  *CredentialError
		protoErr *ProtocolError
		persErr  *PersistenceError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &cfgErr):
		return "configuration"
	case errors.As(err, &credErr):
		return "credential"
	case errors.As(err, &protoErr):
		return "protocol"
	case errors.As(err, &persErr):
		return "persistence"
	default:
		return "transient"
	}
}

// Retryable reports whether a later cycle may succeed without operator action
// on the process. Only configuration errors are final.
func Retryable(err error) bool {
	var cfgErr *ConfigurationError
	return err != nil && !errors.As(err, &cfgErr)
}
