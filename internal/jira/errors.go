package jira

import (
	"errors"
	"fmt"
)

var (
	ErrConfig            = errors.New("jira: invalid configuration")
	ErrMissingField      = errors.New("jira: missing required field")
	ErrMalformedResponse = errors.New("jira: malformed create issue response")
)

// ConfigError reports the configuration value that prevented the client from
// being built.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("jira: invalid configuration: %s %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrConfig }

// RemoteError is returned when Jira answers with a non-2xx status.
type RemoteError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("jira POST %s failed: %s - %s", createIssuePath, e.Status, e.Body)
}

// MalformedResponseError is a 2xx answer that carried no usable issue key.
type MalformedResponseError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *MalformedResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v (status %d): %v", ErrMalformedResponse, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%v (status %d): no issue key in %q", ErrMalformedResponse, e.StatusCode, e.Body)
}

func (e *MalformedResponseError) Is(target error) bool { return target == ErrMalformedResponse }

func (e *MalformedResponseError) Unwrap() error { return e.Err }
