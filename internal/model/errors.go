package model

import (
	"errors"
	"fmt"
)

// ConfigurationError reports a missing or malformed template, layout, or setting.
// It is fatal for the whole batch.
type ConfigurationError struct {
	Item string
	Err  error
}

func (e *ConfigurationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("configuration: %s", e.Item)
	}
	return fmt.Sprintf("configuration: %s: %v", e.Item, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// ExternalServiceError reports a map provider call that did not succeed after retries.
type ExternalServiceError struct {
	Provider   string
	Op         string
	StatusCode int
	Err        error
}

func (e *ExternalServiceError) Error() string {
	msg := fmt.Sprintf("%s %s failed", e.Provider, e.Op)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// DataError reports inconsistent input: empty groups, unmatched cluster ids, bad UPRNs.
type DataError struct {
	Group  string
	Reason string
}

func (e *DataError) Error() string {
	if e.Group == "" {
		return "data: " + e.Reason
	}
	return fmt.Sprintf("data: group %s: %s", e.Group, e.Reason)
}

// PDFMergeError reports a round whose expected page artifact is absent or unmergeable.
type PDFMergeError struct {
	Round   string
	Missing string
	Err     error
}

func (e *PDFMergeError) Error() string {
	if e.Missing != "" {
		return fmt.Sprintf("merge round %s: missing %s", e.Round, e.Missing)
	}
	return fmt.Sprintf("merge round %s: %v", e.Round, e.Err)
}

func (e *PDFMergeError) Unwrap() error { return e.Err }

// IsFatal reports whether err must abort the batch rather than fail a single group.
func IsFatal(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
