package domain

import (
	"errors"
	"fmt"
)

// ErrUnrecognizedInput marks a choice that maps to no known language or
// persona. The orchestrator answers it by re-sending the same menu.
var ErrUnrecognizedInput = errors.New("unrecognized input")

// TemplateMissingError means neither the requested language nor the default
// language carries the template. The affected sub-message is skipped; the
// turn continues.
type TemplateMissingError struct {
	Language string
	Bot      string
	Key      string
}

func (e *TemplateMissingError) Error() string {
	if e.Bot != "" {
		return fmt.Sprintf("template missing: %s.%s.%s", e.Language, e.Bot, e.Key)
	}
	return fmt.Sprintf("template missing: %s.%s", e.Language, e.Key)
}

// UpstreamError is a failed downstream bot query. It aborts the processing
// step only; the session stays at awaiting-query so the user can retry.
type UpstreamError struct {
	Endpoint string
	Status   int
	Body     string
	Err      error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("bot query %s: %v", e.Endpoint, e.Err)
	}
	return fmt.Sprintf("bot query %s: status %d: %s", e.Endpoint, e.Status, e.Body)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// DeliveryError is a failed provider send. Logged, never retried, and never
// surfaced to the user: the channel itself is impaired.
type DeliveryError struct {
	Provider string
	Status   int
	Err      error
}

func (e *DeliveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s send: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("%s send: status %d", e.Provider, e.Status)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
