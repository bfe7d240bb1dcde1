package domain

import (
	"errors"
	"fmt"
)

// Feed error kinds.
var (
	ErrInvalidFeedURL  = errors.New("invalid feed url")
	ErrDeserialization = errors.New("feed deserialization failure")
	ErrNetwork         = errors.New("feed network failure")
)

// Store error kinds.
var (
	ErrNotFound          = errors.New("not found")
	ErrUniqueViolation   = errors.New("unique violation")
	ErrConnectionFailure = errors.New("store connection failure")
	ErrStoreOther        = errors.New("store failure")
)

// ErrAlreadySubscribed is returned when the subscriber already receives the feed.
var ErrAlreadySubscribed = errors.New("already subscribed")

// FeedError is returned by a feed fetcher. It matches its Kind and its cause
// with errors.Is.
type FeedError struct {
	Kind       error
	URL        string
	StatusCode int
	Err        error
}

func NewFeedError(kind error, url string, err error) *FeedError {
	return &FeedError{Kind: kind, URL: url, Err: err}
}

func (e *FeedError) Error() string {
	msg := fmt.Sprintf("%v: %s", e.Kind, e.URL)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FeedError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// StoreError is returned by the persistence layer.
type StoreError struct {
	Op   string
	Kind error
	Err  error
}

func NewStoreError(op string, kind, err error) *StoreError {
	return &StoreError{Op: op, Kind: kind, Err: err}
}

func (e *StoreError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *StoreError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
