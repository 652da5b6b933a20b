package domain

import "github.com/pkg/errors"

var (
	ErrUpdateIsOutdated    = errors.New("depth update is already covered by the applied state")
	ErrUpdateOutOfSequence = errors.New("depth update is out of sequence")
	ErrNoSnapshot          = errors.New("no depth snapshot has been applied yet")
)

// FailureKind classifies the consumer-facing failures. Purely internal
// conditions (decode failures, sequence gaps) never become a FeedError.
type FailureKind string

const (
	FailureTransport     FailureKind = "transport"
	FailureSnapshotFetch FailureKind = "snapshot_fetch"
	FailureSubscription  FailureKind = "subscription"
)

type FeedError struct {
	Kind FailureKind
	Err  error
}

func NewFeedError(kind FailureKind, err error) *FeedError {
	return &FeedError{Kind: kind, Err: err}
}

func (e *FeedError) Error() string {
	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *FeedError) Unwrap() error {
	return e.Err
}
