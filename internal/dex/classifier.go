package dex

import "poolMonitor/internal/model"

// Classification is the outcome of classifying an account notification.
type Classification int

const (
	Ignored Classification = iota
	PoolCandidate
)

func (c Classification) String() string {
	switch c {
	case PoolCandidate:
		return "pool_candidate"
	default:
		return "ignored"
	}
}

// Classifier decides which accounts are pool candidates by payload size
// alone. Same-size accounts of other types pass and are expected to fail
// (or be rejected) at decode time.
type Classifier struct {
	PoolAccountSize int
}

// NewClassifier returns a classifier for the given pool account size,
// falling back to DefaultPoolAccountSize when size is not positive.
func NewClassifier(size int) Classifier {
	if size <= 0 {
		size = DefaultPoolAccountSize
	}
	return Classifier{PoolAccountSize: size}
}

func (c Classifier) Classify(n model.AccountNotification) Classification {
	if n.DataLength() == c.PoolAccountSize {
		return PoolCandidate
	}
	return Ignored
}
