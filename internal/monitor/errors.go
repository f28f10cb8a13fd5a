package monitor

import (
	"errors"
	"fmt"
)

var (
	ErrSetupFailed      = errors.New("subscription setup failed")
	ErrTransportDropped = errors.New("subscription transport dropped")
)

// SubscriptionError wraps a subscription failure with its kind
// (ErrSetupFailed or ErrTransportDropped).
type SubscriptionError struct {
	Kind error
	Err  error
}

func (e *SubscriptionError) Error() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%v: %v", e.Kind, e.Err)
}

func (e *SubscriptionError) Is(target error) bool {
	return target == e.Kind
}

func (e *SubscriptionError) Unwrap() error {
	return e.Err
}
