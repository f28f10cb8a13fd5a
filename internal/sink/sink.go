package sink

import (
	"context"
	"errors"

	"poolMonitor/internal/model"
)

// Sink receives pool updates.
type Sink interface {
	Put(ctx context.Context, update model.PoolUpdate) error
}

// Multi fans an update out to every sink and joins their errors.
type Multi []Sink

func (m Multi) Put(ctx context.Context, update model.PoolUpdate) error {
	var errs []error
	for _, s := range m {
		if err := s.Put(ctx, update); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
