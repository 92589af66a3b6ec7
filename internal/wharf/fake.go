package wharf

import (
	"context"
	"errors"
)

// Fake is a scriptable Client for tests and for running the daemon
// without a real subprocess attached.
type Fake struct {
	OperationFunc func(ctx context.Context, params OperationParams) (*OperationResult, error)
	LaunchFunc    func(ctx context.Context, params LaunchParams) error
}

var _ Client = (*Fake)(nil)

func (f *Fake) Operation(ctx context.Context, params OperationParams) (*OperationResult, error) {
	if f.OperationFunc == nil {
		return nil, errors.New("no patcher subprocess attached")
	}
	return f.OperationFunc(ctx, params)
}

func (f *Fake) Launch(ctx context.Context, params LaunchParams) error {
	if f.LaunchFunc == nil {
		return errors.New("no patcher subprocess attached")
	}
	return f.LaunchFunc(ctx, params)
}
