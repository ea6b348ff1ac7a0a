// Package resilience provides the timeout, retry, and circuit-breaker
// wrappers applied around broker operations.
package resilience

import (
	"context"
	"time"

	"github.com/oladejiayo/localzure/pkg/broker/sberr"
)

// OpKind selects the default deadline for an operation class.
type OpKind string

const (
	OpSend    OpKind = "send"
	OpReceive OpKind = "receive"
	OpAdmin   OpKind = "admin"
	OpLock    OpKind = "lock"
	OpSession OpKind = "session"
)

// Default per-operation deadlines.
var deadlines = map[OpKind]time.Duration{
	OpSend:    30 * time.Second,
	OpReceive: 60 * time.Second,
	OpAdmin:   30 * time.Second,
	OpLock:    10 * time.Second,
	OpSession: 60 * time.Second,
}

// Deadline returns the default deadline for the operation class.
func Deadline(kind OpKind) time.Duration {
	if d, ok := deadlines[kind]; ok {
		return d
	}
	return 30 * time.Second
}

// WithTimeout runs fn under the operation class deadline. When fn
// overruns, the call fails with OperationTimeout and fn's eventual result
// is discarded.
func WithTimeout(ctx context.Context, kind OpKind, fn func(ctx context.Context) error) error {
	d := Deadline(kind)
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(ctx) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return sberr.NewOperationTimeout(string(kind), d.Seconds())
		}
		return ctx.Err()
	}
}
