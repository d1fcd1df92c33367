package firestore

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Error annotates a Firestore RPC failure with the operation that produced it.
type Error struct {
	Op   string
	Code codes.Code
	err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.err)
}

func (e *Error) Unwrap() error { return e.err }

// IsNotFound reports whether err is a Firestore NotFound failure.
func IsNotFound(err error) bool {
	var fsErr *Error
	if errors.As(err, &fsErr) {
		return fsErr.Code == codes.NotFound
	}
	return status.Code(err) == codes.NotFound
}

// IsUnavailable reports whether err is a transient backend failure worth retrying.
func IsUnavailable(err error) bool {
	code := status.Code(err)
	var fsErr *Error
	if errors.As(err, &fsErr) {
		code = fsErr.Code
	}
	switch code {
	case codes.Unavailable, codes.ResourceExhausted, codes.Internal, codes.DeadlineExceeded:
		return true
	}
	return false
}

// WrapError tags err with op. gRPC cancellation codes are translated back into context errors.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	code := status.Code(err)
	switch code {
	case codes.Canceled:
		return context.Canceled
	case codes.DeadlineExceeded:
		return context.DeadlineExceeded
	}
	return &Error{Op: op, Code: code, err: err}
}
