package rmi

import (
	"errors"
	"fmt"

	"github.com/oriys/novarmi/internal/broker"
	"github.com/oriys/novarmi/internal/transport"
	"github.com/oriys/novarmi/internal/wire"
)

// Sentinel errors for the conditions a session or stub can fail with.
// Callers should use errors.Is against these, not string comparison.
var (
	// ErrNoSuchObject is the skeleton-side error for an invocation naming
	// an object identifier that is not exported. The skeleton then closes
	// the connection without writing a NOT_OK reply, so the caller sees a
	// read failure rather than this error.
	ErrNoSuchObject = errors.New("rmi: no such object")
	// ErrNoSuchMethod is returned by a stub for an unknown method name and
	// carried in a NOT_OK reply when the target object lacks the method.
	// An unknown method ordinal on the skeleton side closes the connection
	// without a reply instead.
	ErrNoSuchMethod = errors.New("rmi: no such method")
	// ErrUnimplementedMethod is the skeleton-side error for a method that
	// declares a Pipe parameter, which is not dispatched. The skeleton
	// closes the connection without writing a NOT_OK reply.
	ErrUnimplementedMethod = errors.New("rmi: unimplemented method")
	// ErrBrokerClosed is terminal: once a session's broker is closed,
	// every subsequent stub invocation fails with this error.
	ErrBrokerClosed = errors.New("rmi: broker closed")
	// ErrSessionClosed is terminal, returned by Session operations once
	// shutdown has completed.
	ErrSessionClosed = errors.New("rmi: session closed")
	// ErrNotConnected is returned by a stub invocation whose session uses
	// the Unconnected placeholder transport.
	ErrNotConnected = errors.New("rmi: not connected")
	// ErrChannelClosed is returned by an in-flight read/write when the
	// underlying channel is closed concurrently.
	ErrChannelClosed = errors.New("rmi: channel closed")
	// ErrStreamCorrupted signals an illegal tag or encoding was read off
	// the wire. It terminates the channel, not the session.
	ErrStreamCorrupted = errors.New("rmi: stream corrupted")
	// ErrTimeout signals a read/write deadline was exceeded. The core
	// never retries; it is a terminal failure for the invocation.
	ErrTimeout = errors.New("rmi: timeout")
	// ErrNonSerializable is returned by a codec when a value cannot be
	// marshalled.
	ErrNonSerializable = errors.New("rmi: value is not serializable")
)

// AsynchronousInvocationError wraps a failure that occurred while
// dispatching an asynchronous (no-reply) call on the callee side. It is
// never written to the invocation channel; it is reported through
// Session.OnAsyncError.
type AsynchronousInvocationError struct {
	Method string
	Cause  error
}

func (e *AsynchronousInvocationError) Error() string {
	return fmt.Sprintf("rmi: asynchronous invocation of %s failed: %v", e.Method, e.Cause)
}

func (e *AsynchronousInvocationError) Unwrap() error { return e.Cause }

// RemoteFailure is the exception a stub throws (returns) when the callee
// reported NOT_OK, or when a local transport/serialization error
// prevented an invocation from completing. It carries a reconstructed
// cause chain: the first element is the shallowest wrapper, mirroring the
// order a Go error chain unwraps in.
type RemoteFailure struct {
	// Method names the stub method that failed, for diagnostics.
	Method string
	// ClassName is the declared type name of the outermost remote failure
	// (the first Chain element), as reported by the callee (or a generic
	// surrogate name if the callee's throwable object itself failed to
	// deserialize).
	ClassName string
	// Message is the outermost failure's message, possibly empty.
	Message string
	// Chain holds every serialized cause, outermost first and deepest
	// cause last.
	Chain []FailureFrame
	// proximate is the terminal throwable's own reconstructed error
	// value, when the callee could marshal it and the caller could
	// decode its concrete type; nil when only the chain of class names
	// and messages survived the wire. Exposed through Unwrap so
	// errors.As can still reach the original concrete type.
	proximate error
}

// FailureFrame is one level of a reconstructed remote exception chain.
type FailureFrame struct {
	ClassName  string
	Message    string
	StackTrace []StackElement
}

// StackElement mirrors one stack frame as transmitted on the wire.
type StackElement struct {
	ClassName  string
	MethodName string
	FileName   string
	LineNumber int32
}

func (f *RemoteFailure) Error() string {
	if f.Message != "" {
		return fmt.Sprintf("rmi: remote failure in %s: %s: %s", f.Method, f.ClassName, f.Message)
	}
	return fmt.Sprintf("rmi: remote failure in %s: %s", f.Method, f.ClassName)
}

func (f *RemoteFailure) Unwrap() error { return f.proximate }

// mapWireErr translates a raw internal/wire, internal/broker or
// internal/transport sentinel into the matching rmi sentinel while keeping
// err itself reachable through errors.Is, since those packages cannot
// import rmi to do this translation themselves. Any error not recognized
// as one of their sentinels is returned unchanged.
func mapWireErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, broker.ErrBrokerClosed):
		return fmt.Errorf("%w: %w", ErrBrokerClosed, err)
	case errors.Is(err, transport.ErrUnconnected):
		return fmt.Errorf("%w: %w", ErrNotConnected, err)
	case errors.Is(err, wire.ErrStreamCorrupted):
		return fmt.Errorf("%w: %w", ErrStreamCorrupted, err)
	case errors.Is(err, wire.ErrTimeout):
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	case errors.Is(err, wire.ErrClosed):
		return fmt.Errorf("%w: %w", ErrChannelClosed, err)
	default:
		return err
	}
}
