package rmi

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/oriys/novarmi/internal/failure"
	"github.com/oriys/novarmi/internal/telemetry"
)

// Stub is the client-side proxy for one remote object. A Stub is safe
// for concurrent use by multiple goroutines; each Invoke borrows its
// own channel from the session's broker for the duration of one call.
type Stub struct {
	session  *Session
	objectID VersionedIdentifier
	table    *dispatchTable
}

func newStub(session *Session, objectID VersionedIdentifier, table *dispatchTable) *Stub {
	table.retain()
	return &Stub{session: session, objectID: objectID, table: table}
}

// ObjectID returns the remote object's stable identifier. Two stubs
// obtained for the same exported object compare equal under ObjectID,
// even if they were produced by independent Import calls.
func (s *Stub) ObjectID() Identifier { return s.objectID.ID }

// TypeName returns the exported interface's name, as given to
// DescribeType.
func (s *Stub) TypeName() string { return s.table.info.TypeName }

// Release drops this stub's import reference. Once every stub for an
// object has been released, the session's next distributed-GC round no
// longer reports the object as live, letting the exporting peer
// reclaim it. Release is idempotent only in the sense that the
// underlying registry reports a release past zero as a no-op; callers
// should not call it more than once per Stub obtained.
func (s *Stub) Release() {
	s.session.registry.ReleaseRef(uint64(s.objectID.ID))
	s.table.release()
}

// Invoke calls the named method on the remote object and blocks for a
// reply, unless the method is declared asynchronous (in which case it
// returns as soon as the request has been flushed): acquire a channel,
// write the method identifier and its parameters, flush, then either
// release immediately (async) or read back a completion marker and
// either a return value or a reconstructed remote failure.
func (s *Stub) Invoke(ctx context.Context, method string, params ...interface{}) (interface{}, error) {
	rm, ok := s.table.byName[method]
	if !ok {
		return nil, ErrNoSuchMethod
	}
	if len(params) != len(rm.Params) {
		return nil, fmt.Errorf("rmi: %s.%s expects %d parameters, got %d", s.table.info.TypeName, method, len(rm.Params), len(params))
	}

	sess := s.session
	start := time.Now()

	spanCtx, span := telemetry.StartSpan(ctx, sess.telemetry, method, uint64(s.objectID.ID))
	defer span.End()

	ch, err := sess.broker.Connect(spanCtx)
	if err != nil {
		err = mapWireErr(err)
		telemetry.SetSpanError(span, err, "")
		return nil, fmt.Errorf("rmi: acquire channel for %s.%s: %w", s.table.info.TypeName, method, err)
	}

	out := ch.Writer()
	scope := out.NewScope()

	// The object identifier precedes the method identifier so a single
	// pooled channel can carry invocations against any of the session's
	// exported objects, not just one fixed target: a generated stub
	// bound to one object ahead of time could omit it, but a single
	// generic, reflection-driven Stub serving every remote type cannot.
	writeErr := out.WriteLong(int64(s.objectID.ID))
	if writeErr == nil {
		writeErr = out.WriteLong(int64(rm.MethodID))
	}
	for i := 0; writeErr == nil && i < len(rm.Params); i++ {
		p := rm.Params[i]
		v := params[i]
		if p.Remote && v != nil {
			st, ok := v.(*Stub)
			if !ok {
				writeErr = fmt.Errorf("rmi: %s.%s: parameter %d must be a *Stub for a remote parameter, got %T", s.table.info.TypeName, method, i, v)
				break
			}
			v = sess.marshalRemote(st)
		}
		writeErr = writeValue(out, scope, p, v)
	}
	if writeErr == nil {
		writeErr = out.Flush()
	}
	if writeErr != nil {
		sess.broker.Recycle(ch, writeErr)
		writeErr = mapWireErr(writeErr)
		telemetry.SetSpanError(span, writeErr, "")
		return nil, fmt.Errorf("rmi: write invocation %s.%s: %w", s.table.info.TypeName, method, writeErr)
	}

	if rm.Async {
		sess.broker.Recycle(ch, nil)
		sess.recordClientInvocation(method, time.Since(start), true)
		telemetry.SetSpanOK(span)
		return nil, nil
	}

	in := ch.Reader()
	boolResult, ok2, readErr := in.ReadOk()
	if readErr != nil {
		sess.broker.Recycle(ch, readErr)
		readErr = mapWireErr(readErr)
		telemetry.SetSpanError(span, readErr, "")
		return nil, fmt.Errorf("rmi: read reply for %s.%s: %w", s.table.info.TypeName, method, readErr)
	}

	if !ok2 {
		frames, ferr := failure.ReadChain(in)
		if ferr != nil {
			sess.broker.Recycle(ch, ferr)
			ferr = mapWireErr(ferr)
			telemetry.SetSpanError(span, ferr, "")
			return nil, fmt.Errorf("rmi: read failure chain for %s.%s: %w", s.table.info.TypeName, method, ferr)
		}
		throwable, terr := failure.ReadThrowable(in)
		sess.broker.Recycle(ch, terr)
		if terr != nil {
			terr = mapWireErr(terr)
			telemetry.SetSpanError(span, terr, "")
			return nil, fmt.Errorf("rmi: read terminal throwable for %s.%s: %w", s.table.info.TypeName, method, terr)
		}
		rf := reconstructFailure(method, frames, throwable)
		sess.recordClientInvocation(method, time.Since(start), false)
		telemetry.SetSpanError(span, rf, rf.ClassName)
		return nil, rf
	}

	var retVal interface{}
	if rm.Return != nil {
		retVal, readErr = readValue(in, scope, *rm.Return)
		if readErr != nil {
			sess.broker.Recycle(ch, readErr)
			readErr = mapWireErr(readErr)
			telemetry.SetSpanError(span, readErr, "")
			return nil, fmt.Errorf("rmi: read return value for %s.%s: %w", s.table.info.TypeName, method, readErr)
		}
		if rm.Return.Remote && retVal != nil {
			mr, ok := retVal.(*MarshalledRemote)
			if !ok {
				sess.broker.Recycle(ch, nil)
				return nil, fmt.Errorf("rmi: %s.%s: expected a MarshalledRemote return value, got %T", s.table.info.TypeName, method, retVal)
			}
			retVal, readErr = sess.resolveRemote(mr)
			if readErr != nil {
				sess.broker.Recycle(ch, nil)
				return nil, fmt.Errorf("rmi: %s.%s: resolve remote return value: %w", s.table.info.TypeName, method, readErr)
			}
		}
	} else {
		retVal = boolResult
	}

	sess.broker.Recycle(ch, nil)
	sess.recordClientInvocation(method, time.Since(start), true)
	telemetry.SetSpanOK(span)
	return retVal, nil
}

// reconstructFailure turns the throwable chain read off the wire into a
// RemoteFailure, stitching the calling goroutine's current stack onto
// the deepest remote frame so a panic/log of the returned error shows
// both sides of the call. throwable is the terminal error value itself
// when the callee could marshal it and this side could decode its
// concrete type; it is kept as the RemoteFailure's Unwrap target so
// errors.As can still reach it, and is nil otherwise.
func reconstructFailure(method string, frames []failure.Frame, throwable error) *RemoteFailure {
	if len(frames) == 0 {
		return &RemoteFailure{Method: method, ClassName: failure.SurrogateClassName, Message: "remote failure with no chain", proximate: throwable}
	}

	chain := make([]FailureFrame, len(frames))
	for i, f := range frames {
		stack := make([]StackElement, len(f.Stack))
		for j, se := range f.Stack {
			stack[j] = StackElement{
				ClassName:  se.ClassName,
				MethodName: se.MethodName,
				FileName:   se.FileName,
				LineNumber: se.LineNumber,
			}
		}
		chain[i] = FailureFrame{ClassName: f.ClassName, Message: f.Message, StackTrace: stack}
	}

	deepest := &chain[len(chain)-1]
	deepest.StackTrace = append(deepest.StackTrace, captureLocalStack(2)...)

	root := chain[0]
	return &RemoteFailure{
		Method:    method,
		ClassName: root.ClassName,
		Message:   root.Message,
		Chain:     chain,
		proximate: throwable,
	}
}

// captureLocalStack walks the calling goroutine's stack starting skip
// frames up from its own caller, so the stub's own Invoke frame does
// not appear in a stitched remote failure's local half.
func captureLocalStack(skip int) []StackElement {
	const maxFrames = 32
	pcs := make([]uintptr, maxFrames)
	n := runtime.Callers(skip+2, pcs)
	if n == 0 {
		return nil
	}
	frames := runtime.CallersFrames(pcs[:n])
	out := make([]StackElement, 0, n)
	for {
		f, more := frames.Next()
		out = append(out, StackElement{MethodName: f.Function, FileName: f.File, LineNumber: int32(f.Line)})
		if !more {
			break
		}
	}
	return out
}
