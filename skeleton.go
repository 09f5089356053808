package rmi

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/oriys/novarmi/internal/failure"
	"github.com/oriys/novarmi/internal/telemetry"
	"github.com/oriys/novarmi/internal/wire"
)

// exportBinding pairs an exported object with the dispatch table built
// from the RemoteInfo it was exported under. This is what a Session
// stores as a registry.ExportedObject's Object field, so the registry
// stays the single source of truth for an export's lifecycle (including
// distributed GC) without needing a parallel session-level map.
type exportBinding struct {
	value interface{}
	table *dispatchTable
}

// serveChannel runs the skeleton dispatch loop for one accepted
// connection: read an invocation, dispatch it, write the reply, repeat
// until the peer closes the connection or the stream is corrupted. This
// mirrors the client broker's channel reuse — the same physical
// connection carries a sequence of invocations, one at a time, exactly
// as the pool hands the same *wire.Channel back out across repeated
// Connect/Recycle calls on the dialing side.
func (s *Session) serveChannel(ch *wire.Channel) {
	defer ch.Close()
	for {
		if err := s.dispatchOne(ch); err != nil {
			return
		}
	}
}

// dispatchOne performs one skeleton invocation: read the object and
// method identifiers, decode parameters, dispatch, and write back a
// completion marker and either a return value or a failure. It returns
// io.EOF when the peer closed the connection cleanly between
// invocations, and any other error when the stream could not be
// trusted to carry a further invocation.
func (s *Session) dispatchOne(ch *wire.Channel) error {
	in := ch.Reader()

	objIDLong, err := in.ReadLong()
	if err != nil {
		return err
	}
	methodIDLong, err := in.ReadLong()
	if err != nil {
		return err
	}
	objID := uint64(objIDLong)
	methodID := Identifier(uint64(methodIDLong))

	exported, found := s.registry.Lookup(objID)
	if !found {
		return fmt.Errorf("rmi: %w: object %x", ErrNoSuchObject, objID)
	}
	binding, ok := exported.Object.(*exportBinding)
	if !ok {
		return fmt.Errorf("rmi: object %x is not a dispatch-bound export", objID)
	}
	rm, ok := binding.table.byID[methodID]
	if !ok {
		return fmt.Errorf("rmi: %w: %s", ErrNoSuchMethod, methodID)
	}

	if rm.Pipe {
		return fmt.Errorf("rmi: %w: %s.%s uses a pipe parameter, unsupported by this runtime", ErrUnimplementedMethod, binding.table.info.TypeName, rm.Name)
	}

	ctx, span := telemetry.StartServerSpan(context.Background(), s.telemetry, rm.Name, objID)
	defer span.End()
	start := time.Now()

	scope := in.NewScope()
	params := make([]interface{}, len(rm.Params))
	for i, p := range rm.Params {
		v, err := readValue(in, scope, p)
		if err != nil {
			return err
		}
		if p.Remote && v != nil {
			mr, ok := v.(*MarshalledRemote)
			if !ok {
				return fmt.Errorf("rmi: %s.%s: parameter %d: expected a MarshalledRemote, got %T", binding.table.info.TypeName, rm.Name, i, v)
			}
			v, err = s.resolveRemote(mr)
			if err != nil {
				return err
			}
		}
		params[i] = v
	}

	result, callErr := s.invokeTarget(ctx, binding, rm, params)

	if rm.Async {
		s.recordServerInvocation(ctx, objID, binding.table.info.TypeName, rm.Name, rm.FailureClassName, start, true, callErr == nil, callErr)
		if callErr != nil {
			telemetry.SetSpanError(span, callErr, rm.FailureClassName)
			if s.onAsyncError != nil {
				s.onAsyncError(&AsynchronousInvocationError{Method: rm.Name, Cause: callErr})
			}
		} else {
			telemetry.SetSpanOK(span)
		}
		return nil
	}

	out := ch.Writer()
	var writeErr error
	if callErr != nil {
		writeErr = out.WriteNotOk()
		if writeErr == nil {
			writeErr = failure.WriteChain(out, failure.Capture(callErr, 2))
		}
		if writeErr == nil {
			writeErr = failure.WriteThrowable(out, callErr)
		}
		telemetry.SetSpanError(span, callErr, rm.FailureClassName)
	} else {
		boolResult, _ := result.(bool)
		if writeErr = out.WriteOk(boolResult); writeErr == nil && rm.Return != nil {
			retVal := result
			if rm.Return.Remote && retVal != nil {
				if st, ok := retVal.(*Stub); ok {
					retVal = s.marshalRemote(st)
				}
			}
			writeErr = writeValue(out, scope, *rm.Return, retVal)
		}
		telemetry.SetSpanOK(span)
	}
	if writeErr == nil {
		writeErr = out.Flush()
	}
	s.recordServerInvocation(ctx, objID, binding.table.info.TypeName, rm.Name, rm.FailureClassName, start, false, callErr == nil, callErr)
	return writeErr
}

// invokeTarget calls the bound Go method for rm via reflection. A
// generic dispatch table has no compile-time knowledge of the target
// interface's exact parameter types, so each decoded value is converted
// to the declared parameter type before the call; this is the one place
// reflect.Value.Call stands in for the per-interface generated skeleton
// a bytecode-based RMI implementation would have produced instead.
func (s *Session) invokeTarget(ctx context.Context, binding *exportBinding, rm *RemoteMethod, params []interface{}) (result interface{}, err error) {
	method := reflect.ValueOf(binding.value).MethodByName(rm.Name)
	if !method.IsValid() {
		return nil, fmt.Errorf("rmi: %w: %s has no method %s", ErrNoSuchMethod, binding.table.info.TypeName, rm.Name)
	}
	mt := method.Type()

	args := make([]reflect.Value, 0, mt.NumIn())
	argIdx := 0
	for i := 0; i < mt.NumIn(); i++ {
		in := mt.In(i)
		if in == contextIfaceType {
			args = append(args, reflect.ValueOf(ctx))
			continue
		}
		if argIdx >= len(params) {
			return nil, fmt.Errorf("rmi: %s.%s: missing parameter %d", binding.table.info.TypeName, rm.Name, i)
		}
		v := params[argIdx]
		argIdx++
		if v == nil {
			args = append(args, reflect.Zero(in))
			continue
		}
		rv := reflect.ValueOf(v)
		if rv.Type() != in && rv.Type().ConvertibleTo(in) {
			rv = rv.Convert(in)
		}
		args = append(args, rv)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("rmi: %s.%s panicked: %v", binding.table.info.TypeName, rm.Name, r)
		}
	}()

	out := method.Call(args)
	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		if !out[0].IsNil() {
			return nil, out[0].Interface().(error)
		}
		return nil, nil
	case 2:
		if !out[1].IsNil() {
			return nil, out[1].Interface().(error)
		}
		return out[0].Interface(), nil
	default:
		return nil, fmt.Errorf("rmi: %s.%s: unexpected return arity %d", binding.table.info.TypeName, rm.Name, len(out))
	}
}
