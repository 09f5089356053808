package rmi

import (
	"context"
	"fmt"
	"io"
	"reflect"
)

// PrimitiveKind tags a RemoteParameter's wire representation so the
// stub/skeleton dispatch table can pick the matching InvocationOutput/
// InvocationInput writer/reader without a type switch at call time.
type PrimitiveKind int

const (
	KindObject PrimitiveKind = iota
	KindBool
	KindChar
	KindInt32
	KindInt64
	KindFloat32
	KindFloat64
	KindString
)

func (k PrimitiveKind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindChar:
		return "char"
	case KindInt32:
		return "int32"
	case KindInt64:
		return "int64"
	case KindFloat32:
		return "float32"
	case KindFloat64:
		return "float64"
	case KindString:
		return "string"
	default:
		return "object"
	}
}

// RemoteParameter describes one method parameter (or return value) as
// it will cross the wire.
type RemoteParameter struct {
	TypeName string
	Kind     PrimitiveKind
	// Unshared forces single-use marshalling (WriteUnshared/ReadUnshared)
	// instead of identity-preserving WriteObject/ReadObject. DescribeType
	// cannot observe this from a Go interface's method signature alone —
	// it always defaults to false — so a caller that needs unshared
	// marshalling for a given parameter patches the returned RemoteInfo
	// before exporting it.
	Unshared bool
	// Remote reports that this parameter is itself a remote reference
	// (marshalled as a MarshalledRemote) rather than by value.
	Remote bool
}

// RemoteMethod describes one method of a remote-capable interface: its
// stable wire ordinal, parameter list, optional return value, and
// dispatch flags.
type RemoteMethod struct {
	MethodID Identifier
	Name     string
	Params   []RemoteParameter
	// Return is nil for a method with no return value (async, or a
	// synchronous method whose only output is an error).
	Return *RemoteParameter
	// Async marks a fire-and-forget invocation: the stub does not wait
	// for a reply, and any dispatch failure is reported through
	// Session.OnAsyncError rather than returned to the caller.
	Async bool
	// Pipe marks a method whose final parameter is a Pipe. The skeleton
	// does not dispatch such a method: it rejects the call with
	// ErrUnimplementedMethod, and no stream is opened.
	Pipe bool
	// FailureClassName is the declared class name a NOT_OK reply's
	// reconstructed RemoteFailure is tagged with when this method's
	// declared error type offers no better name.
	FailureClassName string
}

// RemoteInfo is the transmitted metadata for one remote-capable
// interface: a stable type identifier and its ordered method list.
// Two sessions exchange a type's RemoteInfo once, on first reference;
// thereafter only the TypeID travels with a MarshalledRemote.
type RemoteInfo struct {
	TypeID   Identifier
	TypeName string
	Methods  []RemoteMethod
}

// MethodByID finds a method by its wire ordinal, returning
// ErrNoSuchMethod if absent.
func (ri *RemoteInfo) MethodByID(id Identifier) (*RemoteMethod, error) {
	for i := range ri.Methods {
		if ri.Methods[i].MethodID == id {
			return &ri.Methods[i], nil
		}
	}
	return nil, ErrNoSuchMethod
}

// pipeType is the marker interface a method's final parameter
// implements to be treated as a Pipe (a side-channel bidirectional
// stream; dispatchOne rejects methods that declare one).
type pipeType = io.ReadWriteCloser

var (
	errorIfaceType   = reflect.TypeOf((*error)(nil)).Elem()
	contextIfaceType = reflect.TypeOf((*context.Context)(nil)).Elem()
	pipeIfaceType    = reflect.TypeOf((*pipeType)(nil)).Elem()
)

// DescribeType reflects over a Go interface type and builds the
// RemoteInfo a Session uses to export or import it. iface must be an
// interface type (typically obtained via
// reflect.TypeOf((*MyService)(nil)).Elem()).
//
// Go offers no bytecode-generation analogue, so there is no annotation
// surface for the "unshared" and "declared failure" flags a
// reflection-only pass cannot recover; see RemoteParameter.Unshared
// and RemoteMethod.FailureClassName for the defaults DescribeType
// picks and how a caller overrides them.
func DescribeType(typeName string, iface reflect.Type) (*RemoteInfo, error) {
	if iface.Kind() != reflect.Interface {
		return nil, fmt.Errorf("rmi: DescribeType: %s is not an interface type", iface)
	}

	typeID, err := NewIdentifier()
	if err != nil {
		return nil, fmt.Errorf("rmi: DescribeType: %w", err)
	}

	info := &RemoteInfo{TypeID: typeID, TypeName: typeName}
	for i := 0; i < iface.NumMethod(); i++ {
		m := iface.Method(i)
		rm, err := describeMethod(m)
		if err != nil {
			return nil, fmt.Errorf("rmi: DescribeType: method %s.%s: %w", typeName, m.Name, err)
		}
		info.Methods = append(info.Methods, *rm)
	}
	return info, nil
}

func describeMethod(m reflect.Method) (*RemoteMethod, error) {
	methodID, err := NewIdentifier()
	if err != nil {
		return nil, err
	}

	rm := &RemoteMethod{MethodID: methodID, Name: m.Name, FailureClassName: "error"}

	mt := m.Type
	for i := 0; i < mt.NumIn(); i++ {
		in := mt.In(i)
		if in == contextIfaceType {
			continue
		}
		if in.Implements(pipeIfaceType) || in == pipeIfaceType {
			rm.Pipe = true
			continue
		}
		rm.Params = append(rm.Params, describeParameter(in))
	}

	switch mt.NumOut() {
	case 0:
		rm.Async = true
	case 1:
		if mt.Out(0) != errorIfaceType {
			return nil, fmt.Errorf("a single return value must be error, got %s", mt.Out(0))
		}
	case 2:
		if mt.Out(1) != errorIfaceType {
			return nil, fmt.Errorf("second return value must be error, got %s", mt.Out(1))
		}
		ret := describeParameter(mt.Out(0))
		rm.Return = &ret
	default:
		return nil, fmt.Errorf("at most (value, error) may be returned, got %d values", mt.NumOut())
	}

	return rm, nil
}

// stubPtrType identifies a *Stub parameter or return value: the
// concrete type this runtime requires for a remote-reference argument,
// since Go has no bytecode-generation analogue able to synthesize a
// proxy implementing an arbitrary declared interface the way a
// generated stub class would. A caller that wants to pass or receive a
// remote reference declares it as *Stub in its Go interface, not as the
// original business interface.
var stubPtrType = reflect.TypeOf((*Stub)(nil))

func describeParameter(t reflect.Type) RemoteParameter {
	p := RemoteParameter{TypeName: t.String(), Kind: KindObject}
	switch {
	case t == stubPtrType:
		p.Remote = true
	case t.Kind() == reflect.Bool:
		p.Kind = KindBool
	case t.Kind() == reflect.Int32:
		p.Kind = KindInt32
	case t.Kind() == reflect.Int64, t.Kind() == reflect.Int:
		p.Kind = KindInt64
	case t.Kind() == reflect.Float32:
		p.Kind = KindFloat32
	case t.Kind() == reflect.Float64:
		p.Kind = KindFloat64
	case t.Kind() == reflect.String:
		p.Kind = KindString
	case t.Kind() == reflect.Uint16:
		p.Kind = KindChar
	}
	return p
}
