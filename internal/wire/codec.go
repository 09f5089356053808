package wire

import "io"

// Codec is the pluggable object marshaller invocation framing delegates
// user-object serialization to. It only requires that a single
// reply's shared writes and reads form one sharing scope, and that
// unshared values be serialized outside that scope — everything else is
// up to the implementation.
type Codec interface {
	// NewScope returns a fresh sharing scope, created once per
	// request/reply so that identity is preserved only within it.
	NewScope() Scope

	// EncodeShared writes v to w, recording its identity in scope so a
	// later EncodeShared of the same pointer within the same scope emits
	// a back-reference instead of a full copy.
	EncodeShared(scope Scope, v interface{}, w io.Writer) error
	// DecodeShared mirrors EncodeShared.
	DecodeShared(scope Scope, r io.Reader) (interface{}, error)

	// EncodeUnshared writes v to w without consulting or updating any
	// scope; every call produces a fresh, independent copy on the wire.
	EncodeUnshared(v interface{}, w io.Writer) error
	// DecodeUnshared mirrors EncodeUnshared.
	DecodeUnshared(r io.Reader) (interface{}, error)
}

// Scope is an opaque per-reply sharing context created by Codec.NewScope.
type Scope interface{}
