package wire

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"math"
)

// Reply completion-marker bytes. NullByte is only ever used inside
// values (e.g. a nil boxed primitive or a nil string), never as the
// leading byte of a reply.
const (
	NullByte byte = 0
	OkFalse  byte = 1
	OkTrue   byte = 2
	NotOk    byte = 3
)

// Output is the InvocationOutput bound to one Channel: primitive and
// object writers, the completion-marker protocol, and Flush.
type Output struct {
	bw    *bufio.Writer
	w     *deadlineWriter
	codec Codec
}

func newOutput(w *deadlineWriter, codec Codec) *Output {
	return &Output{bw: newBufWriter(w), w: w, codec: codec}
}

func (o *Output) reset() { o.bw.Reset(o.w) }

// Flush sends any buffered bytes to the transport.
func (o *Output) Flush() error { return o.bw.Flush() }

// WriteByte writes a single raw byte.
func (o *Output) WriteByte(b byte) error { return o.bw.WriteByte(b) }

// WriteBoolean writes a boolean as one byte, 0 or 1.
func (o *Output) WriteBoolean(v bool) error {
	if v {
		return o.WriteByte(1)
	}
	return o.WriteByte(0)
}

// WriteChar writes a UTF-16 code unit as two bytes, big-endian.
func (o *Output) WriteChar(v uint16) error {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], v)
	_, err := o.bw.Write(buf[:])
	return err
}

// WriteInt writes a 32-bit signed integer, big-endian.
func (o *Output) WriteInt(v int32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(v))
	_, err := o.bw.Write(buf[:])
	return err
}

// WriteLong writes a 64-bit signed integer, big-endian.
func (o *Output) WriteLong(v int64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(v))
	_, err := o.bw.Write(buf[:])
	return err
}

// WriteFloat writes a 32-bit IEEE-754 float, big-endian.
func (o *Output) WriteFloat(v float32) error {
	return o.WriteInt(int32(math.Float32bits(v)))
}

// WriteDouble writes a 64-bit IEEE-754 float, big-endian.
func (o *Output) WriteDouble(v float64) error {
	return o.WriteLong(int64(math.Float64bits(v)))
}

// WriteVarUint writes n using the var-uint encoding.
func (o *Output) WriteVarUint(n uint32) error { return WriteVarUint(o.bw, n) }

// WriteString writes s (or null if s is nil) using the compact
// per-character string encoding.
func (o *Output) WriteString(s *string) error { return WriteString(o.bw, s) }

// WriteBoxedBool writes a *bool: one null-flag byte, then the value iff
// non-nil.
func (o *Output) WriteBoxedBool(v *bool) error {
	if v == nil {
		return o.WriteByte(NullByte)
	}
	if err := o.WriteByte(1); err != nil {
		return err
	}
	return o.WriteBoolean(*v)
}

// WriteBoxedInt32 writes a *int32: one null-flag byte, then the value
// iff non-nil.
func (o *Output) WriteBoxedInt32(v *int32) error {
	if v == nil {
		return o.WriteByte(NullByte)
	}
	if err := o.WriteByte(1); err != nil {
		return err
	}
	return o.WriteInt(*v)
}

// WriteBoxedInt64 writes a *int64: one null-flag byte, then the value
// iff non-nil.
func (o *Output) WriteBoxedInt64(v *int64) error {
	if v == nil {
		return o.WriteByte(NullByte)
	}
	if err := o.WriteByte(1); err != nil {
		return err
	}
	return o.WriteLong(*v)
}

// WriteBoxedFloat64 writes a *float64: one null-flag byte, then the
// value iff non-nil.
func (o *Output) WriteBoxedFloat64(v *float64) error {
	if v == nil {
		return o.WriteByte(NullByte)
	}
	if err := o.WriteByte(1); err != nil {
		return err
	}
	return o.WriteDouble(*v)
}

// WriteObject marshals v through the codec's shared path, preserving
// identity for repeated writes of the same pointer within scope.
func (o *Output) WriteObject(scope Scope, v interface{}) error {
	return o.codec.EncodeShared(scope, v, o.bw)
}

// WriteUnshared marshals v through the codec's unshared path: every
// call is an independent copy, regardless of scope.
func (o *Output) WriteUnshared(v interface{}) error {
	return o.codec.EncodeUnshared(v, o.bw)
}

// NewScope returns a fresh sharing scope for one request or reply.
func (o *Output) NewScope() Scope { return o.codec.NewScope() }

// TryWriteUnshared attempts to marshal v through the codec's unshared
// path, encoding into a scratch buffer first so a value the codec
// cannot handle never leaves partial bytes in the channel's live
// buffer. It always writes a leading presence boolean: true followed
// by the encoded value, or false alone when v could not be marshaled.
func (o *Output) TryWriteUnshared(v interface{}) error {
	var scratch bytes.Buffer
	if err := o.codec.EncodeUnshared(v, &scratch); err != nil {
		return o.WriteBoolean(false)
	}
	if err := o.WriteBoolean(true); err != nil {
		return err
	}
	_, err := o.bw.Write(scratch.Bytes())
	return err
}

// WriteOk emits the OK_FALSE or OK_TRUE completion marker.
func (o *Output) WriteOk(result bool) error {
	if result {
		return o.WriteByte(OkTrue)
	}
	return o.WriteByte(OkFalse)
}

// WriteNotOk emits the NOT_OK completion marker. The caller (normally
// internal/failure) follows it with the serialized throwable chain and
// then the terminal throwable itself.
func (o *Output) WriteNotOk() error { return o.WriteByte(NotOk) }
