package wire

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
)

// Input is the InvocationInput bound to one Channel: primitive and
// object readers, and the completion-marker protocol.
type Input struct {
	br    *bufio.Reader
	codec Codec
}

func newInput(r *deadlineReader, codec Codec) *Input {
	return &Input{br: newBufReader(r), codec: codec}
}

func (in *Input) reset() { in.br.Discard(in.br.Buffered()) }

// ReadByte reads a single raw byte.
func (in *Input) ReadByte() (byte, error) {
	b, err := in.br.ReadByte()
	if err != nil {
		return 0, wrapEOF(err)
	}
	return b, nil
}

// ReadBoolean reads a boolean written by WriteBoolean.
func (in *Input) ReadBoolean() (bool, error) {
	b, err := in.ReadByte()
	if err != nil {
		return false, err
	}
	return b != 0, nil
}

func (in *Input) readFull(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(in.br, buf); err != nil {
		return nil, wrapEOF(err)
	}
	return buf, nil
}

// ReadChar reads a UTF-16 code unit written by WriteChar.
func (in *Input) ReadChar() (uint16, error) {
	buf, err := in.readFull(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(buf), nil
}

// ReadInt reads a 32-bit signed integer written by WriteInt.
func (in *Input) ReadInt() (int32, error) {
	buf, err := in.readFull(4)
	if err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(buf)), nil
}

// ReadLong reads a 64-bit signed integer written by WriteLong.
func (in *Input) ReadLong() (int64, error) {
	buf, err := in.readFull(8)
	if err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(buf)), nil
}

// ReadFloat reads a 32-bit IEEE-754 float written by WriteFloat.
func (in *Input) ReadFloat() (float32, error) {
	v, err := in.ReadInt()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(uint32(v)), nil
}

// ReadDouble reads a 64-bit IEEE-754 float written by WriteDouble.
func (in *Input) ReadDouble() (float64, error) {
	v, err := in.ReadLong()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(uint64(v)), nil
}

// ReadVarUint reads a value written by WriteVarUint.
func (in *Input) ReadVarUint() (uint32, error) { return ReadVarUint(in.br) }

// ReadString reads a value written by WriteString. The result is nil
// iff the wire value was null.
func (in *Input) ReadString() (*string, error) { return ReadString(in.br) }

// ReadBoxedBool reads a value written by WriteBoxedBool.
func (in *Input) ReadBoxedBool() (*bool, error) {
	flag, err := in.ReadByte()
	if err != nil {
		return nil, err
	}
	if flag == NullByte {
		return nil, nil
	}
	v, err := in.ReadBoolean()
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// ReadBoxedInt32 reads a value written by WriteBoxedInt32.
func (in *Input) ReadBoxedInt32() (*int32, error) {
	flag, err := in.ReadByte()
	if err != nil {
		return nil, err
	}
	if flag == NullByte {
		return nil, nil
	}
	v, err := in.ReadInt()
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// ReadBoxedInt64 reads a value written by WriteBoxedInt64.
func (in *Input) ReadBoxedInt64() (*int64, error) {
	flag, err := in.ReadByte()
	if err != nil {
		return nil, err
	}
	if flag == NullByte {
		return nil, nil
	}
	v, err := in.ReadLong()
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// ReadBoxedFloat64 reads a value written by WriteBoxedFloat64.
func (in *Input) ReadBoxedFloat64() (*float64, error) {
	flag, err := in.ReadByte()
	if err != nil {
		return nil, err
	}
	if flag == NullByte {
		return nil, nil
	}
	v, err := in.ReadDouble()
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// ReadObject unmarshals a value written by WriteObject.
func (in *Input) ReadObject(scope Scope) (interface{}, error) {
	return in.codec.DecodeShared(scope, in.br)
}

// ReadUnshared unmarshals a value written by WriteUnshared.
func (in *Input) ReadUnshared() (interface{}, error) {
	return in.codec.DecodeUnshared(in.br)
}

// NewScope returns a fresh sharing scope for one request or reply.
func (in *Input) NewScope() Scope { return in.codec.NewScope() }

// TryReadUnshared reads a value written by TryWriteUnshared. ok is
// false, with err nil, both when the sender's presence flag was false
// and when this side could not decode the encoded value (an
// unregistered concrete type, most often) — the length-prefixed
// encoding EncodeUnshared already wrote keeps the stream in sync
// either way, so a decode failure here does not desync the channel.
// A non-nil err means the presence flag itself could not be read.
func (in *Input) TryReadUnshared() (v interface{}, ok bool, err error) {
	present, err := in.ReadBoolean()
	if err != nil {
		return nil, false, err
	}
	if !present {
		return nil, false, nil
	}
	v, err = in.codec.DecodeUnshared(in.br)
	if err != nil {
		return nil, false, nil
	}
	return v, true, nil
}

// ReadOk reads the completion-marker byte and reports whether the
// invocation completed normally (and if so, its boolean result), or
// returns ok=false when the marker was NOT_OK and the caller must read
// a throwable chain next.
func (in *Input) ReadOk() (result bool, ok bool, err error) {
	b, err := in.ReadByte()
	if err != nil {
		return false, false, err
	}
	switch b {
	case OkFalse:
		return false, true, nil
	case OkTrue:
		return true, true, nil
	case NotOk:
		return false, false, nil
	default:
		return false, false, ErrStreamCorrupted
	}
}
