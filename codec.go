package rmi

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
	"reflect"

	"github.com/oriys/novarmi/internal/wire"
)

// gobCodec is the default wire.Codec, built on encoding/gob. Callers
// that put their own types across the wire must gob.Register them
// exactly as they would for any other gob stream; novarmi imposes no
// additional requirement.
type gobCodec struct{}

// NewGobCodec returns the default ObjectCodec. A Session uses this
// unless SessionConfig.Codec is set.
func NewGobCodec() wire.Codec { return gobCodec{} }

// sharingScope tracks identity within one request/reply so a pointer
// encoded twice in the same scope is sent once, with later occurrences
// as a back-reference.
type sharingScope struct {
	nextID  uint32
	encoded map[uintptr]uint32    // live-object pointer -> wire id, encode side
	decoded map[uint32]interface{} // wire id -> value, decode side
}

func (gobCodec) NewScope() wire.Scope {
	return &sharingScope{
		encoded: make(map[uintptr]uint32),
		decoded: make(map[uint32]interface{}),
	}
}

// Tag byte values framing one EncodeShared/DecodeShared value. These
// are local to the codec's own sub-framing within a parameter slot;
// they have no relation to the InvocationInput/Output completion
// markers in internal/wire.
const (
	tagNil = 0
	tagNew = 1
	tagRef = 2
)

func identityKey(v interface{}) (uintptr, bool) {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr && !rv.IsNil() {
		return rv.Pointer(), true
	}
	return 0, false
}

func (gobCodec) EncodeShared(scope wire.Scope, v interface{}, w io.Writer) error {
	sc, ok := scope.(*sharingScope)
	if !ok {
		return fmt.Errorf("rmi: codec: scope is not a *sharingScope")
	}
	if v == nil {
		return writeTagID(w, tagNil, 0)
	}

	if key, isPtr := identityKey(v); isPtr {
		if id, seen := sc.encoded[key]; seen {
			return writeTagID(w, tagRef, id)
		}
		sc.nextID++
		id := sc.nextID
		sc.encoded[key] = id
		if err := writeTagID(w, tagNew, id); err != nil {
			return err
		}
		return gobEncode(v, w)
	}

	if err := writeTagID(w, tagNew, 0); err != nil {
		return err
	}
	return gobEncode(v, w)
}

func (gobCodec) DecodeShared(scope wire.Scope, r io.Reader) (interface{}, error) {
	sc, ok := scope.(*sharingScope)
	if !ok {
		return nil, fmt.Errorf("rmi: codec: scope is not a *sharingScope")
	}
	tag, id, err := readTagID(r)
	if err != nil {
		return nil, err
	}
	switch tag {
	case tagNil:
		return nil, nil
	case tagRef:
		v, found := sc.decoded[id]
		if !found {
			return nil, fmt.Errorf("rmi: codec: unknown back-reference id %d", id)
		}
		return v, nil
	case tagNew:
		v, err := gobDecode(r)
		if err != nil {
			return nil, err
		}
		if id != 0 {
			sc.decoded[id] = v
		}
		return v, nil
	default:
		return nil, fmt.Errorf("rmi: codec: illegal sharing tag %d", tag)
	}
}

func (gobCodec) EncodeUnshared(v interface{}, w io.Writer) error {
	if v == nil {
		return writeTagID(w, tagNil, 0)
	}
	if err := writeTagID(w, tagNew, 0); err != nil {
		return err
	}
	return gobEncode(v, w)
}

func (gobCodec) DecodeUnshared(r io.Reader) (interface{}, error) {
	tag, _, err := readTagID(r)
	if err != nil {
		return nil, err
	}
	if tag == tagNil {
		return nil, nil
	}
	return gobDecode(r)
}

func writeTagID(w io.Writer, tag byte, id uint32) error {
	var buf [5]byte
	buf[0] = tag
	binary.BigEndian.PutUint32(buf[1:], id)
	_, err := w.Write(buf[:])
	return err
}

func readTagID(r io.Reader) (tag byte, id uint32, err error) {
	var buf [5]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, 0, err
	}
	return buf[0], binary.BigEndian.Uint32(buf[1:]), nil
}

func gobEncode(v interface{}, w io.Writer) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&v); err != nil {
		return fmt.Errorf("%w: %v", ErrNonSerializable, err)
	}
	if err := binary.Write(w, binary.BigEndian, uint32(buf.Len())); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}

func gobDecode(r io.Reader) (interface{}, error) {
	var size uint32
	if err := binary.Read(r, binary.BigEndian, &size); err != nil {
		return nil, err
	}
	data := make([]byte, size)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	var v interface{}
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNonSerializable, err)
	}
	return v, nil
}
