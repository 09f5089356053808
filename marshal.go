package rmi

import (
	"encoding/gob"

	"github.com/oriys/novarmi/internal/wire"
)

func init() {
	gob.Register(&MarshalledRemote{})
}

// MarshalledRemote is the wire representation of a remote object
// reference carried as a parameter or return value: the object's
// versioned identifier, its type's versioned identifier, and the
// type's RemoteInfo the first time a session mentions that type to its
// peer. A later reference to the same TypeID omits Info, relying on
// the peer having cached it from the first sighting.
type MarshalledRemote struct {
	ObjectID VersionedIdentifier
	TypeID   VersionedIdentifier
	TypeName string
	Info     *RemoteInfo
}

// writeValue emits one parameter or return value using the writer that
// matches p's wire representation: remote references and values marked
// Unshared always go through WriteUnshared, primitives go through their
// dedicated fixed-width writer, and everything else falls back to the
// codec's identity-preserving WriteObject.
func writeValue(out *wire.Output, scope wire.Scope, p RemoteParameter, v interface{}) error {
	if p.Remote || p.Unshared {
		return out.WriteUnshared(v)
	}
	switch p.Kind {
	case KindBool:
		b, _ := v.(bool)
		return out.WriteBoolean(b)
	case KindChar:
		c, _ := v.(uint16)
		return out.WriteChar(c)
	case KindInt32:
		n, _ := v.(int32)
		return out.WriteInt(n)
	case KindInt64:
		n, _ := v.(int64)
		return out.WriteLong(n)
	case KindFloat32:
		f, _ := v.(float32)
		return out.WriteFloat(f)
	case KindFloat64:
		f, _ := v.(float64)
		return out.WriteDouble(f)
	case KindString:
		s, _ := v.(string)
		return out.WriteString(&s)
	default:
		return out.WriteObject(scope, v)
	}
}

// readValue is writeValue's mirror image.
func readValue(in *wire.Input, scope wire.Scope, p RemoteParameter) (interface{}, error) {
	if p.Remote || p.Unshared {
		return in.ReadUnshared()
	}
	switch p.Kind {
	case KindBool:
		return in.ReadBoolean()
	case KindChar:
		return in.ReadChar()
	case KindInt32:
		return in.ReadInt()
	case KindInt64:
		return in.ReadLong()
	case KindFloat32:
		return in.ReadFloat()
	case KindFloat64:
		return in.ReadDouble()
	case KindString:
		sp, err := in.ReadString()
		if err != nil {
			return nil, err
		}
		if sp == nil {
			return "", nil
		}
		return *sp, nil
	default:
		return in.ReadObject(scope)
	}
}
