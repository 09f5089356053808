package rmi

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

// Identifier is a cryptographically-unguessable 64-bit stable identity.
// Two identifiers are equal iff their underlying values are; the wire
// encoding is eight bytes, big-endian.
type Identifier uint64

// NewIdentifier mints a fresh Identifier from a cryptographically strong
// random source. The all-zero value is never returned; it is reserved as
// the wire sentinel for "no identifier" in contexts that need one.
func NewIdentifier() (Identifier, error) {
	var buf [8]byte
	for {
		if _, err := rand.Read(buf[:]); err != nil {
			return 0, fmt.Errorf("rmi: generate identifier: %w", err)
		}
		if id := Identifier(binary.BigEndian.Uint64(buf[:])); id != 0 {
			return id, nil
		}
	}
}

// String renders the identifier as a fixed-width hex string.
func (id Identifier) String() string {
	return fmt.Sprintf("%016x", uint64(id))
}

func (id Identifier) putBytes(dst []byte) {
	binary.BigEndian.PutUint64(dst, uint64(id))
}

func identifierFromBytes(src []byte) Identifier {
	return Identifier(binary.BigEndian.Uint64(src))
}

// VersionedIdentifier pairs an Identifier with the two monotonic counters
// used by distributed garbage collection to detect stale references.
//
// localVersion increases by one every time the minting side re-exports
// this identifier (e.g. after a prior export was dropped and the object
// is exported again). remoteVersion records the highest version this
// side has observed the peer acknowledge. A reference is eligible for
// reclamation once the peer acknowledges a remoteVersion >= the current
// localVersion and no local strong reference remains.
type VersionedIdentifier struct {
	ID            Identifier
	LocalVersion  uint32
	RemoteVersion uint32
}

// Bump returns a copy with LocalVersion incremented, used on re-export
// after a prior export of the same identifier was dropped.
func (v VersionedIdentifier) Bump() VersionedIdentifier {
	v.LocalVersion++
	return v
}

// Stale reports whether the peer has acknowledged a remoteVersion that
// makes this versioned identifier eligible for reclamation, i.e. the
// acknowledged version is not older than the version that was last sent.
func (v VersionedIdentifier) Stale(ackRemoteVersion uint32) bool {
	return ackRemoteVersion >= v.LocalVersion
}

// versionedIdentifierWireSize is the encoded size of a VersionedIdentifier: 8 bytes of
// Identifier plus 4 bytes of LocalVersion (the sender's view at write
// time; the recipient folds it into its own view of RemoteVersion).
const versionedIdentifierWireSize = 8 + 4

func (v VersionedIdentifier) putBytes(dst []byte) {
	v.ID.putBytes(dst[:8])
	binary.BigEndian.PutUint32(dst[8:12], v.LocalVersion)
}

func versionedIdentifierFromBytes(src []byte) VersionedIdentifier {
	return VersionedIdentifier{
		ID:           identifierFromBytes(src[:8]),
		LocalVersion: binary.BigEndian.Uint32(src[8:12]),
	}
}
