// Package wire implements the on-the-wire framing for one invocation:
// the variable-length unsigned integer encoding used for lengths and
// chain counts, the compact string codec, and the InvocationChannel /
// InvocationInput / InvocationOutput types that carry one request and
// its reply.
//
// # Encoding layout
//
// Two distinct tag grammars coexist on the wire and must not be
// confused:
//
//  1. Variable-length unsigned integers (var-uint), used for string
//     lengths and throwable-chain counts.
//     The first byte's high bits select a 1..5 byte total encoding
//     (see varuint.go).
//  2. The compact per-character string encoding, used only inside a
//     string's character sequence once its var-uint length has been
//     read. Each character's first byte's high bits select a 1..3
//     byte encoding; a leading 111 pattern is illegal (see string.go).
//
// A single reserved byte value (nullSentinel, 0xFF) takes the place of a
// string's var-uint length to mean "no value"; it carries no special
// meaning to the general-purpose ReadVarUint/WriteVarUint used for
// non-nullable counts such as a throwable chain length. Boxed primitives
// use a separate one-byte presence flag instead: NullByte (0) for nil,
// 1 followed by the raw value otherwise.
package wire
