// Package wire implements the canonical, schema-driven wire codec of
// spec.md §4.2 and §6: Operation{opId, senderNodeInfo?, kind} plus every
// Question/Statement/Answer payload named in spec.md §4.7. Encoding is
// deterministic (fixed field widths, no varint) so a re-encoded SignedNodeInfo
// hashes identically to the one that was signed, as spec.md §4.2 requires.
//
// The append/chop helper pair below mirrors the teacher's own wire.go
// convention (wireAppend* writes to a growing []byte, wireChop* consumes a
// prefix of a shrinking one) generalized from the teacher's varint scheme to
// fixed-width little-endian integers, since spec.md §6 mandates fixed
// integer widths rather than compact varints.
package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/veilnet/veilnet/types"
	"github.com/veilnet/veilnet/verrors"
)

// MaxEnvelopeSize is the framing cap from spec.md §6.
const MaxEnvelopeSize = 65535

func wireAppendUint8(dest []byte, v uint8) []byte {
	return append(dest, v)
}

func wireChopUint8(out *uint8, data *[]byte) bool {
	if len(*data) < 1 {
		return false
	}
	*out = (*data)[0]
	*data = (*data)[1:]
	return true
}

func wireAppendUint16(dest []byte, v uint16) []byte {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	return append(dest, b[:]...)
}

func wireChopUint16(out *uint16, data *[]byte) bool {
	if len(*data) < 2 {
		return false
	}
	*out = binary.LittleEndian.Uint16(*data)
	*data = (*data)[2:]
	return true
}

func wireAppendUint32(dest []byte, v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return append(dest, b[:]...)
}

func wireChopUint32(out *uint32, data *[]byte) bool {
	if len(*data) < 4 {
		return false
	}
	*out = binary.LittleEndian.Uint32(*data)
	*data = (*data)[4:]
	return true
}

func wireAppendUint64(dest []byte, v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return append(dest, b[:]...)
}

func wireChopUint64(out *uint64, data *[]byte) bool {
	if len(*data) < 8 {
		return false
	}
	*out = binary.LittleEndian.Uint64(*data)
	*data = (*data)[8:]
	return true
}

func wireAppendBool(dest []byte, v bool) []byte {
	if v {
		return append(dest, 1)
	}
	return append(dest, 0)
}

func wireChopBool(out *bool, data *[]byte) bool {
	var b uint8
	if !wireChopUint8(&b, data) {
		return false
	}
	*out = b != 0
	return true
}

// wireAppendBytes writes a u32-LE length prefix followed by the bytes.
func wireAppendBytes(dest []byte, b []byte) []byte {
	dest = wireAppendUint32(dest, uint32(len(b)))
	return append(dest, b...)
}

func wireChopBytes(out *[]byte, data *[]byte) bool {
	var n uint32
	if !wireChopUint32(&n, data) {
		return false
	}
	if uint32(len(*data)) < n {
		return false
	}
	*out = append([]byte(nil), (*data)[:n]...)
	*data = (*data)[n:]
	return true
}

func wireAppendFixed(dest []byte, b []byte) []byte {
	return append(dest, b...)
}

func wireChopFixed(out []byte, data *[]byte) bool {
	if len(*data) < len(out) {
		return false
	}
	copy(out, *data)
	*data = (*data)[len(out):]
	return true
}

func wireAppendCryptoKind(dest []byte, k types.CryptoKind) []byte {
	return append(dest, k[:]...)
}

func wireChopCryptoKind(out *types.CryptoKind, data *[]byte) bool {
	return wireChopFixed(out[:], data)
}

func wireAppendNodeID(dest []byte, id types.NodeID) []byte {
	dest = wireAppendCryptoKind(dest, id.Kind)
	return wireAppendFixed(dest, id.Value[:])
}

func wireChopNodeID(out *types.NodeID, data *[]byte) bool {
	if !wireChopCryptoKind(&out.Kind, data) {
		return false
	}
	return wireChopFixed(out.Value[:], data)
}

// encodeable is implemented by every concrete wire type: fixed-shape
// structs implement size/encode directly, variable-shape ones (those
// containing byte slices or sub-messages) still report an exact size so
// encode can preallocate.
type encodeable interface {
	wireSize() int
	wireEncode(out []byte) ([]byte, error)
}

func malformed(what string) error {
	return fmt.Errorf("%w: %s", verrors.MalformedMessage, what)
}

func oversized(n int) error {
	return fmt.Errorf("%w: envelope of %d bytes exceeds %d byte cap", verrors.MalformedMessage, n, MaxEnvelopeSize)
}
