package route

import (
	"encoding/binary"
	"fmt"

	"github.com/veilnet/veilnet/types"
)

// layer is the plaintext an onion hop recovers after decrypting one
// RouteHopData. It is self-describing so a forwarding node never needs
// global knowledge of the route's remaining hop count. The three shapes
// mirror spec.md §4.6's own tag scheme (0x00 = another RouteHop, 0x01 =
// an embedded PrivateRoute) plus a third, route-internal-only tag for the
// terminal case: the innermost layer of a PrivateRoute, meant for local
// delivery at the route's owner rather than further forwarding. This is
// internal to package route — distinct from the public envelope codec in
// package wire, since it never appears as a standalone RPC operation.
type layerTag byte

const (
	layerTagRouteHop layerTag = iota
	layerTagPrivateRoute
	layerTagTerminal
)

type layer struct {
	tag layerTag

	next     types.NodeID       // layerTagRouteHop
	nextData *types.RouteHopData // layerTagRouteHop
	private  *types.PrivateRoute // layerTagPrivateRoute
	payload  []byte              // layerTagTerminal
}

func encodeLayer(l layer) []byte {
	switch l.tag {
	case layerTagTerminal:
		out := make([]byte, 0, 1+4+len(l.payload))
		out = append(out, byte(layerTagTerminal))
		out = appendLenPrefixed(out, l.payload)
		return out
	case layerTagPrivateRoute:
		blob, err := encodePrivateRouteForOnion(l.private)
		if err != nil {
			blob = nil
		}
		out := make([]byte, 0, 1+len(blob))
		out = append(out, byte(layerTagPrivateRoute))
		out = appendLenPrefixed(out, blob)
		return out
	default:
		out := make([]byte, 0, 1+types.CryptoKindLen+types.NodeIDLen+24+4+len(l.nextData.Blob))
		out = append(out, byte(layerTagRouteHop))
		out = append(out, l.next.Kind[:]...)
		out = append(out, l.next.Value[:]...)
		out = append(out, l.nextData.Nonce[:]...)
		out = appendLenPrefixed(out, l.nextData.Blob)
		return out
	}
}

func appendLenPrefixed(dest, data []byte) []byte {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(data)))
	dest = append(dest, lenBuf[:]...)
	return append(dest, data...)
}

func chopLenPrefixed(data []byte) ([]byte, []byte, error) {
	if len(data) < 4 {
		return nil, nil, fmt.Errorf("route: truncated length prefix")
	}
	n := binary.LittleEndian.Uint32(data[:4])
	data = data[4:]
	if uint32(len(data)) < n {
		return nil, nil, fmt.Errorf("route: length-prefixed field truncated")
	}
	return data[:n], data[n:], nil
}

func decodeLayer(data []byte) (layer, error) {
	if len(data) < 1 {
		return layer{}, fmt.Errorf("route: empty layer")
	}
	tag := layerTag(data[0])
	data = data[1:]

	switch tag {
	case layerTagTerminal:
		payload, rest, err := chopLenPrefixed(data)
		if err != nil {
			return layer{}, err
		}
		if len(rest) != 0 {
			return layer{}, fmt.Errorf("route: trailing bytes after terminal layer")
		}
		return layer{tag: layerTagTerminal, payload: payload}, nil

	case layerTagPrivateRoute:
		blob, rest, err := chopLenPrefixed(data)
		if err != nil {
			return layer{}, err
		}
		if len(rest) != 0 {
			return layer{}, fmt.Errorf("route: trailing bytes after embedded private route")
		}
		pr, err := decodePrivateRouteFromOnion(blob)
		if err != nil {
			return layer{}, err
		}
		return layer{tag: layerTagPrivateRoute, private: pr}, nil

	case layerTagRouteHop:
		if len(data) < types.CryptoKindLen+types.NodeIDLen+24 {
			return layer{}, fmt.Errorf("route: truncated forwarding layer")
		}
		var next types.NodeID
		copy(next.Kind[:], data[:types.CryptoKindLen])
		data = data[types.CryptoKindLen:]
		copy(next.Value[:], data[:types.NodeIDLen])
		data = data[types.NodeIDLen:]
		var nd types.RouteHopData
		copy(nd.Nonce[:], data[:24])
		data = data[24:]
		blob, rest, err := chopLenPrefixed(data)
		if err != nil {
			return layer{}, err
		}
		if len(rest) != 0 {
			return layer{}, fmt.Errorf("route: trailing bytes after forwarding layer")
		}
		nd.Blob = blob
		return layer{tag: layerTagRouteHop, next: next, nextData: &nd}, nil

	default:
		return layer{}, fmt.Errorf("route: unknown layer tag %d", tag)
	}
}

// encodePrivateRouteForOnion/decodePrivateRouteFromOnion reuse the public
// wire codec's PrivateRoute encoding rather than inventing a second one,
// since a PrivateRoute's shape is identical whether it travels standalone
// (handed out to a caller) or embedded inside a safety route's innermost
// onion layer.
func encodePrivateRouteForOnion(p *types.PrivateRoute) ([]byte, error) {
	return privateRouteWireBytes(p), nil
}

func decodePrivateRouteFromOnion(data []byte) (*types.PrivateRoute, error) {
	pr, err := privateRouteFromWireBytes(data)
	if err != nil {
		return nil, err
	}
	return pr, nil
}
