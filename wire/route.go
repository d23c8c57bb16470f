package wire

import "github.com/veilnet/veilnet/types"

func routeHopDataSize(d *types.RouteHopData) int {
	if d == nil {
		return 1
	}
	return 1 + 24 + 4 + len(d.Blob)
}

func encodeRouteHopData(dest []byte, d *types.RouteHopData) []byte {
	if d == nil {
		return wireAppendBool(dest, false)
	}
	dest = wireAppendBool(dest, true)
	dest = wireAppendFixed(dest, d.Nonce[:])
	dest = wireAppendBytes(dest, d.Blob)
	return dest
}

func chopRouteHopData(out **types.RouteHopData, data *[]byte) bool {
	var present bool
	if !wireChopBool(&present, data) {
		return false
	}
	if !present {
		*out = nil
		return true
	}
	var d types.RouteHopData
	if !wireChopFixed(d.Nonce[:], data) {
		return false
	}
	if !wireChopBytes(&d.Blob, data) {
		return false
	}
	*out = &d
	return true
}

func routeHopSize(h *types.RouteHop) int {
	if h == nil {
		return 1
	}
	return 1 + types.CryptoKindLen + types.NodeIDLen + routeHopDataSize(h.NextHop)
}

func encodeRouteHop(dest []byte, h *types.RouteHop) []byte {
	if h == nil {
		return wireAppendBool(dest, false)
	}
	dest = wireAppendBool(dest, true)
	dest = wireAppendNodeID(dest, h.Node)
	dest = encodeRouteHopData(dest, h.NextHop)
	return dest
}

func chopRouteHop(out **types.RouteHop, data *[]byte) bool {
	var present bool
	if !wireChopBool(&present, data) {
		return false
	}
	if !present {
		*out = nil
		return true
	}
	var h types.RouteHop
	if !wireChopNodeID(&h.Node, data) {
		return false
	}
	if !chopRouteHopData(&h.NextHop, data) {
		return false
	}
	*out = &h
	return true
}

func privateRouteSize(p *types.PrivateRoute) int {
	if p == nil {
		return 1
	}
	return 1 + 32 + 1 + routeHopSize(p.FirstHop)
}

func encodePrivateRoute(dest []byte, p *types.PrivateRoute) []byte {
	if p == nil {
		return wireAppendBool(dest, false)
	}
	dest = wireAppendBool(dest, true)
	dest = wireAppendFixed(dest, p.PublicKey[:])
	dest = wireAppendUint8(dest, p.HopCount)
	dest = encodeRouteHop(dest, p.FirstHop)
	return dest
}

func chopPrivateRoute(out **types.PrivateRoute, data *[]byte) bool {
	var present bool
	if !wireChopBool(&present, data) {
		return false
	}
	if !present {
		*out = nil
		return true
	}
	var p types.PrivateRoute
	if !wireChopFixed(p.PublicKey[:], data) {
		return false
	}
	if !wireChopUint8(&p.HopCount, data) {
		return false
	}
	if !chopRouteHop(&p.FirstHop, data) {
		return false
	}
	*out = &p
	return true
}

func safetyRouteSize(s *types.SafetyRoute) int {
	if s == nil {
		return 1
	}
	return 1 + 32 + 1 + routeHopDataSize(s.Hops) + privateRouteSize(s.Private)
}

// EncodeSafetyRoute appends a SafetyRoute to dest, used both for the wire
// form embedded in a RoutedOperation and internally by the route package.
func EncodeSafetyRoute(dest []byte, s *types.SafetyRoute) []byte {
	if s == nil {
		return wireAppendBool(dest, false)
	}
	dest = wireAppendBool(dest, true)
	dest = wireAppendFixed(dest, s.PublicKey[:])
	dest = wireAppendUint8(dest, s.HopCount)
	dest = encodeRouteHopData(dest, s.Hops)
	dest = encodePrivateRoute(dest, s.Private)
	return dest
}

// ChopSafetyRoute consumes a SafetyRoute from the front of data.
func ChopSafetyRoute(out **types.SafetyRoute, data *[]byte) bool {
	var present bool
	if !wireChopBool(&present, data) {
		return false
	}
	if !present {
		*out = nil
		return true
	}
	var s types.SafetyRoute
	if !wireChopFixed(s.PublicKey[:], data) {
		return false
	}
	if !wireChopUint8(&s.HopCount, data) {
		return false
	}
	if !chopRouteHopData(&s.Hops, data) {
		return false
	}
	if !chopPrivateRoute(&s.Private, data) {
		return false
	}
	*out = &s
	return true
}

// EncodePrivateRoute/ChopPrivateRoute are exported for the route package,
// which publishes a PrivateRoute independently of any SafetyRoute.
func EncodePrivateRoute(dest []byte, p *types.PrivateRoute) []byte { return encodePrivateRoute(dest, p) }
func ChopPrivateRoute(out **types.PrivateRoute, data *[]byte) bool { return chopPrivateRoute(out, data) }
func PrivateRouteSize(p *types.PrivateRoute) int                   { return privateRouteSize(p) }
