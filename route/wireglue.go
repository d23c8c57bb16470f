package route

import (
	"fmt"

	"github.com/veilnet/veilnet/types"
	"github.com/veilnet/veilnet/wire"
)

func privateRouteWireBytes(p *types.PrivateRoute) []byte {
	return wire.EncodePrivateRoute(nil, p)
}

func privateRouteFromWireBytes(data []byte) (*types.PrivateRoute, error) {
	var pr *types.PrivateRoute
	if !wire.ChopPrivateRoute(&pr, &data) {
		return nil, fmt.Errorf("route: malformed embedded private route")
	}
	if len(data) != 0 {
		return nil, fmt.Errorf("route: trailing bytes after embedded private route")
	}
	return pr, nil
}
