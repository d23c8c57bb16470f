package veilnet

import (
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"strings"

	"github.com/veilnet/veilnet/crypto"
	"github.com/veilnet/veilnet/types"
	"github.com/veilnet/veilnet/verrors"
	"github.com/veilnet/veilnet/wire"
)

// BootstrapFrom implements spec.md §4.5's bootstrap(seed_hostnames): each
// hostname is resolved to concrete addresses, a Status exchange is run
// against every one to learn the responder's own signed identity, and
// every peer that answers is seeded into the routing table.
//
// Grounded on the pack's own bootstrap-peer resolution idiom
// (other_examples/EveShark-CyberMesh__router.go's resolveBootstrapPeers:
// net.ParseIP short-circuits a literal address, net.LookupHost resolves
// anything else) generalized from "log the resolved IPs" to "dial and
// identify each one over a live connection".
func (n *Node) BootstrapFrom(hostnames []string, protocol types.Protocol, defaultPort uint16) error {
	var errs []string
	seeded := 0
	for _, hostname := range hostnames {
		addrs, err := resolveBootstrapHost(hostname, defaultPort)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", hostname, err))
			continue
		}
		for _, addr := range addrs {
			if err := n.bootstrapOne(types.DialInfo{Protocol: protocol, Addr: addr}); err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", addr, err))
				continue
			}
			seeded++
		}
	}
	if seeded == 0 {
		return fmt.Errorf("veilnet: bootstrap failed for every seed hostname (%s): %w", strings.Join(errs, "; "), verrors.Unreachable)
	}
	return nil
}

// resolveBootstrapHost splits an optional ":port" suffix off hostname (a
// bare hostname falls back to defaultPort), then resolves the host part:
// a literal IP is used as-is, anything else goes through net.LookupHost.
func resolveBootstrapHost(hostname string, defaultPort uint16) ([]netip.AddrPort, error) {
	host, portStr, err := net.SplitHostPort(hostname)
	if err != nil {
		host, portStr = hostname, ""
	}
	port := defaultPort
	if portStr != "" {
		p, err := strconv.ParseUint(portStr, 10, 16)
		if err != nil {
			return nil, fmt.Errorf("%w: bad port %q", verrors.MalformedMessage, portStr)
		}
		port = uint16(p)
	}

	if ip, err := netip.ParseAddr(host); err == nil {
		return []netip.AddrPort{netip.AddrPortFrom(ip, port)}, nil
	}

	ips, err := net.LookupHost(host)
	if err != nil {
		return nil, err
	}
	out := make([]netip.AddrPort, 0, len(ips))
	for _, s := range ips {
		ip, err := netip.ParseAddr(s)
		if err != nil {
			continue
		}
		out = append(out, netip.AddrPortFrom(ip, port))
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no usable addresses for %s", verrors.Unreachable, host)
	}
	return out, nil
}

// bootstrapOne dials dialInfo, exchanges Status to learn the responder's
// NodeID and signed NodeInfo, and seeds it into the routing table via the
// same AddOrUpdateWithKey signature check every other peer insertion goes
// through.
func (n *Node) bootstrapOne(dialInfo types.DialInfo) error {
	conn, err := n.Transport.Dial(dialInfo)
	if err != nil {
		return err
	}

	ans := <-n.RPC.AskRaw(nil, conn.Send, &wire.StatusQ{})
	if ans.Err != nil {
		_ = conn.Close()
		return ans.Err
	}
	if ans.SenderNodeInfo == nil {
		_ = conn.Close()
		return fmt.Errorf("%w: status reply carried no signed identity", verrors.MalformedMessage)
	}

	id, err := crypto.DeriveNodeID(n.kind, ans.SenderNodeInfo.Info.RoutingPublicKey)
	if err != nil {
		_ = conn.Close()
		return err
	}
	conn.BindPeer(id)

	peer := types.PeerInfo{NodeID: id, Signed: *ans.SenderNodeInfo}
	if err := n.Routing.Bootstrap(nil, peer, ans.SenderNodeInfo.Info.RoutingPublicKey); err != nil {
		return err
	}
	return nil
}
