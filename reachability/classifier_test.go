package reachability

import (
	"net/netip"
	"testing"

	"github.com/veilnet/veilnet/types"
)

type recordingProber struct {
	sent []types.DialInfo
}

func (p *recordingProber) SendValidateDialInfo(peer types.NodeID, probe types.DialInfo, receipt types.Receipt) error {
	p.sent = append(p.sent, probe)
	return nil
}

func TestClassifierDirectOnSameSource(t *testing.T) {
	prober := &recordingProber{}
	c := New(DefaultConfig(), prober, nil)

	var changed types.NetworkClass
	c.OnClassChanged = func(nc types.NetworkClass, _ []types.DialInfoDetail) { changed = nc }

	addr := netip.MustParseAddrPort("203.0.113.1:9743")
	di := types.DialInfo{Protocol: types.ProtocolTCP, Addr: addr}
	done := make(chan struct{})
	c.ProbeVia(nil, di, types.NodeID{}, types.NodeID{}, netip.AddrPort{})
	c.Act(nil, func() {
		for r := range c.pending {
			c.OnReceipt(c, r, addr, false)
			break
		}
		close(done)
	})
	<-done

	if got := c.NetworkClass(); got != types.NetworkClassInboundCapable {
		t.Fatalf("expected InboundCapable, got %s", got)
	}
	if changed != types.NetworkClassInboundCapable {
		t.Fatalf("OnClassChanged not invoked with InboundCapable, got %s", changed)
	}
	details := c.Details()
	if len(details) != 1 || details[0].Class != types.DialInfoClassDirect {
		t.Fatalf("expected a single Direct detail, got %+v", details)
	}
}

func TestClassifierWebAppWhenNoDetails(t *testing.T) {
	c := New(DefaultConfig(), &recordingProber{}, nil)
	if got := c.NetworkClass(); got != types.NetworkClassWebApp {
		t.Fatalf("expected WebApp with no dial info, got %s", got)
	}
}

// classifyOnce runs one full ProbeVia/OnReceipt round trip and returns the
// resulting DialInfoClass, for exercising rule 3's three-way NAT
// discrimination.
func classifyOnce(t *testing.T, outboundAddr, observedAddr netip.AddrPort) types.DialInfoClass {
	t.Helper()
	c := New(DefaultConfig(), &recordingProber{}, nil)
	di := types.DialInfo{Protocol: types.ProtocolTCP, Addr: netip.MustParseAddrPort("198.51.100.1:9743")}
	done := make(chan struct{})
	c.ProbeVia(nil, di, types.NodeID{}, types.NodeID{}, outboundAddr)
	c.Act(nil, func() {
		for r := range c.pending {
			c.OnReceipt(c, r, observedAddr, false)
			break
		}
		close(done)
	})
	<-done
	details := c.Details()
	if len(details) != 1 {
		t.Fatalf("expected a single detail, got %+v", details)
	}
	return details[0].Class
}

func TestClassifierPortRestrictedWhenSamePeerAndPort(t *testing.T) {
	outbound := netip.MustParseAddrPort("203.0.113.5:4001")
	if got := classifyOnce(t, outbound, outbound); got != types.DialInfoClassPortRestrictedNAT {
		t.Fatalf("expected PortRestrictedNAT, got %s", got)
	}
}

func TestClassifierAddressRestrictedWhenSameAddressDifferentPort(t *testing.T) {
	outbound := netip.MustParseAddrPort("203.0.113.5:4001")
	observed := netip.MustParseAddrPort("203.0.113.5:5555")
	if got := classifyOnce(t, outbound, observed); got != types.DialInfoClassAddressRestrictedNAT {
		t.Fatalf("expected AddressRestrictedNAT, got %s", got)
	}
}

func TestClassifierFullConeWhenAnySourceWorks(t *testing.T) {
	outbound := netip.MustParseAddrPort("203.0.113.5:4001")
	observed := netip.MustParseAddrPort("198.18.0.9:6000")
	if got := classifyOnce(t, outbound, observed); got != types.DialInfoClassFullConeNAT {
		t.Fatalf("expected FullConeNAT, got %s", got)
	}
}
