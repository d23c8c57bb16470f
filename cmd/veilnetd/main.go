// Command veilnetd runs a standalone routing/RPC core node: it opens a
// storage backend, brings up a Node, listens on the configured transports,
// and blocks until SIGINT/SIGTERM, mirroring the teacher's own
// cmd/ironwood-example/main.go shape (flag-parsed options, a PacketConn
// brought up, os/signal blocking at the bottom) rather than reaching for a
// CLI framework the teacher never used.
package main

import (
	"flag"
	"fmt"
	"net/netip"
	"os"
	"os/signal"
	"syscall"

	"github.com/gologme/log"

	"github.com/veilnet/veilnet/config"
	"github.com/veilnet/veilnet/crypto"
	"github.com/veilnet/veilnet/store"
	"github.com/veilnet/veilnet/types"
	"github.com/veilnet/veilnet/veilnet"
)

var (
	listenAddr  = flag.String("listen", "0.0.0.0:9743", "address to listen on")
	protoName   = flag.String("proto", "tcp", "listen protocol: tcp, udp, ws, wss")
	dbPath      = flag.String("db", "", "bolt database path; if empty, state is kept in memory only")
	kindName    = flag.String("kind", "VLD0", "crypto kind: VLD0 or VLD1")
	logLevel    = flag.String("loglevel", "info", "log level: debug, info, warn, error")
	defaultHops = flag.Uint("route-hops", 1, "default private-route hop count")
	maxHops     = flag.Uint("route-max-hops", 4, "maximum private-route hop count")
)

func parseProtocol(name string) (types.Protocol, error) {
	switch name {
	case "tcp":
		return types.ProtocolTCP, nil
	case "udp":
		return types.ProtocolUDP, nil
	case "ws":
		return types.ProtocolWS, nil
	case "wss":
		return types.ProtocolWSS, nil
	default:
		return 0, fmt.Errorf("veilnetd: unknown protocol %q", name)
	}
}

func parseKind(name string) (types.CryptoKind, error) {
	switch name {
	case "VLD0":
		return crypto.KindVLD0, nil
	case "VLD1":
		return crypto.KindVLD1, nil
	default:
		return types.CryptoKind{}, fmt.Errorf("veilnetd: unknown crypto kind %q", name)
	}
}

// enableLogLevel turns on every level up to and including want, the same
// cumulative scheme setup.SetLogLevel uses ("info" also enables warn and
// error).
func enableLogLevel(logger *log.Logger, want string) {
	levels := [...]string{"error", "warn", "info", "debug", "trace"}
	for _, l := range levels {
		logger.EnableLevel(l)
		if l == want {
			return
		}
	}
	logger.EnableLevel("info")
}

func openStore(path string) (store.Opener, error) {
	if path == "" {
		return store.NewMemOpener(), nil
	}
	return store.OpenBolt(path)
}

func main() {
	flag.Parse()

	logger := log.New(os.Stdout, "", log.Flags())
	enableLogLevel(logger, *logLevel)

	proto, err := parseProtocol(*protoName)
	if err != nil {
		logger.Errorln(err)
		os.Exit(1)
	}
	kind, err := parseKind(*kindName)
	if err != nil {
		logger.Errorln(err)
		os.Exit(1)
	}
	addr, err := netip.ParseAddrPort(*listenAddr)
	if err != nil {
		logger.Errorf("veilnetd: bad -listen address %q: %v\n", *listenAddr, err)
		os.Exit(1)
	}

	opener, err := openStore(*dbPath)
	if err != nil {
		logger.Errorf("veilnetd: open store: %v\n", err)
		os.Exit(1)
	}

	cfg := config.New(config.WithRouteHopBounds(uint8(*defaultHops), uint8(*maxHops)))

	n, err := veilnet.New(kind, nil, opener,
		veilnet.WithConfig(cfg),
		veilnet.WithLogger(logger),
	)
	if err != nil {
		logger.Errorf("veilnetd: init: %v\n", err)
		os.Exit(1)
	}
	defer n.Shutdown()

	if err := n.Attach([]types.DialInfo{{Protocol: proto, Addr: addr}}); err != nil {
		logger.Errorf("veilnetd: attach: %v\n", err)
		os.Exit(1)
	}

	logger.Infof("veilnetd: node %s listening on %s %s\n", n.NodeID(), *protoName, addr)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Infoln("veilnetd: shutting down")
}
