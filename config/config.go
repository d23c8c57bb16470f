// Package config collects the in-process tunables every other package
// reads a default from, following the functional-options shape of the
// teacher's network/config.go (a private struct, a defaults constructor,
// and With* functions that each set one field or one related group of
// fields; some fields, such as the routing latency thresholds, have no
// With* function and keep their default). Config-file loading is out of scope
// (SPEC_FULL.md §1 Non-goals); this package only ever produces an
// in-memory Config value.
package config

import "time"

// Config bundles every tunable named across spec.md §4.4-§4.7 and §5-§6.
// Field groups are commented by the component that reads them.
type Config struct {
	// routing (spec.md §4.5)
	RoutingBucketSize       int
	RoutingStrongLatencyMax time.Duration
	RoutingGoodLatencyMax   time.Duration
	RoutingStaleAfter       time.Duration

	// route (spec.md §4.6)
	RouteBaseTimeout  time.Duration
	RouteMaxIdle      time.Duration
	RouteReceiptTTL   time.Duration
	RouteDefaultHops  uint8
	RouteMaxHops      uint8

	// rpc (spec.md §4.7)
	RPCTimeout             time.Duration
	RPCConcurrency         int
	RPCQueueSize           int
	RPCMaxTimestampBehind  time.Duration
	RPCMaxTimestampAhead   time.Duration
	RPCResolveNodeCount    int
	RPCGetValueFanout      int
	RPCGetValueCount       int
	RPCTunnelIdleTimeout   time.Duration

	// transport (spec.md §4.3)
	TransportPerIPConnLimit   int
	TransportPer56ConnLimit   int
	TransportPerMinuteConnect int
	TransportInactivityLimit  time.Duration
	TransportSendQueueDepth   int

	// reachability (spec.md §4.4)
	ReachabilityProbeInterval time.Duration
	ReachabilityProbeTimeout  time.Duration
	ReachabilityProbeRetries  int
}

// Option mutates a Config under construction, following the teacher's
// Option func(*config) idiom.
type Option func(*Config)

// Default returns the baseline Config, every field set to the value named
// or implied across spec.md, before any caller-supplied Option runs.
func Default() Config {
	c := Config{}
	applyDefaults(&c)
	return c
}

// New builds a Config from Default plus opts, applied in order — a later
// Option overrides an earlier one touching the same field, matching how
// the teacher's configDefaults() Option composes with the rest.
func New(opts ...Option) Config {
	c := Default()
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

func applyDefaults(c *Config) {
	c.RoutingBucketSize = 20
	c.RoutingStrongLatencyMax = 150 * time.Millisecond
	c.RoutingGoodLatencyMax = 500 * time.Millisecond
	c.RoutingStaleAfter = 10 * time.Minute

	c.RouteBaseTimeout = 10 * time.Second
	c.RouteMaxIdle = 5 * time.Minute
	c.RouteReceiptTTL = 2 * time.Minute
	c.RouteDefaultHops = 1
	c.RouteMaxHops = 4

	c.RPCTimeout = 5 * time.Second
	c.RPCConcurrency = 64
	c.RPCQueueSize = 256
	c.RPCMaxTimestampBehind = 5 * time.Minute
	c.RPCMaxTimestampAhead = 30 * time.Second
	c.RPCResolveNodeCount = 20
	c.RPCGetValueFanout = 5
	c.RPCGetValueCount = 20
	c.RPCTunnelIdleTimeout = time.Minute

	c.TransportPerIPConnLimit = 8
	c.TransportPer56ConnLimit = 32
	c.TransportPerMinuteConnect = 60
	c.TransportInactivityLimit = 3 * time.Minute
	c.TransportSendQueueDepth = 256

	c.ReachabilityProbeInterval = 5 * time.Minute
	c.ReachabilityProbeTimeout = 3 * time.Second
	c.ReachabilityProbeRetries = 3
}

func WithRoutingBucketSize(n int) Option { return func(c *Config) { c.RoutingBucketSize = n } }

func WithRouteHopBounds(defaultHops, maxHops uint8) Option {
	return func(c *Config) {
		c.RouteDefaultHops = defaultHops
		c.RouteMaxHops = maxHops
	}
}

func WithRouteTimeouts(base, maxIdle, receiptTTL time.Duration) Option {
	return func(c *Config) {
		c.RouteBaseTimeout = base
		c.RouteMaxIdle = maxIdle
		c.RouteReceiptTTL = receiptTTL
	}
}

func WithRPCTimeout(d time.Duration) Option { return func(c *Config) { c.RPCTimeout = d } }

func WithRPCConcurrency(concurrency, queueSize int) Option {
	return func(c *Config) {
		c.RPCConcurrency = concurrency
		c.RPCQueueSize = queueSize
	}
}

func WithRPCTimestampWindow(behind, ahead time.Duration) Option {
	return func(c *Config) {
		c.RPCMaxTimestampBehind = behind
		c.RPCMaxTimestampAhead = ahead
	}
}

func WithRPCFanout(resolveNodeCount, getValueFanout, getValueCount int) Option {
	return func(c *Config) {
		c.RPCResolveNodeCount = resolveNodeCount
		c.RPCGetValueFanout = getValueFanout
		c.RPCGetValueCount = getValueCount
	}
}

func WithTransportLimits(perIP, per56, perMinuteConnect, sendQueueDepth int) Option {
	return func(c *Config) {
		c.TransportPerIPConnLimit = perIP
		c.TransportPer56ConnLimit = per56
		c.TransportPerMinuteConnect = perMinuteConnect
		c.TransportSendQueueDepth = sendQueueDepth
	}
}

func WithTransportInactivityLimit(d time.Duration) Option {
	return func(c *Config) { c.TransportInactivityLimit = d }
}

func WithReachabilityProbing(interval, timeout time.Duration, retries int) Option {
	return func(c *Config) {
		c.ReachabilityProbeInterval = interval
		c.ReachabilityProbeTimeout = timeout
		c.ReachabilityProbeRetries = retries
	}
}
