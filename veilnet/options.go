package veilnet

import (
	"github.com/veilnet/veilnet/config"
	"github.com/veilnet/veilnet/types"
)

// options collects everything New's functional options can set, following
// the same private-struct-plus-Option-func(*struct) shape config.Option
// itself uses (network/config.go's own idiom, one level up).
type options struct {
	config          config.Config
	logger          Logger
	initialDialInfo []types.DialInfoDetail

	onAppMessage   func([]byte)
	onAppCall      func([]byte) []byte
	onValueChanged func(types.ValueKey, types.ValueData)
}

func defaultOptions() options {
	return options{config: config.Default()}
}

// Option mutates a Node under construction, mirroring config.Option and
// yggdrasil-go's core.SetupOption naming.
type Option func(*options)

// WithConfig replaces the default config.Config wholesale — typically
// config.New(...) with a handful of config.With* options already applied.
func WithConfig(c config.Config) Option {
	return func(o *options) { o.config = c }
}

// WithLogger installs the Logger every subsystem writes through. If never
// called, New defaults to a Logger that discards everything, matching
// yggdrasil-go's core.New default.
func WithLogger(l Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithInitialDialInfo seeds the Reachability Classifier with DialInfoDetails
// already known to be valid (e.g. from a previous run's warm state),
// skipping the probe round for those entries until something invalidates
// them.
func WithInitialDialInfo(details []types.DialInfoDetail) Option {
	return func(o *options) { o.initialDialInfo = details }
}

// WithAppMessageHandler registers the callback invoked for every inbound
// AppMessage Statement (spec.md §4.7's opaque application channel).
func WithAppMessageHandler(fn func(payload []byte)) Option {
	return func(o *options) { o.onAppMessage = fn }
}

// WithAppCallHandler registers the callback invoked for every inbound
// AppCallQ, whose return value becomes the AppCallA payload.
func WithAppCallHandler(fn func(payload []byte) []byte) Option {
	return func(o *options) { o.onAppCall = fn }
}

// WithValueChangedHandler registers the callback invoked whenever a
// ValueChanged Statement arrives for a key this node watches.
func WithValueChangedHandler(fn func(types.ValueKey, types.ValueData)) Option {
	return func(o *options) { o.onValueChanged = fn }
}
