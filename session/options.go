package session

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/corway/sidmux/pkg"
	"github.com/corway/sidmux/transport"
)

// OverflowFunc picks the session id to reclaim when a port's id space is
// fully occupied. The occupant of the returned id, if any, is force-canceled
// before the id is reused.
type OverflowFunc func(p *Port) int64

// Options configures a Manager or an individual Port. Zero fields fall back
// to the owning Manager's defaults, and from there to the package defaults.
type Options struct {
	// Sender dispatches outbound messages. Required; errors it returns are
	// surfaced as abort failures of the current exchange.
	Sender transport.Sender `env:"-"`

	// SessionTimeout is how long an exchange may wait for a reply. The sweep
	// runs at half this interval.
	SessionTimeout time.Duration `env:"SIDMUX_SESSION_TIMEOUT" envDefault:"60s"`

	// SessionMaxLife is the idle eviction threshold for sessions nobody ended.
	SessionMaxLife time.Duration `env:"SIDMUX_SESSION_MAX_LIFE" envDefault:"10m"`

	// SessionIDName is the envelope field used for correlation.
	SessionIDName string `env:"SIDMUX_SESSION_ID_NAME" envDefault:"sid"`

	// MaxSessionCount bounds simultaneously live sessions per port.
	MaxSessionCount int64 `env:"SIDMUX_MAX_SESSION_COUNT" envDefault:"65535"`

	// RetryCount is the number of additional attempts after a failed send.
	RetryCount int `env:"SIDMUX_RETRY_COUNT" envDefault:"0"`

	// RetryCountSet marks RetryCount as explicit. Without it a zero
	// RetryCount inherits the manager's value, so a port could never turn
	// retries back off.
	RetryCountSet bool `env:"-"`

	// RetryInterval is the wait between attempts.
	RetryInterval time.Duration `env:"SIDMUX_RETRY_INTERVAL" envDefault:"1s"`

	OnSessionOverflow OverflowFunc `env:"-"`

	Logger pkg.Logger `env:"-"`
}

// DefaultOptions returns the package defaults with no sender configured.
func DefaultOptions() Options {
	return Options{
		SessionTimeout:    60 * time.Second,
		SessionMaxLife:    10 * time.Minute,
		SessionIDName:     "sid",
		MaxSessionCount:   65535,
		RetryCount:        0,
		RetryInterval:     time.Second,
		OnSessionOverflow: defaultOverflow,
		Logger:            pkg.DefaultLogger,
	}
}

// OptionsFromEnv loads the tunable knobs from SIDMUX_* environment variables.
// The sender, overflow policy and logger still have to be set in code.
func OptionsFromEnv() (Options, error) {
	var opts Options
	if err := env.Parse(&opts); err != nil {
		return Options{}, fmt.Errorf("session: parse env options: %w", err)
	}
	opts.OnSessionOverflow = defaultOverflow
	opts.Logger = pkg.DefaultLogger
	return opts, nil
}

// withDefaults fills zero fields from the package defaults.
func (o Options) withDefaults() Options {
	return DefaultOptions().merge(o)
}

// merge layers override on top of o, field by field. Neither receiver is
// mutated; ports get their own copy so later changes to manager defaults
// never leak into existing ports.
func (o Options) merge(override Options) Options {
	merged := o
	if override.Sender != nil {
		merged.Sender = override.Sender
	}
	if override.SessionTimeout > 0 {
		merged.SessionTimeout = override.SessionTimeout
	}
	if override.SessionMaxLife > 0 {
		merged.SessionMaxLife = override.SessionMaxLife
	}
	if override.SessionIDName != "" {
		merged.SessionIDName = override.SessionIDName
	}
	if override.MaxSessionCount > 0 {
		merged.MaxSessionCount = override.MaxSessionCount
	}
	if override.RetryCountSet || override.RetryCount > 0 {
		merged.RetryCount = override.RetryCount
		merged.RetryCountSet = true
	}
	if override.RetryInterval > 0 {
		merged.RetryInterval = override.RetryInterval
	}
	if override.OnSessionOverflow != nil {
		merged.OnSessionOverflow = override.OnSessionOverflow
	}
	if override.Logger != nil {
		merged.Logger = override.Logger
	}
	return merged
}

// CallOption tunes a single Create or Send call.
type CallOption func(*callOptions)

type callOptions struct {
	timeout       time.Duration
	retryCount    int
	retryCountSet bool
	retryInterval time.Duration
}

// WithTimeout sets the exchange timeout. On Create it becomes the session's
// sweep threshold; on Send it additionally arms a dedicated timer, giving
// finer-than-sweep granularity for that one exchange.
func WithTimeout(d time.Duration) CallOption {
	return func(co *callOptions) {
		co.timeout = d
	}
}

// WithRetryCount sets the number of additional attempts after a failure.
func WithRetryCount(n int) CallOption {
	return func(co *callOptions) {
		co.retryCount = n
		co.retryCountSet = true
	}
}

// WithRetryInterval sets the wait between attempts.
func WithRetryInterval(d time.Duration) CallOption {
	return func(co *callOptions) {
		co.retryInterval = d
	}
}

func applyCallOptions(opts []CallOption) callOptions {
	var co callOptions
	for _, opt := range opts {
		opt(&co)
	}
	return co
}
