package stream

import (
	"time"

	"github.com/cenkalti/backoff/v4"

	drepo "github.com/alptigingorkem-coder/bist30-ai-trader/internal/domain/repository"
	"github.com/alptigingorkem-coder/bist30-ai-trader/pkg/logger"
)

// Config holds connection parameters.
type Config struct {
	URL               string
	HeartbeatInterval time.Duration
	HandshakeTimeout  time.Duration
	DispatchBuffer    int
	Reconnect         ReconnectPolicy
}

// ReconnectPolicy describes the delay between reconnect attempts after an
// unexpected closure. Multiplier 1 gives a fixed delay; MaxRetries 0 means
// unbounded.
type ReconnectPolicy struct {
	Delay      time.Duration
	Multiplier float64
	MaxDelay   time.Duration
	MaxRetries uint64
}

// DefaultConfig mirrors the market service defaults.
func DefaultConfig() Config {
	return Config{
		URL:               "ws://localhost:8000/ws",
		HeartbeatInterval: 5 * time.Second,
		HandshakeTimeout:  10 * time.Second,
		DispatchBuffer:    256,
		Reconnect: ReconnectPolicy{
			Delay:      3 * time.Second,
			Multiplier: 1,
		},
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = def.HeartbeatInterval
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.DispatchBuffer <= 0 {
		c.DispatchBuffer = def.DispatchBuffer
	}
	if c.Reconnect.Delay <= 0 {
		c.Reconnect.Delay = def.Reconnect.Delay
	}
	if c.Reconnect.Multiplier < 1 {
		c.Reconnect.Multiplier = 1
	}
}

// NewBackOff builds the retry schedule for the policy.
func (p ReconnectPolicy) NewBackOff() backoff.BackOff {
	var b backoff.BackOff
	if p.Multiplier <= 1 {
		b = backoff.NewConstantBackOff(p.Delay)
	} else {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = p.Delay
		eb.Multiplier = p.Multiplier
		eb.RandomizationFactor = 0
		eb.MaxInterval = p.MaxDelay
		if eb.MaxInterval < p.Delay {
			eb.MaxInterval = p.Delay
		}
		eb.MaxElapsedTime = 0
		eb.Reset()
		b = eb
	}
	if p.MaxRetries > 0 {
		b = backoff.WithMaxRetries(b, p.MaxRetries)
	}
	return b
}

// Option configures a Client.
type Option func(*Client)

// WithDialer replaces the gorilla dialer.
func WithDialer(d Dialer) Option {
	return func(c *Client) {
		c.dialer = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *Client) {
		c.log = l
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m drepo.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}
