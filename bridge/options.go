package bridge

import (
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

// Option mutates a Bridge during construction.
type Option func(*Bridge)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithReconnect overrides the retry delay after a failure and the minimum
// spacing between reconnect attempts.
func WithReconnect(delay, cooldown time.Duration) Option {
	return func(b *Bridge) {
		b.sessionCfg.ReconnectDelay = delay
		b.sessionCfg.ReconnectCooldown = cooldown
	}
}

// WithDialer replaces the websocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(b *Bridge) {
		b.sessionCfg.Dialer = d
	}
}

// WithTokenProvider presents a bearer token when dialing. Passing nil removes it.
func WithTokenProvider(p TokenProvider) Option {
	return func(b *Bridge) {
		b.sessionCfg.Tokens = p
	}
}

// WithCodeGenerator replaces the link code generator.
func WithCodeGenerator(gen func() (string, error)) Option {
	return func(b *Bridge) {
		if gen != nil {
			b.newCode = gen
		}
	}
}

// WithAuthTimeout bounds VerifyRemote.
func WithAuthTimeout(d time.Duration) Option {
	return func(b *Bridge) {
		if d > 0 {
			b.authTimeout = d
		}
	}
}

// WithChannelDescriptionInterval sets how often the player list is pushed.
func WithChannelDescriptionInterval(d time.Duration) Option {
	return func(b *Bridge) {
		if d > 0 {
			b.descInterval = d
		}
	}
}

// ConfigOptions translates a loaded Config into bridge options. A dial
// credential that cannot be built is logged and left out, so the bridge still
// connects.
func ConfigOptions(cfg *Config, logger *slog.Logger) []Option {
	if logger == nil {
		logger = slog.Default()
	}
	opts := []Option{
		WithReconnect(cfg.ReconnectDelay, cfg.ReconnectCooldown),
		WithAuthTimeout(cfg.AuthTimeout),
		WithChannelDescriptionInterval(cfg.ChannelDescriptionInterval),
	}
	if !cfg.Auth.Enabled() {
		return opts
	}
	provider, err := NewHMACTokenProvider(cfg.Auth, cfg.ServerName)
	if err != nil {
		logger.Error("invalid dial credential, connecting without one", "error", err)
		return opts
	}
	return append(opts, WithTokenProvider(provider))
}
