package push

import "time"

// Option defines a functional configuration type for the connection manager.
type Option func(*options)

type options struct {
	endpoint          func(token string) string
	dialer            Dialer
	connectTimeout    time.Duration
	pingInterval      time.Duration
	pongTimeout       time.Duration
	reconnectInterval time.Duration
	maxReconnects     int
	announcer         Announcer
}

func defaultOptions() options {
	return options{
		endpoint:          func(string) string { return "" },
		dialer:            DefaultDialer,
		connectTimeout:    10 * time.Second,
		pingInterval:      30 * time.Second,
		pongTimeout:       10 * time.Second,
		reconnectInterval: 3 * time.Second,
		maxReconnects:     5,
	}
}

// WithEndpoint sets the function deriving the connection endpoint from the
// session token.
func WithEndpoint(fn func(token string) string) Option {
	return func(o *options) { o.endpoint = fn }
}

// WithDialer replaces the transport dialer. Tests inject fakes here.
func WithDialer(d Dialer) Option {
	return func(o *options) { o.dialer = d }
}

// WithConnectTimeout bounds how long a dial may take before the connect call
// fails with ErrConnectTimeout.
func WithConnectTimeout(d time.Duration) Option {
	return func(o *options) { o.connectTimeout = d }
}

// WithKeepAlive configures the application-level ping cadence and the pong
// deadline after each ping.
func WithKeepAlive(pingInterval, pongTimeout time.Duration) Option {
	return func(o *options) {
		o.pingInterval = pingInterval
		o.pongTimeout = pongTimeout
	}
}

// WithReconnectPolicy configures the linear backoff: the Nth attempt is
// scheduled interval*N after the closure, up to max attempts.
func WithReconnectPolicy(interval time.Duration, max int) Option {
	return func(o *options) {
		o.reconnectInterval = interval
		o.maxReconnects = max
	}
}

// WithAnnouncer wires connection-state broadcasts to the in-process bus.
func WithAnnouncer(a Announcer) Option {
	return func(o *options) { o.announcer = a }
}
