package natswire

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/helmcode/natswire/internal/auth"
	"github.com/helmcode/natswire/internal/conn"
	"github.com/helmcode/natswire/internal/dial"
	"github.com/helmcode/natswire/internal/proto"
)

const (
	defaultInboxPrefix    = "_INBOX"
	defaultRequestTimeout = 5 * time.Second
	defaultCommandBuffer  = 512
	subscriptionBuffer    = 256
)

// ClientBuilder configures and establishes a Client. The library core
// takes configuration only through this functional-options surface, never
// from a config file; FromEnv is the one escape hatch for loading auth and
// connection details from the environment variables NATS_JWT/NATS_NKEY,
// NATS_CREDS_FILE, NATS_USERNAME/NATS_PASSWORD, NATS_INBOX_PREFIX, and
// NATS_URL.
type ClientBuilder struct {
	name           string
	lang           string
	version        string
	echo           bool
	auth           auth.Method
	tlsConfig      *tls.Config
	enableZstd     bool
	connectTimeout time.Duration
	dialer         *dial.Dialer
	inboxPrefix    string
	flushInterval  time.Duration
	requestTimeout time.Duration
	logger         *slog.Logger
	url            string
}

// NewClientBuilder returns a ClientBuilder with library defaults.
func NewClientBuilder() *ClientBuilder {
	return &ClientBuilder{
		lang:           "go",
		echo:           true,
		enableZstd:     true,
		inboxPrefix:    defaultInboxPrefix,
		requestTimeout: defaultRequestTimeout,
	}
}

// WithName sets the CONNECT connection name shown in server monitoring.
func (b *ClientBuilder) WithName(name string) *ClientBuilder { b.name = name; return b }

// WithVersion sets the CONNECT client version string.
func (b *ClientBuilder) WithVersion(v string) *ClientBuilder { b.version = v; return b }

// WithEcho controls whether the server echoes this connection's own
// publishes back to its own subscriptions.
func (b *ClientBuilder) WithEcho(echo bool) *ClientBuilder { b.echo = echo; return b }

// WithAuth sets the authentication method used during CONNECT.
func (b *ClientBuilder) WithAuth(method auth.Method) *ClientBuilder { b.auth = method; return b }

// WithTLSConfig sets the TLS client configuration used for tls:// and
// wss:// addresses, and for plaintext addresses that upgrade mid-handshake.
func (b *ClientBuilder) WithTLSConfig(cfg *tls.Config) *ClientBuilder { b.tlsConfig = cfg; return b }

// WithZstd controls whether the client opts into the non-standard zstd
// compression extension when the server advertises support for it.
// Enabled by default.
func (b *ClientBuilder) WithZstd(enable bool) *ClientBuilder { b.enableZstd = enable; return b }

// WithConnectTimeout bounds the entire connect handshake, dial through
// CONNECT/PING/PONG. Defaults to 10s.
func (b *ClientBuilder) WithConnectTimeout(d time.Duration) *ClientBuilder {
	b.connectTimeout = d
	return b
}

// WithDialer overrides the Happy-Eyeballs dialer, primarily for tests that
// need a fake resolver or dial function.
func (b *ClientBuilder) WithDialer(d *dial.Dialer) *ClientBuilder { b.dialer = d; return b }

// WithInboxPrefix sets the subject prefix under which multiplexed request
// reply subjects are generated. Defaults to "_INBOX".
func (b *ClientBuilder) WithInboxPrefix(prefix string) *ClientBuilder {
	b.inboxPrefix = prefix
	return b
}

// WithFlushInterval sets a coalescing delay applied after any write that
// needs a flush, trading latency for fewer, larger packets. Zero (the
// default) flushes as soon as nothing else is pending.
func (b *ClientBuilder) WithFlushInterval(d time.Duration) *ClientBuilder {
	b.flushInterval = d
	return b
}

// WithRequestTimeout sets the default Request timeout used when a call
// site doesn't pass its own via context. Defaults to 5s.
func (b *ClientBuilder) WithRequestTimeout(d time.Duration) *ClientBuilder {
	b.requestTimeout = d
	return b
}

// WithLogger sets the *slog.Logger used for connect/reconnect/error
// events. Defaults to slog.Default().
func (b *ClientBuilder) WithLogger(l *slog.Logger) *ClientBuilder { b.logger = l; return b }

// WithURL sets the server URL Connect dials when none is passed explicitly.
func (b *ClientBuilder) WithURL(url string) *ClientBuilder { b.url = url; return b }

// FromEnv overlays NATS_JWT/NATS_NKEY, NATS_CREDS_FILE, or
// NATS_USERNAME/NATS_PASSWORD (in that precedence), plus NATS_INBOX_PREFIX
// and NATS_URL, onto the builder. Values already set by earlier With*
// calls are left alone only for fields FromEnv doesn't touch; auth, inbox
// prefix, and URL are always overwritten when their environment variables
// are present.
func (b *ClientBuilder) FromEnv() (*ClientBuilder, error) {
	envCfg, err := auth.FromEnv()
	if err != nil {
		return nil, fmt.Errorf("natswire: loading config from environment: %w", err)
	}
	if envCfg.Method.Kind != auth.KindNone {
		b.auth = envCfg.Method
	}
	if envCfg.InboxPrefix != "" {
		b.inboxPrefix = envCfg.InboxPrefix
	}
	if envCfg.URL != "" {
		b.url = envCfg.URL
	}
	return b, nil
}

// Connect dials url (or the builder's WithURL/FromEnv value if url is
// empty) and performs the full connect handshake, returning a ready
// Client whose reactor goroutine is already running.
func (b *ClientBuilder) Connect(ctx context.Context, url string) (*Client, error) {
	if url == "" {
		url = b.url
	}
	addr, err := proto.ParseServerAddr(url)
	if err != nil {
		return nil, fmt.Errorf("natswire: %w", err)
	}

	hcfg := conn.HandshakeConfig{
		Name:           b.name,
		Lang:           b.lang,
		Version:        b.version,
		Echo:           b.echo,
		Auth:           b.auth,
		TLSConfig:      b.tlsConfig,
		EnableZstd:     b.enableZstd,
		ConnectTimeout: b.connectTimeout,
		Dialer:         b.dialer,
	}

	c, info, err := conn.Connect(ctx, addr, hcfg)
	if err != nil {
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return nil, fmt.Errorf("%w: %v", ErrConnectTimedOut, err)
		}
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	return newClient(addr, hcfg, c, info, b.inboxPrefix, b.flushInterval, b.requestTimeout, logger), nil
}

// Dial is shorthand for NewClientBuilder().Connect(ctx, url) with library
// defaults.
func Dial(ctx context.Context, url string) (*Client, error) {
	return NewClientBuilder().Connect(ctx, url)
}
