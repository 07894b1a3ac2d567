package conn

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/helmcode/natswire/internal/auth"
	"github.com/helmcode/natswire/internal/dial"
	"github.com/helmcode/natswire/internal/proto"
	"github.com/helmcode/natswire/internal/stream"
)

// ErrUnexpectedOp is returned when a handshake stage receives a server
// operation it doesn't know how to handle.
type ErrUnexpectedOp struct {
	Stage string
	Op    proto.ServerOpKind
}

func (e *ErrUnexpectedOp) Error() string {
	return fmt.Sprintf("conn: unexpected server operation during %s (kind=%d)", e.Stage, e.Op)
}

// HandshakeConfig carries everything Connect needs beyond the server
// address: identity strings for CONNECT, the chosen auth method, TLS
// policy, and the non-standard zstd opt-in.
type HandshakeConfig struct {
	Name             string
	Lang             string
	Version          string
	Echo             bool
	Auth             auth.Method
	TLSConfig        *tls.Config
	EnableZstd       bool
	ConnectTimeout   time.Duration
	Dialer           *dial.Dialer
}

func (c HandshakeConfig) connectTimeout() time.Duration {
	if c.ConnectTimeout > 0 {
		return c.ConnectTimeout
	}
	return 10 * time.Second
}

// Connect performs the full §4.4 connect handshake against addr: dial (or
// WebSocket-dial), read the server's greeting INFO, negotiate TLS and
// zstd, authenticate, and exchange CONNECT/PING/PONG. It returns a ready
// Conn plus the server's first ServerInfo.
func Connect(ctx context.Context, addr proto.ServerAddr, cfg HandshakeConfig) (Conn, *proto.ServerInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.connectTimeout())
	defer cancel()

	switch addr.Transport {
	case proto.TransportWebsocket:
		return connectWebsocket(ctx, addr, cfg)
	default:
		return connectStream(ctx, addr, cfg)
	}
}

func connectStream(ctx context.Context, addr proto.ServerAddr, cfg HandshakeConfig) (Conn, *proto.ServerInfo, error) {
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = dial.New()
	}

	tcpConn, err := dialer.DialContext(ctx, addr.Host, addr.Port)
	if err != nil {
		return nil, nil, fmt.Errorf("conn: dial %s: %w", addr.String(), err)
	}
	if tc, ok := tcpConn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}

	var sock stream.Socket = tcpConn
	if addr.Protocol == proto.ProtocolTLS {
		tlsConn, err := stream.UpgradeTLS(ctx, tcpConn, addr.Host, cfg.TLSConfig)
		if err != nil {
			tcpConn.Close()
			return nil, nil, err
		}
		sock = tlsConn
	}

	sc := NewStreamConn(sock)

	info, err := readInfo(sc)
	if err != nil {
		sc.Close()
		return nil, nil, err
	}

	if addr.Protocol == proto.ProtocolPossiblyPlain && info.TLSRequired {
		if err := sc.ReplaceSocket(func(s stream.Socket) (stream.Socket, error) {
			netConn, ok := s.(net.Conn)
			if !ok {
				return nil, fmt.Errorf("conn: cannot upgrade non-net.Conn socket to TLS")
			}
			return stream.UpgradeTLS(ctx, netConn, addr.Host, cfg.TLSConfig)
		}); err != nil {
			sc.Close()
			return nil, nil, err
		}
	}

	enableZstd := cfg.EnableZstd && info.NonStandard.Zstd

	if err := performConnectSequence(sc, addr, cfg, info, enableZstd); err != nil {
		sc.Close()
		return nil, nil, err
	}

	return sc, info, nil
}

func connectWebsocket(ctx context.Context, addr proto.ServerAddr, cfg HandshakeConfig) (Conn, *proto.ServerInfo, error) {
	scheme := "ws"
	if addr.Protocol == proto.ProtocolTLS {
		scheme = "wss"
	}
	u := url.URL{Scheme: scheme, Host: net.JoinHostPort(addr.Host, fmt.Sprintf("%d", addr.Port))}

	dialer := websocket.Dialer{
		TLSClientConfig:  cfg.TLSConfig,
		HandshakeTimeout: cfg.connectTimeout(),
	}
	ws, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, nil, fmt.Errorf("conn: websocket dial %s: %w", u.String(), err)
	}

	wc := NewWebsocketConn(ws)

	info, err := readInfo(wc)
	if err != nil {
		wc.Close()
		return nil, nil, err
	}

	// zstd is only negotiated over the streaming transport; the WebSocket
	// dialer above does not enable compression either.
	if err := performConnectSequence(wc, addr, cfg, info, false); err != nil {
		wc.Close()
		return nil, nil, err
	}

	return wc, info, nil
}

func readInfo(c Conn) (*proto.ServerInfo, error) {
	op, err := c.ReadOp()
	if err != nil {
		return nil, fmt.Errorf("conn: reading greeting: %w", err)
	}
	if op.Kind != proto.ServerOpInfo {
		return nil, &ErrUnexpectedOp{Stage: "greeting", Op: op.Kind}
	}
	return op.Info, nil
}

func performConnectSequence(c Conn, addr proto.ServerAddr, cfg HandshakeConfig, info *proto.ServerInfo, enableZstd bool) error {
	connectOpts, err := buildConnectOptions(addr, cfg, info, enableZstd)
	if err != nil {
		return err
	}

	if err := c.EnqueueOp(&proto.ClientOp{Kind: proto.ClientOpConnect, Connect: connectOpts}); err != nil {
		return err
	}
	if err := c.EnqueueOp(&proto.ClientOp{Kind: proto.ClientOpPing}); err != nil {
		return err
	}
	if err := c.Flush(); err != nil {
		return err
	}

	// The non-standard zstd wrapper must be installed between sending
	// CONNECT/PING and reading the server's reply, since the server may
	// start compressing its replies the instant it sees our opt-in.
	if enableZstd {
		if sc, ok := c.(*StreamConn); ok {
			if err := sc.ReplaceSocket(func(s stream.Socket) (stream.Socket, error) {
				return stream.NewZstdSocket(s)
			}); err != nil {
				return fmt.Errorf("conn: zstd upgrade: %w", err)
			}
		}
	}

	for {
		op, err := c.ReadOp()
		if err != nil {
			return fmt.Errorf("conn: handshake read: %w", err)
		}
		switch op.Kind {
		case proto.ServerOpSuccess:
			continue
		case proto.ServerOpPong:
			return nil
		case proto.ServerOpPing:
			if err := c.EnqueueOp(&proto.ClientOp{Kind: proto.ClientOpPong}); err != nil {
				return err
			}
			if err := c.Flush(); err != nil {
				return err
			}
		case proto.ServerOpError:
			return op.Error
		default:
			return &ErrUnexpectedOp{Stage: "connect", Op: op.Kind}
		}
	}
}

func buildConnectOptions(addr proto.ServerAddr, cfg HandshakeConfig, info *proto.ServerInfo, enableZstd bool) (*proto.Connect, error) {
	opts := &proto.Connect{
		Verbose:              true,
		Pedantic:             false,
		Name:                 cfg.Name,
		Lang:                 orDefault(cfg.Lang, "go"),
		Version:              cfg.Version,
		Protocol:             1,
		Echo:                 cfg.Echo,
		SupportsNoResponders: true,
		SupportsHeaders:      true,
		TLSRequired:          addr.Protocol == proto.ProtocolTLS,
	}
	opts.NonStandard.Zstd = enableZstd

	method := cfg.Auth
	if method.Kind == auth.KindNone && addr.Username != "" {
		method = auth.UserPass(addr.Username, addr.Password)
	}

	switch method.Kind {
	case auth.KindUserPass:
		opts.Username = method.Username
		opts.Password = method.Password
	case auth.KindToken:
		opts.AuthToken = method.Token
	case auth.KindNKey:
		pub, sig, err := method.Sign(info.Nonce)
		if err != nil {
			return nil, err
		}
		opts.JWT = method.JWT
		opts.NKey = pub
		opts.Signature = sig
	}

	return opts, nil
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
