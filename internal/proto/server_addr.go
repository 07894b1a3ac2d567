package proto

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
)

// Protocol selects whether a ServerAddr may start plaintext and upgrade, or
// must use TLS from the first byte.
type Protocol int

const (
	ProtocolPossiblyPlain Protocol = iota
	ProtocolTLS
)

// Transport selects the framing used on top of the byte stream.
type Transport int

const (
	TransportTCP Transport = iota
	TransportWebsocket
)

// ServerAddr is a parsed NATS server URL.
type ServerAddr struct {
	Protocol Protocol
	Transport Transport
	Host     string
	IsIP     bool
	Port     uint16
	Username string
	Password string
}

// ErrInvalidServerAddr is returned when a server URL cannot be parsed.
type ErrInvalidServerAddr struct {
	Raw    string
	Reason string
}

func (e *ErrInvalidServerAddr) Error() string {
	return fmt.Sprintf("proto: invalid server address %q: %s", e.Raw, e.Reason)
}

// ParseServerAddr parses a NATS server URL of the form
// scheme://[user[:pass]@]host[:port].
func ParseServerAddr(raw string) (ServerAddr, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return ServerAddr{}, &ErrInvalidServerAddr{Raw: raw, Reason: err.Error()}
	}

	var protocol Protocol
	var transport Transport
	switch u.Scheme {
	case "nats", "":
		protocol, transport = ProtocolPossiblyPlain, TransportTCP
	case "tls":
		protocol, transport = ProtocolTLS, TransportTCP
	case "ws":
		protocol, transport = ProtocolPossiblyPlain, TransportWebsocket
	case "wss":
		protocol, transport = ProtocolTLS, TransportWebsocket
	default:
		return ServerAddr{}, &ErrInvalidServerAddr{Raw: raw, Reason: "unknown scheme " + u.Scheme}
	}

	host := u.Hostname()
	if host == "" {
		return ServerAddr{}, &ErrInvalidServerAddr{Raw: raw, Reason: "missing host"}
	}

	port := protocolTransportToPort(protocol, transport)
	if portStr := u.Port(); portStr != "" {
		n, err := strconv.ParseUint(portStr, 10, 16)
		if err != nil {
			return ServerAddr{}, &ErrInvalidServerAddr{Raw: raw, Reason: "invalid port"}
		}
		port = uint16(n)
	}

	var username, password string
	if u.User != nil {
		username = u.User.Username()
		password, _ = u.User.Password()
	}

	return ServerAddr{
		Protocol:  protocol,
		Transport: transport,
		Host:      host,
		IsIP:      net.ParseIP(host) != nil,
		Port:      port,
		Username:  username,
		Password:  password,
	}, nil
}

func protocolTransportToPort(protocol Protocol, transport Transport) uint16 {
	switch transport {
	case TransportTCP:
		return 4222
	case TransportWebsocket:
		if protocol == ProtocolTLS {
			return 443
		}
		return 80
	default:
		return 4222
	}
}

// String renders the address back into URL form, omitting the port when
// it equals the scheme's default. Username and password are never
// included (Debug marks their presence as redacted).
func (a ServerAddr) String() string {
	scheme := "nats"
	switch {
	case a.Transport == TransportWebsocket && a.Protocol == ProtocolTLS:
		scheme = "wss"
	case a.Transport == TransportWebsocket:
		scheme = "ws"
	case a.Protocol == ProtocolTLS:
		scheme = "tls"
	}

	host := a.Host
	if a.IsIP && isIPv6(host) {
		host = "[" + host + "]"
	}

	if a.Port == protocolTransportToPort(a.Protocol, a.Transport) {
		return fmt.Sprintf("%s://%s", scheme, host)
	}
	return fmt.Sprintf("%s://%s:%d", scheme, host, a.Port)
}

// Debug renders the address with username/password redacted.
func (a ServerAddr) Debug() string {
	cred := ""
	if a.Username != "" {
		cred = "<redacted>@"
	}
	return fmt.Sprintf("ServerAddr{%s%s}", cred, a.String())
}

func isIPv6(host string) bool {
	ip := net.ParseIP(host)
	return ip != nil && ip.To4() == nil
}
