// Package stream composes the layered duplex byte stream a NATS connection
// is built on: TCP, an optional TLS upgrade, and an optional non-standard
// zstd upgrade. Each layer wraps the previous one behind the same Socket
// interface so the upper NATS/WebSocket framing never needs to know which
// layers are present.
package stream

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Socket is the minimal duplex byte stream the codec layer reads from and
// writes to. *net.TCPConn and *tls.Conn already satisfy it.
type Socket interface {
	io.Reader
	io.Writer
	io.Closer
}

// UpgradeTLS performs a client-side TLS handshake over conn and returns the
// resulting *tls.Conn. serverName is used for SNI and certificate
// verification when cfg does not already set ServerName. The TLS upgrade
// always happens directly on the raw TCP socket, before any zstd layer is
// wrapped around it, so it only ever needs to deal with a real net.Conn.
func UpgradeTLS(ctx context.Context, conn net.Conn, serverName string, cfg *tls.Config) (*tls.Conn, error) {
	cfgCopy := cfg.Clone()
	if cfgCopy == nil {
		cfgCopy = &tls.Config{MinVersion: tls.VersionTLS13}
	}
	if cfgCopy.ServerName == "" {
		cfgCopy.ServerName = serverName
	}

	tlsConn := tls.Client(conn, cfgCopy)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return nil, fmt.Errorf("stream: tls handshake: %w", err)
	}
	return tlsConn, nil
}

// ZstdSocket wraps an inner Socket with a streaming zstd encoder/decoder
// pair so that NATS framing is decompressed on read and compressed on
// write. The encoder and decoder are independent codec state wrapping
// opposite directions of the same inner stream, the same way the original
// Rust implementation hands the socket between a read half and a write
// half rather than guarding both with one lock: readMu and writeMu are
// held only around their own direction, so a Read blocked waiting on the
// next server op (the common case: the reader goroutine is parked there
// almost continuously) never stalls a concurrent Write, and vice versa.
type ZstdSocket struct {
	readMu  sync.Mutex
	writeMu sync.Mutex
	inner   Socket
	enc     *zstd.Encoder
	dec     *zstd.Decoder
}

// NewZstdSocket wraps inner in a zstd stream. The returned socket takes
// ownership of inner; callers must not use inner directly afterward.
func NewZstdSocket(inner Socket) (*ZstdSocket, error) {
	z := &ZstdSocket{inner: inner}

	enc, err := zstd.NewWriter(inner)
	if err != nil {
		return nil, fmt.Errorf("stream: zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(inner)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("stream: zstd decoder: %w", err)
	}
	z.enc = enc
	z.dec = dec
	return z, nil
}

// Read decompresses bytes from the inner stream. It blocks until the peer
// sends more compressed data, which for a NATS connection is most of the
// time; readMu must never be the same lock Write waits on.
func (z *ZstdSocket) Read(p []byte) (int, error) {
	z.readMu.Lock()
	defer z.readMu.Unlock()
	return z.dec.Read(p)
}

// Write compresses p and flushes it immediately so the frame reaches the
// peer without waiting for the encoder's internal buffer to fill; NATS
// operations are latency sensitive and may be small.
func (z *ZstdSocket) Write(p []byte) (int, error) {
	z.writeMu.Lock()
	defer z.writeMu.Unlock()
	n, err := z.enc.Write(p)
	if err != nil {
		return n, err
	}
	if err := z.enc.Flush(); err != nil {
		return n, err
	}
	return n, nil
}

// Close shuts down the encoder, decoder, and inner stream. It takes both
// locks so it never races a concurrent Read or Write tearing down the
// same codec state.
func (z *ZstdSocket) Close() error {
	z.writeMu.Lock()
	defer z.writeMu.Unlock()
	z.readMu.Lock()
	defer z.readMu.Unlock()
	z.enc.Close()
	z.dec.Close()
	return z.inner.Close()
}
