package dial

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"
)

func mustIP(t *testing.T, s string) net.IPAddr {
	t.Helper()
	ip := net.ParseIP(s)
	if ip == nil {
		t.Fatalf("invalid IP literal %q", s)
	}
	return net.IPAddr{IP: ip}
}

func TestInterleavePrefersIPv6First(t *testing.T) {
	ips := []net.IPAddr{
		mustIP(t, "10.0.0.1"),
		mustIP(t, "10.0.0.2"),
		mustIP(t, "2001:db8::1"),
		mustIP(t, "2001:db8::2"),
	}
	out := interleave(ips)
	want := []string{"2001:db8::1", "10.0.0.1", "2001:db8::2", "10.0.0.2"}
	if len(out) != len(want) {
		t.Fatalf("len(out) = %d, want %d", len(out), len(want))
	}
	for i, w := range want {
		if out[i].IP.String() != w {
			t.Errorf("out[%d] = %s, want %s", i, out[i].IP.String(), w)
		}
	}
}

func TestInterleaveSingleFamily(t *testing.T) {
	ips := []net.IPAddr{mustIP(t, "10.0.0.1"), mustIP(t, "10.0.0.2")}
	out := interleave(ips)
	if len(out) != 2 || out[0].IP.String() != "10.0.0.1" || out[1].IP.String() != "10.0.0.2" {
		t.Errorf("interleave single-family reordered unexpectedly: %v", out)
	}
}

type fakeResolver struct {
	ips []net.IPAddr
	err error
}

func (f *fakeResolver) LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error) {
	return f.ips, f.err
}

// fakeConn is a minimal net.Conn good enough to be returned and closed.
type fakeConn struct{ net.Conn }

func TestDialContextSkipsResolutionForLiteralIP(t *testing.T) {
	called := false
	d := &Dialer{
		Resolver: &fakeResolver{err: errors.New("resolver must not be called")},
		DialFunc: func(ctx context.Context, network, address string) (net.Conn, error) {
			called = true
			if address != "127.0.0.1:4222" {
				t.Errorf("address = %s, want 127.0.0.1:4222", address)
			}
			c1, c2 := net.Pipe()
			c2.Close()
			return c1, nil
		},
	}
	conn, err := d.DialContext(context.Background(), "127.0.0.1", 4222)
	if err != nil {
		t.Fatalf("DialContext: %v", err)
	}
	defer conn.Close()
	if !called {
		t.Error("DialFunc was never invoked")
	}
}

func TestDialContextNoAddresses(t *testing.T) {
	d := &Dialer{Resolver: &fakeResolver{ips: nil}}
	_, err := d.DialContext(context.Background(), "example.invalid", 4222)
	if !errors.Is(err, ErrNoAddress) {
		t.Errorf("err = %v, want ErrNoAddress", err)
	}
}

// TestRaceFastCandidateWinsBeforeStagger verifies that when the first
// candidate in the queue succeeds quickly, the race returns immediately
// without waiting out the full CandidateDelay for a second attempt.
func TestRaceFastCandidateWinsBeforeStagger(t *testing.T) {
	var mu sync.Mutex
	attempts := 0

	d := &Dialer{
		Resolver: &fakeResolver{ips: []net.IPAddr{mustIP(t, "2001:db8::1"), mustIP(t, "10.0.0.1")}},
		DialFunc: func(ctx context.Context, network, address string) (net.Conn, error) {
			mu.Lock()
			attempts++
			mu.Unlock()
			c1, c2 := net.Pipe()
			c2.Close()
			return c1, nil
		},
	}

	start := time.Now()
	conn, err := d.DialContext(context.Background(), "dual-stack.example", 4222)
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("DialContext: %v", err)
	}
	defer conn.Close()
	if elapsed >= CandidateDelay {
		t.Errorf("race took %v, expected to win well before the %v stagger", elapsed, CandidateDelay)
	}
}

// TestRaceFallsBackAfterFirstFails verifies a failing first candidate does
// not block the second one forever: the second attempt starts either once
// the first fails or once the stagger elapses, and its success wins.
func TestRaceFallsBackAfterFirstFails(t *testing.T) {
	d := &Dialer{
		Resolver: &fakeResolver{ips: []net.IPAddr{mustIP(t, "2001:db8::1"), mustIP(t, "10.0.0.1")}},
		DialFunc: func(ctx context.Context, network, address string) (net.Conn, error) {
			if address == "[2001:db8::1]:4222" {
				return nil, errors.New("unreachable")
			}
			c1, c2 := net.Pipe()
			c2.Close()
			return c1, nil
		},
	}
	conn, err := d.DialContext(context.Background(), "dual-stack.example", 4222)
	if err != nil {
		t.Fatalf("DialContext: %v", err)
	}
	conn.Close()
}

func TestRaceAllCandidatesFail(t *testing.T) {
	d := &Dialer{
		Resolver: &fakeResolver{ips: []net.IPAddr{mustIP(t, "10.0.0.1")}},
		DialFunc: func(ctx context.Context, network, address string) (net.Conn, error) {
			return nil, errors.New("connection refused")
		},
	}
	_, err := d.DialContext(context.Background(), "unreachable.example", 4222)
	if err == nil {
		t.Fatal("expected error when every candidate fails")
	}
}
