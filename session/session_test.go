package session

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/pion/dtls/v2"
)

var testKey = []byte("0123456789abcdef")

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSession(t *testing.T, cfg Config) *Session {
	t.Helper()
	if cfg.Identity == "" {
		cfg.Identity = "test-identity"
	}
	if cfg.Key == nil {
		cfg.Key = testKey
	}
	s, err := New(cfg, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// startBridge starts a DTLS PSK listener on loopback and returns its address
// and a channel receiving every datagram read from accepted sessions.
func startBridge(t *testing.T, key []byte) (string, <-chan []byte) {
	t.Helper()

	ln, err := dtls.Listen("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)}, &dtls.Config{
		PSK: func(hint []byte) ([]byte, error) {
			return key, nil
		},
		PSKIdentityHint: []byte("bridge"),
		CipherSuites:    []dtls.CipherSuiteID{CipherSuite},
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })

	received := make(chan []byte, 16)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return
				}
				continue
			}
			go func() {
				defer conn.Close()
				buf := make([]byte, 1024)
				for {
					n, err := conn.Read(buf)
					if err != nil {
						return
					}
					received <- bytes.Clone(buf[:n])
				}
			}()
		}
	}()

	return ln.Addr().String(), received
}

func TestNewValidatesCredentials(t *testing.T) {
	if _, err := New(Config{Key: testKey}, testLogger()); err == nil {
		t.Error("expected error for missing identity")
	}
	if _, err := New(Config{Identity: "id", Key: []byte("short")}, testLogger()); err == nil {
		t.Error("expected error for short key")
	}
}

func TestSendBeforeConnect(t *testing.T) {
	s := newTestSession(t, Config{})

	err := s.Send([]byte("frame"))
	if !errors.Is(err, ErrNotEstablished) {
		t.Fatalf("got error %v, want ErrNotEstablished", err)
	}
	if s.State() != Unestablished {
		t.Errorf("got state %v, want unestablished", s.State())
	}
}

func TestCloseTwice(t *testing.T) {
	s := newTestSession(t, Config{})

	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if s.State() != Closed {
		t.Errorf("got state %v, want closed", s.State())
	}

	if err := s.Connect(context.Background(), "127.0.0.1:1"); !errors.Is(err, ErrState) {
		t.Errorf("connect after close: got error %v, want ErrState", err)
	}
	if err := s.Send([]byte("frame")); !errors.Is(err, ErrNotEstablished) {
		t.Errorf("send after close: got error %v, want ErrNotEstablished", err)
	}
}

func TestConnectAndSend(t *testing.T) {
	addr, received := startBridge(t, testKey)

	s := newTestSession(t, Config{HandshakeTimeout: 5 * time.Second, Attempts: 1})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.Connect(ctx, addr); err != nil {
		t.Fatal(err)
	}
	if s.State() != Established {
		t.Fatalf("got state %v, want established", s.State())
	}

	payload := []byte("HueStream frame")
	if err := s.Send(payload); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-received:
		if !bytes.Equal(got, payload) {
			t.Errorf("got %q, want %q", got, payload)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for datagram")
	}

	if err := s.Connect(ctx, addr); !errors.Is(err, ErrState) {
		t.Errorf("second connect: got error %v, want ErrState", err)
	}

	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if s.State() != Closed {
		t.Errorf("got state %v, want closed", s.State())
	}
}

func TestConnectRetriesThenFails(t *testing.T) {
	// A socket that never answers makes every handshake attempt time out.
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { pc.Close() })

	s := newTestSession(t, Config{
		HandshakeTimeout: 200 * time.Millisecond,
		Attempts:         2,
		Backoff:          10 * time.Millisecond,
	})

	start := time.Now()
	err = s.Connect(context.Background(), pc.LocalAddr().String())
	if err == nil {
		t.Fatal("expected handshake to fail")
	}

	var connectErr *ConnectError
	if !errors.As(err, &connectErr) {
		t.Fatalf("got error %T, want *ConnectError", err)
	}
	if !errors.Is(err, ErrHandshake) {
		t.Errorf("got error %v, want ErrHandshake", err)
	}
	if s.State() != Failed {
		t.Errorf("got state %v, want failed", s.State())
	}
	if elapsed := time.Since(start); elapsed < 400*time.Millisecond {
		t.Errorf("gave up after %v, expected two attempts", elapsed)
	}

	if err := s.Send([]byte("frame")); !errors.Is(err, ErrNotEstablished) {
		t.Errorf("send after failure: got error %v, want ErrNotEstablished", err)
	}
}

func TestConnectCanceled(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { pc.Close() })

	s := newTestSession(t, Config{HandshakeTimeout: time.Minute, Attempts: 100})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	if err := s.Connect(ctx, pc.LocalAddr().String()); err == nil {
		t.Fatal("expected canceled handshake to fail")
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Errorf("cancellation took %v", elapsed)
	}
	if s.State() != Failed {
		t.Errorf("got state %v, want failed", s.State())
	}
}

func TestConnectWrongKey(t *testing.T) {
	addr, _ := startBridge(t, []byte("fedcba9876543210"))

	s := newTestSession(t, Config{
		HandshakeTimeout: 300 * time.Millisecond,
		Attempts:         5,
		Backoff:          10 * time.Millisecond,
	})

	start := time.Now()
	err := s.Connect(context.Background(), addr)
	if err == nil {
		t.Fatal("expected handshake with the wrong key to fail")
	}
	if !errors.Is(err, ErrRejected) {
		t.Errorf("got error %v, want ErrRejected", err)
	}
	if errors.Is(err, ErrHandshake) {
		t.Errorf("rejected handshake reported as a timeout: %v", err)
	}
	if s.State() != Failed {
		t.Errorf("got state %v, want failed", s.State())
	}

	// A single attempt, not five.
	if elapsed := time.Since(start); elapsed > 600*time.Millisecond {
		t.Errorf("gave up after %v, want no retries", elapsed)
	}
}
