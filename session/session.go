// Package session implements the encrypted datagram session used to stream
// frames to a bridge. Sessions authenticate with a pre-shared key over DTLS.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pion/dtls/v2"
	"github.com/pkg/errors"
)

// DefaultPort is the port bridges accept streaming sessions on.
const DefaultPort = 2100

// KeySize is the size of the pre-shared key in bytes.
const KeySize = 16

// CipherSuite is the only cipher suite bridges accept.
const CipherSuite = dtls.TLS_PSK_WITH_AES_128_GCM_SHA256

var (
	// ErrNotEstablished is returned by Send when the session has no
	// established connection.
	ErrNotEstablished = errors.New("session not established")
	// ErrState is returned by Connect when the session was already used.
	ErrState = errors.New("session already used")
	// ErrHandshake is returned when the handshake does not complete within
	// the configured number of attempts.
	ErrHandshake = errors.New("handshake did not complete")
	// ErrRejected is returned when the bridge answered but the handshake
	// still failed, usually because of a wrong PSK identity or key. It is
	// never retried.
	ErrRejected = errors.New("bridge rejected the handshake, check the PSK identity and key")
)

// ConnectError is returned when a session cannot be established.
type ConnectError struct {
	Endpoint string
	Err      error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("failed to connect to %s: %v", e.Endpoint, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// SendError is returned when a single datagram cannot be sent. The session
// stays established.
type SendError struct {
	Err error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("failed to send datagram: %v", e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// State is the lifecycle state of a session.
type State uint8

const (
	Unestablished State = iota
	Handshaking
	Established
	Closed
	Failed
)

// String returns a string representation of the state.
func (s State) String() string {
	switch s {
	case Unestablished:
		return "unestablished"
	case Handshaking:
		return "handshaking"
	case Established:
		return "established"
	case Closed:
		return "closed"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", s)
	}
}

// Config is the configuration of a session.
type Config struct {
	// Identity is the PSK identity, the application ID issued by the bridge.
	Identity string
	// Key is the pre-shared key.
	Key []byte
	// HandshakeTimeout bounds a single handshake attempt.
	HandshakeTimeout time.Duration
	// Attempts is the number of handshake attempts made before giving up.
	Attempts int
	// Backoff is the pause between handshake attempts.
	Backoff time.Duration
}

func (c *Config) setDefaults() {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 5 * time.Second
	}
	if c.Attempts <= 0 {
		c.Attempts = 5
	}
	if c.Backoff <= 0 {
		c.Backoff = 250 * time.Millisecond
	}
}

// Session is a DTLS session with a bridge. A session is connected at most
// once. It is owned by a single goroutine and is not safe for concurrent use.
type Session struct {
	cfg    Config
	logger *slog.Logger
	state  State
	conn   net.Conn
}

// New creates an unestablished session.
func New(cfg Config, logger *slog.Logger) (*Session, error) {
	if cfg.Identity == "" {
		return nil, errors.New("missing PSK identity")
	}
	if len(cfg.Key) != KeySize {
		return nil, fmt.Errorf("PSK is %d bytes, want %d", len(cfg.Key), KeySize)
	}

	cfg.setDefaults()

	return &Session{
		cfg:    cfg,
		logger: logger,
		state:  Unestablished,
	}, nil
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return s.state
}

// Connect opens a datagram socket to endpoint ("host:port") and performs the
// PSK handshake. An attempt that times out without hearing from the bridge
// is retried. Any other failure is permanent and moves the session to
// Failed. Once the bridge has answered, a failed attempt returns ErrRejected.
func (s *Session) Connect(ctx context.Context, endpoint string) error {
	if s.state != Unestablished {
		return &ConnectError{endpoint, errors.Wrapf(ErrState, "session is %s", s.state)}
	}

	s.state = Handshaking
	s.logger.Debug(
		"starting handshake",
		"endpoint", endpoint,
		"attempts", s.cfg.Attempts)

	var b backoff.BackOff = backoff.NewConstantBackOff(s.cfg.Backoff)
	b = backoff.WithMaxRetries(b, uint64(s.cfg.Attempts-1))
	b = backoff.WithContext(b, ctx)

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		conn, answered, err := s.handshake(ctx, endpoint)
		if err == nil {
			s.conn = conn
			return nil
		}

		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		if answered {
			return backoff.Permanent(errors.Wrapf(ErrRejected, "%v", err))
		}
		if !isTimeout(err) {
			return backoff.Permanent(err)
		}

		s.logger.Debug(
			"handshake timed out, retrying",
			"endpoint", endpoint,
			"attempt", attempt)

		return err
	}, b)

	if err != nil {
		s.state = Failed
		if isTimeout(err) {
			err = errors.Wrapf(ErrHandshake, "%d attempts: %v", attempt, err)
		}
		return &ConnectError{endpoint, err}
	}

	s.state = Established
	s.logger.Info(
		"session established",
		"endpoint", endpoint,
		"attempts", attempt)

	return nil
}

// handshake performs a single handshake attempt. answered is true if any
// datagram arrived from the bridge during the attempt.
func (s *Session) handshake(ctx context.Context, endpoint string) (conn net.Conn, answered bool, err error) {
	var d net.Dialer
	udp, err := d.DialContext(ctx, "udp", endpoint)
	if err != nil {
		return nil, false, errors.Wrap(err, "failed to open socket")
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.HandshakeTimeout)
	defer cancel()

	counted := &countingConn{Conn: udp}

	conn, err = dtls.ClientWithContext(ctx, counted, &dtls.Config{
		PSK: func(hint []byte) ([]byte, error) {
			return s.cfg.Key, nil
		},
		PSKIdentityHint: []byte(s.cfg.Identity),
		CipherSuites:    []dtls.CipherSuiteID{CipherSuite},
	})
	if err != nil {
		udp.Close()
		return nil, counted.read.Load() > 0, errors.Wrap(err, "handshake failed")
	}

	return conn, true, nil
}

// countingConn counts the bytes read from the underlying connection.
type countingConn struct {
	net.Conn
	read atomic.Int64
}

func (c *countingConn) Read(b []byte) (int, error) {
	n, err := c.Conn.Read(b)
	c.read.Add(int64(n))
	return n, err
}

// Send sends b as a single encrypted datagram. It performs no I/O unless the
// session is established.
func (s *Session) Send(b []byte) error {
	if s.state != Established {
		return errors.Wrapf(ErrNotEstablished, "session is %s", s.state)
	}

	if _, err := s.conn.Write(b); err != nil {
		return &SendError{err}
	}

	return nil
}

// Close notifies the bridge that the session is over and releases the socket.
// A failed notification is ignored since the bridge may already be gone. Close
// is idempotent.
func (s *Session) Close() error {
	if s.state == Closed {
		return nil
	}

	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			s.logger.Debug(
				"ignoring error while closing session",
				"error", err)
		}
		s.conn = nil
	}

	s.state = Closed
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
