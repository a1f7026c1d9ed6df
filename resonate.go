package resonate

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/itsdarik/resonate/hueapi"
	"github.com/itsdarik/resonate/huestream"
	"github.com/itsdarik/resonate/internal/anim"
	"github.com/itsdarik/resonate/internal/framestate"
	"github.com/itsdarik/resonate/session"
)

var (
	// ErrUnknownShow is returned by BeginShow for names not in the catalog.
	ErrUnknownShow = errors.New("unknown show")
	// ErrNotOpen is returned by BeginShow before Open succeeds or after Stop.
	ErrNotOpen = errors.New("streaming is not open")
	// ErrAlreadyOpen is returned by Open when called more than once.
	ErrAlreadyOpen = errors.New("streaming is already open")
	// ErrBusy is returned by BeginShow while another show is playing.
	ErrBusy = errors.New("another show is playing")
)

// Sender is the interface for types that deliver serialized messages to the
// bridge. *session.Session implements it.
type Sender interface {
	// Send sends a single message.
	Send(b []byte) error
}

// Enabler is the interface for types that switch an entertainment
// configuration in and out of streaming mode. *hueapi.Client implements it.
type Enabler interface {
	StartStreaming(ctx context.Context, configID string) error
	StopStreaming(ctx context.Context, configID string) error
}

// SessionState is the state shared between the render loop and the streaming
// loop.
type SessionState struct {
	// Frame holds the most recently rendered frame.
	Frame *framestate.State
	stop  atomic.Bool
}

// NewSessionState creates a state holding an all-off frame.
func NewSessionState(channels int) *SessionState {
	return &SessionState{
		Frame: framestate.New(channels, huestream.XYBrightness),
	}
}

// RequestStop asks the streaming loop to stop after its current message.
func (s *SessionState) RequestStop() { s.stop.Store(true) }

// Stopping returns true once RequestStop was called.
func (s *SessionState) Stopping() bool { return s.stop.Load() }

// Stats counts the messages handled by the streaming loop.
type Stats struct {
	Sent   uint64
	Failed uint64
}

// Option configures a Controller.
type Option func(*Controller)

// WithSender makes the controller stream to s instead of opening a DTLS
// session.
func WithSender(s Sender) Option {
	return func(c *Controller) { c.sender = s }
}

// WithEnabler replaces the REST client used to toggle streaming mode.
func WithEnabler(e Enabler) Option {
	return func(c *Controller) { c.enabler = e }
}

// WithClock replaces the clock started for every show.
func WithClock(newClock func() anim.Clock) Option {
	return func(c *Controller) { c.newClock = newClock }
}

// Controller plays shows on a bridge. It renders shows into a SessionState
// and streams the state to the bridge at a fixed rate.
type Controller struct {
	cfg      *Config
	logger   *slog.Logger
	catalog  *anim.Catalog
	renderer *anim.Renderer
	state    *SessionState
	seed     int64

	newClock func() anim.Clock
	enabler  Enabler
	sender   Sender
	session  *session.Session

	// lifecycle serializes Open and Stop.
	lifecycle sync.Mutex
	loops     *errgroup.Group
	opened    atomic.Bool
	stopped   chan struct{}
	playing   sync.Mutex
	stopOnce  sync.Once
	stopErr   error

	sent   atomic.Uint64
	failed atomic.Uint64
}

// NewController creates a new controller. The configuration is validated.
func NewController(cfg *Config, logger *slog.Logger, opts ...Option) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	c := &Controller{
		cfg:      cfg,
		logger:   logger,
		catalog:  anim.NewCatalog(),
		renderer: anim.NewRenderer(seed, float64(cfg.Rate)),
		state:    NewSessionState(cfg.Channels),
		seed:     seed,
		newClock: func() anim.Clock { return anim.StartStopwatch() },
		stopped:  make(chan struct{}),
	}

	for i := range cfg.Shows {
		show, err := cfg.Shows[i].Show()
		if err != nil {
			return nil, &ConfigError{err}
		}
		if err := c.catalog.Add(show); err != nil {
			return nil, &ConfigError{err}
		}
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.enabler == nil {
		c.enabler = hueapi.NewClient(cfg.Bridge, cfg.Credentials.ApplicationKey, logger)
	}

	return c, nil
}

// Seed returns the seed of the random number generator.
func (c *Controller) Seed() int64 { return c.seed }

// Shows returns the names of all playable shows.
func (c *Controller) Shows() []string { return c.catalog.Names() }

// Stats returns the streaming counters.
func (c *Controller) Stats() Stats {
	return Stats{
		Sent:   c.sent.Load(),
		Failed: c.failed.Load(),
	}
}

// Open enables streaming on the bridge, establishes the DTLS session with
// endpoint and starts the streaming loop. An empty endpoint uses the
// configured bridge and port. A concurrent Stop cancels Open, which then
// returns ErrNotOpen or the error of the canceled step.
func (c *Controller) Open(ctx context.Context, endpoint string) error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	if c.state.Stopping() {
		return ErrNotOpen
	}
	if c.opened.Load() {
		return ErrAlreadyOpen
	}

	if endpoint == "" {
		endpoint = c.cfg.Endpoint()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-c.stopped:
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := c.enabler.StartStreaming(ctx, c.cfg.EntertainmentConfig); err != nil {
		return errors.Wrap(err, "failed to enable streaming")
	}

	if c.sender == nil {
		if err := c.connect(ctx, endpoint); err != nil {
			c.disableStreaming()
			return err
		}
	}

	if c.state.Stopping() {
		c.closeSession()
		c.disableStreaming()
		return ErrNotOpen
	}

	c.loops = new(errgroup.Group)
	c.loops.Go(c.streamLoop)
	c.opened.Store(true)

	c.logger.Info(
		"streaming started",
		"endpoint", endpoint,
		"entertainment_config", c.cfg.EntertainmentConfig,
		"channels", c.cfg.Channels)

	return nil
}

func (c *Controller) connect(ctx context.Context, endpoint string) error {
	key, err := c.cfg.Key()
	if err != nil {
		return err
	}

	sess, err := session.New(session.Config{
		Identity:         c.cfg.Credentials.PSKIdentity,
		Key:              key,
		HandshakeTimeout: time.Duration(c.cfg.Handshake.Timeout),
		Attempts:         c.cfg.Handshake.Attempts,
		Backoff:          time.Duration(c.cfg.Handshake.Backoff),
	}, c.logger)
	if err != nil {
		return errors.Wrap(err, "failed to create session")
	}

	if err := sess.Connect(ctx, endpoint); err != nil {
		sess.Close()
		return err
	}

	c.session = sess
	c.sender = sess
	return nil
}

// BeginShow plays the named show until it ends or ctx is canceled. The frame
// state is always turned off before BeginShow returns. Cancellation returns
// ctx.Err().
func (c *Controller) BeginShow(ctx context.Context, name string) error {
	if !c.opened.Load() || c.state.Stopping() {
		return ErrNotOpen
	}

	show, ok := c.catalog.Get(name)
	if !ok {
		return errors.Wrapf(ErrUnknownShow, "%q", name)
	}

	if !c.playing.TryLock() {
		return ErrBusy
	}
	defer c.playing.Unlock()

	c.logger.Info(
		"starting show",
		"show", show.Name,
		"duration", show.Duration())

	return c.renderLoop(ctx, show)
}

func (c *Controller) renderLoop(ctx context.Context, show *anim.Show) error {
	defer c.state.Frame.Reset()

	frame := huestream.Frame{Space: show.Space}
	frame.Reset(c.cfg.Channels)

	clock := c.newClock()

	frameTicker := time.NewTicker(time.Second / time.Duration(c.cfg.Rate))
	defer frameTicker.Stop()

	for {
		switch status := c.renderer.RenderClock(show, clock, &frame); status {
		case anim.StatusEnded:
			c.logger.Info("show ended", "show", show.Name)
			return nil
		case anim.StatusError:
			return errors.Wrapf(anim.ErrClock, "show %q stopped", show.Name)
		}

		c.state.Frame.Write(&frame)

		select {
		case <-ctx.Done():
			c.logger.Info("show canceled", "show", show.Name)
			return ctx.Err()
		case <-frameTicker.C:
		}
	}
}

// streamLoop sends the newest frame at the stream rate until a stop is
// requested. One last frame is sent after the request so that the bridge is
// left with the final state.
func (c *Controller) streamLoop() error {
	streamTicker := time.NewTicker(time.Second / time.Duration(c.cfg.StreamRate))
	defer streamTicker.Stop()

	var seq uint8
	for !c.state.Stopping() {
		c.sendFrame(seq)
		seq++
		<-streamTicker.C
	}
	c.sendFrame(seq)

	return nil
}

func (c *Controller) sendFrame(seq uint8) {
	frame := c.state.Frame.Snapshot()

	if err := c.writeMessage(&frame, seq); err != nil {
		c.failed.Add(1)
		c.logger.Warn(
			"failed to send frame",
			"sequence", seq,
			"error", err)
		return
	}

	c.sent.Add(1)
}

func (c *Controller) writeMessage(frame *huestream.Frame, seq uint8) error {
	m, err := huestream.NewMessage(frame, c.cfg.EntertainmentConfig, seq)
	if err != nil {
		return err
	}

	b, err := m.Serialize(frame.Count)
	if err != nil {
		return err
	}

	return c.sender.Send(b)
}

// Stop stops the streaming loop, closes the session and disables streaming
// on the bridge. An Open in progress is canceled and waited for. Shows must
// have returned before Stop is called. Stop is idempotent.
func (c *Controller) Stop() error {
	c.stopOnce.Do(func() {
		c.state.RequestStop()
		close(c.stopped)

		c.lifecycle.Lock()
		defer c.lifecycle.Unlock()

		if c.loops == nil {
			return
		}

		c.stopErr = c.loops.Wait()
		c.closeSession()
		c.disableStreaming()

		stats := c.Stats()
		c.logger.Info(
			"streaming stopped",
			"sent", stats.Sent,
			"failed", stats.Failed)
	})

	return c.stopErr
}

func (c *Controller) closeSession() {
	if c.session != nil {
		c.session.Close()
	}
}

func (c *Controller) disableStreaming() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.enabler.StopStreaming(ctx, c.cfg.EntertainmentConfig); err != nil {
		c.logger.Warn(
			"failed to disable streaming",
			"error", err)
	}
}
