package resonate

import (
	"encoding"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"

	"github.com/itsdarik/resonate/huestream"
	"github.com/itsdarik/resonate/internal/anim"
	"github.com/itsdarik/resonate/session"
)

// Environment variables consulted for credentials missing from the
// configuration file.
const (
	EnvApplicationKey = "HUE_USERNAME"
	EnvPSKIdentity    = "HUE_APPLICATION_ID"
	EnvPSK            = "HUE_CLIENTKEY"
)

// MaxRate is the highest render or stream rate in Hz. Faster rates leave no
// whole nanosecond between ticks.
const MaxRate = int(time.Second)

// Config is the configuration for resonate.
type Config struct {
	// Bridge is the host name or IP address of the Hue bridge.
	Bridge string `toml:"bridge"`
	// Port is the DTLS streaming port of the bridge.
	Port int `toml:"port"`
	// EntertainmentConfig is the ID of the entertainment configuration to
	// stream to.
	EntertainmentConfig string `toml:"entertainment_config"`
	// Channels is the number of channels in the entertainment configuration.
	Channels int `toml:"channels"`
	// Rate is the render rate in frames per second.
	Rate int `toml:"rate"`
	// StreamRate is the number of messages sent to the bridge per second.
	StreamRate int `toml:"stream_rate"`
	// Seed seeds the random number generator. Zero picks a seed from the
	// current time.
	Seed int64 `toml:"seed"`

	Credentials CredentialsConfig `toml:"credentials"`
	Handshake   HandshakeConfig   `toml:"handshake"`
	// Shows is a list of additional shows.
	Shows []ShowConfig `toml:"show"`
}

// CredentialsConfig holds the credentials issued by the bridge.
type CredentialsConfig struct {
	// ApplicationKey authenticates REST requests.
	ApplicationKey string `toml:"application_key"`
	// PSKIdentity is the identity of the streaming pre-shared key.
	PSKIdentity string `toml:"psk_identity"`
	// PSK is the streaming pre-shared key as 32 hexadecimal characters.
	PSK string `toml:"psk"`
}

// HandshakeConfig bounds the streaming handshake.
type HandshakeConfig struct {
	Timeout  TOMLDuration `toml:"timeout"`
	Attempts int          `toml:"attempts"`
	Backoff  TOMLDuration `toml:"backoff"`
}

// ShowConfig describes a show in the configuration file.
type ShowConfig struct {
	Name string `toml:"name"`
	// ColorSpace is either "xy" (the default) or "rgb".
	ColorSpace string        `toml:"color_space"`
	Phases     []PhaseConfig `toml:"phase"`
}

// PhaseConfig describes one phase of a show.
type PhaseConfig struct {
	// Start is the offset of the phase in seconds.
	Start float64 `toml:"start"`
	// Kind is the transition kind, such as "hold" or "fade-color".
	Kind string `toml:"kind"`
	// From and To are "#rrggbb" colors for fade-color.
	From string `toml:"from"`
	To   string `toml:"to"`
	// FromBrightness and ToBrightness are in [0, 1] for fade-brightness.
	FromBrightness float64 `toml:"from_brightness"`
	ToBrightness   float64 `toml:"to_brightness"`
	// OnInterval and OffInterval tune random flickers, in seconds.
	OnInterval  float64 `toml:"on_interval"`
	OffInterval float64 `toml:"off_interval"`
}

// ConfigError is returned for configurations that cannot be used.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string {
	return "invalid configuration: " + e.Err.Error()
}

func (e *ConfigError) Unwrap() error { return e.Err }

func configErrorf(f string, v ...any) error {
	return &ConfigError{fmt.Errorf(f, v...)}
}

func (c *Config) setDefaults() {
	if c.Port == 0 {
		c.Port = session.DefaultPort
	}
	if c.Channels == 0 {
		c.Channels = 10
	}
	if c.Rate == 0 {
		c.Rate = 60
	}
	if c.StreamRate == 0 {
		c.StreamRate = 60
	}
	if c.Handshake.Timeout == 0 {
		c.Handshake.Timeout = TOMLDuration(5 * time.Second)
	}
	if c.Handshake.Attempts == 0 {
		c.Handshake.Attempts = 5
	}
	if c.Handshake.Backoff == 0 {
		c.Handshake.Backoff = TOMLDuration(250 * time.Millisecond)
	}
}

// ApplyEnv fills in missing credentials using lookup, usually os.Getenv.
func (c *Config) ApplyEnv(lookup func(string) string) {
	fill := func(dst *string, key string) {
		if *dst == "" {
			*dst = lookup(key)
		}
	}
	fill(&c.Credentials.ApplicationKey, EnvApplicationKey)
	fill(&c.Credentials.PSKIdentity, EnvPSKIdentity)
	fill(&c.Credentials.PSK, EnvPSK)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Bridge == "" {
		return configErrorf("no bridge configured")
	}

	if len(c.EntertainmentConfig) != huestream.ConfigIDSize {
		return configErrorf(
			"entertainment configuration %q is not %d characters long",
			c.EntertainmentConfig, huestream.ConfigIDSize)
	}
	if _, err := uuid.Parse(c.EntertainmentConfig); err != nil {
		return &ConfigError{errors.Wrap(err, "entertainment configuration is not a UUID")}
	}

	if !huestream.ValidChannelCount(c.Channels) {
		return configErrorf("channel count %d is not within [0, %d]", c.Channels, huestream.MaxChannels)
	}

	if c.Rate <= 0 || c.StreamRate <= 0 {
		return configErrorf("rates must be positive, got rate %d and stream rate %d", c.Rate, c.StreamRate)
	}
	if c.Rate > MaxRate || c.StreamRate > MaxRate {
		return configErrorf("rates must not exceed %d Hz, got rate %d and stream rate %d", MaxRate, c.Rate, c.StreamRate)
	}

	if c.Port <= 0 || c.Port > 65535 {
		return configErrorf("invalid port %d", c.Port)
	}

	if c.Credentials.ApplicationKey == "" {
		return configErrorf("no application key configured (set %s)", EnvApplicationKey)
	}
	if c.Credentials.PSKIdentity == "" {
		return configErrorf("no PSK identity configured (set %s)", EnvPSKIdentity)
	}
	if _, err := c.Key(); err != nil {
		return err
	}

	for _, sc := range c.Shows {
		if _, err := sc.Show(); err != nil {
			return &ConfigError{err}
		}
	}

	return nil
}

// Key returns the decoded pre-shared key.
func (c *Config) Key() ([]byte, error) {
	if len(c.Credentials.PSK) != 2*session.KeySize {
		return nil, configErrorf(
			"PSK is %d hexadecimal characters long, want %d (set %s)",
			len(c.Credentials.PSK), 2*session.KeySize, EnvPSK)
	}

	key, err := hex.DecodeString(c.Credentials.PSK)
	if err != nil {
		return nil, &ConfigError{errors.Wrap(err, "PSK is not hexadecimal")}
	}

	return key, nil
}

// Endpoint returns the streaming address of the bridge.
func (c *Config) Endpoint() string {
	return net.JoinHostPort(c.Bridge, strconv.Itoa(c.Port))
}

// Show builds the show described by the configuration.
func (sc *ShowConfig) Show() (*anim.Show, error) {
	space, err := huestream.ParseColorSpace(sc.ColorSpace)
	if err != nil {
		return nil, errors.Wrapf(err, "show %q", sc.Name)
	}

	show := &anim.Show{
		Name:   sc.Name,
		Space:  space,
		Phases: make([]anim.Phase, 0, len(sc.Phases)),
	}

	for i, pc := range sc.Phases {
		t, err := pc.transition(space)
		if err != nil {
			return nil, errors.Wrapf(err, "show %q phase %d", sc.Name, i)
		}
		show.Phases = append(show.Phases, anim.Phase{Start: pc.Start, Transition: t})
	}

	if err := show.Validate(); err != nil {
		return nil, err
	}

	return show, nil
}

func (pc *PhaseConfig) transition(space huestream.ColorSpace) (anim.Transition, error) {
	kind, err := anim.ParseTransitionKind(pc.Kind)
	if err != nil {
		return anim.Transition{}, err
	}

	t := anim.Transition{Kind: kind}

	switch kind {
	case anim.FadeColor:
		if t.From, err = anim.ParseHexColor(pc.From, space); err != nil {
			return t, errors.Wrap(err, "invalid from color")
		}
		if t.To, err = anim.ParseHexColor(pc.To, space); err != nil {
			return t, errors.Wrap(err, "invalid to color")
		}

	case anim.FadeBrightness:
		for _, b := range []float64{pc.FromBrightness, pc.ToBrightness} {
			if b < 0 || b > 1 {
				return t, fmt.Errorf("brightness %g is not within [0, 1]", b)
			}
		}
		t = anim.FadeBrightnessTo(anim.ScaleUnit(pc.FromBrightness), anim.ScaleUnit(pc.ToBrightness))

	case anim.RandomFlicker, anim.RandomFlickerAcrossChannels:
		t = anim.Flicker(kind)
		if pc.OnInterval > 0 {
			t.OnInterval = pc.OnInterval
		}
		if pc.OffInterval > 0 {
			t.OffInterval = pc.OffInterval
		}
	}

	return t, nil
}

// TOMLDuration is a duration that can be parsed from TOML.
type TOMLDuration time.Duration

var (
	_ encoding.TextUnmarshaler = (*TOMLDuration)(nil)
	_ encoding.TextMarshaler   = (*TOMLDuration)(nil)
)

func (d *TOMLDuration) UnmarshalText(text []byte) error {
	duration, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = TOMLDuration(duration)
	return nil
}

func (d TOMLDuration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// ParseConfig parses a configuration from a reader. Missing optional fields
// are set to their defaults. The configuration is not validated.
func ParseConfig(r io.Reader) (*Config, error) {
	var config Config
	if err := toml.NewDecoder(r).Decode(&config); err != nil {
		return nil, err
	}
	config.setDefaults()
	return &config, nil
}
