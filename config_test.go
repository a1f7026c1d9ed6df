package resonate

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/itsdarik/resonate/huestream"
	"github.com/itsdarik/resonate/internal/anim"
	"github.com/itsdarik/resonate/session"
)

const exampleConfig = `
bridge = "192.168.1.20"
entertainment_config = "1a8d99cc-967b-44f2-9202-43f976c0fa6b"
channels = 4
seed = 1234

[credentials]
application_key = "app-key"
psk_identity = "app-id"

[handshake]
timeout = "2s"

[[show]]
name = "sunrise"

  [[show.phase]]
  start = 0.0
  kind = "fade-color"
  from = "#000000"
  to = "#ff8800"

  [[show.phase]]
  start = 5.0
  kind = "fade-brightness"
  from_brightness = 0.5
  to_brightness = 1.0

  [[show.phase]]
  start = 8.0
  kind = "random-flicker"
  on_interval = 2.0

  [[show.phase]]
  start = 10.0
  kind = "hold"
`

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig(strings.NewReader(exampleConfig))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Bridge != "192.168.1.20" || cfg.Channels != 4 || cfg.Seed != 1234 {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if cfg.Port != session.DefaultPort {
		t.Errorf("got port %d, want default", cfg.Port)
	}
	if cfg.Rate != 60 || cfg.StreamRate != 60 {
		t.Errorf("got rates %d and %d, want defaults", cfg.Rate, cfg.StreamRate)
	}
	if time.Duration(cfg.Handshake.Timeout) != 2*time.Second {
		t.Errorf("got handshake timeout %v", time.Duration(cfg.Handshake.Timeout))
	}
	if cfg.Handshake.Attempts != 5 {
		t.Errorf("got %d handshake attempts", cfg.Handshake.Attempts)
	}
	if cfg.Endpoint() != "192.168.1.20:2100" {
		t.Errorf("got endpoint %q", cfg.Endpoint())
	}

	// The PSK is missing from the file.
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing PSK")
	}

	cfg.ApplyEnv(func(key string) string {
		switch key {
		case EnvPSK:
			return "00112233445566778899AABBCCDDEEFF"
		case EnvApplicationKey:
			return "ignored"
		}
		return ""
	})
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if cfg.Credentials.ApplicationKey != "app-key" {
		t.Error("environment overrode the configured application key")
	}

	key, err := cfg.Key()
	if err != nil {
		t.Fatal(err)
	}
	if len(key) != session.KeySize || key[0] != 0x00 || key[15] != 0xff {
		t.Errorf("got key %x", key)
	}

	if len(cfg.Shows) != 1 {
		t.Fatalf("got %d shows, want 1", len(cfg.Shows))
	}

	show, err := cfg.Shows[0].Show()
	if err != nil {
		t.Fatal(err)
	}
	if show.Space != huestream.XYBrightness {
		t.Errorf("got color space %v, want xy", show.Space)
	}
	if len(show.Phases) != 4 {
		t.Fatalf("got %d phases, want 4", len(show.Phases))
	}
	if p := show.Phases[1]; p.Kind != anim.FadeBrightness || p.From.Brightness() != 0x8000 || p.To.Brightness() != 0xffff {
		t.Errorf("unexpected brightness phase: %+v", p)
	}
	if p := show.Phases[2]; p.OnInterval != 2 || p.OffInterval != anim.DefaultOffInterval {
		t.Errorf("unexpected flicker phase: %+v", p)
	}
}

func TestParseConfigInvalidTOML(t *testing.T) {
	if _, err := ParseConfig(strings.NewReader("bridge = ")); err == nil {
		t.Error("expected error for invalid TOML")
	}

	_, err := ParseConfig(strings.NewReader("[handshake]\ntimeout = \"soon\""))
	if err == nil {
		t.Error("expected error for invalid duration")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"no bridge", func(c *Config) { c.Bridge = "" }},
		{"short config ID", func(c *Config) { c.EntertainmentConfig = "1a8d99cc" }},
		{"config ID not a UUID", func(c *Config) { c.EntertainmentConfig = strings.Repeat("z", 36) }},
		{"too many channels", func(c *Config) { c.Channels = huestream.MaxChannels + 1 }},
		{"negative channels", func(c *Config) { c.Channels = -1 }},
		{"zero rate", func(c *Config) { c.Rate = 0 }},
		{"rate without interval", func(c *Config) { c.Rate = MaxRate + 1 }},
		{"stream rate without interval", func(c *Config) { c.StreamRate = 2 * MaxRate }},
		{"bad port", func(c *Config) { c.Port = 70000 }},
		{"no application key", func(c *Config) { c.Credentials.ApplicationKey = "" }},
		{"no identity", func(c *Config) { c.Credentials.PSKIdentity = "" }},
		{"short PSK", func(c *Config) { c.Credentials.PSK = "0011" }},
		{"PSK not hex", func(c *Config) { c.Credentials.PSK = strings.Repeat("g", 32) }},
		{"unknown transition", func(c *Config) { c.Shows[0].Phases[0].Kind = "strobe" }},
		{"bad color", func(c *Config) { c.Shows[0].Phases[0].From = "black" }},
		{"unordered phases", func(c *Config) { c.Shows[0].Phases[1].Start = 0 }},
		{"bad color space", func(c *Config) { c.Shows[0].ColorSpace = "cmyk" }},
		{"brightness in rgb", func(c *Config) {
			c.Shows[0].Phases[0] = PhaseConfig{Kind: "fade-brightness", ToBrightness: 1}
		}},
		{"brightness out of range", func(c *Config) {
			c.Shows[0].ColorSpace = "xy"
			c.Shows[0].Phases[0] = PhaseConfig{Kind: "fade-brightness", ToBrightness: 1.5}
		}},
	}

	if err := testConfig().Validate(); err != nil {
		t.Fatalf("base config: %v", err)
	}

	for _, test := range tests {
		cfg := testConfig()
		test.modify(cfg)

		err := cfg.Validate()
		if err == nil {
			t.Errorf("%s: expected error", test.name)
			continue
		}

		var configErr *ConfigError
		if !errors.As(err, &configErr) {
			t.Errorf("%s: got error %T, want *ConfigError", test.name, err)
		}

		if _, err := NewController(cfg, testLogger()); err == nil {
			t.Errorf("%s: controller accepted invalid configuration", test.name)
		}
	}
}

func TestDefaultChannels(t *testing.T) {
	cfg := testConfig()
	cfg.Channels = 0
	cfg.setDefaults()
	if cfg.Channels != 10 {
		t.Errorf("got %d channels, want default 10", cfg.Channels)
	}
}
