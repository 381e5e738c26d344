// Package relconfig loads the tunable constants that govern the
// reliable-datagram protocol's timers and default window size. Absent a
// config file, Default() reproduces the built-in constants exactly.
package relconfig

import (
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Config holds the tunable knobs. Every field has a built-in default; a
// config file only overrides the ones it mentions.
type Config struct {
	// DefaultWindow is the window size each peer proposes/prefers before
	// negotiation. The wire-visible negotiated window is still always
	// min(sender_proposed, receiver_preferred) as decided during the
	// handshake — this only seeds the two local inputs to that decision.
	DefaultWindow uint16 `yaml:"defaultWindow"`

	HandshakeTimeout     time.Duration `yaml:"handshakeTimeout"`
	MaxHandshakeRetries  int           `yaml:"maxHandshakeRetries"`
	ReceiverSynAckResend time.Duration `yaml:"receiverSynAckResend"`

	AckTimeout    time.Duration `yaml:"ackTimeout"`
	AckDrainPoll  time.Duration `yaml:"ackDrainPoll"`
	ReceiverIdle  time.Duration `yaml:"receiverIdle"`
}

// Default returns the built-in constants.
func Default() Config {
	return Config{
		DefaultWindow:        5,
		HandshakeTimeout:     2000 * time.Millisecond,
		MaxHandshakeRetries:  5,
		ReceiverSynAckResend: 1000 * time.Millisecond,
		AckTimeout:           500 * time.Millisecond,
		AckDrainPoll:         10 * time.Millisecond,
		ReceiverIdle:         5 * time.Second,
	}
}

// Load reads a YAML config file through fs, starting from Default() and
// overriding only the fields the file mentions. A nil or empty path
// returns Default() unchanged.
func Load(fs afero.Fs, path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return cfg, errors.Wrapf(err, "read config %s", path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse config %s", path)
	}
	return cfg, nil
}
