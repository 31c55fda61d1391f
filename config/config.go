// Package config loads the YAML configuration of lwshell.
package config

import (
	"bytes"
	stderrors "errors"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wippyai/lacewing/errors"
)

// Config is the root configuration document.
type Config struct {
	// Script is run with the Lacewing global installed.
	Script string `yaml:"script,omitempty" validate:"required_without=Wasm" jsonschema:"description=JavaScript file to run"`

	// Wasm holds guest event handlers bound to a webserver hosted on Port
	// and SecurePort.
	Wasm string `yaml:"wasm,omitempty" validate:"required_without=Script" jsonschema:"description=WebAssembly guest exporting on_<event> handlers"`

	Port       int `yaml:"port,omitempty" validate:"gte=0,lte=65535" jsonschema:"description=Plain HTTP port of the guest webserver,minimum=0,maximum=65535"`
	SecurePort int `yaml:"secure_port,omitempty" validate:"gte=0,lte=65535" jsonschema:"description=HTTPS port of the guest webserver,minimum=0,maximum=65535"`

	Certificate  Certificate `yaml:"certificate,omitempty"`
	Filter       Filter      `yaml:"filter,omitempty"`
	ManualFinish bool        `yaml:"manual_finish,omitempty" jsonschema:"description=Requests complete only on finish()"`
	Sessions     Sessions    `yaml:"sessions"`
	Log          Log         `yaml:"log"`
}

// Certificate is a PEM file holding a certificate and its key.
type Certificate struct {
	File       string `yaml:"file,omitempty" validate:"required_with=Passphrase"`
	Passphrase string `yaml:"passphrase,omitempty"`
}

// Filter restricts where the guest webserver listens and who may connect.
type Filter struct {
	Local     string `yaml:"local,omitempty" validate:"omitempty,ip|hostname"`
	LocalPort int    `yaml:"local_port,omitempty" validate:"gte=0,lte=65535"`
	Remote    string `yaml:"remote,omitempty" validate:"omitempty,ip|hostname|hostname_port"`
	Reuse     bool   `yaml:"reuse,omitempty"`
}

// IsZero reports whether no filter field is set.
func (f Filter) IsZero() bool {
	return f == Filter{}
}

// Sessions configures the session store. A Database path selects the sqlite
// store; otherwise sessions live in memory.
type Sessions struct {
	Capacity int           `yaml:"capacity" validate:"gte=1" jsonschema:"default=1024"`
	TTL      time.Duration `yaml:"ttl" validate:"gt=0" jsonschema:"type=string,default=30m"`
	Database string        `yaml:"database,omitempty"`
	Purge    string        `yaml:"purge,omitempty" jsonschema:"description=Cron schedule purging expired sqlite sessions"`
}

// Log configures the zap logger.
type Log struct {
	Level       string `yaml:"level" validate:"oneof=debug info warn error" jsonschema:"enum=debug,enum=info,enum=warn,enum=error,default=info"`
	Development bool   `yaml:"development,omitempty"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	return &Config{
		Sessions: Sessions{
			Capacity: 1024,
			TTL:      30 * time.Minute,
		},
		Log: Log{Level: "info"},
	}
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NotFound(errors.PhaseConfig, "config file", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result. Unknown
// keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !stderrors.Is(err, io.EOF) {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "decode yaml")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
