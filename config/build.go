package config

import (
	"go.uber.org/zap"

	"github.com/wippyai/lacewing/engine/netengine"
	"github.com/wippyai/lacewing/errors"
)

// SessionStore opens the configured session store.
func (c *Config) SessionStore() (netengine.SessionStore, error) {
	s := c.Sessions
	if s.Database == "" {
		return netengine.NewMemoryStore(s.Capacity, s.TTL), nil
	}
	store, err := netengine.OpenSQLStore(s.Database, s.TTL, s.Purge)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "open session database")
	}
	return store, nil
}

// Logger builds the configured zap logger.
func (c *Config) Logger() (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(c.Log.Level)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "log level")
	}
	zc := zap.NewProductionConfig()
	if c.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = level
	return zc.Build()
}
