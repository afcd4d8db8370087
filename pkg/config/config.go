// Ponto Core
// Copyright (c) 2026 The Ponto Project Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of Ponto Core.
//
// Ponto Core is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Ponto Core is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Ponto Core.  If not, see <http://www.gnu.org/licenses/>.

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/PontoProject/ponto-core/pkg/helpers/syncutil"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	SchemaVersion = 1
	CfgEnv        = "PONTO_CFG"
	AppName       = "ponto"
	CfgFile       = "config.toml"
	LogFile       = "core.log"
	DataFile      = "ponto.db"
)

type Values struct {
	API          API      `toml:"api"`
	User         User     `toml:"user"`
	Clock        Clock    `toml:"clock"`
	Location     Location `toml:"location,omitempty"`
	Workday      Workday  `toml:"workday,omitempty"`
	Zones        []Zone   `toml:"zones,omitempty" validate:"dive"`
	DefaultZone  string   `toml:"default_zone" validate:"required"`
	DeviceID     string   `toml:"device_id,omitempty"`
	ConfigSchema int      `toml:"config_schema"`
	DebugLogging bool     `toml:"debug_logging"`
}

type API struct {
	BaseURL         string `toml:"base_url" validate:"required,url"`
	ListTimeoutMS   int    `toml:"list_timeout_ms" validate:"gt=0"`
	SubmitTimeoutMS int    `toml:"submit_timeout_ms" validate:"gt=0"`
}

type User struct {
	Name string `toml:"name" validate:"required"`
}

type Clock struct {
	ToleranceMS   int `toml:"tolerance_ms" validate:"gt=0"`
	ResyncMinutes int `toml:"resync_minutes" validate:"gt=0"`
}

type Location struct {
	Command string   `toml:"command,omitempty"`
	Args    []string `toml:"args,omitempty,multiline"`
}

type Workday struct {
	Entry string `toml:"entry,omitempty"`
	Exit  string `toml:"exit,omitempty"`
}

// Zone is a circular authorized punch area. Coordinates are in degrees.
type Zone struct {
	ID               string  `toml:"id" validate:"required"`
	Name             string  `toml:"name"`
	ExpectedTimeZone string  `toml:"expected_time_zone"`
	Lat              float64 `toml:"lat" validate:"gte=-90,lte=90"`
	Lng              float64 `toml:"lng" validate:"gte=-180,lte=180"`
	RadiusMeters     float64 `toml:"radius_meters" validate:"gt=0"`
}

var BaseDefaults = Values{
	ConfigSchema: SchemaVersion,
	API: API{
		BaseURL:         "http://localhost:3000",
		ListTimeoutMS:   4000,
		SubmitTimeoutMS: 10000,
	},
	Clock: Clock{
		ToleranceMS:   120000,
		ResyncMinutes: 5,
	},
	Workday: Workday{
		Entry: "08:00",
		Exit:  "17:00",
	},
	Zones: []Zone{
		{
			ID:               "empresa-matriz",
			Name:             "Matriz",
			Lat:              -23.55052,
			Lng:              -46.63331,
			RadiusMeters:     250,
			ExpectedTimeZone: "America/Sao_Paulo",
		},
	},
	DefaultZone: "empresa-matriz",
	User: User{
		Name: "Pedro",
	},
}

type Instance struct {
	cfgPath  string
	vals     Values
	defaults Values
	mu       syncutil.RWMutex
}

var validate = validator.New(validator.WithRequiredStructEnabled())

//nolint:gocritic // config struct copied for immutability
func NewConfig(configDir string, defaults Values) (*Instance, error) {
	cfgPath := os.Getenv(CfgEnv)
	log.Debug().Msgf("env config path: %s", cfgPath)

	if cfgPath == "" {
		cfgPath = filepath.Join(configDir, CfgFile)
	}

	cfg := Instance{
		mu:       syncutil.RWMutex{},
		cfgPath:  cfgPath,
		vals:     defaults,
		defaults: defaults,
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		log.Info().Msg("saving new default config to disk")

		err := os.MkdirAll(filepath.Dir(cfgPath), 0o750)
		if err != nil {
			return nil, fmt.Errorf("failed to create config directory: %w", err)
		}

		err = cfg.Save()
		if err != nil {
			return nil, err
		}
	}

	err := cfg.Load()
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Instance) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cfgPath == "" {
		return errors.New("config path not set")
	}

	if _, err := os.Stat(c.cfgPath); err != nil {
		return fmt.Errorf("failed to stat config file: %w", err)
	}

	data, err := os.ReadFile(c.cfgPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	// Start with defaults, then unmarshal file values on top.
	// This ensures fields not present in the file retain their default values.
	newVals := c.defaults
	err = toml.Unmarshal(data, &newVals)
	if err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if newVals.ConfigSchema != SchemaVersion {
		log.Error().Msgf(
			"schema version mismatch: got %d, expecting %d",
			newVals.ConfigSchema,
			SchemaVersion,
		)
		return errors.New("schema version mismatch")
	}

	if err := validate.Struct(&newVals); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	zoneIDs := make(map[string]bool, len(newVals.Zones))
	for i := range newVals.Zones {
		id := newVals.Zones[i].ID
		if zoneIDs[id] {
			return fmt.Errorf("duplicate zone id in config: %s", id)
		}
		zoneIDs[id] = true
	}
	if !zoneIDs[newVals.DefaultZone] {
		return fmt.Errorf("default zone %q is not a configured zone", newVals.DefaultZone)
	}

	c.vals = newVals

	return nil
}

func (c *Instance) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cfgPath == "" {
		return errors.New("config path not set")
	}

	// set current schema version
	c.vals.ConfigSchema = SchemaVersion

	// generate a device id if one doesn't exist
	if c.vals.DeviceID == "" {
		newID := uuid.New().String()
		c.vals.DeviceID = newID
		log.Info().Msgf("generated new device id: %s", newID)
	}

	data, err := toml.Marshal(&c.vals)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(c.cfgPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func (c *Instance) BaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.API.BaseURL
}

func (c *Instance) ListTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.vals.API.ListTimeoutMS) * time.Millisecond
}

func (c *Instance) SubmitTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.vals.API.SubmitTimeoutMS) * time.Millisecond
}

func (c *Instance) UserName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.User.Name
}

func (c *Instance) DeviceID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.DeviceID
}

// ClockTolerance is the maximum allowed absolute clock delta for a punch.
func (c *Instance) ClockTolerance() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.vals.Clock.ToleranceMS) * time.Millisecond
}

// ResyncInterval is how often the background clock re-sync runs.
func (c *Instance) ResyncInterval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.vals.Clock.ResyncMinutes) * time.Minute
}

func (c *Instance) LocationCommand() (command string, args []string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	args = make([]string, len(c.vals.Location.Args))
	copy(args, c.vals.Location.Args)
	return c.vals.Location.Command, args
}

func (c *Instance) Workday() Workday {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Workday
}

// Zones returns a copy of the configured geofence zones.
func (c *Instance) Zones() []Zone {
	c.mu.RLock()
	defer c.mu.RUnlock()
	zs := make([]Zone, len(c.vals.Zones))
	copy(zs, c.vals.Zones)
	return zs
}

func (c *Instance) DefaultZone() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.DefaultZone
}

func (c *Instance) DebugLogging() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.DebugLogging
}

func (c *Instance) SetDebugLogging(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.DebugLogging = enabled
	if enabled {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
