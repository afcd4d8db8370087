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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigWritesDefaults(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg, err := NewConfig(dir, BaseDefaults)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, CfgFile))
	require.NoError(t, err)

	assert.Equal(t, "empresa-matriz", cfg.DefaultZone())
	assert.Equal(t, 2*time.Minute, cfg.ClockTolerance())
	assert.Equal(t, 4*time.Second, cfg.ListTimeout())
	assert.NotEmpty(t, cfg.DeviceID())
}

func TestLoadOverlaysFileOnDefaults(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	content := `
config_schema = 1
default_zone = "empresa-matriz"

[api]
base_url = "https://ponto.example.com"
list_timeout_ms = 4000
submit_timeout_ms = 10000

[user]
name = "Henrique"

[clock]
tolerance_ms = 60000
resync_minutes = 5

[[zones]]
id = "empresa-matriz"
name = "Matriz"
lat = -23.55052
lng = -46.63331
radius_meters = 250.0
expected_time_zone = "America/Sao_Paulo"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, CfgFile), []byte(content), 0o600))

	cfg, err := NewConfig(dir, BaseDefaults)
	require.NoError(t, err)

	assert.Equal(t, "https://ponto.example.com", cfg.BaseURL())
	assert.Equal(t, "Henrique", cfg.UserName())
	assert.Equal(t, time.Minute, cfg.ClockTolerance())
	// workday section absent in file, defaults retained
	assert.Equal(t, "08:00", cfg.Workday().Entry)
}

func TestLoadRejectsSchemaMismatch(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	content := `
config_schema = 99
default_zone = "empresa-matriz"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, CfgFile), []byte(content), 0o600))

	_, err := NewConfig(dir, BaseDefaults)
	require.Error(t, err)
}

func TestLoadRejectsUnknownDefaultZone(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	content := `
config_schema = 1
default_zone = "nowhere"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, CfgFile), []byte(content), 0o600))

	_, err := NewConfig(dir, BaseDefaults)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "default zone")
}

func TestLoadRejectsInvalidZone(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		zone string
	}{
		{
			name: "latitude out of range",
			zone: `
[[zones]]
id = "bad"
lat = 123.0
lng = 0.0
radius_meters = 100.0
`,
		},
		{
			name: "zero radius",
			zone: `
[[zones]]
id = "bad"
lat = 0.0
lng = 0.0
radius_meters = 0.0
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			content := `
config_schema = 1
default_zone = "bad"

[api]
base_url = "http://localhost:3000"
list_timeout_ms = 4000
submit_timeout_ms = 10000

[user]
name = "Pedro"

[clock]
tolerance_ms = 120000
resync_minutes = 5
` + tt.zone
			require.NoError(t, os.WriteFile(filepath.Join(dir, CfgFile), []byte(content), 0o600))

			_, err := NewConfig(dir, BaseDefaults)
			require.Error(t, err)
		})
	}
}

func TestLoadRejectsDuplicateZoneIDs(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	content := `
config_schema = 1
default_zone = "a"

[api]
base_url = "http://localhost:3000"
list_timeout_ms = 4000
submit_timeout_ms = 10000

[user]
name = "Pedro"

[clock]
tolerance_ms = 120000
resync_minutes = 5

[[zones]]
id = "a"
lat = 0.0
lng = 0.0
radius_meters = 100.0

[[zones]]
id = "a"
lat = 1.0
lng = 1.0
radius_meters = 100.0
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, CfgFile), []byte(content), 0o600))

	_, err := NewConfig(dir, BaseDefaults)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate zone id")
}

func TestSaveRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg, err := NewConfig(dir, BaseDefaults)
	require.NoError(t, err)

	cfg.SetDebugLogging(true)
	require.NoError(t, cfg.Save())

	reloaded, err := NewConfig(dir, BaseDefaults)
	require.NoError(t, err)
	assert.True(t, reloaded.DebugLogging())
	assert.Equal(t, cfg.DeviceID(), reloaded.DeviceID())
}
