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

// Package location wraps the device location capability with timeouts and
// accuracy tiers.
package location

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	// ErrUnsupported means the device has no location capability at all.
	ErrUnsupported = errors.New("location not supported on this device")
	// ErrPermissionDenied means the platform refused access to location.
	ErrPermissionDenied = errors.New("location permission denied")
	// ErrTimeout means the acquisition did not complete in time.
	ErrTimeout = errors.New("location acquisition timed out")
)

// Fallback tier timeouts: one high accuracy attempt, then one low accuracy
// attempt with a shorter deadline.
const (
	HighAccuracyTimeout = 12 * time.Second
	LowAccuracyTimeout  = 8 * time.Second
)

// Position is a device fix in degrees with an accuracy radius in meters.
type Position struct {
	Lat            float64 `json:"lat"`
	Lng            float64 `json:"lng"`
	AccuracyMeters float64 `json:"accuracyMeters"`
}

// Provider acquires the device position. Implementations must respect the
// timeout and map platform failures onto the package error kinds.
type Provider interface {
	Acquire(ctx context.Context, highAccuracy bool, timeout time.Duration) (Position, error)
}

// AcquireWithFallback runs the caller policy for punch attempts: try high
// accuracy first, and on any failure retry once with low accuracy. The second
// error is returned when both tiers fail.
func AcquireWithFallback(ctx context.Context, p Provider) (Position, error) {
	pos, err := p.Acquire(ctx, true, HighAccuracyTimeout)
	if err == nil {
		return pos, nil
	}
	log.Warn().Err(err).Msg("high accuracy location failed, retrying low accuracy")

	pos, err = p.Acquire(ctx, false, LowAccuracyTimeout)
	if err != nil {
		return Position{}, err
	}
	return pos, nil
}

// ExecProvider shells out to a platform location helper (geoclue wrapper,
// termux-location and the like) that prints a JSON position on stdout.
type ExecProvider struct {
	Command string
	Args    []string
}

// NewExecProvider returns a provider backed by the given helper command. An
// empty command is allowed and reports ErrUnsupported on acquisition.
func NewExecProvider(command string, args []string) *ExecProvider {
	return &ExecProvider{Command: command, Args: args}
}

// Acquire runs the helper with the configured args plus an accuracy hint and
// parses its JSON output. The timeout is enforced through the context.
func (p *ExecProvider) Acquire(
	ctx context.Context,
	highAccuracy bool,
	timeout time.Duration,
) (Position, error) {
	if p.Command == "" {
		return Position{}, ErrUnsupported
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := make([]string, 0, len(p.Args)+1)
	args = append(args, p.Args...)
	if highAccuracy {
		args = append(args, "--high-accuracy")
	}

	cmd := exec.CommandContext(ctx, p.Command, args...) // #nosec G204 - command comes from local config
	out, err := cmd.Output()
	if err != nil {
		return Position{}, mapExecError(ctx, err, out)
	}

	var pos Position
	if err := json.Unmarshal(out, &pos); err != nil {
		return Position{}, fmt.Errorf("failed to parse location helper output: %w", err)
	}

	if pos.Lat < -90 || pos.Lat > 90 || pos.Lng < -180 || pos.Lng > 180 {
		return Position{}, fmt.Errorf("location helper returned invalid coordinates: %f, %f", pos.Lat, pos.Lng)
	}

	return pos, nil
}

func mapExecError(ctx context.Context, err error, out []byte) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrTimeout
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		combined := strings.ToLower(string(out) + string(exitErr.Stderr))
		if strings.Contains(combined, "permission") || strings.Contains(combined, "denied") {
			return ErrPermissionDenied
		}
		return fmt.Errorf("location helper failed: %w", err)
	}

	var execErr *exec.Error
	if errors.As(err, &execErr) {
		// Helper binary missing entirely.
		return ErrUnsupported
	}

	return fmt.Errorf("failed to run location helper: %w", err)
}
