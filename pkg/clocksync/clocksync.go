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

// Package clocksync estimates the offset between the device clock and the
// server's authoritative clock. A positive delta means the server clock is
// ahead of the device.
package clocksync

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/PontoProject/ponto-core/pkg/helpers/syncutil"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const (
	stableSampleCount = 3
	sampleSpacing     = 150 * time.Millisecond

	// Punch-time stabilization bounds.
	PunchStabilizeMaxWait = 1500 * time.Millisecond
	PunchStabilizeJitter  = 800 * time.Millisecond
)

// TimeSource is one round trip to the server time endpoint, returning the
// server's epoch milliseconds.
type TimeSource interface {
	ServerTime(ctx context.Context) (int64, error)
}

// DeltaStore persists the last known delta across restarts.
type DeltaStore interface {
	SaveClockDelta(deltaMS int64) error
	LoadClockDelta() (deltaMS int64, ok bool, err error)
}

// SkewError reports a clock delta that exceeds the punch tolerance.
type SkewError struct {
	DeltaMS     int64
	ToleranceMS int64
}

func (e *SkewError) Error() string {
	return fmt.Sprintf("device clock deviates %d minutes from server time", e.Minutes())
}

// Minutes is the skew magnitude rounded to whole minutes, for user display.
func (e *SkewError) Minutes() int64 {
	return int64(math.Round(math.Abs(float64(e.DeltaMS)) / 60000))
}

// Estimator maintains the best estimate of the client-server clock delta. It
// is the single writer of that state; everything else reads through Delta and
// IsWithinTolerance.
type Estimator struct {
	clock       clockwork.Clock
	source      TimeSource
	store       DeltaStore
	lastUpdated time.Time
	deltaMS     int64
	sf          singleflight.Group
	mu          syncutil.RWMutex
	stabilizing atomic.Bool
	known       bool
}

// NewEstimator creates an estimator over the given time source. The store may
// be nil (no persistence); a persisted delta is loaded immediately so a
// restarted device keeps its last reference. A nil clock uses the real clock.
func NewEstimator(source TimeSource, store DeltaStore, clock clockwork.Clock) *Estimator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	e := &Estimator{
		clock:  clock,
		source: source,
		store:  store,
	}

	if store != nil {
		deltaMS, ok, err := store.LoadClockDelta()
		if err != nil {
			log.Warn().Err(err).Msg("failed to load persisted clock delta")
		} else if ok {
			e.deltaMS = deltaMS
			e.known = true
			log.Debug().Int64("delta_ms", deltaMS).Msg("restored persisted clock delta")
		}
	}

	return e
}

// Delta returns the current delta estimate and whether one exists.
func (e *Estimator) Delta() (deltaMS int64, known bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.deltaMS, e.known
}

// IsWithinTolerance reports whether the current estimate is acceptable. A
// device with no reference yet is not blocked: no estimate means true
// regardless of tolerance.
func (e *Estimator) IsWithinTolerance(tolerance time.Duration) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.known {
		return true
	}
	return absInt64(e.deltaMS) <= tolerance.Milliseconds()
}

// sample performs one round trip and derives the delta using the midpoint
// rule: the server timestamp is assumed to correspond to the middle of the
// request-response interval.
func (e *Estimator) sample(ctx context.Context) (int64, error) {
	sentAt := e.clock.Now()
	serverMS, err := e.source.ServerTime(ctx)
	if err != nil {
		return 0, fmt.Errorf("time endpoint request failed: %w", err)
	}
	receivedAt := e.clock.Now()

	midpoint := sentAt.Add(receivedAt.Sub(sentAt) / 2)
	return serverMS - midpoint.UnixMilli(), nil
}

// FastEstimate takes a single sample and updates the estimate. Concurrent
// callers share one round trip. On failure the last known delta is retained
// and the error returned; a sync failure is never fatal.
func (e *Estimator) FastEstimate(ctx context.Context) (int64, error) {
	v, err, _ := e.sf.Do("fast", func() (any, error) {
		delta, err := e.sample(ctx)
		if err != nil {
			return nil, err
		}
		e.setDelta(delta)
		return delta, nil
	})
	if err != nil {
		deltaMS, _ := e.Delta()
		return deltaMS, err
	}
	delta, ok := v.(int64)
	if !ok {
		deltaMS, _ := e.Delta()
		return deltaMS, nil
	}
	return delta, nil
}

// StableEstimate takes three samples spaced apart and updates the estimate
// with their median. The median rejects a single slow round trip that would
// skew a mean.
func (e *Estimator) StableEstimate(ctx context.Context) (int64, error) {
	deltas := make([]int64, 0, stableSampleCount)
	for i := 0; i < stableSampleCount; i++ {
		if i > 0 {
			select {
			case <-e.clock.After(sampleSpacing):
			case <-ctx.Done():
				return 0, fmt.Errorf("stable estimate interrupted: %w", ctx.Err())
			}
		}

		delta, err := e.sample(ctx)
		if err != nil {
			return 0, err
		}
		deltas = append(deltas, delta)
	}

	med := median3(deltas[0], deltas[1], deltas[2])
	e.setDelta(med)
	return med, nil
}

// Stabilize repeats stable estimates until two consecutive results differ by
// less than jitter or maxWait elapses, returning the last estimate either
// way. Only one stabilization runs at a time: a call made while one is in
// flight returns the cached delta immediately instead of starting a second
// probe.
func (e *Estimator) Stabilize(ctx context.Context, maxWait, jitter time.Duration) (int64, error) {
	if !e.stabilizing.CompareAndSwap(false, true) {
		deltaMS, _ := e.Delta()
		log.Debug().Msg("stabilization already in flight, returning cached delta")
		return deltaMS, nil
	}
	defer e.stabilizing.Store(false)

	deadline := e.clock.Now().Add(maxWait)

	prev, err := e.StableEstimate(ctx)
	if err != nil {
		deltaMS, _ := e.Delta()
		return deltaMS, err
	}

	for e.clock.Now().Before(deadline) {
		next, err := e.StableEstimate(ctx)
		if err != nil {
			return prev, err
		}
		if absInt64(next-prev) < jitter.Milliseconds() {
			return next, nil
		}
		prev = next
	}

	return prev, nil
}

// EnsureWithinTolerance runs the punch-time policy: a cheap fast estimate,
// escalated to a bounded stabilization when the fast result looks suspect
// (more than half the tolerance), then the tolerance check. The returned
// SkewError carries the magnitude for user display.
func (e *Estimator) EnsureWithinTolerance(ctx context.Context, tolerance time.Duration) error {
	fast, err := e.FastEstimate(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("fast clock estimate failed, keeping last known delta")
	}

	_, known := e.Delta()
	if known && absInt64(fast) > tolerance.Milliseconds()/2 {
		if _, err := e.Stabilize(ctx, PunchStabilizeMaxWait, PunchStabilizeJitter); err != nil {
			log.Warn().Err(err).Msg("clock stabilization failed, keeping last known delta")
		}
	}

	if !e.IsWithinTolerance(tolerance) {
		deltaMS, _ := e.Delta()
		return &SkewError{DeltaMS: deltaMS, ToleranceMS: tolerance.Milliseconds()}
	}
	return nil
}

// ObserveServerDate opportunistically updates the estimate from a response
// Date header (RFC1123), using the request send time for the midpoint rule.
// Observations are skipped while a stabilization is in flight so they cannot
// overwrite a converging estimate, and silently ignored when the header is
// absent or malformed.
func (e *Estimator) ObserveServerDate(sentAt time.Time, header string) {
	if header == "" {
		return
	}
	serverTime, err := http.ParseTime(header)
	if err != nil {
		return
	}
	if e.stabilizing.Load() {
		return
	}

	receivedAt := e.clock.Now()
	midpoint := sentAt.Add(receivedAt.Sub(sentAt) / 2)
	e.setDelta(serverTime.UnixMilli() - midpoint.UnixMilli())
}

func (e *Estimator) setDelta(deltaMS int64) {
	e.mu.Lock()
	e.deltaMS = deltaMS
	e.known = true
	e.lastUpdated = e.clock.Now()
	e.mu.Unlock()

	if e.store != nil {
		if err := e.store.SaveClockDelta(deltaMS); err != nil {
			log.Warn().Err(err).Msg("failed to persist clock delta")
		}
	}
}

func median3(a, b, c int64) int64 {
	if a > b {
		a, b = b, a
	}
	if b > c {
		b = c
	}
	if a > b {
		b = a
	}
	return b
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
