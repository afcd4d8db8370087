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

package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/PontoProject/ponto-core/pkg/api/models"
	"github.com/PontoProject/ponto-core/pkg/api/notifications"
	"github.com/PontoProject/ponto-core/pkg/clocksync"
	"github.com/PontoProject/ponto-core/pkg/config"
	"github.com/PontoProject/ponto-core/pkg/geofence"
	"github.com/PontoProject/ponto-core/pkg/location"
	"github.com/PontoProject/ponto-core/pkg/service/pending"
	"github.com/PontoProject/ponto-core/pkg/service/state"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Reasons a punch attempt is refused. Carried on BlockedError and in the
// punch.blocked notification so the UI can phrase each case.
const (
	ReasonClockSkew           = "clock_skew"
	ReasonLocationUnavailable = "location_unavailable"
	ReasonOutsideZone         = "outside_zone"
	ReasonUnknownZone         = "unknown_zone"
)

// ErrPunchInFlight means a punch attempt was made while another was running.
var ErrPunchInFlight = errors.New("a punch attempt is already in progress")

// BlockedError is a refused punch. A blocked attempt leaves no trace: no
// record, no queue entry, and the entry/exit alternation is unchanged.
type BlockedError struct {
	Reason  string
	Message string
}

func (e *BlockedError) Error() string {
	return e.Message
}

// API is the server surface the coordinator needs.
type API interface {
	SubmitPunch(ctx context.Context, rec *models.PunchRecord) (models.PunchRecord, error)
	ListPunches(ctx context.Context) ([]models.PunchRecord, error)
}

// Coordinator runs the punch attempt sequence: clock validation, position
// acquisition, geofence validation, then submission or queueing. One attempt
// runs at a time.
type Coordinator struct {
	cfg     *config.Instance
	st      *state.State
	est     *clocksync.Estimator
	zones   *geofence.Registry
	locator location.Provider
	api     API
	queue   *pending.Queue
	clock   clockwork.Clock
	inPunch atomic.Bool
}

// NewCoordinator wires the punch pipeline. A nil clock uses the real clock.
func NewCoordinator(
	cfg *config.Instance,
	st *state.State,
	est *clocksync.Estimator,
	zones *geofence.Registry,
	locator location.Provider,
	api API,
	queue *pending.Queue,
	clock clockwork.Clock,
) *Coordinator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Coordinator{
		cfg:     cfg,
		st:      st,
		est:     est,
		zones:   zones,
		locator: locator,
		api:     api,
		queue:   queue,
		clock:   clock,
	}
}

// Punch runs one attendance punch attempt and returns the resulting record.
// A *BlockedError return means the attempt was refused and nothing changed.
func (c *Coordinator) Punch(ctx context.Context) (models.PunchRecord, error) {
	if !c.inPunch.CompareAndSwap(false, true) {
		return models.PunchRecord{}, ErrPunchInFlight
	}
	defer c.inPunch.Store(false)

	user := c.st.User()
	online := c.st.Online()
	log.Info().Str("user", user).Bool("online", online).Msg("punch attempt started")

	if err := c.validateClock(ctx, online); err != nil {
		return models.PunchRecord{}, c.block(err)
	}

	pos, err := location.AcquireWithFallback(ctx, c.locator)
	if err != nil {
		return models.PunchRecord{}, c.block(&BlockedError{
			Reason:  ReasonLocationUnavailable,
			Message: fmt.Sprintf("could not determine device position: %v", err),
		})
	}

	zoneID := c.zones.DefaultZoneID()
	res := c.zones.Validate(pos.Lat, pos.Lng, zoneID)
	if res.Zone == nil {
		return models.PunchRecord{}, c.block(&BlockedError{
			Reason:  ReasonUnknownZone,
			Message: fmt.Sprintf("authorized zone %q is not configured", zoneID),
		})
	}
	if !res.Inside {
		return models.PunchRecord{}, c.block(&BlockedError{
			Reason: ReasonOutsideZone,
			Message: fmt.Sprintf("%.0f meters from %s, outside the %.0f meter zone",
				res.DistanceMeters, res.Zone.Name, res.Zone.RadiusMeters),
		})
	}

	if tz := c.zones.CheckTimeZone(zoneID); !tz.Match {
		// Advisory only. The punch proceeds with the device zone annotated.
		msg := fmt.Sprintf("device timezone %s differs from the expected %s",
			tz.DeviceZone, tz.ExpectedZone)
		log.Warn().Msg(msg)
		notifications.PunchWarning(c.st.Notifications, msg)
	}

	rec := c.buildRecord(user, zoneID, pos)
	stored, err := c.submit(ctx, online, rec)
	if err != nil {
		return models.PunchRecord{}, err
	}

	c.st.AdvancePunchCount(user)
	if c.st.Online() {
		c.RefreshRecords(ctx)
	}
	return stored, nil
}

// validateClock applies the punch-time clock policy. Online it re-probes the
// server; offline it judges the last known delta, and no delta at all passes.
func (c *Coordinator) validateClock(ctx context.Context, online bool) error {
	tolerance := c.cfg.ClockTolerance()

	if online {
		err := c.est.EnsureWithinTolerance(ctx, tolerance)
		var skew *clocksync.SkewError
		if errors.As(err, &skew) {
			return &BlockedError{
				Reason: ReasonClockSkew,
				Message: fmt.Sprintf("device clock is %d minutes off from server time",
					skew.Minutes()),
			}
		}
		return err
	}

	if !c.est.IsWithinTolerance(tolerance) {
		deltaMS, _ := c.est.Delta()
		skew := &clocksync.SkewError{DeltaMS: deltaMS, ToleranceMS: tolerance.Milliseconds()}
		return &BlockedError{
			Reason: ReasonClockSkew,
			Message: fmt.Sprintf("device clock is %d minutes off from server time",
				skew.Minutes()),
		}
	}
	return nil
}

func (c *Coordinator) buildRecord(user, zoneID string, pos location.Position) models.PunchRecord {
	recordedAt := c.clock.Now()
	if deltaMS, known := c.est.Delta(); known {
		recordedAt = recordedAt.Add(time.Duration(deltaMS) * time.Millisecond)
	}

	lat, lng, acc := pos.Lat, pos.Lng, pos.AccuracyMeters
	return models.PunchRecord{
		User:           user,
		Kind:           c.st.KindForAttempt(user),
		RecordedAt:     recordedAt,
		DeviceTimeZone: geofence.DeviceTimeZone(),
		ZoneID:         zoneID,
		ClientRef:      uuid.New().String(),
		Lat:            &lat,
		Lng:            &lng,
		AccuracyMeters: &acc,
	}
}

// submit sends the record online, falling back to the durable queue when the
// device is offline or the submission fails mid-flight.
func (c *Coordinator) submit(
	ctx context.Context,
	online bool,
	rec models.PunchRecord, //nolint:gocritic // record copied at the boundary
) (models.PunchRecord, error) {
	if online {
		rec.Origin = models.OriginOnline
		stored, err := c.api.SubmitPunch(ctx, &rec)
		if err == nil {
			c.st.AddProvisional(stored)
			notifications.PunchRecorded(c.st.Notifications, stored)
			log.Info().Str("kind", stored.Kind).Str("id", stored.ID).Msg("punch recorded online")
			return stored, nil
		}
		log.Warn().Err(err).Msg("online punch submission failed, queueing offline")
	}

	rec.Origin = models.OriginOffline
	if err := c.queue.Enqueue(&rec); err != nil {
		return models.PunchRecord{}, fmt.Errorf("failed to queue punch: %w", err)
	}
	return rec, nil
}

func (c *Coordinator) block(err error) error {
	var blocked *BlockedError
	if errors.As(err, &blocked) {
		log.Info().Str("reason", blocked.Reason).Str("message", blocked.Message).
			Msg("punch attempt blocked")
		notifications.PunchBlocked(c.st.Notifications, models.PunchBlockedParams{
			Reason:  blocked.Reason,
			Message: blocked.Message,
		})
	}
	return err
}

// Resync refreshes the clock delta estimate and publishes it.
func (c *Coordinator) Resync(ctx context.Context) {
	deltaMS, err := c.est.FastEstimate(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("periodic clock resync failed")
		return
	}
	notifications.ClockSynced(c.st.Notifications, models.ClockSyncedParams{DeltaMS: deltaMS})
}

// DrainQueue submits every queued punch through the API client.
func (c *Coordinator) DrainQueue(ctx context.Context) error {
	return c.queue.Drain(ctx, c.api)
}

// RefreshRecords replaces the displayed list with the server's records for the
// current user and calendar day, newest first. Best effort: a fetch failure
// keeps the current list.
func (c *Coordinator) RefreshRecords(ctx context.Context) {
	all, err := c.api.ListPunches(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("record list refresh failed, keeping current list")
		return
	}

	user := c.st.User()
	now := c.clock.Now()
	today := make([]models.PunchRecord, 0, len(all))
	for i := range all {
		r := all[i]
		if r.User != user {
			continue
		}
		y1, m1, d1 := r.RecordedAt.Local().Date()
		y2, m2, d2 := now.Local().Date()
		if y1 != y2 || m1 != m2 || d1 != d2 {
			continue
		}
		today = append(today, r)
	}
	sort.SliceStable(today, func(i, j int) bool {
		return today[i].RecordedAt.After(today[j].RecordedAt)
	})

	c.st.SetRecords(today)
	notifications.RecordsUpdated(c.st.Notifications, today)
}
