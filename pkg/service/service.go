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

// Package service runs the attendance punch pipeline: clock validation,
// position and geofence checks, submission, and the offline queue, plus the
// background schedule that keeps the clock estimate and record list fresh.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/PontoProject/ponto-core/pkg/clocksync"
	"github.com/PontoProject/ponto-core/pkg/config"
	"github.com/PontoProject/ponto-core/pkg/platforms"
	"github.com/PontoProject/ponto-core/pkg/service/broker"
	"github.com/PontoProject/ponto-core/pkg/service/state"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// recordRefreshInterval is how often the displayed record list is re-fetched
// while online, so the day rollover clears yesterday's punches.
const recordRefreshInterval = time.Minute

// Service is the running daemon: the coordinator plus its background loop.
type Service struct {
	coord    *Coordinator
	st       *state.State
	broker   *broker.Broker
	platform platforms.Platform
	cfg      *config.Instance
	clock    clockwork.Clock
	done     chan struct{}
}

// Start launches the service loop. The notification channel is the one
// returned by state.NewState; it feeds the broker for subscribers.
func Start(
	cfg *config.Instance,
	st *state.State,
	coord *Coordinator,
	bk *broker.Broker,
	platform platforms.Platform,
	clock clockwork.Clock,
) (*Service, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	svc := &Service{
		coord:    coord,
		st:       st,
		broker:   bk,
		platform: platform,
		cfg:      cfg,
		clock:    clock,
		done:     make(chan struct{}),
	}

	bk.Start()

	online, err := platform.Online()
	if err != nil {
		log.Warn().Err(err).Msg("initial connectivity probe failed, assuming offline")
		online = false
	}
	st.SetOnline(online)

	events, err := platform.Events(st.GetContext())
	if err != nil {
		return nil, fmt.Errorf("failed to start platform event delivery: %w", err)
	}

	go svc.run(events)
	return svc, nil
}

// run is the scheduler loop. Startup performs a full clock stabilization and
// drains anything queued from a previous run, then the loop reacts to
// connectivity and visibility changes and the periodic resync and record
// refresh ticks.
func (s *Service) run(events <-chan platforms.Event) {
	defer close(s.done)

	ctx := s.st.GetContext()

	if s.st.Online() {
		if _, err := s.coord.est.Stabilize(
			ctx, clocksync.PunchStabilizeMaxWait, clocksync.PunchStabilizeJitter,
		); err != nil {
			log.Warn().Err(err).Msg("startup clock stabilization failed")
		}
		if err := s.coord.DrainQueue(ctx); err != nil {
			log.Warn().Err(err).Msg("startup queue drain failed")
		}
		s.coord.RefreshRecords(ctx)
	}

	resync := s.clock.NewTicker(s.cfg.ResyncInterval())
	defer resync.Stop()
	refresh := s.clock.NewTicker(recordRefreshInterval)
	defer refresh.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-resync.Chan():
			if s.st.Online() {
				s.coord.Resync(ctx)
			}
		case <-refresh.Chan():
			if s.st.Online() {
				s.coord.RefreshRecords(ctx)
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.handleEvent(ctx, ev)
		}
	}
}

// handleEvent reacts to host environment changes. Regaining connectivity
// resyncs the clock and drains the offline queue; coming to the foreground
// refreshes the clock estimate after a possible sleep.
func (s *Service) handleEvent(ctx context.Context, ev platforms.Event) {
	switch ev.Kind {
	case platforms.EventConnectivity:
		s.st.SetOnline(ev.Online)
		if !ev.Online {
			return
		}
		log.Info().Msg("connectivity restored")
		s.coord.Resync(ctx)
		if err := s.coord.DrainQueue(ctx); err != nil {
			log.Warn().Err(err).Msg("queue drain after reconnect failed")
		}
		s.coord.RefreshRecords(ctx)
	case platforms.EventVisibility:
		if ev.Visible && s.st.Online() {
			s.coord.Resync(ctx)
		}
	}
}

// Coordinator exposes the punch entry point for frontends.
func (s *Service) Coordinator() *Coordinator {
	return s.coord
}

// Stop shuts the loop down and waits for it to exit.
func (s *Service) Stop() {
	s.st.StopService()
	s.broker.Stop()
	<-s.done
}
