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
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/PontoProject/ponto-core/pkg/api/models"
	"github.com/PontoProject/ponto-core/pkg/clocksync"
	"github.com/PontoProject/ponto-core/pkg/config"
	"github.com/PontoProject/ponto-core/pkg/database/punchdb"
	"github.com/PontoProject/ponto-core/pkg/geofence"
	"github.com/PontoProject/ponto-core/pkg/location"
	"github.com/PontoProject/ponto-core/pkg/service/pending"
	"github.com/PontoProject/ponto-core/pkg/service/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// matrizLat/Lng match the default zone center so test positions are inside it.
const (
	matrizLat = -23.55052
	matrizLng = -46.63331
)

type stubAPI struct {
	mu        sync.Mutex
	submitted []models.PunchRecord
	listing   []models.PunchRecord
	submitErr error
	listErr   error
}

func (a *stubAPI) SubmitPunch(
	_ context.Context,
	rec *models.PunchRecord,
) (models.PunchRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.submitErr != nil {
		return models.PunchRecord{}, a.submitErr
	}

	echo := *rec
	echo.ID = "srv-" + rec.ClientRef
	a.submitted = append(a.submitted, echo)
	a.listing = append(a.listing, echo)
	return echo, nil
}

func (a *stubAPI) ListPunches(_ context.Context) ([]models.PunchRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listErr != nil {
		return nil, a.listErr
	}
	out := make([]models.PunchRecord, len(a.listing))
	copy(out, a.listing)
	return out, nil
}

func (a *stubAPI) submitCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.submitted)
}

type stubLocator struct {
	pos Position
	err error
}

// Position aliases the location type for compact test literals.
type Position = location.Position

func (l *stubLocator) Acquire(
	_ context.Context,
	_ bool,
	_ time.Duration,
) (location.Position, error) {
	if l.err != nil {
		return location.Position{}, l.err
	}
	return l.pos, nil
}

// shiftedSource reports server time offset from the device clock by a fixed
// amount, simulating device clock skew.
type shiftedSource struct {
	deltaMS int64
	err     error
}

func (s *shiftedSource) ServerTime(_ context.Context) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	return time.Now().UnixMilli() + s.deltaMS, nil
}

type fixture struct {
	coord *Coordinator
	st    *state.State
	db    *punchdb.DB
	api   *stubAPI
	ns    <-chan models.Notification
}

func newFixture(t *testing.T, source clocksync.TimeSource, locator location.Provider) *fixture {
	t.Helper()

	defaults := config.BaseDefaults
	defaults.Clock.ToleranceMS = 2 * 60 * 1000
	cfg, err := config.NewConfig(t.TempDir(), defaults)
	require.NoError(t, err)

	db, err := punchdb.Open(filepath.Join(t.TempDir(), "ponto.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, db.Close())
	})

	st, ns := state.NewState(cfg.UserName())
	est := clocksync.NewEstimator(source, db, nil)
	zones := geofence.NewRegistry(cfg.Zones(), cfg.DefaultZone())
	api := &stubAPI{}
	queue := pending.NewQueue(db, st)

	return &fixture{
		coord: NewCoordinator(cfg, st, est, zones, locator, api, queue, nil),
		st:    st,
		db:    db,
		api:   api,
		ns:    ns,
	}
}

func insideLocator() *stubLocator {
	return &stubLocator{pos: Position{Lat: matrizLat, Lng: matrizLng, AccuracyMeters: 10}}
}

func methods(ns <-chan models.Notification) []string {
	var out []string
	for {
		select {
		case n := <-ns:
			out = append(out, n.Method)
		default:
			return out
		}
	}
}

func TestFirstPunchEntryThenExit(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &shiftedSource{deltaMS: 0}, insideLocator())
	ctx := context.Background()

	first, err := f.coord.Punch(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.KindEntry, first.Kind)
	assert.Equal(t, models.OriginOnline, first.Origin)
	assert.NotEmpty(t, first.ID)
	assert.NotEmpty(t, first.ClientRef)

	second, err := f.coord.Punch(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.KindExit, second.Kind)

	assert.Equal(t, 2, f.api.submitCount())
	assert.Equal(t, 2, f.st.PunchCount(f.st.User()))
}

func TestClockSkewBlocksAndLeavesNoTrace(t *testing.T) {
	t.Parallel()

	// Device clock five minutes behind the server, against a two minute
	// tolerance.
	f := newFixture(t, &shiftedSource{deltaMS: 5 * 60 * 1000}, insideLocator())

	_, err := f.coord.Punch(context.Background())
	var blocked *BlockedError
	require.ErrorAs(t, err, &blocked)
	assert.Equal(t, ReasonClockSkew, blocked.Reason)
	assert.Contains(t, blocked.Message, "5 minutes")

	// Nothing recorded, nothing queued, alternation unchanged.
	assert.Zero(t, f.api.submitCount())
	assert.Empty(t, f.st.Records())
	count, err := f.db.PendingCount()
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Zero(t, f.st.PunchCount(f.st.User()))

	notes := methods(f.ns)
	assert.Contains(t, notes, models.NotificationPunchBlocked)
}

func TestOutsideZoneBlocks(t *testing.T) {
	t.Parallel()

	// About 1.5 km east of the zone center.
	far := &stubLocator{pos: Position{Lat: matrizLat, Lng: matrizLng + 0.015, AccuracyMeters: 10}}
	f := newFixture(t, &shiftedSource{deltaMS: 0}, far)

	_, err := f.coord.Punch(context.Background())
	var blocked *BlockedError
	require.ErrorAs(t, err, &blocked)
	assert.Equal(t, ReasonOutsideZone, blocked.Reason)
	assert.Zero(t, f.api.submitCount())
	assert.Zero(t, f.st.PunchCount(f.st.User()))
}

func TestLocationFailureBlocks(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &shiftedSource{deltaMS: 0}, &stubLocator{err: location.ErrTimeout})

	_, err := f.coord.Punch(context.Background())
	var blocked *BlockedError
	require.ErrorAs(t, err, &blocked)
	assert.Equal(t, ReasonLocationUnavailable, blocked.Reason)
	assert.Zero(t, f.api.submitCount())
}

func TestOfflinePunchQueuesThenDrainsOnce(t *testing.T) {
	t.Parallel()

	// The time source errors too: a fully offline device.
	f := newFixture(t, &shiftedSource{err: errors.New("no route to host")}, insideLocator())
	f.st.SetOnline(false)
	ctx := context.Background()

	rec, err := f.coord.Punch(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.OriginOffline, rec.Origin)
	assert.Zero(t, f.api.submitCount())

	count, err := f.db.PendingCount()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, 1, f.st.PunchCount(f.st.User()))

	// Connectivity restored: the drain submits the queued punch exactly once.
	f.st.SetOnline(true)
	require.NoError(t, f.coord.DrainQueue(ctx))
	require.NoError(t, f.coord.DrainQueue(ctx))

	assert.Equal(t, 1, f.api.submitCount())
	count, err = f.db.PendingCount()
	require.NoError(t, err)
	assert.Zero(t, count)

	records := f.st.Records()
	require.Len(t, records, 1)
	assert.Equal(t, models.OriginReconciled, records[0].Origin)
}

func TestSubmitFailureFallsBackToQueue(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &shiftedSource{deltaMS: 0}, insideLocator())
	f.api.submitErr = errors.New("connection reset by peer")

	rec, err := f.coord.Punch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.OriginOffline, rec.Origin)

	count, err := f.db.PendingCount()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, 1, f.st.PunchCount(f.st.User()))
}

func TestPunchGuardRejectsConcurrentAttempt(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &shiftedSource{deltaMS: 0}, insideLocator())
	f.coord.inPunch.Store(true)

	_, err := f.coord.Punch(context.Background())
	assert.ErrorIs(t, err, ErrPunchInFlight)

	f.coord.inPunch.Store(false)
}

func TestRefreshRecordsFiltersUserAndDay(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &shiftedSource{deltaMS: 0}, insideLocator())
	now := time.Now()
	f.api.listing = []models.PunchRecord{
		{User: "Pedro", Kind: models.KindEntry, RecordedAt: now.Add(-2 * time.Hour)},
		{User: "Pedro", Kind: models.KindExit, RecordedAt: now.Add(-time.Hour)},
		{User: "Alice", Kind: models.KindEntry, RecordedAt: now},
		{User: "Pedro", Kind: models.KindExit, RecordedAt: now.AddDate(0, 0, -1)},
	}

	f.coord.RefreshRecords(context.Background())

	records := f.st.Records()
	require.Len(t, records, 2)
	// Newest first.
	assert.Equal(t, models.KindExit, records[0].Kind)
	assert.Equal(t, models.KindEntry, records[1].Kind)
	for _, r := range records {
		assert.Equal(t, "Pedro", r.User)
	}
}
