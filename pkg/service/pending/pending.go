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

// Package pending is the durable queue of punch records not yet confirmed by
// the server. Queued records survive restarts and are drained on
// connectivity-restored events.
package pending

import (
	"context"
	"sync/atomic"

	"github.com/PontoProject/ponto-core/pkg/api/models"
	"github.com/PontoProject/ponto-core/pkg/api/notifications"
	"github.com/PontoProject/ponto-core/pkg/database/punchdb"
	"github.com/PontoProject/ponto-core/pkg/service/state"
	"github.com/rs/zerolog/log"
)

// Submitter is the single submission primitive shared by the online punch
// path and the drain path.
type Submitter interface {
	SubmitPunch(ctx context.Context, rec *models.PunchRecord) (models.PunchRecord, error)
}

// Queue owns the durable pending store.
type Queue struct {
	db       *punchdb.DB
	st       *state.State
	draining atomic.Bool
}

// NewQueue creates a queue over the given store and runtime state.
func NewQueue(db *punchdb.DB, st *state.State) *Queue {
	return &Queue{db: db, st: st}
}

// Enqueue durably appends an unconfirmed record and publishes it to the
// in-memory list immediately so the UI shows the punch optimistically.
func (q *Queue) Enqueue(rec *models.PunchRecord) error {
	if _, err := q.db.EnqueuePending(rec); err != nil {
		return err
	}

	q.st.AddProvisional(*rec)
	notifications.PunchQueued(q.st.Notifications, *rec)
	log.Info().
		Str("kind", rec.Kind).
		Str("user", rec.User).
		Msg("punch queued for later submission")
	return nil
}

// Count returns the number of queued records.
func (q *Queue) Count() (int, error) {
	return q.db.PendingCount()
}

// Drain attempts to submit every record queued at the moment the drain
// starts; records enqueued mid-drain wait for the next pass. Each record is
// handled independently: a failure leaves that record queued without
// blocking the rest. Draining an empty queue is a no-op, and a drain started
// while one is running returns immediately.
func (q *Queue) Drain(ctx context.Context, submitter Submitter) error {
	if !q.draining.CompareAndSwap(false, true) {
		log.Debug().Msg("queue drain already in flight")
		return nil
	}
	defer q.draining.Store(false)

	snapshot, err := q.db.ListPending()
	if err != nil {
		return err
	}
	if len(snapshot) == 0 {
		return nil
	}

	log.Info().Int("count", len(snapshot)).Msg("draining pending punch queue")

	submitted := 0
	for i := range snapshot {
		p := snapshot[i]

		stored, err := submitter.SubmitPunch(ctx, &p.Record)
		if err != nil {
			log.Warn().Err(err).
				Uint64("seq", p.Seq).
				Msg("pending punch submission failed, keeping queued")
			continue
		}

		if err := q.db.RemovePending(p.Seq); err != nil {
			// The server accepted the record but the local delete failed;
			// the next drain will resubmit and rely on the server-side
			// idempotent handling of the client reference.
			log.Error().Err(err).Uint64("seq", p.Seq).Msg("failed to remove submitted punch")
			continue
		}

		stored.Origin = models.OriginReconciled
		q.st.ConfirmRecord(p.Record.ClientRef, stored)
		submitted++
	}

	remaining, err := q.db.PendingCount()
	if err != nil {
		log.Warn().Err(err).Msg("failed to count remaining pending punches")
		remaining = len(snapshot) - submitted
	}

	notifications.QueueDrained(q.st.Notifications, models.QueueDrainedParams{
		Submitted: submitted,
		Remaining: remaining,
	})

	if submitted > 0 {
		// The local Entry/Exit counter advanced at enqueue time and is not
		// reconciled against what the server persisted; surfaced here so an
		// out-of-sync counter is at least visible.
		log.Info().
			Int("submitted", submitted).
			Int("remaining", remaining).
			Msg("pending queue drain finished; local punch counter not re-derived from server history")
	}

	return nil
}
