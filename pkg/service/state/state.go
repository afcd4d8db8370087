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

package state

import (
	"context"

	"github.com/PontoProject/ponto-core/pkg/api/models"
	"github.com/PontoProject/ponto-core/pkg/api/notifications"
	"github.com/PontoProject/ponto-core/pkg/helpers/syncutil"
)

// State holds the runtime state of the punch service.
//
// LOCKING RULES: the mu mutex protects all mutable fields. To prevent
// deadlocks:
//   - Never send to channels while holding the lock
//   - Pattern: lock → modify state → copy needed data → unlock → send notifications
type State struct {
	ctx           context.Context
	ctxCancelFunc context.CancelFunc
	punchCounts   map[string]int
	Notifications chan<- models.Notification
	user          string
	records       []models.PunchRecord
	mu            syncutil.RWMutex
	online        bool
	stopService   bool
}

// NewState creates the runtime state for the given user. The returned channel
// is the notification source to feed a broker.
func NewState(user string) (st *State, notificationCh <-chan models.Notification) {
	// Buffered so bursts (queue drains republishing several records) don't
	// block the coordinator.
	ns := make(chan models.Notification, 100)
	ctx, cancel := context.WithCancel(context.Background())
	return &State{
		user:          user,
		punchCounts:   make(map[string]int),
		Notifications: ns,
		ctx:           ctx,
		ctxCancelFunc: cancel,
		online:        true,
	}, ns
}

func (s *State) User() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// SetOnline updates the connectivity flag and notifies subscribers when it
// actually changed.
func (s *State) SetOnline(online bool) {
	s.mu.Lock()
	changed := s.online != online
	s.online = online
	s.mu.Unlock()

	if changed {
		notifications.ConnectivityChanged(s.Notifications, online)
	}
}

func (s *State) Online() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.online
}

// KindForAttempt returns the punch kind the next well-formed attempt will
// carry: kinds alternate strictly per user starting at Entry.
func (s *State) KindForAttempt(user string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.punchCounts[user]%2 == 0 {
		return models.KindEntry
	}
	return models.KindExit
}

// AdvancePunchCount increments the alternating counter for a user. Called
// only after a well-formed local attempt, never on a blocked one.
func (s *State) AdvancePunchCount(user string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.punchCounts[user]++
}

func (s *State) PunchCount(user string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.punchCounts[user]
}

// AddProvisional appends a record to the displayed list before the server
// has confirmed it, so the UI reflects the punch optimistically.
func (s *State) AddProvisional(rec models.PunchRecord) { //nolint:gocritic // record copied at the boundary
	s.mu.Lock()
	s.records = append([]models.PunchRecord{rec}, s.records...)
	recs := s.copyRecordsLocked()
	s.mu.Unlock()

	notifications.RecordsUpdated(s.Notifications, recs)
}

// ConfirmRecord replaces the provisional record with the given client
// reference by the server's stored copy, or appends when no provisional
// match exists. Replacement rather than append keeps reconciliation from
// duplicating the optimistic entry.
func (s *State) ConfirmRecord(clientRef string, stored models.PunchRecord) { //nolint:gocritic // record copied at the boundary
	s.mu.Lock()
	replaced := false
	for i := range s.records {
		if clientRef != "" && s.records[i].ClientRef == clientRef {
			s.records[i] = stored
			replaced = true
			break
		}
	}
	if !replaced {
		s.records = append([]models.PunchRecord{stored}, s.records...)
	}
	recs := s.copyRecordsLocked()
	s.mu.Unlock()

	notifications.RecordsUpdated(s.Notifications, recs)
}

// SetRecords replaces the displayed list wholesale (refresh path).
func (s *State) SetRecords(recs []models.PunchRecord) {
	s.mu.Lock()
	s.records = make([]models.PunchRecord, len(recs))
	copy(s.records, recs)
	out := s.copyRecordsLocked()
	s.mu.Unlock()

	notifications.RecordsUpdated(s.Notifications, out)
}

// Records returns a copy of the displayed record list, newest first.
func (s *State) Records() []models.PunchRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyRecordsLocked()
}

func (s *State) copyRecordsLocked() []models.PunchRecord {
	out := make([]models.PunchRecord, len(s.records))
	copy(out, s.records)
	return out
}

func (s *State) StopService() {
	s.mu.Lock()
	s.stopService = true
	s.mu.Unlock()
	s.ctxCancelFunc()
}

func (s *State) GetContext() context.Context {
	return s.ctx
}
