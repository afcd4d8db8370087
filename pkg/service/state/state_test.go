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
	"testing"

	"github.com/PontoProject/ponto-core/pkg/api/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(ch <-chan models.Notification) {
	go func() {
		for range ch { //nolint:revive // discard notifications
		}
	}()
}

func TestKindAlternatesPerUser(t *testing.T) {
	t.Parallel()

	st, ns := NewState("Pedro")
	drain(ns)

	assert.Equal(t, models.KindEntry, st.KindForAttempt("Pedro"))
	st.AdvancePunchCount("Pedro")
	assert.Equal(t, models.KindExit, st.KindForAttempt("Pedro"))
	st.AdvancePunchCount("Pedro")
	assert.Equal(t, models.KindEntry, st.KindForAttempt("Pedro"))

	// counters are independent per user
	assert.Equal(t, models.KindEntry, st.KindForAttempt("Henrique"))
	assert.Equal(t, 2, st.PunchCount("Pedro"))
	assert.Equal(t, 0, st.PunchCount("Henrique"))
}

func TestSetOnlineNotifiesOnChange(t *testing.T) {
	t.Parallel()

	st, ns := NewState("Pedro")

	st.SetOnline(false)
	n := <-ns
	require.Equal(t, models.NotificationConnectivity, n.Method)
	assert.Equal(t, false, n.Params)

	// same value again: no notification, flag unchanged
	st.SetOnline(false)
	assert.False(t, st.Online())
	select {
	case extra := <-ns:
		t.Fatalf("unexpected notification: %s", extra.Method)
	default:
	}
}

func TestAddProvisionalPrepends(t *testing.T) {
	t.Parallel()

	st, ns := NewState("Pedro")
	drain(ns)

	st.AddProvisional(models.PunchRecord{Kind: models.KindEntry, ClientRef: "a"})
	st.AddProvisional(models.PunchRecord{Kind: models.KindExit, ClientRef: "b"})

	recs := st.Records()
	require.Len(t, recs, 2)
	assert.Equal(t, models.KindExit, recs[0].Kind, "newest first")
}

func TestConfirmRecordReplacesProvisional(t *testing.T) {
	t.Parallel()

	st, ns := NewState("Pedro")
	drain(ns)

	st.AddProvisional(models.PunchRecord{
		Kind:      models.KindEntry,
		ClientRef: "ref-1",
		Origin:    models.OriginOffline,
	})

	st.ConfirmRecord("ref-1", models.PunchRecord{
		ID:        "srv-9",
		Kind:      models.KindEntry,
		ClientRef: "ref-1",
		Origin:    models.OriginReconciled,
	})

	recs := st.Records()
	require.Len(t, recs, 1, "confirmation must replace, not duplicate")
	assert.Equal(t, "srv-9", recs[0].ID)
	assert.Equal(t, models.OriginReconciled, recs[0].Origin)
}

func TestConfirmRecordAppendsWhenNoMatch(t *testing.T) {
	t.Parallel()

	st, ns := NewState("Pedro")
	drain(ns)

	st.ConfirmRecord("missing", models.PunchRecord{ID: "srv-1"})

	recs := st.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, "srv-1", recs[0].ID)
}

func TestRecordsReturnsCopy(t *testing.T) {
	t.Parallel()

	st, ns := NewState("Pedro")
	drain(ns)

	st.SetRecords([]models.PunchRecord{{ID: "srv-1"}})

	recs := st.Records()
	recs[0].ID = "mutated"

	assert.Equal(t, "srv-1", st.Records()[0].ID)
}
