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

package notifications

import "github.com/PontoProject/ponto-core/pkg/api/models"

func PunchRecorded(ns chan<- models.Notification, rec models.PunchRecord) {
	ns <- models.Notification{
		Method: models.NotificationPunchRecorded,
		Params: rec,
	}
}

func PunchQueued(ns chan<- models.Notification, rec models.PunchRecord) {
	ns <- models.Notification{
		Method: models.NotificationPunchQueued,
		Params: rec,
	}
}

func PunchBlocked(ns chan<- models.Notification, payload models.PunchBlockedParams) {
	ns <- models.Notification{
		Method: models.NotificationPunchBlocked,
		Params: payload,
	}
}

func PunchWarning(ns chan<- models.Notification, message string) {
	ns <- models.Notification{
		Method: models.NotificationPunchWarning,
		Params: message,
	}
}

func ClockSynced(ns chan<- models.Notification, payload models.ClockSyncedParams) {
	ns <- models.Notification{
		Method: models.NotificationClockSynced,
		Params: payload,
	}
}

func QueueDrained(ns chan<- models.Notification, payload models.QueueDrainedParams) {
	ns <- models.Notification{
		Method: models.NotificationQueueDrained,
		Params: payload,
	}
}

func RecordsUpdated(ns chan<- models.Notification, recs []models.PunchRecord) {
	ns <- models.Notification{
		Method: models.NotificationRecordsUpdated,
		Params: recs,
	}
}

func ConnectivityChanged(ns chan<- models.Notification, online bool) {
	ns <- models.Notification{
		Method: models.NotificationConnectivity,
		Params: online,
	}
}
