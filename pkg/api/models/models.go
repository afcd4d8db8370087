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

package models

import "time"

// Punch kinds alternate strictly per user: Entry, Exit, Entry, ...
const (
	KindEntry = "Entry"
	KindExit  = "Exit"
)

// Punch origins. A record starts online or offline and becomes reconciled
// when a queued copy is later accepted by the server.
const (
	OriginOnline     = "online"
	OriginOffline    = "offline"
	OriginReconciled = "reconciled"
)

// PunchRecord is a single attendance punch. ID and RecordedAt are
// server-authoritative: they are empty/zero on submission and filled in by
// the server's echoed copy on acceptance.
type PunchRecord struct {
	RecordedAt     time.Time `json:"recordedAt,omitzero"`
	ID             string    `json:"id,omitempty"`
	User           string    `json:"user"`
	Kind           string    `json:"kind"`
	Origin         string    `json:"origin"`
	DeviceTimeZone string    `json:"deviceTimeZone,omitempty"`
	ZoneID         string    `json:"zoneId,omitempty"`
	ClientRef      string    `json:"clientRef,omitempty"`
	Lat            *float64  `json:"lat,omitempty"`
	Lng            *float64  `json:"lng,omitempty"`
	AccuracyMeters *float64  `json:"accuracyMeters,omitempty"`
}

// TimeResponse is the payload of the server time endpoint.
type TimeResponse struct {
	ServerISO     string `json:"serverIso"`
	ServerEpochMS int64  `json:"serverEpochMs"`
}

// Notification methods published by the service.
const (
	NotificationPunchRecorded  = "punch.recorded"
	NotificationPunchQueued    = "punch.queued"
	NotificationPunchBlocked   = "punch.blocked"
	NotificationPunchWarning   = "punch.warning"
	NotificationClockSynced    = "clock.synced"
	NotificationQueueDrained   = "queue.drained"
	NotificationRecordsUpdated = "records.updated"
	NotificationConnectivity   = "connectivity.changed"
)

// Notification is a read-only event published to subscribers. External
// collaborators (UI layers) observe service state exclusively through these.
type Notification struct {
	Params any    `json:"params,omitempty"`
	Method string `json:"method"`
}

// PunchBlockedParams describes why a punch attempt was refused.
type PunchBlockedParams struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

// ClockSyncedParams carries the current delta estimate.
type ClockSyncedParams struct {
	DeltaMS int64 `json:"deltaMs"`
}

// QueueDrainedParams summarizes a drain pass.
type QueueDrainedParams struct {
	Submitted int `json:"submitted"`
	Remaining int `json:"remaining"`
}
