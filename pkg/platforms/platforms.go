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

// Package platforms abstracts the host environment: connectivity changes and
// foreground/background transitions arrive as events so the service reacts
// the same way on every host.
package platforms

import "context"

// Event kinds emitted by a platform.
const (
	EventConnectivity = "connectivity"
	EventVisibility   = "visibility"
)

// Event is a host environment change. Online is meaningful for connectivity
// events, Visible for visibility events.
type Event struct {
	Kind    string
	Online  bool
	Visible bool
}

// Platform is the host environment the service runs on.
type Platform interface {
	// ID returns the unique identifier of this platform.
	ID() string
	// Online probes current connectivity.
	Online() (bool, error)
	// Events starts event delivery. The channel closes when ctx is done.
	Events(ctx context.Context) (<-chan Event, error)
}
