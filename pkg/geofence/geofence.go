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

// Package geofence validates coordinates against named circular zones.
package geofence

import (
	"math"
	"time"

	"github.com/PontoProject/ponto-core/pkg/config"
)

// earthRadiusMeters is the mean Earth radius used by the haversine formula.
const earthRadiusMeters = 6371000

// Coordinate is a point in degrees.
type Coordinate struct {
	Lat float64
	Lng float64
}

// Zone is a named circular authorized area.
type Zone struct {
	ID               string
	Name             string
	ExpectedTimeZone string
	Center           Coordinate
	RadiusMeters     float64
}

// Result is the outcome of a geofence validation. Zone is nil when the
// requested zone id is not registered.
type Result struct {
	Zone           *Zone
	DistanceMeters float64
	Inside         bool
}

// TimeZoneCheck compares the device timezone against a zone's expected one.
// A mismatch is advisory: it never blocks a punch.
type TimeZoneCheck struct {
	DeviceZone   string
	ExpectedZone string
	Match        bool
}

// Registry is an immutable set of zones keyed by id, with a default zone.
type Registry struct {
	zones       map[string]Zone
	defaultZone string
}

// NewRegistry builds a registry from configured zones. Zones are validated at
// config load time; the registry takes them as-is.
func NewRegistry(zones []config.Zone, defaultZone string) *Registry {
	m := make(map[string]Zone, len(zones))
	for i := range zones {
		z := zones[i]
		m[z.ID] = Zone{
			ID:               z.ID,
			Name:             z.Name,
			Center:           Coordinate{Lat: z.Lat, Lng: z.Lng},
			RadiusMeters:     z.RadiusMeters,
			ExpectedTimeZone: z.ExpectedTimeZone,
		}
	}
	return &Registry{zones: m, defaultZone: defaultZone}
}

// DefaultZoneID returns the configured default zone id.
func (r *Registry) DefaultZoneID() string {
	return r.defaultZone
}

// Zone looks up a zone by id.
func (r *Registry) Zone(id string) (Zone, bool) {
	z, ok := r.zones[id]
	return z, ok
}

// Distance returns the great-circle distance between two points in meters,
// via the haversine formula.
func Distance(a, b Coordinate) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := toRad(b.Lat - a.Lat)
	dLng := toRad(b.Lng - a.Lng)
	lat1 := toRad(a.Lat)
	lat2 := toRad(b.Lat)

	sinDLat := math.Sin(dLat / 2)
	sinDLng := math.Sin(dLng / 2)
	h := sinDLat*sinDLat + math.Cos(lat1)*math.Cos(lat2)*sinDLng*sinDLng
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusMeters * c
}

// Validate checks a coordinate against the zone with the given id. An
// unregistered zone id fails closed: Inside is false and DistanceMeters is
// +Inf. The zone boundary is inclusive: a point exactly RadiusMeters from the
// center is inside.
func (r *Registry) Validate(lat, lng float64, zoneID string) Result {
	z, ok := r.zones[zoneID]
	if !ok {
		return Result{Inside: false, DistanceMeters: math.Inf(1), Zone: nil}
	}

	d := Distance(Coordinate{Lat: lat, Lng: lng}, z.Center)
	return Result{
		Inside:         d <= z.RadiusMeters,
		DistanceMeters: d,
		Zone:           &z,
	}
}

// CheckTimeZone compares the device's resolved IANA timezone to the zone's
// expected one. Unknown zones and zones without an expectation match
// trivially.
func (r *Registry) CheckTimeZone(zoneID string) TimeZoneCheck {
	device := DeviceTimeZone()

	z, ok := r.zones[zoneID]
	if !ok || z.ExpectedTimeZone == "" {
		return TimeZoneCheck{DeviceZone: device, ExpectedZone: "", Match: true}
	}

	return TimeZoneCheck{
		DeviceZone:   device,
		ExpectedZone: z.ExpectedTimeZone,
		Match:        device == z.ExpectedTimeZone,
	}
}

// DeviceTimeZone returns the device's IANA timezone name, falling back to UTC
// when the local zone has no name.
func DeviceTimeZone() string {
	name := time.Local.String()
	if name == "" || name == "Local" {
		return "UTC"
	}
	return name
}
