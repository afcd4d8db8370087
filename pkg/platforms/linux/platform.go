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

//go:build linux

package linux

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/PontoProject/ponto-core/pkg/platforms"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

const routeFile = "/proc/net/route"

// resolvConf is rewritten by the network manager whenever a connection comes
// or goes, which makes it a cheap connectivity change signal.
const resolvConf = "/etc/resolv.conf"

// Platform is the Linux host. Connectivity changes are detected by watching
// the resolver config and re-probing the kernel routing table; SIGUSR1 and
// SIGUSR2 mark the app as foregrounded and backgrounded.
type Platform struct{}

func NewPlatform() *Platform {
	return &Platform{}
}

func (*Platform) ID() string {
	return "linux"
}

// Online reports whether the kernel has a default route.
func (*Platform) Online() (bool, error) {
	return hasDefaultRoute(routeFile)
}

// hasDefaultRoute scans a /proc/net/route formatted table for an all-zero
// destination entry.
func hasDefaultRoute(path string) (bool, error) {
	f, err := os.Open(path) //nolint:gosec // fixed procfs path
	if err != nil {
		return false, fmt.Errorf("failed to open routing table: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("failed to close routing table")
		}
	}()

	scanner := bufio.NewScanner(f)
	scanner.Scan() // header
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) >= 2 && fields[1] == "00000000" {
			return true, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return false, fmt.Errorf("failed to read routing table: %w", err)
	}
	return false, nil
}

// Events watches for connectivity and visibility changes until ctx is done.
func (p *Platform) Events(ctx context.Context) (<-chan platforms.Event, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create connectivity watcher: %w", err)
	}
	// Watch the directory: resolv.conf is replaced atomically on change,
	// which drops a watch placed on the file itself.
	if err := watcher.Add(filepath.Dir(resolvConf)); err != nil {
		if closeErr := watcher.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("failed to close connectivity watcher")
		}
		return nil, fmt.Errorf("failed to watch resolver config: %w", err)
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGUSR1, syscall.SIGUSR2)

	events := make(chan platforms.Event)
	go func() {
		defer close(events)
		defer signal.Stop(sigs)
		defer func() {
			if err := watcher.Close(); err != nil {
				log.Warn().Err(err).Msg("failed to close connectivity watcher")
			}
		}()

		lastOnline, err := p.Online()
		if err != nil {
			log.Warn().Err(err).Msg("initial connectivity probe failed")
		}

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != filepath.Base(resolvConf) {
					continue
				}
				online, err := p.Online()
				if err != nil {
					log.Warn().Err(err).Msg("connectivity probe failed")
					continue
				}
				if online == lastOnline {
					continue
				}
				lastOnline = online
				select {
				case events <- platforms.Event{Kind: platforms.EventConnectivity, Online: online}:
				case <-ctx.Done():
					return
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn().Err(err).Msg("connectivity watcher error")
			case sig := <-sigs:
				visible := sig == syscall.SIGUSR1
				select {
				case events <- platforms.Event{Kind: platforms.EventVisibility, Visible: visible}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return events, nil
}
