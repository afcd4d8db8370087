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

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/PontoProject/ponto-core/pkg/api/client"
	"github.com/PontoProject/ponto-core/pkg/clocksync"
	"github.com/PontoProject/ponto-core/pkg/config"
	"github.com/PontoProject/ponto-core/pkg/database/punchdb"
	"github.com/PontoProject/ponto-core/pkg/geofence"
	"github.com/PontoProject/ponto-core/pkg/helpers"
	"github.com/PontoProject/ponto-core/pkg/location"
	"github.com/PontoProject/ponto-core/pkg/platforms/linux"
	"github.com/PontoProject/ponto-core/pkg/service"
	"github.com/PontoProject/ponto-core/pkg/service/broker"
	"github.com/PontoProject/ponto-core/pkg/service/pending"
	"github.com/PontoProject/ponto-core/pkg/service/state"
	"github.com/rs/zerolog/log"
)

// Version is set at build time.
var Version = "dev"

func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func run() error {
	showVersion := flag.Bool("version", false, "print version and exit")
	doPunch := flag.Bool("punch", false, "record one punch and exit")
	doList := flag.Bool("list", false, "print today's punch records and exit")
	daemonMode := flag.Bool("daemon", false, "run service in foreground, logging to stderr")
	configDir := flag.String("config-dir", "", "load config from a custom directory")
	flag.Parse()

	if *showVersion {
		fmt.Println("ponto v" + Version) //nolint:forbidigo // CLI output
		return nil
	}

	var logWriters []io.Writer
	if *daemonMode {
		logWriters = []io.Writer{os.Stderr}
	}
	if err := helpers.InitLogging(helpers.DataDir(), logWriters); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	cfgDir := helpers.ConfigDir()
	if *configDir != "" {
		cfgDir = *configDir
	}
	cfg, err := config.NewConfig(cfgDir, config.BaseDefaults)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.DebugLogging() {
		helpers.SetLogLevel(true)
	}

	defer func() {
		if r := recover(); r != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Panic: %s\n", r)
			log.Fatal().Msgf("panic: %v", r)
		}
	}()

	db, err := punchdb.Open(helpers.DataFilePath())
	if err != nil {
		return fmt.Errorf("failed to open punch database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close punch database")
		}
	}()

	pl := linux.NewPlatform()
	st, notifCh := state.NewState(cfg.UserName())
	apiClient := client.NewClient(cfg)
	est := clocksync.NewEstimator(apiClient, db, nil)
	apiClient.SetDateObserver(est)

	zones := geofence.NewRegistry(cfg.Zones(), cfg.DefaultZone())
	queue := pending.NewQueue(db, st)
	command, args := cfg.LocationCommand()
	locator := location.NewExecProvider(command, args)
	coord := service.NewCoordinator(cfg, st, est, zones, locator, apiClient, queue, nil)

	bk := broker.NewBroker(st.GetContext(), notifCh)
	svc, err := service.Start(cfg, st, coord, bk, pl, nil)
	if err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}
	defer svc.Stop()

	switch {
	case *doPunch:
		return punchOnce(coord)
	case *doList:
		return listToday(coord, st)
	default:
		log.Info().Str("version", Version).Str("platform", pl.ID()).Msg("service started")
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
		<-sigs
		log.Info().Msg("shutting down")
		return nil
	}
}

func punchOnce(coord *service.Coordinator) error {
	rec, err := coord.Punch(context.Background())
	var blocked *service.BlockedError
	if errors.As(err, &blocked) {
		return fmt.Errorf("punch blocked: %s", blocked.Message)
	}
	if err != nil {
		return fmt.Errorf("punch failed: %w", err)
	}

	//nolint:forbidigo // CLI output
	fmt.Printf("%s recorded at %s (%s)\n",
		rec.Kind, rec.RecordedAt.Format("15:04:05"), rec.Origin)
	return nil
}

func listToday(coord *service.Coordinator, st *state.State) error {
	coord.RefreshRecords(context.Background())
	records := st.Records()
	if len(records) == 0 {
		fmt.Println("no punches recorded today") //nolint:forbidigo // CLI output
		return nil
	}
	for i := range records {
		r := records[i]
		//nolint:forbidigo // CLI output
		fmt.Printf("%s  %-5s  %s\n", r.RecordedAt.Format("15:04:05"), r.Kind, r.Origin)
	}
	return nil
}
