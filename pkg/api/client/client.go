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

// Package client talks to the punch server: the time endpoint, punch
// submission and punch listing.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/PontoProject/ponto-core/pkg/api/models"
	"github.com/PontoProject/ponto-core/pkg/config"
	"github.com/rs/zerolog/log"
)

const (
	timeEndpointTimeout = 8 * time.Second

	pathTime    = "/time"
	pathPunches = "/marcacoes"
)

// DateObserver receives the Date header of every server response, so any
// round trip doubles as an opportunistic clock sample.
type DateObserver interface {
	ObserveServerDate(sentAt time.Time, header string)
}

// defaultTransport provides connection pooling and reasonable timeouts.
var defaultTransport = &http.Transport{
	DialContext: (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
	ResponseHeaderTimeout: 30 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   10,
	IdleConnTimeout:       90 * time.Second,
}

// Client is an HTTP client for the punch server.
type Client struct {
	httpClient *http.Client
	cfg        *config.Instance
	observer   atomic.Pointer[DateObserver]
}

// NewClient creates a client for the server configured in cfg.
func NewClient(cfg *config.Instance) *Client {
	return &Client{
		httpClient: &http.Client{Transport: defaultTransport},
		cfg:        cfg,
	}
}

// SetDateObserver registers the observer fed with response Date headers.
// Called once during startup wiring.
func (c *Client) SetDateObserver(o DateObserver) {
	c.observer.Store(&o)
}

func (c *Client) baseURL() string {
	return strings.TrimRight(c.cfg.BaseURL(), "/")
}

// do executes a request, hands the response Date header to the observer and
// enforces a non-error status.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	sentAt := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", req.URL.Path, err)
	}

	if o := c.observer.Load(); o != nil {
		(*o).ObserveServerDate(sentAt, resp.Header.Get("Date"))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		closeBody(resp.Body)
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, req.URL.Path)
	}

	return resp, nil
}

// ServerTime fetches the server's authoritative time in epoch milliseconds.
// The cache-busting query parameter and no-cache headers keep intermediate
// caches from serving a stale value. Implements clocksync.TimeSource.
func (c *Client) ServerTime(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, timeEndpointTimeout)
	defer cancel()

	url := c.baseURL() + pathTime + "?t=" + strconv.FormatInt(time.Now().UnixMilli(), 10)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return 0, fmt.Errorf("error creating request: %w", err)
	}
	setNoCacheHeaders(req)

	resp, err := c.do(req)
	if err != nil {
		return 0, err
	}
	defer closeBody(resp.Body)

	var tr models.TimeResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return 0, fmt.Errorf("failed to decode time response: %w", err)
	}

	return tr.ServerEpochMS, nil
}

// SubmitPunch posts a punch record and returns the server's echoed copy with
// the authoritative id and timestamp filled in.
func (c *Client) SubmitPunch(ctx context.Context, rec *models.PunchRecord) (models.PunchRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.SubmitTimeout())
	defer cancel()

	body, err := json.Marshal(rec)
	if err != nil {
		return models.PunchRecord{}, fmt.Errorf("failed to marshal punch record: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, c.baseURL()+pathPunches, bytes.NewReader(body))
	if err != nil {
		return models.PunchRecord{}, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(req)
	if err != nil {
		return models.PunchRecord{}, err
	}
	defer closeBody(resp.Body)

	var stored models.PunchRecord
	if err := json.NewDecoder(resp.Body).Decode(&stored); err != nil {
		return models.PunchRecord{}, fmt.Errorf("failed to decode stored punch: %w", err)
	}

	return stored, nil
}

// ListPunches fetches all punch records. The request runs with a short
// timeout and is retried once on failure; filtering to the current user and
// day is the caller's job.
func (c *Client) ListPunches(ctx context.Context) ([]models.PunchRecord, error) {
	recs, err := c.listPunchesOnce(ctx)
	if err == nil {
		return recs, nil
	}
	log.Warn().Err(err).Msg("punch listing failed, retrying once")

	recs, err = c.listPunchesOnce(ctx)
	if err != nil {
		return nil, err
	}
	return recs, nil
}

func (c *Client) listPunchesOnce(ctx context.Context) ([]models.PunchRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ListTimeout())
	defer cancel()

	req, err := http.NewRequestWithContext(
		ctx, http.MethodGet, c.baseURL()+pathPunches, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	setNoCacheHeaders(req)

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer closeBody(resp.Body)

	var recs []models.PunchRecord
	if err := json.NewDecoder(resp.Body).Decode(&recs); err != nil {
		return nil, fmt.Errorf("failed to decode punch list: %w", err)
	}

	return recs, nil
}

func setNoCacheHeaders(req *http.Request) {
	req.Header.Set("Cache-Control", "no-cache, no-store")
	req.Header.Set("Pragma", "no-cache")
}

func closeBody(body io.ReadCloser) {
	if err := body.Close(); err != nil {
		log.Warn().Err(err).Msg("error closing response body")
	}
}
