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

package broker

import (
	"context"
	"testing"
	"time"

	"github.com/PontoProject/ponto-core/pkg/api/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeAssignsIncrementingIDs(t *testing.T) {
	t.Parallel()

	b := NewBroker(context.Background(), make(chan models.Notification))

	ch1, id1 := b.Subscribe(10)
	ch2, id2 := b.Subscribe(10)

	assert.NotNil(t, ch1)
	assert.NotNil(t, ch2)
	assert.Equal(t, 0, id1)
	assert.Equal(t, 1, id2)
}

func TestBroadcastReachesAllSubscribers(t *testing.T) {
	t.Parallel()

	source := make(chan models.Notification)
	b := NewBroker(context.Background(), source)

	ch1, _ := b.Subscribe(10)
	ch2, _ := b.Subscribe(10)

	b.Start()
	source <- models.Notification{Method: models.NotificationClockSynced}

	for _, ch := range []<-chan models.Notification{ch1, ch2} {
		select {
		case n := <-ch:
			assert.Equal(t, models.NotificationClockSynced, n.Method)
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive broadcast")
		}
	}

	close(source)
}

func TestFullSubscriberDoesNotBlockOthers(t *testing.T) {
	t.Parallel()

	source := make(chan models.Notification)
	b := NewBroker(context.Background(), source)

	// Zero-buffer subscriber with no reader: every send to it is dropped.
	_, _ = b.Subscribe(0)
	healthy, _ := b.Subscribe(10)

	b.Start()
	for i := 0; i < 3; i++ {
		source <- models.Notification{Method: models.NotificationPunchQueued}
	}

	received := 0
	timeout := time.After(time.Second)
	for received < 3 {
		select {
		case <-healthy:
			received++
		case <-timeout:
			t.Fatalf("healthy subscriber starved, got %d of 3", received)
		}
	}

	close(source)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()

	b := NewBroker(context.Background(), make(chan models.Notification))

	ch, id := b.Subscribe(10)
	b.Unsubscribe(id)

	_, open := <-ch
	assert.False(t, open)

	// idempotent
	b.Unsubscribe(id)
}

func TestContextCancelClosesSubscribers(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	source := make(chan models.Notification)
	b := NewBroker(ctx, source)

	ch, _ := b.Subscribe(10)
	b.Start()

	cancel()

	select {
	case _, open := <-ch:
		require.False(t, open, "subscriber channel should be closed")
	case <-time.After(time.Second):
		t.Fatal("subscriber channel not closed after context cancel")
	}
}
