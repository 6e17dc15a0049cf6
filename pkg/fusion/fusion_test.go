/*
 * Copyright 2026 Ornatel S.r.l.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package fusion

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ornatel/fieldscan/pkg/digil"
	"github.com/ornatel/fieldscan/pkg/logger"
	"github.com/ornatel/fieldscan/pkg/metricstore"
	"github.com/ornatel/fieldscan/pkg/models"
)

type fakeAPI struct {
	snap *digil.Snapshot
	err  error
}

func (f *fakeAPI) Diagnostics(context.Context, string) (*digil.Snapshot, error) {
	return f.snap, f.err
}

type fakeStore struct {
	result metricstore.CheckResult
	err    error
}

func (f *fakeStore) RecentData(context.Context, string) (metricstore.CheckResult, error) {
	return f.result, f.err
}

func newRecord() *models.DeviceRecord {
	return models.NewDeviceRecord("1:1:2:15:22:DIGIL_MRN_0051", "10.183.224.10", "L1", "S1", "SIRTI")
}

func TestEnrichMapsSnapshotAndRecency(t *testing.T) {
	charge := 87.5
	lastSeen := time.Date(2026, 3, 2, 8, 12, 0, 0, time.UTC)

	api := &fakeAPI{snap: &digil.Snapshot{
		LinkConnected: models.TriTrue,
		BatteryOK:     models.TriTrue,
		DoorOpen:      models.TriFalse,
		ChargePercent: &charge,
		Channel:       "LTE",
		Timestamp:     "2026-03-02 08:10:00",
	}}
	store := &fakeStore{result: metricstore.CheckResult{HasData: true, LastSeen: &lastSeen}}

	dev := newRecord()
	New(api, store, logger.NewTestLogger()).Enrich(context.Background(), dev)

	assert.True(t, dev.LinkConnected.IsTrue())
	assert.True(t, dev.BatteryOK.IsTrue())
	assert.True(t, dev.DoorOpen.IsFalse())
	require.NotNil(t, dev.ChargePercent)
	assert.InDelta(t, 87.5, *dev.ChargePercent, 0.001)
	assert.Equal(t, "LTE", dev.Channel)
	assert.Equal(t, "2026-03-02 08:10:00", dev.APITimestamp)

	assert.True(t, dev.StoreChecked)
	assert.True(t, dev.HasRecentData.IsTrue())
	require.NotNil(t, dev.LastSeen)
	assert.Equal(t, lastSeen, *dev.LastSeen)
}

func TestAPIErrorLeavesFactsUnknown(t *testing.T) {
	api := &fakeAPI{err: errors.New("HTTP 502")}
	store := &fakeStore{result: metricstore.CheckResult{HasData: false}}

	dev := newRecord()
	New(api, store, logger.NewTestLogger()).Enrich(context.Background(), dev)

	assert.Equal(t, "HTTP 502", dev.APIError)
	assert.Equal(t, models.TriUnknown, dev.BatteryOK)
	assert.Equal(t, models.TriUnknown, dev.DoorOpen)
	assert.Equal(t, models.TriUnknown, dev.LinkConnected)

	// The store side still ran.
	assert.True(t, dev.StoreChecked)
	assert.True(t, dev.HasRecentData.IsFalse())
}

func TestStoreErrorLeavesRecencyUnknown(t *testing.T) {
	api := &fakeAPI{snap: &digil.Snapshot{LinkConnected: models.TriTrue}}
	store := &fakeStore{err: errors.New("server selection timeout: " + strings.Repeat("x", 200))}

	dev := newRecord()
	New(api, store, logger.NewTestLogger()).Enrich(context.Background(), dev)

	assert.False(t, dev.StoreChecked)
	assert.Equal(t, models.TriUnknown, dev.HasRecentData)
	assert.Len(t, dev.StoreError, 150, "store errors are truncated")
}

func TestNilCollaboratorsAreSkipped(t *testing.T) {
	dev := newRecord()
	New(nil, nil, logger.NewTestLogger()).Enrich(context.Background(), dev)

	assert.Empty(t, dev.APIError)
	assert.Empty(t, dev.StoreError)
	assert.Equal(t, models.TriUnknown, dev.HasRecentData)
	assert.False(t, dev.StoreChecked)
}

func TestEnrichAllStopsOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	api := &fakeAPI{snap: &digil.Snapshot{}}
	store := &fakeStore{}

	devices := []*models.DeviceRecord{newRecord(), newRecord(), newRecord()}

	err := New(api, store, logger.NewTestLogger()).EnrichAll(ctx, devices, func(i, _ int, _ *models.DeviceRecord) {
		calls++

		if i == 1 {
			cancel()
		}
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, calls, "the third device is never started")
}
