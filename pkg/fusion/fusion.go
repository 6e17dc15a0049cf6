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

// Package fusion enriches reachability-tested device records with the
// two external health signals: the vendor diagnostics API and the
// telemetry store's 24h recency check. A collaborator failure is
// recorded on the device and leaves its facts unknown; it never stops
// the rest of the batch.
package fusion

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/ornatel/fieldscan/pkg/digil"
	"github.com/ornatel/fieldscan/pkg/logger"
	"github.com/ornatel/fieldscan/pkg/metricstore"
	"github.com/ornatel/fieldscan/pkg/models"
)

const (
	maxAPIErrorLen   = 100
	maxStoreErrorLen = 150
)

// DiagnosticsClient fetches the vendor health snapshot for a device.
// *digil.Client satisfies it.
type DiagnosticsClient interface {
	Diagnostics(ctx context.Context, deviceID string) (*digil.Snapshot, error)
}

// MetricStore answers the 24h telemetry recency question.
// *metricstore.Store satisfies it.
type MetricStore interface {
	RecentData(ctx context.Context, deviceID string) (metricstore.CheckResult, error)
}

// ProgressFunc reports per-device fusion progress.
type ProgressFunc func(index, total int, dev *models.DeviceRecord)

// Fuser applies both collaborators to records. Either collaborator may
// be nil, in which case its facts are simply left unknown.
type Fuser struct {
	api    DiagnosticsClient
	store  MetricStore
	logger zerolog.Logger
}

func New(api DiagnosticsClient, store MetricStore, log logger.Logger) *Fuser {
	return &Fuser{
		api:    api,
		store:  store,
		logger: log.WithComponent("fusion"),
	}
}

// Enrich fills the health and persistence facts of one record.
func (f *Fuser) Enrich(ctx context.Context, dev *models.DeviceRecord) {
	f.applySnapshot(ctx, dev)
	f.applyRecency(ctx, dev)
}

// EnrichAll enriches every record in order. Collaborator failures are
// per-device; the only way to stop early is cancelling ctx.
func (f *Fuser) EnrichAll(ctx context.Context, devices []*models.DeviceRecord, progress ProgressFunc) error {
	for i, dev := range devices {
		if err := ctx.Err(); err != nil {
			return err
		}

		if progress != nil {
			progress(i, len(devices), dev)
		}

		f.Enrich(ctx, dev)
	}

	return nil
}

func (f *Fuser) applySnapshot(ctx context.Context, dev *models.DeviceRecord) {
	if f.api == nil {
		return
	}

	snap, err := f.api.Diagnostics(ctx, dev.DeviceID)
	if err != nil {
		dev.APIError = truncate(err.Error(), maxAPIErrorLen)

		f.logger.Warn().
			Err(err).
			Str("device_id", dev.DeviceID).
			Msg("Diagnostics fetch failed")

		return
	}

	dev.LinkConnected = snap.LinkConnected
	dev.BatteryOK = snap.BatteryOK
	dev.DoorOpen = snap.DoorOpen
	dev.ChargePercent = snap.ChargePercent
	dev.HealthPercent = snap.HealthPercent
	dev.SignalDBm = snap.SignalDBm
	dev.Channel = snap.Channel
	dev.APITimestamp = snap.Timestamp
}

func (f *Fuser) applyRecency(ctx context.Context, dev *models.DeviceRecord) {
	if f.store == nil {
		return
	}

	result, err := f.store.RecentData(ctx, dev.DeviceID)
	if err != nil {
		dev.StoreError = truncate(err.Error(), maxStoreErrorLen)

		f.logger.Warn().
			Err(err).
			Str("device_id", dev.DeviceID).
			Msg("Telemetry recency check failed")

		return
	}

	dev.StoreChecked = true
	dev.HasRecentData = models.TriFromBool(result.HasData)
	dev.LastSeen = result.LastSeen
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}

	return s[:n]
}
