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

// Package scanner runs reachability probes for a batch of devices over a
// shared bridge connection, fanning the work out to a bounded pool and
// reporting results as a stream of typed events.
package scanner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ornatel/fieldscan/pkg/logger"
	"github.com/ornatel/fieldscan/pkg/models"
	"github.com/ornatel/fieldscan/pkg/probe"
)

const (
	defaultWorkers = 10

	workChannelMultiplier = 2
)

// Relay is the bridge connection a batch runs over. *relay.Connection
// satisfies it.
type Relay interface {
	Connect(ctx context.Context) error
	RunCommand(ctx context.Context, command string, timeout time.Duration) (stdout, stderr string, err error)
	Close() error
}

// Config tunes a batch run.
type Config struct {
	// Workers is the probe pool size. Zero means defaultWorkers.
	Workers int
	// Probe configures the per-device check. The zero value selects the
	// probe package defaults.
	Probe probe.Config
}

// BatchScanner probes a roster of devices through one bridge connection.
type BatchScanner struct {
	relay   Relay
	prober  *probe.Prober
	workers int
	logger  zerolog.Logger
}

func New(rel Relay, cfg Config, log logger.Logger) *BatchScanner {
	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}

	return &BatchScanner{
		relay:   rel,
		prober:  probe.New(rel, cfg.Probe, log),
		workers: workers,
		logger:  log.WithComponent("scanner"),
	}
}

// Run starts the batch and returns its event stream. The channel closes
// after the final batch_done event. Cancelling ctx stops the run early:
// records finished before the cancellation are still delivered, nothing
// is reported for the rest. The relay is closed when the run ends.
func (s *BatchScanner) Run(ctx context.Context, devices []*models.DeviceRecord) <-chan Event {
	// device_done and the batch bookkeeping events are bounded, so this
	// buffer lets them be sent without coordinating with the consumer.
	// Progress events are unbounded and go through emit instead.
	events := make(chan Event, len(devices)+8)

	go s.run(ctx, devices, events)

	return events
}

func (s *BatchScanner) run(ctx context.Context, devices []*models.DeviceRecord, events chan Event) {
	defer close(events)

	runID := uuid.New().String()
	total := len(devices)

	s.logger.Info().
		Str("run_id", runID).
		Int("devices", total).
		Int("workers", s.workers).
		Msg("Starting batch scan")

	events <- Event{Type: EventRelayConnecting, RunID: runID, Total: total, Message: "connecting to bridge host"}

	if err := s.relay.Connect(ctx); err != nil {
		s.logger.Error().Err(err).Str("run_id", runID).Msg("Bridge connection failed")
		s.markAllUnreachable(devices, err)

		for i, dev := range devices {
			events <- Event{Type: EventDeviceDone, RunID: runID, Device: dev, Completed: i + 1, Total: total}
		}

		events <- Event{Type: EventRelayFailed, RunID: runID, Total: total, Err: err, Message: err.Error()}
		events <- Event{Type: EventBatchDone, RunID: runID, Completed: total, Total: total, Err: err}

		return
	}

	defer func() {
		if err := s.relay.Close(); err != nil {
			s.logger.Warn().Err(err).Str("run_id", runID).Msg("Failed to close bridge connection")
		}
	}()

	events <- Event{Type: EventRelayReady, RunID: runID, Total: total, Message: "bridge connection established"}

	workCh := make(chan *models.DeviceRecord, s.workers*workChannelMultiplier)
	doneCh := make(chan *models.DeviceRecord, total)

	var wg sync.WaitGroup

	for i := 0; i < s.workers; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			s.worker(ctx, runID, workCh, doneCh, events)
		}()
	}

	go func() {
		defer close(workCh)

		for _, dev := range devices {
			select {
			case <-ctx.Done():
				return
			case workCh <- dev:
			}
		}
	}()

	go func() {
		wg.Wait()

		close(doneCh)
	}()

	completed := 0

	for dev := range doneCh {
		completed++
		events <- Event{Type: EventDeviceDone, RunID: runID, Device: dev, Completed: completed, Total: total}
	}

	s.logger.Info().
		Str("run_id", runID).
		Int("completed", completed).
		Int("devices", total).
		Msg("Batch scan finished")

	events <- Event{Type: EventBatchDone, RunID: runID, Completed: completed, Total: total, Err: ctx.Err()}
}

func (s *BatchScanner) worker(
	ctx context.Context,
	runID string,
	workCh <-chan *models.DeviceRecord,
	doneCh chan<- *models.DeviceRecord,
	events chan<- Event,
) {
	for dev := range workCh {
		if ctx.Err() != nil {
			return
		}

		if err := s.probeOne(ctx, runID, dev, events); err != nil {
			// Cancelled mid-probe: the record is half-filled, so it is
			// dropped rather than reported.
			return
		}

		select {
		case <-ctx.Done():
			return
		case doneCh <- dev:
		}
	}
}

// probeOne runs a single device check, converting a panic into an error
// record so one bad device cannot take down the pool.
func (s *BatchScanner) probeOne(ctx context.Context, runID string, dev *models.DeviceRecord, events chan<- Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("run_id", runID).
				Str("device_id", dev.DeviceID).
				Interface("panic", r).
				Msg("Probe panicked")

			if dev.PingStatus == models.StatusPending {
				dev.PingStatus = models.StatusError
			}

			dev.ErrorNote = fmt.Sprintf("probe panic: %v", r)
			err = nil
		}
	}()

	progress := func(d *models.DeviceRecord, msg string) {
		s.emit(ctx, events, Event{Type: EventProgress, RunID: runID, Device: d, Message: msg})
	}

	return s.prober.Check(ctx, dev, progress)
}

// emit sends a progress event, giving up on cancellation so a stalled
// consumer cannot wedge the pool during shutdown.
func (*BatchScanner) emit(ctx context.Context, events chan<- Event, ev Event) {
	select {
	case <-ctx.Done():
	case events <- ev:
	}
}

func (s *BatchScanner) markAllUnreachable(devices []*models.DeviceRecord, cause error) {
	now := time.Now().Format(models.TimestampLayout)

	for _, dev := range devices {
		dev.TestedAt = now
		dev.PingStatus = models.StatusRelayUnreachable
		dev.PortStatus = models.StatusRelayUnreachable
		dev.ErrorNote = cause.Error()

		if dev.Role == "" || dev.Role == models.RoleUnknown {
			dev.Role = models.DetectRole(dev.DeviceID)
		}

		if dev.Vendor == "" || dev.Vendor == models.VendorUnknown {
			dev.Vendor = models.DetectVendor(dev.DeviceID, dev.Supplier)
		}
	}
}
