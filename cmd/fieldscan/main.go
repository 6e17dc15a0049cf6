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

// fieldscan runs one diagnostic pass over a fleet roster: reachability
// probes through the bridge host, health facts from the vendor API and
// the telemetry store, classification, and an Excel report.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ornatel/fieldscan/pkg/classifier"
	"github.com/ornatel/fieldscan/pkg/config"
	"github.com/ornatel/fieldscan/pkg/digil"
	"github.com/ornatel/fieldscan/pkg/fusion"
	"github.com/ornatel/fieldscan/pkg/logger"
	"github.com/ornatel/fieldscan/pkg/metricstore"
	"github.com/ornatel/fieldscan/pkg/models"
	"github.com/ornatel/fieldscan/pkg/relay"
	"github.com/ornatel/fieldscan/pkg/report"
	"github.com/ornatel/fieldscan/pkg/roster"
	"github.com/ornatel/fieldscan/pkg/scanner"
	"github.com/ornatel/fieldscan/pkg/version"
)

var (
	errFailedToLoadConfig = fmt.Errorf("failed to load config")
	errNoDevices          = errors.New("no devices selected")
)

type options struct {
	showVersion     bool
	envFile         string
	rosterPath      string
	testListPath    string
	testListColumn  string
	testListNoHead  bool
	outputPath      string
	vendorFilter    string
	roleFilter      string
	withHistory     bool
	historyDays     int
	historyHours    int
	skipDiagnostics bool
	skipStore       bool
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func parseFlags() *options {
	opts := &options{}

	flag.BoolVar(&opts.showVersion, "version", false, "Print the version and exit")
	flag.StringVar(&opts.envFile, "env", "", "Path to .env file (default ./.env when present)")
	flag.StringVar(&opts.rosterPath, "roster", "", "Path to the fleet roster workbook (required)")
	flag.StringVar(&opts.testListPath, "test-list", "", "Optional workbook restricting the run to listed device ids")
	flag.StringVar(&opts.testListColumn, "test-list-column", "", "Device id column of the test list (default: detected by name)")
	flag.BoolVar(&opts.testListNoHead, "test-list-no-header", false, "Test list has no header row")
	flag.StringVar(&opts.outputPath, "output", "", "Report path (default DIGIL_Diagnostic_<timestamp>.xlsx)")
	flag.StringVar(&opts.vendorFilter, "vendor", "", "Only test devices of this vendor (INDRA, SIRTI, MII)")
	flag.StringVar(&opts.roleFilter, "role", "", "Only test devices of this role (master, slave)")
	flag.BoolVar(&opts.withHistory, "history", false, "Collect telemetry history sheets")
	flag.IntVar(&opts.historyDays, "history-days", 15, "Days of charge history")
	flag.IntVar(&opts.historyHours, "history-hours", 24, "Hours of channel and signal history")
	flag.BoolVar(&opts.skipDiagnostics, "skip-api", false, "Skip the vendor diagnostics API")
	flag.BoolVar(&opts.skipStore, "skip-store", false, "Skip the telemetry store checks")
	flag.Parse()

	return opts
}

func run() error {
	opts := parseFlags()

	if opts.showVersion {
		fmt.Println("fieldscan " + version.GetFullVersion())
		return nil
	}

	if opts.rosterPath == "" {
		flag.Usage()
		return errors.New("missing required -roster flag")
	}

	cfg, err := config.Load(opts.envFile)
	if err != nil {
		return fmt.Errorf("%w: %w", errFailedToLoadConfig, err)
	}

	if err := logger.Init(&cfg.Logging); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	mainLogger := logger.NewLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	devices, err := selectDevices(opts)
	if err != nil {
		return err
	}

	mainLogger.Info().Int("devices", len(devices)).Msg("Roster loaded")

	if err := probeDevices(ctx, cfg, devices, mainLogger); err != nil {
		return err
	}

	// An interrupt mid-batch still produces a report for the records the
	// scanner completed; only the enrichment pass is skipped.
	var history *report.History

	if ctx.Err() == nil {
		history, err = enrichDevices(ctx, cfg, opts, devices, mainLogger)
		if err != nil {
			return err
		}
	} else {
		mainLogger.Warn().Msg("Run interrupted; exporting results collected so far")
	}

	for _, dev := range devices {
		classifier.Apply(dev)
	}

	exporter := report.NewExporter()

	output := opts.outputPath
	if output == "" {
		output = exporter.DefaultFilename()
	}

	if err := exporter.Write(output, devices, history); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}

	mainLogger.Info().Str("path", output).Msg("Report written")

	return nil
}

func selectDevices(opts *options) ([]*models.DeviceRecord, error) {
	devices, err := roster.Load(opts.rosterPath)
	if err != nil {
		return nil, fmt.Errorf("loading roster: %w", err)
	}

	filter := roster.Filter{
		Vendor: models.Vendor(opts.vendorFilter),
		Role:   models.Role(opts.roleFilter),
	}

	if opts.testListPath != "" {
		ids, err := roster.LoadTestList(opts.testListPath, roster.TestListOptions{
			Column:    opts.testListColumn,
			HasHeader: !opts.testListNoHead,
		})
		if err != nil {
			return nil, fmt.Errorf("loading test list: %w", err)
		}

		filter.TestIDs = ids
	}

	devices = filter.Apply(devices)
	if len(devices) == 0 {
		return nil, errNoDevices
	}

	return devices, nil
}

func probeDevices(ctx context.Context, cfg *config.Config, devices []*models.DeviceRecord, mainLogger logger.Logger) error {
	bridge, err := relay.NewConnection(cfg.Bridge, mainLogger)
	if err != nil {
		return fmt.Errorf("bridge configuration: %w", err)
	}

	scan := scanner.New(bridge, scanner.Config{Workers: cfg.Workers, Probe: cfg.Probe}, mainLogger)

	// A failed bridge connection is not fatal: every device is marked
	// unreachable and the run continues to the API and store checks.
	relayFailed := false

	for ev := range scan.Run(ctx, devices) {
		switch ev.Type {
		case scanner.EventRelayConnecting:
			mainLogger.Info().Str("host", bridge.Host()).Msg("Connecting to bridge host")
		case scanner.EventRelayFailed:
			relayFailed = true

			mainLogger.Error().Err(ev.Err).Msg("Bridge connection failed; devices marked unreachable")
		case scanner.EventDeviceDone:
			mainLogger.Info().
				Str("device_id", ev.Device.DeviceID).
				Str("ping", string(ev.Device.PingStatus)).
				Str("port", string(ev.Device.PortStatus)).
				Int("completed", ev.Completed).
				Int("total", ev.Total).
				Msg("Device probed")
		case scanner.EventBatchDone:
			if err := batchOutcome(ev, relayFailed, mainLogger); err != nil {
				return err
			}
		}
	}

	return nil
}

// batchOutcome decides whether a finished batch aborts the run. A
// cancelled batch is not fatal: the scanner delivered every record
// finished before the cancellation, and those still get exported.
func batchOutcome(ev scanner.Event, relayFailed bool, mainLogger logger.Logger) error {
	if ev.Err == nil || relayFailed {
		return nil
	}

	if errors.Is(ev.Err, context.Canceled) {
		mainLogger.Warn().
			Int("completed", ev.Completed).
			Int("total", ev.Total).
			Msg("Probe batch interrupted; keeping completed results")

		return nil
	}

	return fmt.Errorf("probe batch interrupted: %w", ev.Err)
}

func enrichDevices(
	ctx context.Context,
	cfg *config.Config,
	opts *options,
	devices []*models.DeviceRecord,
	mainLogger logger.Logger,
) (*report.History, error) {
	var api fusion.DiagnosticsClient

	if !opts.skipDiagnostics {
		client, err := digil.NewClient(&cfg.API, mainLogger)
		if err != nil {
			return nil, fmt.Errorf("diagnostics API configuration: %w", err)
		}

		api = client
	}

	var (
		store   fusion.MetricStore
		metrics *metricstore.Store
	)

	// Store access rides the same bridge as the probes; when the tunnel
	// cannot come up the run continues and the recency facts stay unknown.
	if !opts.skipStore {
		host, err := metricstore.FirstHost(cfg.Store.URI)
		if err != nil {
			return nil, fmt.Errorf("telemetry store configuration: %w", err)
		}

		tunnel, err := relay.OpenTunnel(ctx, cfg.Bridge, host, mainLogger)
		if err != nil {
			mainLogger.Warn().Err(err).Msg("Store tunnel unavailable; skipping telemetry checks")
		} else {
			defer func() { _ = tunnel.Close() }()

			metrics, err = metricstore.Open(ctx, &cfg.Store, tunnel.Addr(), mainLogger)
			if err != nil {
				mainLogger.Warn().Err(err).Msg("Telemetry store unreachable; skipping telemetry checks")
			} else {
				defer func() { _ = metrics.Close(context.Background()) }()

				store = metrics
			}
		}
	}

	fuser := fusion.New(api, store, mainLogger)

	err := fuser.EnrichAll(ctx, devices, func(i, total int, dev *models.DeviceRecord) {
		mainLogger.Info().
			Str("device_id", dev.DeviceID).
			Int("index", i+1).
			Int("total", total).
			Msg("Collecting health facts")
	})
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("enrichment interrupted: %w", err)
		}

		mainLogger.Warn().Msg("Enrichment interrupted; keeping facts collected so far")
	}

	if !opts.withHistory || metrics == nil {
		return nil, nil
	}

	return collectHistory(ctx, metrics, opts, devices, mainLogger), nil
}

func collectHistory(
	ctx context.Context,
	metrics *metricstore.Store,
	opts *options,
	devices []*models.DeviceRecord,
	mainLogger logger.Logger,
) *report.History {
	history := &report.History{
		SOC:     make(map[string]*metricstore.SOCHistory, len(devices)),
		Channel: make(map[string]*metricstore.ChannelHistory, len(devices)),
		Signal:  make(map[string]*metricstore.SignalHistory, len(devices)),
	}

	for _, dev := range devices {
		if ctx.Err() != nil {
			return history
		}

		if soc, err := metrics.SOCHistory(ctx, dev.DeviceID, opts.historyDays); err == nil {
			history.SOC[dev.DeviceID] = soc
		} else {
			mainLogger.Warn().Err(err).Str("device_id", dev.DeviceID).Msg("Charge history unavailable")
		}

		if ch, err := metrics.ChannelHistory(ctx, dev.DeviceID, opts.historyHours); err == nil {
			history.Channel[dev.DeviceID] = ch
		} else {
			mainLogger.Warn().Err(err).Str("device_id", dev.DeviceID).Msg("Channel history unavailable")
		}

		if sig, err := metrics.SignalHistory(ctx, dev.DeviceID, opts.historyHours); err == nil {
			history.Signal[dev.DeviceID] = sig
		} else {
			mainLogger.Warn().Err(err).Str("device_id", dev.DeviceID).Msg("Signal history unavailable")
		}
	}

	return history
}
