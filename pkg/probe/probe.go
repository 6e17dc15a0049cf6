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

// Package probe implements the per-device reachability check: a ping phase
// with a long, role-dependent retry budget (the device may be asleep),
// then a short management-port phase once the device is known awake. Both
// phases issue shell commands on the bridge host; the device itself is
// never logged into.
package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/ornatel/fieldscan/pkg/logger"
	"github.com/ornatel/fieldscan/pkg/models"
)

// CommandRunner executes one command on the bridge host. Satisfied by
// *relay.Connection.
type CommandRunner interface {
	RunCommand(ctx context.Context, command string, timeout time.Duration) (stdout, stderr string, err error)
}

// ProgressFunc receives a human-readable phase update before each attempt.
// It must not block: it runs on the probing goroutine.
type ProgressFunc func(dev *models.DeviceRecord, message string)

// Config carries the retry policy. Masters wake on a fast duty cycle and
// get a short window; slaves may sleep for a long stretch, so their ping
// budget is several times longer. The port phase only absorbs transient
// flakiness, the device is already awake by then.
type Config struct {
	MasterPingBudget time.Duration
	SlavePingBudget  time.Duration
	PingInterval     time.Duration
	PortAttempts     int
	PortInterval     time.Duration
	CommandTimeout   time.Duration
	Port             int
}

func DefaultConfig() Config {
	return Config{
		MasterPingBudget: 5 * time.Minute,
		SlavePingBudget:  20 * time.Minute,
		PingInterval:     10 * time.Second,
		PortAttempts:     5,
		PortInterval:     2 * time.Second,
		CommandTimeout:   10 * time.Second,
		Port:             22,
	}
}

// Prober runs the two-phase check for single devices.
type Prober struct {
	runner CommandRunner
	cfg    Config
	logger logger.Logger

	// Injectable for deterministic tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func New(runner CommandRunner, cfg Config, log logger.Logger) *Prober {
	if cfg.PortAttempts == 0 {
		cfg = DefaultConfig()
	}

	return &Prober{
		runner: runner,
		cfg:    cfg,
		logger: log,
		now:    time.Now,
		sleep:  sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Check runs the full two-phase probe, mutating dev in place. Role and
// vendor are derived first when the roster did not provide them. Returns
// an error only on context cancellation; probe failures land in the
// record's status fields.
func (p *Prober) Check(ctx context.Context, dev *models.DeviceRecord, progress ProgressFunc) error {
	if progress == nil {
		progress = func(*models.DeviceRecord, string) {}
	}

	dev.TestedAt = p.now().Format(models.TimestampLayout)

	if dev.Role == "" || dev.Role == models.RoleUnknown {
		dev.Role = models.DetectRole(dev.DeviceID)
	}

	if dev.Vendor == "" || dev.Vendor == models.VendorUnknown {
		dev.Vendor = models.DetectVendor(dev.DeviceID, dev.Supplier)
	}

	budget := p.pingBudget(dev.Role)
	progress(dev, fmt.Sprintf("ping started (max %d min for %s)", int(budget.Minutes()), dev.Role))

	status, rtt, note, err := p.pingWithRetry(ctx, dev, budget, progress)
	if err != nil {
		return err
	}

	dev.PingStatus = status
	dev.PingTimeMs = rtt

	if status != models.StatusPingOK {
		// Port phase is skipped: the device never answered, so its port
		// status stays pending rather than pretending it was measured.
		dev.ErrorNote = note
		progress(dev, "ping failed: "+note)

		return nil
	}

	progress(dev, fmt.Sprintf("ping %s, checking management port (%d attempts)", rttLabel(rtt), p.cfg.PortAttempts))

	portStatus, portNote, err := p.portWithRetry(ctx, dev, progress)
	if err != nil {
		return err
	}

	dev.PortStatus = portStatus
	if portNote != "" {
		dev.ErrorNote = portNote
	}

	if portStatus == models.StatusPortOpen {
		progress(dev, "completed: port open")
	} else {
		progress(dev, "completed: "+portNote)
	}

	return nil
}

func (p *Prober) pingBudget(role models.Role) time.Duration {
	if role == models.RoleMaster {
		return p.cfg.MasterPingBudget
	}

	return p.cfg.SlavePingBudget
}

// pingWithRetry polls the device until it answers or the budget runs out.
func (p *Prober) pingWithRetry(
	ctx context.Context,
	dev *models.DeviceRecord,
	budget time.Duration,
	progress ProgressFunc,
) (models.ProbeStatus, *float64, string, error) {
	start := p.now()
	attempt := 0
	lastNote := ""

	for {
		if err := ctx.Err(); err != nil {
			return models.StatusPingFailed, nil, lastNote, err
		}

		attempt++
		elapsed := p.now().Sub(start)
		remaining := budget - elapsed

		progress(dev, fmt.Sprintf("ping attempt %d (%s, %s remaining)", attempt, dev.Role, remainLabel(remaining)))

		ok, rtt, note := p.pingOnce(ctx, dev.IPAddress)
		if ok {
			return models.StatusPingOK, rtt, "", nil
		}

		lastNote = note

		if elapsed >= budget {
			failNote := fmt.Sprintf("ping failed after %d attempts (%d min). %s",
				attempt, int(budget.Minutes()), lastNote)

			return models.StatusPingFailed, nil, failNote, nil
		}

		if err := p.sleep(ctx, p.cfg.PingInterval); err != nil {
			return models.StatusPingFailed, nil, lastNote, err
		}
	}
}

// pingOnce issues one small fixed-count ping from the bridge host.
func (p *Prober) pingOnce(ctx context.Context, ip string) (ok bool, rtt *float64, note string) {
	cmd := fmt.Sprintf("ping -c 2 -W 2 %s", ip)

	stdout, stderr, err := p.runner.RunCommand(ctx, cmd, p.cfg.CommandTimeout)
	if err != nil {
		// A failed command is one consumed attempt, not a probe abort:
		// the retry budget owns recovery.
		if stderr != "" {
			return false, nil, stderr
		}

		return false, nil, err.Error()
	}

	return classifyPingOutput(stdout)
}

// portWithRetry checks the management port with a small fixed attempt
// budget.
func (p *Prober) portWithRetry(
	ctx context.Context,
	dev *models.DeviceRecord,
	progress ProgressFunc,
) (models.ProbeStatus, string, error) {
	lastNote := ""

	for attempt := 1; attempt <= p.cfg.PortAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return models.StatusPortClosed, lastNote, err
		}

		progress(dev, fmt.Sprintf("port check attempt %d/%d", attempt, p.cfg.PortAttempts))

		status, note := p.portOnce(ctx, dev.IPAddress)
		if status == models.StatusPortOpen {
			return status, "", nil
		}

		lastNote = note

		if attempt < p.cfg.PortAttempts {
			if err := p.sleep(ctx, p.cfg.PortInterval); err != nil {
				return models.StatusPortClosed, lastNote, err
			}
		}
	}

	failNote := fmt.Sprintf("port check failed after %d attempts. %s", p.cfg.PortAttempts, lastNote)

	return models.StatusPortClosed, failNote, nil
}

// portOnce runs a zero-I/O connect probe from the bridge host. The bash
// /dev/tcp form needs no tooling on the bridge; nc is the fallback when
// the command itself fails to run, not when the port is merely closed.
func (p *Prober) portOnce(ctx context.Context, ip string) (models.ProbeStatus, string) {
	cmd := fmt.Sprintf(
		"timeout 5 bash -c 'echo > /dev/tcp/%s/%d' 2>&1 && echo 'PORT_OPEN' || echo 'PORT_CLOSED'",
		ip, p.cfg.Port)

	stdout, _, err := p.runner.RunCommand(ctx, cmd, p.cfg.CommandTimeout)
	if err != nil {
		alt := fmt.Sprintf("nc -z -w 5 %s %d && echo 'PORT_OPEN' || echo 'PORT_CLOSED'", ip, p.cfg.Port)

		var stderr string

		stdout, stderr, err = p.runner.RunCommand(ctx, alt, p.cfg.CommandTimeout)
		if err != nil {
			return models.StatusError, "port check error: " + firstNonEmpty(stderr, err.Error())
		}
	}

	return classifyPortOutput(stdout)
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}

	return b
}

func rttLabel(rtt *float64) string {
	if rtt == nil {
		return "OK"
	}

	return fmt.Sprintf("%.1fms", *rtt)
}

func remainLabel(d time.Duration) string {
	if d < 0 {
		d = 0
	}

	total := int(d.Seconds())
	if total >= 60 {
		return fmt.Sprintf("%dm %ds", total/60, total%60)
	}

	return fmt.Sprintf("%ds", total)
}
