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

// Package relay owns the SSH session to the bridge host through which every
// device-directed command is issued. The checking process has no direct
// route to the field devices; everything goes through this one machine.
package relay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/ornatel/fieldscan/pkg/logger"
)

const defaultSSHPort = 22

// Config carries the bridge host credentials. Password auth only, matching
// how the bridge accounts are provisioned.
type Config struct {
	Host     string
	User     string
	Password string
	Port     int
	Timeout  time.Duration
}

// Connection is one authenticated SSH session to the bridge host. All
// command execution is serialized: the mutex guards the whole
// check-connect-exec-read sequence so concurrent probes never interleave
// output belonging to different commands.
type Connection struct {
	cfg    Config
	logger logger.Logger

	mu     sync.Mutex
	client *ssh.Client
}

func NewConnection(cfg Config, log logger.Logger) (*Connection, error) {
	if cfg.Host == "" || cfg.User == "" || cfg.Password == "" {
		return nil, ErrMissingConfig
	}

	if cfg.Port == 0 {
		cfg.Port = defaultSSHPort
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &Connection{cfg: cfg, logger: log}, nil
}

// Host returns the configured bridge host, for status reporting.
func (c *Connection) Host() string { return c.cfg.Host }

// Connect establishes the SSH session if it is not already alive.
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.connectLocked(ctx)
}

func (c *Connection) connectLocked(ctx context.Context) error {
	if c.aliveLocked() {
		return nil
	}

	if c.client != nil {
		_ = c.client.Close()
		c.client = nil
	}

	addr := net.JoinHostPort(c.cfg.Host, fmt.Sprintf("%d", c.cfg.Port))

	dialer := &net.Dialer{Timeout: c.cfg.Timeout}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return classifyConnectErr(c.cfg, err)
	}

	sshCfg := &ssh.ClientConfig{
		User:            c.cfg.User,
		Auth:            []ssh.AuthMethod{ssh.Password(c.cfg.Password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // bridge hosts have no distributed known_hosts
		Timeout:         c.cfg.Timeout,
	}

	// Bound the handshake too, not just the dial.
	_ = conn.SetDeadline(time.Now().Add(c.cfg.Timeout))

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, sshCfg)
	if err != nil {
		_ = conn.Close()
		return classifyConnectErr(c.cfg, err)
	}

	_ = conn.SetDeadline(time.Time{})

	c.client = ssh.NewClient(sshConn, chans, reqs)

	c.logger.Info().Str("host", c.cfg.Host).Msg("connected to relay host")

	return nil
}

// aliveLocked actively verifies the transport, not just that a handle
// exists: a dropped VPN leaves the client non-nil but dead.
func (c *Connection) aliveLocked() bool {
	if c.client == nil {
		return false
	}

	_, _, err := c.client.SendRequest("keepalive@fieldscan", true, nil)

	return err == nil
}

// RunCommand executes one shell command on the bridge host and returns its
// stdout and stderr. Lazily reconnects first when the session has dropped.
// A non-zero exit status is not an error: probe commands routinely exit
// non-zero and their output is what matters.
func (c *Connection) RunCommand(ctx context.Context, command string, timeout time.Duration) (stdout, stderr string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.connectLocked(ctx); err != nil {
		return "", "", err
	}

	session, err := c.client.NewSession()
	if err != nil {
		// The transport is likely gone; drop the client so the next call
		// reconnects.
		_ = c.client.Close()
		c.client = nil

		return "", "", fmt.Errorf("%w: %w", ErrExec, err)
	}
	defer func() { _ = session.Close() }()

	var outBuf, errBuf bytes.Buffer

	session.Stdout = &outBuf
	session.Stderr = &errBuf

	done := make(chan error, 1)

	go func() { done <- session.Run(command) }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err = <-done:
	case <-timer.C:
		return outBuf.String(), errBuf.String(), fmt.Errorf("%w after %s", ErrCommandTimeout, timeout)
	case <-ctx.Done():
		return outBuf.String(), errBuf.String(), ctx.Err()
	}

	if err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			return outBuf.String(), errBuf.String(), nil
		}

		return outBuf.String(), errBuf.String(), fmt.Errorf("%w: %w", ErrExec, err)
	}

	return outBuf.String(), errBuf.String(), nil
}

// Close tears the session down. Safe to call when never connected.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return nil
	}

	err := c.client.Close()
	c.client = nil

	c.logger.Debug().Str("host", c.cfg.Host).Msg("relay connection closed")

	return err
}

// classifyConnectErr maps transport failures to the taxonomy the scanner
// surfaces to the operator. Timeouts and resolution failures name the VPN,
// the usual culprit when the bridge host vanishes.
func classifyConnectErr(cfg Config, err error) error {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return fmt.Errorf("%w: cannot resolve %s, check the VPN", ErrNameResolution, cfg.Host)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %s, check the VPN and network access", ErrHostTimeout, cfg.Host)
	}

	if strings.Contains(err.Error(), "unable to authenticate") ||
		strings.Contains(err.Error(), "permission denied") {
		return fmt.Errorf("%w for %s@%s", ErrAuthFailed, cfg.User, cfg.Host)
	}

	return fmt.Errorf("%w: %w", ErrConnect, err)
}
