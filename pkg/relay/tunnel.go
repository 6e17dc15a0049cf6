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

package relay

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/ornatel/fieldscan/pkg/logger"
)

// Tunnel forwards a local loopback port through the bridge host to a
// service the checking process cannot reach directly (the event store).
// One tunnel is opened per batch and closed at batch end; it holds its own
// SSH connection so store traffic never contends with probe commands.
type Tunnel struct {
	remoteAddr string
	listener   net.Listener
	client     *ssh.Client
	dialRemote func(network, addr string) (net.Conn, error)
	logger     logger.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// OpenTunnel dials the bridge host and starts forwarding a fresh loopback
// port to remoteAddr. The caller owns the returned handle and must Close it.
func OpenTunnel(ctx context.Context, cfg Config, remoteAddr string, log logger.Logger) (*Tunnel, error) {
	if cfg.Host == "" || cfg.User == "" || cfg.Password == "" {
		return nil, ErrMissingConfig
	}

	if cfg.Port == 0 {
		cfg.Port = defaultSSHPort
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	addr := net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port))

	dialer := &net.Dialer{Timeout: cfg.Timeout}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, classifyConnectErr(cfg, err)
	}

	sshCfg := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            []ssh.AuthMethod{ssh.Password(cfg.Password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // see Connection
		Timeout:         cfg.Timeout,
	}

	_ = conn.SetDeadline(time.Now().Add(cfg.Timeout))

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, sshCfg)
	if err != nil {
		_ = conn.Close()
		return nil, classifyConnectErr(cfg, err)
	}

	_ = conn.SetDeadline(time.Time{})

	client := ssh.NewClient(sshConn, chans, reqs)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}

	t := &Tunnel{
		remoteAddr: remoteAddr,
		listener:   listener,
		client:     client,
		dialRemote: client.Dial,
		logger:     log,
	}

	t.wg.Add(1)
	go t.acceptLoop()

	log.Info().
		Str("local", t.Addr()).
		Str("remote", remoteAddr).
		Msg("store tunnel established")

	return t, nil
}

// Addr returns the loopback address local clients should connect to.
func (t *Tunnel) Addr() string {
	return t.listener.Addr().String()
}

func (t *Tunnel) acceptLoop() {
	defer t.wg.Done()

	for {
		local, err := t.listener.Accept()
		if err != nil {
			return // listener closed
		}

		t.wg.Add(1)
		go t.forward(local)
	}
}

func (t *Tunnel) forward(local net.Conn) {
	defer t.wg.Done()
	defer func() { _ = local.Close() }()

	remote, err := t.dialRemote("tcp", t.remoteAddr)
	if err != nil {
		t.logger.Error().Err(err).Str("remote", t.remoteAddr).Msg("tunnel dial failed")
		return
	}
	defer func() { _ = remote.Close() }()

	done := make(chan struct{}, 2)

	go func() {
		_, _ = io.Copy(remote, local)
		done <- struct{}{}
	}()

	go func() {
		_, _ = io.Copy(local, remote)
		done <- struct{}{}
	}()

	// Either direction closing ends the pair; closing both conns unblocks
	// the other copy.
	<-done
}

// Close stops accepting, tears down the SSH connection and waits for
// in-flight forwards to drain.
func (t *Tunnel) Close() error {
	t.mu.Lock()

	if t.closed {
		t.mu.Unlock()
		return errTunnelClosed
	}

	t.closed = true
	t.mu.Unlock()

	_ = t.listener.Close()

	if t.client != nil {
		_ = t.client.Close()
	}

	t.wg.Wait()

	t.logger.Debug().Str("remote", t.remoteAddr).Msg("store tunnel closed")

	return nil
}
