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

// Package digil talks to the vendor diagnostics API: an OAuth2
// client-credentials token endpoint plus a per-device GET that returns
// alarms and measurements, mapped here into tri-state health facts.
package digil

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/ornatel/fieldscan/pkg/logger"
)

const defaultRequestTimeout = 30 * time.Second

// Config carries the API endpoints and OAuth2 credentials.
type Config struct {
	TokenURL     string
	APIURL       string
	ClientID     string
	ClientSecret string
	// Timeout bounds each HTTP request. Zero means 30s.
	Timeout time.Duration
	// InsecureSkipVerify accepts the API's internal certificates.
	InsecureSkipVerify bool
}

// Client fetches per-device diagnostics. Token acquisition and renewal
// are handled by the underlying oauth2 transport; the token is reused
// until it nears expiry.
type Client struct {
	httpClient *http.Client
	apiURL     string
	logger     zerolog.Logger
}

func NewClient(cfg *Config, log logger.Logger) (*Client, error) {
	if cfg.TokenURL == "" || cfg.APIURL == "" || cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, ErrMissingConfig
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultRequestTimeout
	}

	base := &http.Client{Timeout: timeout}
	if cfg.InsecureSkipVerify {
		base.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // internal CA
		}
	}

	creds := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
	}

	// The oauth2 transport picks up the base client, including its TLS
	// settings, for both token and API requests.
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)

	return &Client{
		httpClient: creds.Client(ctx),
		apiURL:     cfg.APIURL,
		logger:     log.WithComponent("digil"),
	}, nil
}

// Diagnostics fetches and maps the health snapshot for one device. The
// device id is given in roster format and translated for the API.
func (c *Client) Diagnostics(ctx context.Context, deviceID string) (*Snapshot, error) {
	apiID := APIDeviceID(deviceID)
	url := fmt.Sprintf("%s/digils/%s", c.apiURL, apiID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, apiID)
	case resp.StatusCode != http.StatusOK:
		bodyBytes, _ := io.ReadAll(resp.Body)

		return nil, fmt.Errorf("%w: %d, response: %s", errUnexpectedStatusCode,
			resp.StatusCode, string(bodyBytes))
	}

	var raw rawDiagnostics

	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding diagnostics for %s: %w", apiID, err)
	}

	snap := parseDiagnostics(&raw)

	c.logger.Debug().
		Str("device_id", deviceID).
		Str("api_id", apiID).
		Str("status", snap.Status).
		Msg("Fetched device diagnostics")

	return snap, nil
}
