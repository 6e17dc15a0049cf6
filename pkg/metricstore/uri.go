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

package metricstore

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var ErrMissingCredentials = errors.New("metricstore: connection string carries no credentials")

var uriCredentials = regexp.MustCompile(`^mongodb://([^:]+):([^@]+)@`)

const defaultURIOptions = "authSource=ibm_iot"

// LocalURI rewrites a replica-set connection string so the driver dials
// the tunnel's local endpoint instead of the store hosts, keeping the
// original credentials and options. The store is only reachable through
// the bridge, so the host part of the original URI is never dialed
// directly.
func LocalURI(original, tunnelAddr string) (string, error) {
	m := uriCredentials.FindStringSubmatch(original)
	if m == nil {
		return "", ErrMissingCredentials
	}

	options := defaultURIOptions
	if i := strings.Index(original, "?"); i >= 0 && i+1 < len(original) {
		options = original[i+1:]
	}

	return fmt.Sprintf("mongodb://%s:%s@%s/?%s&directConnection=true", m[1], m[2], tunnelAddr, options), nil
}

// FirstHost extracts the first host:port from the connection string, the
// endpoint the tunnel should forward to.
func FirstHost(uri string) (string, error) {
	m := regexp.MustCompile(`@([^/?]+)`).FindStringSubmatch(uri)
	if m == nil {
		return "", ErrMissingCredentials
	}

	host := strings.Split(m[1], ",")[0]
	if !strings.Contains(host, ":") {
		host += ":27017"
	}

	return strings.TrimSpace(host), nil
}
