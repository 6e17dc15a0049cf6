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

import "errors"

var (
	// Connection-level failures. Fatal for a whole batch; the scanner marks
	// every device instead of probing.
	ErrMissingConfig  = errors.New("relay host, user and password must be configured")
	ErrHostTimeout    = errors.New("relay connection timed out")
	ErrNameResolution = errors.New("relay host name resolution failed")
	ErrAuthFailed     = errors.New("relay authentication failed")
	ErrConnect        = errors.New("relay connection failed")

	// Command-level failures. Retry policy belongs to the probe layer.
	ErrCommandTimeout = errors.New("relay command timed out")
	ErrExec           = errors.New("relay command execution failed")

	errTunnelClosed = errors.New("tunnel closed")
)
