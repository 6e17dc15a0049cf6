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

package digil

import "errors"

var (
	// ErrMissingConfig indicates the client was built without the token
	// endpoint, API base URL or OAuth2 credentials.
	ErrMissingConfig = errors.New("digil: token URL, API URL, client id and client secret are required")

	// ErrDeviceNotFound indicates the diagnostics endpoint returned 404
	// for the translated device id.
	ErrDeviceNotFound = errors.New("device not found")

	errUnexpectedStatusCode = errors.New("unexpected status code")
)
