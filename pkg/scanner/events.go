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

package scanner

import "github.com/ornatel/fieldscan/pkg/models"

// EventType discriminates the events a batch run emits.
type EventType string

const (
	// EventRelayConnecting fires once before the bridge connection attempt.
	EventRelayConnecting EventType = "relay_connecting"
	// EventRelayReady fires once after the bridge connection succeeds.
	EventRelayReady EventType = "relay_ready"
	// EventRelayFailed fires once when the bridge connection fails; every
	// device is then reported unreachable without being probed.
	EventRelayFailed EventType = "relay_failed"
	// EventProgress carries per-attempt probe updates for one device.
	EventProgress EventType = "progress"
	// EventDeviceDone hands over a finished record. The receiver owns the
	// record from this point; the scanner will not touch it again.
	EventDeviceDone EventType = "device_done"
	// EventBatchDone is the final event before the channel closes.
	EventBatchDone EventType = "batch_done"
)

// Event is one update from a batch run. Which fields are set depends on
// the type: Device is set for progress and device_done, Completed/Total
// for device_done and batch_done, Err for relay_failed and batch_done.
type Event struct {
	Type      EventType
	RunID     string
	Device    *models.DeviceRecord
	Message   string
	Completed int
	Total     int
	Err       error
}
