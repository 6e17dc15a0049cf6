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

// Package classifier reduces a fully-fused device record to one
// malfunction category. It is a pure decision list: rules are evaluated
// in order and the first match wins, so a door alarm always beats a
// battery alarm and a device that is demonstrably sending data is OK no
// matter what the network checks said.
package classifier

import (
	"strings"

	"github.com/ornatel/fieldscan/pkg/models"
)

// Classify maps a fused record to its category and an optional
// connectivity note. The note flags an OK device that could not be fully
// confirmed over the direct network path; it is informational, not a
// failure.
//
// Unknown facts never match a rule that needs a confirmed value: a
// record where nothing was measured falls through to "not classified"
// rather than being defaulted to OK or to a failure.
func Classify(dev *models.DeviceRecord) (models.Category, string) {
	switch {
	case dev.DoorOpen.IsTrue():
		return models.CategoryDoorOpen, ""

	case dev.BatteryOK.IsFalse():
		return models.CategoryBatteryAlarm, ""

	case dev.HasRecentData.IsTrue():
		// Data in the store is the strongest liveness signal. A failed
		// ping or closed port downgrades nothing, it only earns a note.
		return models.CategoryOK, connectivityNote(dev)

	case pingConfirmedFailed(dev) && !dev.PortOK() && !dev.HasRecentData.IsTrue():
		return models.CategoryDisconnected, ""

	case dev.LinkConnected.IsFalse() && dev.HasRecentData.IsFalse():
		return models.CategoryDisconnected, ""

	case dev.HasRecentData.IsFalse() && (dev.PortOK() || dev.PingOK() || dev.LinkConnected.IsTrue()):
		return models.CategoryMetricsMissing, ""

	case dev.PortOK():
		return models.CategoryOK, ""

	case dev.LinkConnected.IsTrue():
		return models.CategoryOK, connectivityNote(dev)

	default:
		return models.CategoryNotClassified, ""
	}
}

// Apply runs Classify and writes the verdict back onto the record.
func Apply(dev *models.DeviceRecord) {
	dev.Category, dev.ConnectivityNote = Classify(dev)
}

// pingConfirmedFailed reports whether the ping check ran and came back
// negative. Pending and error states are not a confirmed failure.
func pingConfirmedFailed(dev *models.DeviceRecord) bool {
	return dev.PingStatus == models.StatusPingFailed
}

// connectivityNote lists which of the direct network checks did not
// succeed. Empty when both did.
func connectivityNote(dev *models.DeviceRecord) string {
	var parts []string

	if !dev.PingOK() {
		parts = append(parts, "Ping KO")
	}

	if !dev.PortOK() {
		parts = append(parts, "SSH KO")
	}

	return strings.Join(parts, ", ")
}
