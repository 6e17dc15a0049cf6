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

package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectRole(t *testing.T) {
	tests := []struct {
		name     string
		deviceID string
		want     Role
	}{
		{"master token", "1:1:2:15:25:DIGIL_SR2_0103", RoleMaster},
		{"slave token", "1:1:2:16:21:DIGIL_MRN_0562", RoleSlave},
		{"slave token other vendor", "1:1:2:16:25:DIGIL_SR2_0163", RoleSlave},
		{"master token other vendor", "1:1:2:15:22:DIGIL_MRN_0053", RoleMaster},
		{"fallback master substring", "DIGIL_15_A", RoleMaster},
		{"fallback slave substring wins", "DIGIL_15_16", RoleSlave},
		{"no marker", "1:1:2:99:21:DIGIL_SR2_0001", RoleUnknown},
		{"empty", "", RoleUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectRole(tt.deviceID))
		})
	}
}

func TestDetectVendor(t *testing.T) {
	tests := []struct {
		name     string
		deviceID string
		supplier string
		want     Vendor
	}{
		{"sirti from id", "1:1:2:15:25:DIGIL_SR2_0103", "", VendorSirti},
		{"marini from id", "1:1:2:16:21:DIGIL_MRN_0562", "", VendorMII},
		{"indra from id", "1:1:2:15:22:DIGIL_IND_0007", "", VendorIndra},
		{"id beats supplier", "1:1:2:15:25:DIGIL_SR2_0103", "Lotto1-IndraOlivetti", VendorSirti},
		{"supplier sirti", "device-x", "Lotto3-Sirti", VendorSirti},
		{"supplier telebit marini", "device-x", "Lotto2-TelebitMarini", VendorMII},
		{"supplier olivetti", "device-x", "Lotto1-IndraOlivetti", VendorIndra},
		{"nothing matches", "device-x", "somebody else", VendorUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectVendor(tt.deviceID, tt.supplier))
		})
	}
}

func TestNormalizeIP(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"dotted passes through", "10.1.2.3", "10.1.2.3"},
		{"dotted with spaces", " 10.183.224.97 ", "10.183.224.97"},
		{"long prefix rebuilt", "10183224247", "10.183.224.247"},
		{"short prefix rebuilt", "1018322045", "10.183.22.045"},
		{"unrecognized digits pass through", "192168001001", "192168001001"},
		{"too short passes through", "10183", "10183"},
		{"non numeric passes through", "not-an-ip", "not-an-ip"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeIP(tt.raw))
		})
	}
}

func TestTriStateDefaultsUnknown(t *testing.T) {
	var rec DeviceRecord

	assert.False(t, rec.BatteryOK.Known())
	assert.False(t, rec.DoorOpen.IsFalse(), "unknown must not read as confirmed false")
	assert.Equal(t, "unknown", rec.HasRecentData.String())
	assert.True(t, TriFromBool(true).IsTrue())
	assert.True(t, TriFromBool(false).IsFalse())
}
