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

// Package models defines the shared data model for the fieldscan pipeline.
package models

import "time"

// Role is the duty-cycle role of a DIGIL device, encoded in its identifier.
// Masters wake often; slaves wake on a much slower cycle, which drives the
// ping retry budget.
type Role string

const (
	RoleMaster  Role = "master"
	RoleSlave   Role = "slave"
	RoleUnknown Role = "unknown"
)

// Vendor is the device manufacturer, inferred from the identifier or the
// supplier column of the roster.
type Vendor string

const (
	VendorIndra   Vendor = "INDRA"
	VendorSirti   Vendor = "SIRTI"
	VendorMII     Vendor = "MII"
	VendorUnknown Vendor = "UNKNOWN"
)

// ProbeStatus is the outcome of one reachability phase.
type ProbeStatus string

const (
	StatusPending          ProbeStatus = "Pending"
	StatusRelayUnreachable ProbeStatus = "Relay unreachable"
	StatusPingOK           ProbeStatus = "Ping OK"
	StatusPingFailed       ProbeStatus = "Ping failed"
	StatusPortOpen         ProbeStatus = "SSH OK"
	StatusPortClosed       ProbeStatus = "SSH port closed"
	StatusPortTimeout      ProbeStatus = "SSH timeout"
	StatusError            ProbeStatus = "Error"
)

// TriState is a three-valued fact: confirmed true, confirmed false, or not
// measured. The zero value is TriUnknown so facts never silently default to
// false.
type TriState int

const (
	TriUnknown TriState = iota
	TriTrue
	TriFalse
)

func TriFromBool(b bool) TriState {
	if b {
		return TriTrue
	}

	return TriFalse
}

// IsTrue reports whether the fact is confirmed true.
func (t TriState) IsTrue() bool { return t == TriTrue }

// IsFalse reports whether the fact is confirmed false. Unknown is not false.
func (t TriState) IsFalse() bool { return t == TriFalse }

func (t TriState) Known() bool { return t != TriUnknown }

func (t TriState) String() string {
	switch t {
	case TriTrue:
		return "true"
	case TriFalse:
		return "false"
	default:
		return "unknown"
	}
}

// Category is the closed set of final malfunction verdicts.
type Category string

const (
	CategoryOK             Category = "OK"
	CategoryDoorOpen       Category = "Door open"
	CategoryBatteryAlarm   Category = "Battery alarm"
	CategoryDisconnected   Category = "Disconnected"
	CategoryMetricsMissing Category = "Metrics missing"
	CategoryNotClassified  Category = "Not classified"
)

// TimestampLayout is the normalized form used everywhere a decoded time is
// rendered, matching the report format.
const TimestampLayout = "2006-01-02 15:04:05"

// DeviceRecord accumulates everything known about one device under test.
// It is created from a roster row, then filled in by the probe, fusion and
// classification stages; each stage holds exclusive ownership while it runs.
type DeviceRecord struct {
	// Roster identity.
	DeviceID    string
	IPAddress   string
	Line        string
	Support     string // "ST Sostegno" column, the pylon the device sits on
	Supplier    string
	InstallType string // "Tipo Installazione AM" column

	// Derived at load or probe time.
	Role   Role
	Vendor Vendor

	// Reachability facts from the relay probe.
	PingStatus ProbeStatus
	PortStatus ProbeStatus
	PingTimeMs *float64
	ErrorNote  string

	// Health facts from the vendor diagnostics API.
	BatteryOK     TriState
	DoorOpen      TriState
	LinkConnected TriState
	ChargePercent *float64
	HealthPercent *float64
	SignalDBm     *float64
	Channel       string
	APITimestamp  string
	APIError      string

	// Facts from the platform event store.
	HasRecentData TriState
	LastSeen      *time.Time
	StoreChecked  bool
	StoreError    string

	// Final verdict.
	Category         Category
	ConnectivityNote string
	TestedAt         string
}

// NewDeviceRecord builds a record with both probe phases pending and the
// role and vendor derived from the identifier.
func NewDeviceRecord(deviceID, ip, line, support, supplier string) *DeviceRecord {
	return &DeviceRecord{
		DeviceID:   deviceID,
		IPAddress:  NormalizeIP(ip),
		Line:       line,
		Support:    support,
		Supplier:   supplier,
		Role:       DetectRole(deviceID),
		Vendor:     DetectVendor(deviceID, supplier),
		PingStatus: StatusPending,
		PortStatus: StatusPending,
	}
}

// PingOK reports whether the ping phase confirmed reachability.
func (r *DeviceRecord) PingOK() bool { return r.PingStatus == StatusPingOK }

// PortOK reports whether the management-port phase confirmed an open port.
func (r *DeviceRecord) PortOK() bool { return r.PortStatus == StatusPortOpen }
