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

import "strings"

// Identifier token values in the colon form 1:1:2:XX:YY:DIGIL_VVV_NNNN.
// The fourth token carries the role: 15 is a master, 16 a slave.
const (
	roleTokenIndex  = 3
	roleTokenMaster = "15"
	roleTokenSlave  = "16"
)

// DetectRole infers the device role from its identifier.
//
// Examples:
//
//	1:1:2:15:25:DIGIL_SR2_0103 -> master
//	1:1:2:16:21:DIGIL_MRN_0562 -> slave
//
// When the token position is absent the whole identifier is searched, with
// the slave marker taking precedence on ambiguity.
func DetectRole(deviceID string) Role {
	parts := strings.Split(deviceID, ":")
	if len(parts) > roleTokenIndex {
		switch parts[roleTokenIndex] {
		case roleTokenMaster:
			return RoleMaster
		case roleTokenSlave:
			return RoleSlave
		}
	}

	if strings.Contains(deviceID, roleTokenMaster) && !strings.Contains(deviceID, roleTokenSlave) {
		return RoleMaster
	}

	if strings.Contains(deviceID, roleTokenSlave) {
		return RoleSlave
	}

	return RoleUnknown
}

// DetectVendor infers the manufacturer from the identifier, falling back to
// the supplier column. The identifier patterns (SR2, MRN, IND) are more
// reliable than the free-text supplier, so they win.
func DetectVendor(deviceID, supplier string) Vendor {
	id := strings.ToUpper(deviceID)
	sup := strings.ToUpper(supplier)

	switch {
	case strings.Contains(id, "SR2") || strings.Contains(id, "_SR_"):
		return VendorSirti
	case strings.Contains(id, "MRN") || strings.Contains(id, "_MR_"):
		return VendorMII
	case strings.Contains(id, "IND"):
		return VendorIndra
	}

	switch {
	case strings.Contains(sup, "SIRTI"):
		return VendorSirti
	case strings.Contains(sup, "MARINI") || strings.Contains(sup, "TELEBIT"):
		return VendorMII
	case strings.Contains(sup, "INDRA") || strings.Contains(sup, "OLIVETTI"):
		return VendorIndra
	}

	return VendorUnknown
}

// NormalizeIP repairs device addresses stored without separators. Some
// roster rows carry 10183224247 instead of 10.183.224.247; the dotted form
// is reconstructed for the known deployment prefixes, anything else passes
// through unchanged (best effort).
func NormalizeIP(raw string) string {
	ip := strings.TrimSpace(raw)

	if strings.Contains(ip, ".") {
		return ip
	}

	if !isDigits(ip) || len(ip) < 9 {
		return ip
	}

	switch {
	case strings.HasPrefix(ip, "10183224"):
		return "10.183.224." + ip[8:]
	case strings.HasPrefix(ip, "1018322"):
		return "10.183.22." + ip[7:]
	}

	return ip
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}

	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}

	return true
}
