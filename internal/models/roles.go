/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "strings"

// RoleName enumerates the roles carried in bearer claims.
type RoleName string

const (
	RoleAdmin     RoleName = "admin"
	RoleManager   RoleName = "manager"
	RoleInspector RoleName = "inspector"
	RoleReviewer  RoleName = "reviewer"
	RoleApprover  RoleName = "approver"
	RoleOfficer   RoleName = "officer"
)

// legacy role labels still issued by older identity providers
var roleAliases = map[string]RoleName{
	"administrator":      RoleAdmin,
	"supervisor":         RoleManager,
	"field_inspector":    RoleInspector,
	"document_reviewer":  RoleReviewer,
	"inspection_officer": RoleOfficer,
}

// NormalizeRole maps case variants and legacy labels onto canonical roles.
// Unknown roles are returned lower-cased and otherwise untouched.
func NormalizeRole(r RoleName) RoleName {
	s := strings.ToLower(strings.TrimSpace(string(r)))
	if alias, ok := roleAliases[s]; ok {
		return alias
	}
	return RoleName(s)
}

// IsElevated reports whether the role may act on records it does not own.
func (r RoleName) IsElevated() bool {
	switch NormalizeRole(r) {
	case RoleAdmin, RoleManager:
		return true
	}
	return false
}
