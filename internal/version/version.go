/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package version provides build version information.
package version

import "fmt"

// Version is the current version of inspectd.
// This is set at build time via ldflags:
//
//	-X github.com/friendsincode/inspectd/internal/version.Version=X.Y.Z
var Version = "0.1.0"

// Commit is the git revision, set at build time.
var Commit = "unknown"

// String formats version and commit for logs and the CLI.
func String() string {
	return fmt.Sprintf("inspectd %s (%s)", Version, Commit)
}
