// SPDX-License-Identifier: MIT

// Package version carries build identification injected via ldflags.
package version

var (
	// Version is the current application version, populated by the build
	// system or left at the fallback for source builds.
	Version = "v1.0.0"

	// Commit is the git short hash of the build.
	Commit = "unknown"

	// Date is the build timestamp.
	Date = "unknown"
)
