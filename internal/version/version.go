// Copyright 2025 The streamhop Authors. All rights reserved.
// Use of this source code is governed by a MPL
// license that can be found in the LICENSE file.

// Package version holds the build information stamped at link time.
package version

// Set at build time with -ldflags "-X ...".
var (
	Version = "devel"
	Commit  = "unknown"
	Time    = "unknown"
)
