//go:build tools
// +build tools

// Package tools pins the static analysis tool this module's test tooling
// relies on, so `go install` picks up the version go.mod records instead
// of whatever happens to be on a contributor's PATH.
package tools

import (
	_ "honnef.co/go/tools/cmd/staticcheck"
)
