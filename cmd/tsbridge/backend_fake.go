//go:build !v8

package main

import (
	"github.com/cryguy/tsbridge/internal/jsengine"
	"github.com/cryguy/tsbridge/internal/jsengine/fake"
)

// Without -tags v8 there is no real script engine wired in (see
// DESIGN.md's "Dropped dependencies" entry for why QuickJS
// wasn't given a second jsengine.Engine adapter); the in-memory fake
// keeps this binary buildable for local exploration and lets Commit's
// declaration-file output be inspected without a real VM, but it cannot
// actually run TypeScript.
func newEngine() jsengine.Engine { return fake.New() }

const backendName = "fake (build with -tags v8 for a real engine)"
