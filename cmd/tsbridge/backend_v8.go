//go:build v8

package main

import (
	"github.com/cryguy/tsbridge/internal/jsengine"
	"github.com/cryguy/tsbridge/internal/v8engine"
)

func newEngine() jsengine.Engine { return v8engine.New() }

const backendName = "v8"
