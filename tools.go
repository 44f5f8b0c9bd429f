//go:build tools

// Package tools pins the mock generator configured in .mockery.yaml.
package tools

import (
	_ "github.com/vektra/mockery/v2"
)
