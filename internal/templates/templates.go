// Package templates contains embedded template files.
package templates

import (
	_ "embed"
)

//go:embed fleet.template

// FleetYAML contains the embedded sample fleet configuration.
var FleetYAML []byte

//go:embed env.template

// EnvFile contains the embedded environment override template.
var EnvFile []byte
