// Package templates embeds the files flowsync writes on request.
package templates

import (
	"embed"
	"io/fs"
)

// files holds:
//   - config/flowsync.yaml (commented default configuration)
//
//go:embed config
var files embed.FS

// FS returns the embedded template files.
func FS() fs.FS {
	return files
}

// DefaultConfig returns the commented default configuration.
func DefaultConfig() string {
	data, err := files.ReadFile("config/flowsync.yaml")
	if err != nil {
		panic("templates: default config missing from build: " + err.Error())
	}
	return string(data)
}
