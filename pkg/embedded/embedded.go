// Package embedded provides embedded static assets for the application.
package embedded

import (
	"embed"
)

// MethodsFile is the optimizer summary served by the optimization API.
const MethodsFile = "methods.json"

// Files contains all files embedded in the Go binary:
// - methods.json - descriptions of every optimization method
//
//go:embed methods.json
var Files embed.FS

// Methods returns the raw optimizer summary document.
func Methods() ([]byte, error) {
	return Files.ReadFile(MethodsFile)
}
