// Package api holds the OpenAPI document for the turneval HTTP API.
package api

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
)

// OpenAPISpec is the OpenAPI 3.1 document, served at GET /openapi.yaml.
//
//go:embed openapi.yaml
var OpenAPISpec []byte

// ETag returns a strong entity tag for doc, derived from its content.
func ETag(doc []byte) string {
	sum := sha256.Sum256(doc)
	return `"` + hex.EncodeToString(sum[:8]) + `"`
}
