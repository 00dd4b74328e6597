package api

import _ "embed"

// OpenAPI is the service's API document, served at /openapi.yml.
//
//go:embed openapi.yml
var OpenAPI []byte
