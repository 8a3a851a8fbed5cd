package api

import _ "embed"

// openAPIDoc is the hand-maintained OpenAPI description served to the
// Swagger UI at /docs.
//
//go:embed openapi.json
var openAPIDoc []byte
