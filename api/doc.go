// Package api provides the request/response DTO definitions and
// OpenAPI/Swagger documentation for the ClipFlow admin API.
//
// # API Overview
//
// ClipFlow exposes a RESTful admin API for:
//   - Video workflow submission, listing, inspection and cancellation
//   - Render job status lookup
//   - Workflow progress streaming over WebSocket
//   - Health monitoring and metrics
//
// # Authentication
//
// The admin API is intended for deployment-internal use and carries no
// authentication layer. Expose it only on trusted networks.
//
// # Base URL
//
// The default base URL for the API is:
//
//	http://localhost:8080
//
// # OpenAPI Specification
//
// The OpenAPI 3.0 specification is available at:
//   - api/openapi.yaml (static file)
//   - /swagger/doc.json (when swag is used)
//
// # Generating Documentation
//
// To regenerate Swagger documentation using swag:
//
//	make docs-swagger
//
// Or manually:
//
//	swag init -g cmd/clipflow/main.go -o api --parseDependency --parseInternal
package api
