// Package api implements the request/response half of the transport:
// a JSON-over-HTTP client for the marketplace API collaborator.
package api
