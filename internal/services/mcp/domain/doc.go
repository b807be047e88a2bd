// Package domain translates MCP tool calls into circle service requests.
//
// The package is intentionally explicit about that mapping:
// - decode MCP tool input into circle API calls,
// - route each call to the circle service over HTTP,
// - and surface structured outputs that MCP clients can render.
//
// This keeps MCP behavior auditable from protocol message -> API request ->
// rendered tool result.
package domain
