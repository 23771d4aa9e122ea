// Package server implements the MCP (Model Context Protocol) server for the
// detection post-processing tools.
//
// This package provides a JSON-RPC 2.0 server that exposes the annotation
// pipeline and its individual stages through the MCP protocol, so a client
// can run an image through the model or check the geometry and suppression
// steps on their own.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
//   - postprocess_image: Full pipeline on one file, optionally writing the annotated JPEG
//   - letterbox_transform: Scale and padding for an image size
//   - map_boxes: Canvas <-> original coordinate mapping
//   - dedupe_detections: Confidence filter plus IoU suppression
//   - palette: Class names and colors
//
// Unset tool arguments fall back to the server's pipeline configuration.
//
// # Image Caching
//
// The server maintains an in-memory cache of loaded images. Images are cached
// by path and reused across multiple tool calls, avoiding redundant disk I/O.
// Pass "reload": true to postprocess_image after a file changes on disk.
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with:
//   - code: -32000 (tool execution failure) or standard JSON-RPC codes
//   - message: Human-readable error description
//   - data: Additional error details (typically the Go error string)
//
// Logging goes to stderr; stdout carries only protocol frames.
package server
