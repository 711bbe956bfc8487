// Package mcp exposes completed analysis results over the Model Context
// Protocol on stdio. All tools are read-only companions to the HTTP API:
// they report task state, search a ready task's semantic index, and fetch
// artifacts that have already been generated. Uploads, cancellation and
// artifact generation stay on the HTTP surface.
package mcp
