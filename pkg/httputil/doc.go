// Package httputil provides the HTTP plumbing shared by API handlers.
//
// # Responses
//
// [WriteJSON] encodes a value with a status code. [WriteError] maps a
// structured error from [github.com/matzehuels/spatialcanvas/pkg/errors] to
// its HTTP status and writes
//
//	{"error": {"code": "BLOCK_NOT_FOUND", "message": "..."}}
//
// Internal errors are logged and reported with a generic message.
//
// # Requests
//
// [DecodeJSON] reads a bounded JSON body, rejecting unknown fields, and
// reports problems as INVALID_INPUT errors.
//
// # Instrumentation
//
// [Instrument] is chi middleware that logs each request and reports it to
// the observability HTTP hooks under its route pattern, so /blocks/{id}
// is one series rather than one per id.
package httputil
