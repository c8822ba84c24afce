// Package ipc serves the daemon's operations as JSON-RPC over a Unix socket
// readable only by its owner, and provides the client the CLI dials.
//
// Request and response types carry wire-friendly copies of queue actions,
// dead letters, sync results and credential summaries. Payloads travel as
// strings so socket traces stay readable. New methods get a Request/Response
// pair here, a handler on the service, and a typed Client wrapper.
package ipc
