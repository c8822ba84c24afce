// Package daemon coordinates the long-running yatrisync process.
//
// It wires configuration, the action queue, the network monitor, and the sync
// engine into a single lifecycle with flock-based locking to prevent multiple
// instances. Reconnect events and explicit requests (login, the sync command,
// startup) all funnel into the same single-flight engine through the trigger
// package. The daemon also exposes queue maintenance helpers used by IPC and
// an optional HTTP listener for health, status, and Prometheus metrics.
//
// Keep orchestration here: replay rules live in syncer, persistence in queue,
// and connectivity detection in network.
package daemon
