// Package queue persists outbound mutations that could not be delivered and
// exposes the operations the sync engine needs to replay them.
//
// Store is the SQLite-backed durable layer: one row per queued action in
// queued_actions, plus a dead_letters table that keeps actions dropped after
// exhausting their retries. It opens lazily, retries on SQLITE_BUSY, and treats
// deletes of missing rows as no-ops.
//
// Queue sits on top of Store. Enqueue never returns an error to the caller:
// invalid input and storage faults are logged and the action is discarded.
// Drain returns the backlog oldest first (created_at, then id), which is the
// replay order.
//
// Schema changes bump schemaVersion in schema.go; users clear the database to
// adopt the new schema.
package queue
