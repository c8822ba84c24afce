// Package syncer replays the offline action backlog against the API.
//
// Engine.Sync is single-flight: a pass that is already running turns later
// calls into no-ops, and an offline host turns them into no-ops without
// touching the store. Each action is replayed in FIFO order and isolated from
// its neighbours; a failure only bumps that action's attempt counter, and an
// action that reaches the retry limit is dropped. Once a pass starts it runs
// to completion regardless of the caller's context.
package syncer
