// Package dispatch consumes due task ids, executes each task and writes the
// updated run state back to the store.
//
// Work for one id is serialized by a per-id lock, and the record is
// re-evaluated after loading, which turns repeated emissions of a task that
// already ran into skips. Once a record is loaded the send and the save run
// to completion even if the caller is canceled; only the send timeout bounds
// them.
package dispatch
