// Package scheduler polls the task store on a fixed sleep interval and pushes
// the ids of due tasks onto an unbounded queue.
//
// Emission is at-least-once: a task that stays due is pushed again on every
// cycle until its run state or a filter excludes it. Consumers deduplicate by
// re-evaluating the freshly loaded record before executing it.
package scheduler
