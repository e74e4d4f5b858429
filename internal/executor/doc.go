// Package executor turns a due task into a delivered message.
//
// A Manager maps task ids to content Builders and falls back to a default
// builder that sends the task name and description. Builders that keep
// per-day state (the WaterBot round counter) are reset by a cron job in the
// scheduler timezone.
package executor
