// Package task holds the recurring task record and its recurrence predicate.
//
// IsDue is a pure function of the record and the supplied instant. The only
// mutation of run state is MarkExecuted, called by the dispatch loop after a
// successful delivery.
package task
