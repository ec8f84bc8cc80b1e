// ABOUTME: IterationLogEntry is the audit record of one control-loop step
// ABOUTME: Entries are keyed by (iteration, actor, action) and deduplicated on that key
package models

import "time"

// Well-known actors that write log entries besides handler labels
const (
	ActorRouter     = "router"
	ActorWorkflow   = "workflow"
	ActorDispatcher = "dispatcher"
)

// IterationLogEntry records what happened at one step of the loop
type IterationLogEntry struct {
	Iteration  int       `json:"iteration"`
	Actor      string    `json:"actor"`
	Action     string    `json:"action"`
	Confidence float64   `json:"confidence"`
	Rationale  string    `json:"rationale,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// LogKey is the identity of a log entry for deduplication
type LogKey struct {
	Iteration int
	Actor     string
	Action    string
}

// Key returns the dedup key of the entry
func (e IterationLogEntry) Key() LogKey {
	return LogKey{Iteration: e.Iteration, Actor: e.Actor, Action: e.Action}
}

// DedupLog collapses entries with an identical key, keeping the first occurrence
// and preserving order.
func DedupLog(entries []IterationLogEntry) []IterationLogEntry {
	seen := make(map[LogKey]struct{}, len(entries))
	result := make([]IterationLogEntry, 0, len(entries))
	for _, e := range entries {
		if _, dup := seen[e.Key()]; dup {
			continue
		}
		seen[e.Key()] = struct{}{}
		result = append(result, e)
	}
	return result
}
