package models

import "time"

// Operation is a queued mutation type.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// SyncQueueEntry is a pending mutation awaiting replay against the server.
// At most one entry exists per record; successive mutations coalesce.
type SyncQueueEntry struct {
	RecordID   string
	Operation  Operation
	Attempt    int
	LastError  string
	EnqueuedAt time.Time
}

// Coalesce collapses a new operation into an existing pending one for the
// same record and returns the net operation. A false second return means the
// entries cancel out entirely (a create that was deleted before ever
// reaching the server).
//
//	create + update -> create   (server never saw the record)
//	create + delete -> nothing  (drop the entry)
//	update + delete -> delete
//	delete + create -> update   (resurrection of a known record)
//	any    + same   -> same
func Coalesce(existing, next Operation) (Operation, bool) {
	switch existing {
	case OpCreate:
		switch next {
		case OpUpdate:
			return OpCreate, true
		case OpDelete:
			return "", false
		}
	case OpUpdate:
		if next == OpDelete {
			return OpDelete, true
		}
	case OpDelete:
		if next == OpCreate || next == OpUpdate {
			return OpUpdate, true
		}
	}
	return next, true
}
