package models

import "time"

type ChangeKind string

const (
	ChangeCreated  ChangeKind = "created"
	ChangeUpdated  ChangeKind = "updated"
	ChangeDeleted  ChangeKind = "deleted"
	ChangeReplaced ChangeKind = "replaced" // whole list swapped: bootstrap, import, logout
)

// Change describes one mutation of the local event list.
type Change struct {
	Kind  ChangeKind `json:"kind"`
	Event *Event     `json:"event,omitempty"`
	At    time.Time  `json:"at"`
}
