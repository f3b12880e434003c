package domain

import "time"

type ChangeKind string

const (
	ChangeBulkSave ChangeKind = "bulk_save"
	ChangeSave     ChangeKind = "save"
	ChangeDelete   ChangeKind = "delete"
)

// ChangeEvent tells connected admin editors that records moved under them.
type ChangeEvent struct {
	Kind    ChangeKind `json:"kind"`
	Actor   string     `json:"actor"`
	Saved   []string   `json:"saved,omitempty"`
	Deleted []string   `json:"deleted,omitempty"`
	At      time.Time  `json:"at"`
}
