package medicine

import "time"

type Action string

const (
	ActionFired     Action = "fired"
	ActionTaken     Action = "taken"
	ActionMissed    Action = "missed"
	ActionSnoozed   Action = "snoozed"
	ActionDismissed Action = "dismissed"
)

// DoseEvent records one reminder outcome for an entry.
type DoseEvent struct {
	ID      string    `json:"id" bson:"id"`
	EntryID string    `json:"entry_id" bson:"entry_id"`
	Action  Action    `json:"action" bson:"action"`
	At      time.Time `json:"at" bson:"at"`
	Detail  string    `json:"detail,omitempty" bson:"detail,omitempty"`
}
