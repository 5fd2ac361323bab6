package models

import "time"

// Snapshot kinds and the actions taken on them.
const (
	SnapshotEngine     = "engine"
	SnapshotSubscriber = "subscriber"

	ActionReplaced = "replaced"
	ActionDeleted  = "deleted"
)

// SnapshotEvent announces a change to a runtime snapshot. BotName is the
// bot's botId, which is what runtimes know a bot by. A subscriber event
// without PublisherName concerns every subscriber of the bot.
type SnapshotEvent struct {
	Kind          string    `json:"kind"`
	Action        string    `json:"action"`
	BotID         string    `json:"botId"`
	BotName       string    `json:"botName"`
	PublisherName string    `json:"publisherName,omitempty"`
	At            time.Time `json:"at"`
}
