package models

import (
	"encoding/json"
	"time"
)

// QueueOp classifies a queued write operation.
type QueueOp string

const (
	OpAdd    QueueOp = "ADD"
	OpUpdate QueueOp = "UPDATE"
	OpDelete QueueOp = "DELETE"
)

// MaxQueueAttempts is the bounded-retry limit: after this many failed
// replays a queue item is force-marked processed and abandoned.
const MaxQueueAttempts = 3

// QueueItem is one entry of the write-behind queue. Attempts only grows
// while Processed is false; reaching MaxQueueAttempts forces Processed.
type QueueItem struct {
	ID        int64           `json:"id"`
	Type      QueueOp         `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
	Processed bool            `json:"processed"`
	Attempts  int             `json:"attempts"`
}
