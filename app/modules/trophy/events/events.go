package trophyevents

import (
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Topics published by the trophy module.
const (
	PlayerLinkedV1            = "trophy.player.linked.v1"
	PlayerUnlinkedV1          = "trophy.player.unlinked.v1"
	ReconciliationCompletedV1 = "trophy.reconciliation.completed.v1"
	PollFailedV1              = "trophy.poll.failed.v1"
	BackupCreatedV1           = "trophy.backup.created.v1"
	ResetCompletedV1          = "trophy.reset.completed.v1"
	RefreshCompletedV1        = "trophy.refresh.completed.v1"
	BackupRestoredV1          = "trophy.backup.restored.v1"
)

// Subjects is the JetStream subject filter covering every topic above.
var Subjects = []string{"trophy.>"}

// PlayerLinkedPayloadV1 is published after a tag is linked or re-linked.
type PlayerLinkedPayloadV1 struct {
	OwnerID     string `json:"owner_id"`
	Tag         string `json:"tag"`
	DisplayName string `json:"display_name"`
	Score       int    `json:"score"`
	Relinked    bool   `json:"relinked"`
}

// PlayerUnlinkedPayloadV1 is published after an unlink or admin removal.
type PlayerUnlinkedPayloadV1 struct {
	OwnerID string `json:"owner_id,omitempty"`
	Tag     string `json:"tag,omitempty"`
	Removed int64  `json:"removed"`
	Admin   bool   `json:"admin"`
}

// ReconciliationCompletedPayloadV1 summarizes one reconciliation pass.
type ReconciliationCompletedPayloadV1 struct {
	Trigger    string        `json:"trigger"`
	Polled     int           `json:"polled"`
	Updated    int           `json:"updated"`
	Failed     int           `json:"failed"`
	Duration   time.Duration `json:"duration_ns"`
	FinishedAt time.Time     `json:"finished_at"`
}

// PollFailedPayloadV1 reports one entity skipped for a tick.
type PollFailedPayloadV1 struct {
	Tag         string `json:"tag"`
	FailureKind string `json:"failure_kind"`
	StatusCode  int    `json:"status_code,omitempty"`
	Error       string `json:"error"`
}

// BackupCreatedPayloadV1 is published after a snapshot is stored.
type BackupCreatedPayloadV1 struct {
	BackupID    string    `json:"backup_id"`
	TakenAt     time.Time `json:"taken_at"`
	TakenOn     string    `json:"taken_on"`
	PlayerCount int       `json:"player_count"`
}

// ResetCompletedPayloadV1 is published after counters are zeroed.
type ResetCompletedPayloadV1 struct {
	Date   string `json:"date"`
	Reset  int    `json:"reset"`
	Manual bool   `json:"manual"`
}

// BackupRestoredPayloadV1 is published after a snapshot replaces the roster.
type BackupRestoredPayloadV1 struct {
	BackupID string `json:"backup_id"`
	Players  int    `json:"players"`
}

// NewMessage marshals payload into a watermill message carrying the
// correlation id and topic in its metadata.
func NewMessage(topic, correlationID string, payload any) (*message.Message, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	msg := message.NewMessage(watermill.NewUUID(), body)
	msg.Metadata.Set("topic", topic)
	if correlationID != "" {
		msg.Metadata.Set(CorrelationIDKey, correlationID)
	}
	return msg, nil
}

// CorrelationIDKey is the metadata key carrying the request correlation id.
const CorrelationIDKey = "correlation_id"
