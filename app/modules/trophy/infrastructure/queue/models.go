package trophyqueue

import (
	trophydomain "github.com/Black-And-White-Club/trophy-bot/app/modules/trophy/domain"
)

const queueName = "trophy"

// AnchoredActionJob runs one anchored action for one local date. Jobs are
// unique by args, so each (action, date) occurrence is inserted once.
type AnchoredActionJob struct {
	Action trophydomain.AnchoredAction `json:"action"`
	Date   trophydomain.Date           `json:"date"`
}

// Kind returns the job type identifier for River
func (AnchoredActionJob) Kind() string { return "trophy_anchored_action" }
