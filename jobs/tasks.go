package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskConfirmationExpire deletes a single pending confirmation once its TTL elapses.
	TaskConfirmationExpire = "confirmation:expire"
	// TaskConfirmationSweep deletes every confirmation older than the TTL.
	TaskConfirmationSweep = "confirmation:sweep"
)

// ExpirePayload identifies the confirmation to expire.
type ExpirePayload struct {
	Token string `json:"token"`
}

// ExpireTaskID is the unique asynq task ID for a token's expiry.
func ExpireTaskID(token string) string {
	return TaskConfirmationExpire + ":" + token
}

// NewExpireTask constructs an Asynq task.
func NewExpireTask(token string) (*asynq.Task, error) {
	data, err := json.Marshal(ExpirePayload{Token: token})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskConfirmationExpire, data, asynq.Queue(QueueDefault)), nil
}

// NewSweepTask builds a sweep task.
func NewSweepTask() *asynq.Task {
	return asynq.NewTask(TaskConfirmationSweep, nil, asynq.Queue(QueueDefault))
}
