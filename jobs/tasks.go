package jobs

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAuthorizationChanged records an administrator's change to an
	// authorization record in the audit log.
	TaskAuthorizationChanged = "authz:changed"
	// TaskPruneSessions deletes expired rows from user_sessions.
	TaskPruneSessions = "sessions:prune"
)

// Fields of an authorization record an administrator can change.
const (
	FieldAdmin      = "is_admin"
	FieldCapability = "capability"
)

// AuthorizationChangedPayload describes one confirmed authorization write.
type AuthorizationChangedPayload struct {
	ActorID    string    `json:"actor_id"`
	TargetID   string    `json:"target_id"`
	Field      string    `json:"field"`
	Capability string    `json:"capability,omitempty"`
	Value      bool      `json:"value"`
	At         time.Time `json:"at"`
}

func (p AuthorizationChangedPayload) validate() error {
	if p.TargetID == "" {
		return errors.New("target id required")
	}
	switch p.Field {
	case FieldAdmin:
	case FieldCapability:
		if p.Capability == "" {
			return errors.New("capability required")
		}
	default:
		return errors.New("unknown field " + p.Field)
	}
	return nil
}

// NewAuthorizationChangedTask constructs an Asynq task.
func NewAuthorizationChangedTask(payload AuthorizationChangedPayload) (*asynq.Task, error) {
	if err := payload.validate(); err != nil {
		return nil, err
	}
	if payload.At.IsZero() {
		payload.At = time.Now().UTC()
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuthorizationChanged, data, asynq.MaxRetry(5)), nil
}

// NewPruneSessionsTask constructs the periodic session cleanup task.
func NewPruneSessionsTask() *asynq.Task {
	return asynq.NewTask(TaskPruneSessions, nil, asynq.MaxRetry(1))
}
