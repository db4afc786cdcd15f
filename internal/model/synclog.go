package model

import "time"

// SyncAttempt represents one replay attempt of a queued operation,
// kept as an audit trail of what the engine pushed upstream and when.
type SyncAttempt struct {
	OperationID int64         `json:"operation_id" bson:"operation_id"`
	Type        OperationType `json:"type" bson:"type"`
	UserID      string        `json:"user_id,omitempty" bson:"user_id,omitempty"`
	Status      string        `json:"status" bson:"status"` // 'success' or 'failed'
	ErrorMsg    string        `json:"error_message,omitempty" bson:"error_message,omitempty"`
	RetryCount  int           `json:"retry_count" bson:"retry_count"`
	DurationMs  int64         `json:"duration_ms" bson:"duration_ms"`
	CreatedAt   time.Time     `json:"created_at" bson:"created_at"`
}
