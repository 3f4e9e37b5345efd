package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type callbackRecord struct {
	bun.BaseModel `bun:"table:callbacks,alias:cb"`

	ID              string     `bun:"id,pk"`
	InstanceID      string     `bun:"instance_id,notnull"`
	Type            string     `bun:"type,notnull"`
	URL             string     `bun:"url"`
	Name            string     `bun:"name"`
	Description     string     `bun:"description"`
	IntervalSeconds *int       `bun:"interval_seconds"`
	NextRunAt       *time.Time `bun:"next_run_at,nullzero"`
	CreatedAt       time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt       time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
	DeletedAt       *time.Time `bun:"deleted_at,soft_delete"`
}

type destinationRecord struct {
	bun.BaseModel `bun:"table:callback_destinations,alias:cd"`

	ID            string     `bun:"id,pk"`
	InstanceID    string     `bun:"instance_id,notnull"`
	Type          string     `bun:"type,notnull"`
	Name          string     `bun:"name"`
	Description   string     `bun:"description"`
	URL           string     `bun:"url,notnull"`
	SigningSecret string     `bun:"signing_secret,notnull"`
	Status        string     `bun:"status,notnull"`
	SelectionType string     `bun:"selection_type,notnull"`
	CallbackIDs   []string   `bun:"callback_ids,type:jsonb"`
	CreatedAt     time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt     time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
	DeletedAt     *time.Time `bun:"deleted_at,soft_delete"`
}

type eventRecord struct {
	bun.BaseModel `bun:"table:callback_events,alias:ce"`

	ID              string     `bun:"id,pk"`
	CallbackID      string     `bun:"callback_id,notnull"`
	InstanceID      string     `bun:"instance_id,notnull"`
	Type            string     `bun:"type,notnull"`
	Status          string     `bun:"status,notnull"`
	PayloadIncoming []byte     `bun:"payload_incoming"`
	PayloadOutgoing []byte     `bun:"payload_outgoing"`
	NextAttemptAt   *time.Time `bun:"next_attempt_at,nullzero"`
	LeaseOwner      string     `bun:"lease_owner"`
	LeaseExpiresAt  *time.Time `bun:"lease_expires_at,nullzero"`
	CreatedAt       time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt       time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type attemptRecord struct {
	bun.BaseModel `bun:"table:callback_processing_attempts,alias:cpa"`

	ID                 string    `bun:"id,pk"`
	EventID            string    `bun:"event_id,notnull"`
	AttemptIndex       int       `bun:"attempt_index,notnull"`
	DestinationID      string    `bun:"destination_id"`
	Status             string    `bun:"status,notnull"`
	ErrorCode          string    `bun:"error_code"`
	ErrorMessage       string    `bun:"error_message"`
	ResponseStatusCode int       `bun:"response_status_code"`
	DurationMs         int64     `bun:"duration_ms"`
	CreatedAt          time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type deliveryClaimRecord struct {
	bun.BaseModel `bun:"table:callback_delivery_claims,alias:cdc"`

	ID         string    `bun:"id,pk"`
	Source     string    `bun:"source,notnull"`
	DeliveryID string    `bun:"delivery_id,notnull"`
	EventID    string    `bun:"event_id"`
	CreatedAt  time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	ExpiresAt  time.Time `bun:"expires_at,notnull"`
}
