package jobs

import "time"

// Status tracks where a request is in its lifecycle. The store is an
// observability record only; artifact existence is always decided by
// listing the storage directories, never by these rows.
type Status string

const (
	StatusReceived   Status = "received"
	StatusRejected   Status = "rejected"
	StatusExtracting Status = "extracting"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCleaned    Status = "cleaned"
)

// Job is one request's lifecycle record.
type Job struct {
	Identifier     string    `json:"identifier"`
	Filename       string    `json:"filename"`
	Status         Status    `json:"status"`
	FaultKind      string    `json:"fault_kind,omitempty"`
	Detail         string    `json:"detail,omitempty"`
	ChorusStartSec *float64  `json:"chorus_start_sec,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
