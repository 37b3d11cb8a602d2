package models

import "time"

type Ticket struct {
	TicketID          string     `json:"ticket_id"`
	DisplayName       string     `json:"display_name"`
	DocumentID        string     `json:"document_id"`
	Career            string     `json:"career,omitempty"`
	Period            string     `json:"period,omitempty"`
	Gender            string     `json:"gender,omitempty"`
	Email             string     `json:"email,omitempty"`
	ServiceName       string     `json:"service_name"`
	PositionID        string     `json:"position_id"`
	PositionName      string     `json:"position_name,omitempty"`
	State             string     `json:"state"`
	TransferReason    string     `json:"transfer_reason,omitempty"`
	FinishDescription string     `json:"finish_description,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	CreatedDate       string     `json:"created_date"`
	RequestID         string     `json:"request_id,omitempty"`
	CalledAt          *time.Time `json:"called_at,omitempty"`
	WaitedUntil       *time.Time `json:"waited_until,omitempty"`
	StartAt           *time.Time `json:"start_at,omitempty"`
	FinishedAt        *time.Time `json:"finished_at,omitempty"`
}

const (
	StatePending     = "pending"
	StateCalling     = "calling"
	StateAttending   = "attending"
	StateTransferred = "transferred"
	StateCompleted   = "completed"
	StateCancelled   = "cancelled"
)

// DateBucket is the same-day filter key stored alongside created_at.
const DateBucketLayout = "01/02/2006"

func DateBucket(t time.Time) string {
	return t.Format(DateBucketLayout)
}

// IsTerminal reports whether no further lifecycle action applies.
func IsTerminal(state string) bool {
	switch state {
	case StateCompleted, StateCancelled, StateTransferred:
		return true
	}
	return false
}
