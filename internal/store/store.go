package store

import (
	"context"
	"encoding/json"
	"time"

	"pontiapp/attention-service/internal/models"
)

type RegisterTicketInput struct {
	RequestID   string
	DisplayName string
	DocumentID  string
	Career      string
	Period      string
	Gender      string
	Email       string
	ServiceName string
	PositionID  string
	CreatedAt   time.Time
}

type TicketActionInput struct {
	TicketID         string
	PositionID       string
	TargetPositionID string
	Reason           string
	Description      string
	OccurredAt       time.Time
}

type SnapshotFilter struct {
	PositionID   string
	Date         string
	IncludeState string
}

type TicketStore interface {
	RegisterTicket(ctx context.Context, input RegisterTicketInput) (models.Ticket, bool, error)
	GetTicket(ctx context.Context, ticketID string) (models.Ticket, bool, error)
	CallTicket(ctx context.Context, input TicketActionInput) (models.Ticket, error)
	AttendTicket(ctx context.Context, input TicketActionInput) (models.Ticket, error)
	CancelTicket(ctx context.Context, input TicketActionInput) (models.Ticket, error)
	TransferTicket(ctx context.Context, input TicketActionInput) (models.Ticket, error)
	FinishTicket(ctx context.Context, input TicketActionInput) (models.Ticket, error)
	SnapshotTickets(ctx context.Context, filter SnapshotFilter) ([]models.Ticket, error)
	GetActiveTicket(ctx context.Context, positionID string) (models.Ticket, bool, error)
	ListPositions(ctx context.Context, businessUnit string) ([]models.AttentionPosition, error)
	UpdatePositionAvailability(ctx context.Context, positionID string, available bool) error
	ListOutboxEvents(ctx context.Context, offset OutboxOffset, limit int) ([]OutboxEvent, error)
	GetOffset(ctx context.Context) (OutboxOffset, error)
	UpdateOffset(ctx context.Context, offset OutboxOffset) error
	CleanupOutbox(ctx context.Context, before time.Time) error
	Login(ctx context.Context, email, password string, expiresAt time.Time) (Session, error)
	GetSession(ctx context.Context, sessionID string) (Session, error)
	GetAccess(ctx context.Context, userID string) ([]string, error)
}

type Session struct {
	SessionID string
	UserID    string
	Email     string
	ExpiresAt time.Time
}

type OutboxEvent struct {
	EventID   string          `json:"event_id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

type OutboxOffset struct {
	LastEventTime time.Time
	LastEventID   string
}
