package console

import (
	"context"
	"errors"
	"sync"
	"time"

	"pontiapp/attention-service/internal/models"
)

// Toast texts shown to the agent, one per failed action plus the finish
// confirmation.
const (
	ToastCallFailed     = "Ocurrió un error al llamar el ticket."
	ToastAttendFailed   = "Ocurrió un error al atender el ticket."
	ToastCancelFailed   = "Ocurrió un error al cancelar el ticket."
	ToastTransferFailed = "Ocurrió un error al transferir el ticket."
	ToastFinishFailed   = "Ocurrió un error al finalizar la atención."
	ToastFinishOK       = "Atención finalizada correctamente."
)

var ErrNoActiveTicket = errors.New("no active ticket for this action")

// ActionError wraps a failed lifecycle action with the toast the panel
// should surface. The triggering element stays enabled so the agent may
// retry manually; there is no automatic retry.
type ActionError struct {
	Toast string
	Cause error
}

func (e *ActionError) Error() string { return e.Toast }
func (e *ActionError) Unwrap() error { return e.Cause }

// Console is the shared state shell behind the agent screen: the projected
// working sets, the ticket being called, the attending session, and the tab
// filter. All mutations go through it so the transition rules live in one
// place instead of scattered across panels.
type Console struct {
	mu sync.Mutex

	lifecycle Lifecycle
	now       func() time.Time

	state              string
	tickets            []models.Ticket
	ticketsTransferred []models.Ticket
	attending          *Session
	calling            *models.Ticket
	loading            bool
}

func New(lifecycle Lifecycle) *Console {
	return &Console{
		lifecycle: lifecycle,
		now:       func() time.Time { return time.Now().UTC() },
		state:     models.StatePending,
		loading:   true,
	}
}

// ApplySnapshot recomputes the projection from a fresh snapshot. The
// attending session is reduced, not replaced, so its timer survives
// snapshots that still contain the same attending ticket.
func (c *Console) ApplySnapshot(snapshot []models.Ticket) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p := Project(snapshot)
	c.tickets = p.Tickets
	c.ticketsTransferred = p.TicketsTransferred
	c.attending = ReduceSession(c.attending, p.Attending, c.now())
	c.loading = false

	// A calling ticket that left the calling state remotely is stale.
	if c.calling != nil {
		for _, ticket := range snapshot {
			if ticket.TicketID == c.calling.TicketID && ticket.State != models.StateCalling {
				c.calling = nil
				break
			}
		}
	}
	if c.attending != nil && c.calling != nil && c.attending.Ticket.TicketID == c.calling.TicketID {
		c.calling = nil
	}
}

// CallTicket summons a pending or transferred ticket. The calling slot is
// set optimistically before the remote acknowledges and rolled back on
// failure.
func (c *Console) CallTicket(ctx context.Context, ticket models.Ticket) error {
	c.mu.Lock()
	if ticket.State != models.StatePending {
		c.mu.Unlock()
		return &ActionError{Toast: ToastCallFailed, Cause: ErrNoActiveTicket}
	}
	called := ticket
	c.calling = &called
	c.mu.Unlock()

	updated, err := c.lifecycle.Call(ctx, ticket.TicketID)
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.calling = nil
		return &ActionError{Toast: ToastCallFailed, Cause: err}
	}
	c.calling = &updated
	return nil
}

// AttendTicket starts serving the calling ticket. On success the calling
// slot is cleared and a fresh session starts; on failure the calling ticket
// stays put.
func (c *Console) AttendTicket(ctx context.Context) error {
	c.mu.Lock()
	if c.calling == nil {
		c.mu.Unlock()
		return &ActionError{Toast: ToastAttendFailed, Cause: ErrNoActiveTicket}
	}
	ticketID := c.calling.TicketID
	c.mu.Unlock()

	updated, err := c.lifecycle.Attend(ctx, ticketID)
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		return &ActionError{Toast: ToastAttendFailed, Cause: err}
	}
	c.calling = nil
	c.attending = &Session{Ticket: updated, StartAt: c.now()}
	return nil
}

// CancelTicket cancels whichever of calling/attending currently holds the
// ticket. On failure both slots are left untouched so the dialog can stay
// open for a manual retry.
func (c *Console) CancelTicket(ctx context.Context, ticketID string) error {
	c.mu.Lock()
	holdsCalling := c.calling != nil && c.calling.TicketID == ticketID
	holdsAttending := c.attending != nil && c.attending.Ticket.TicketID == ticketID
	c.mu.Unlock()
	if !holdsCalling && !holdsAttending {
		return &ActionError{Toast: ToastCancelFailed, Cause: ErrNoActiveTicket}
	}

	_, err := c.lifecycle.Cancel(ctx, ticketID)
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		return &ActionError{Toast: ToastCancelFailed, Cause: err}
	}
	if holdsCalling {
		c.calling = nil
	}
	if holdsAttending {
		c.attending = nil
	}
	return nil
}

// TransferTicket routes the attending ticket to another position's queue.
func (c *Console) TransferTicket(ctx context.Context, targetPositionID, reason string) error {
	c.mu.Lock()
	if c.attending == nil {
		c.mu.Unlock()
		return &ActionError{Toast: ToastTransferFailed, Cause: ErrNoActiveTicket}
	}
	ticketID := c.attending.Ticket.TicketID
	c.mu.Unlock()

	_, err := c.lifecycle.Transfer(ctx, ticketID, targetPositionID, reason)
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		return &ActionError{Toast: ToastTransferFailed, Cause: err}
	}
	c.attending = nil
	return nil
}

// FinishTicket completes the attending session. Returns the success toast.
func (c *Console) FinishTicket(ctx context.Context, description string) (string, error) {
	c.mu.Lock()
	if c.attending == nil {
		c.mu.Unlock()
		return "", &ActionError{Toast: ToastFinishFailed, Cause: ErrNoActiveTicket}
	}
	ticketID := c.attending.Ticket.TicketID
	c.mu.Unlock()

	_, err := c.lifecycle.Finish(ctx, ticketID, description)
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		return "", &ActionError{Toast: ToastFinishFailed, Cause: err}
	}
	c.attending = nil
	return ToastFinishOK, nil
}

// SetState switches the tab filter (pending|completed). The caller owning
// the subscription re-snapshots when this changes.
func (c *Console) SetState(state string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if state == c.state {
		return false
	}
	c.state = state
	c.loading = true
	return true
}

func (c *Console) State() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Console) IsLoading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

func (c *Console) Tickets() []models.Ticket {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Ticket(nil), c.tickets...)
}

func (c *Console) TicketsTransferred() []models.Ticket {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Ticket(nil), c.ticketsTransferred...)
}

// Attending returns the current session, or nil. Attending takes rendering
// priority over the calling ticket.
func (c *Console) Attending() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.attending == nil {
		return nil
	}
	session := *c.attending
	return &session
}

func (c *Console) Calling() *models.Ticket {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calling == nil {
		return nil
	}
	ticket := *c.calling
	return &ticket
}

// ActionsFor lists the lifecycle actions a panel may offer for a ticket.
// Terminal states expose nothing.
func ActionsFor(state string) []string {
	switch state {
	case models.StatePending:
		return []string{"call"}
	case models.StateCalling:
		return []string{"attend", "cancel"}
	case models.StateAttending:
		return []string{"cancel", "transfer", "finish"}
	default:
		return nil
	}
}
