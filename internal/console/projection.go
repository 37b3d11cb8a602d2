package console

import (
	"time"

	"pontiapp/attention-service/internal/models"
)

// Projection is the derived split of one snapshot. Tickets holds the tab's
// working set (pending or completed, depending on the subscription filter),
// TicketsTransferred the tickets routed here from another position, and
// Attending the attending-state documents.
type Projection struct {
	Tickets            []models.Ticket
	TicketsTransferred []models.Ticket
	Attending          []models.Ticket
}

// Project partitions a snapshot. Every ticket lands in exactly one of the
// three sets.
func Project(snapshot []models.Ticket) Projection {
	var p Projection
	for _, ticket := range snapshot {
		switch ticket.State {
		case models.StateTransferred:
			p.TicketsTransferred = append(p.TicketsTransferred, ticket)
		case models.StateAttending:
			p.Attending = append(p.Attending, ticket)
		default:
			p.Tickets = append(p.Tickets, ticket)
		}
	}
	return p
}

// Session pairs the attending ticket with the local wall-clock instant the
// console first saw it attending. StartAt only renders elapsed time; it is
// never persisted.
type Session struct {
	Ticket  models.Ticket
	StartAt time.Time
}

// ReduceSession decides the next attending session from the current one and
// the attending documents of a fresh snapshot. An already-held session whose
// ticket is still attending survives with its StartAt untouched, so the
// visible timer does not reset on every snapshot.
func ReduceSession(current *Session, attending []models.Ticket, now time.Time) *Session {
	if len(attending) == 0 {
		return nil
	}
	if current != nil {
		for _, ticket := range attending {
			if ticket.TicketID == current.Ticket.TicketID {
				return &Session{Ticket: ticket, StartAt: current.StartAt}
			}
		}
	}
	return &Session{Ticket: attending[0], StartAt: now}
}

// Elapsed is the display math for the attending timer.
func (s *Session) Elapsed(now time.Time) time.Duration {
	if s == nil {
		return 0
	}
	return now.Sub(s.StartAt)
}
