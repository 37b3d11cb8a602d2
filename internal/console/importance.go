package console

import (
	"time"

	"pontiapp/attention-service/internal/models"
)

type Importance int

const (
	Normal Importance = iota
	Important
	VeryImportant
)

func (i Importance) String() string {
	switch i {
	case Important:
		return "important"
	case VeryImportant:
		return "very-important"
	default:
		return "normal"
	}
}

// Wait is how long the ticket has been in the queue.
func Wait(ticket models.Ticket, now time.Time) time.Duration {
	return now.Sub(ticket.CreatedAt)
}

// Classify grades a ticket's wait against the current mean wait of the
// visible set: above the mean is important, above 1.5x the mean is
// very-important. Recomputed per call, so the grade shifts as the queue
// composition changes.
func Classify(ticket models.Ticket, visible []models.Ticket, now time.Time) Importance {
	mean := meanWait(visible, now)
	if mean <= 0 {
		return Normal
	}
	wait := Wait(ticket, now)
	if wait > time.Duration(float64(mean)*1.5) {
		return VeryImportant
	}
	if wait > mean {
		return Important
	}
	return Normal
}

func meanWait(tickets []models.Ticket, now time.Time) time.Duration {
	if len(tickets) == 0 {
		return 0
	}
	var total time.Duration
	for _, ticket := range tickets {
		total += Wait(ticket, now)
	}
	return total / time.Duration(len(tickets))
}
