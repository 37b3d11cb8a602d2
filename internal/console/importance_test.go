package console

import (
	"testing"
	"time"

	"pontiapp/attention-service/internal/models"
)

func waitingTicket(id string, wait time.Duration, now time.Time) models.Ticket {
	return models.Ticket{TicketID: id, State: models.StatePending, CreatedAt: now.Add(-wait)}
}

func TestClassifyAgainstMeanWait(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	a := waitingTicket("a", 10*time.Minute, now)
	b := waitingTicket("b", 5*time.Minute, now)
	c := waitingTicket("c", 2*time.Minute, now)
	visible := []models.Ticket{a, b, c}

	// mean = 5m40s; 1.5x mean = 8m30s
	if got := Classify(a, visible, now); got != VeryImportant {
		t.Fatalf("ticket a: got %s, want very-important", got)
	}
	if got := Classify(b, visible, now); got != Normal {
		t.Fatalf("ticket b: got %s, want normal", got)
	}
	if got := Classify(c, visible, now); got != Normal {
		t.Fatalf("ticket c: got %s, want normal", got)
	}
}

func TestClassifyImportantTier(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	a := waitingTicket("a", 12*time.Minute, now)
	b := waitingTicket("b", 10*time.Minute, now)
	c := waitingTicket("c", 8*time.Minute, now)
	visible := []models.Ticket{a, b, c}

	// mean = 10m; a is above the mean but below 15m.
	if got := Classify(a, visible, now); got != Important {
		t.Fatalf("ticket a: got %s, want important", got)
	}
	if got := Classify(b, visible, now); got != Normal {
		t.Fatalf("ticket b: got %s, want normal", got)
	}
}

func TestClassifyMonotonicInWait(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	var visible []models.Ticket
	for i, wait := range []time.Duration{time.Minute, 3 * time.Minute, 7 * time.Minute, 11 * time.Minute, 20 * time.Minute} {
		visible = append(visible, waitingTicket(string(rune('a'+i)), wait, now))
	}

	previous := VeryImportant + 1
	for i := len(visible) - 1; i >= 0; i-- {
		grade := Classify(visible[i], visible, now)
		if grade > previous {
			t.Fatalf("ticket with shorter wait graded higher: %s > %s", grade, previous)
		}
		previous = grade
	}
}

func TestClassifyEmptySetIsNormal(t *testing.T) {
	now := time.Now()
	ticket := waitingTicket("a", time.Hour, now)
	if got := Classify(ticket, nil, now); got != Normal {
		t.Fatalf("expected normal with empty visible set, got %s", got)
	}
}

func TestImportanceString(t *testing.T) {
	cases := map[Importance]string{
		Normal:        "normal",
		Important:     "important",
		VeryImportant: "very-important",
	}
	for grade, want := range cases {
		if got := grade.String(); got != want {
			t.Fatalf("got %s, want %s", got, want)
		}
	}
}
