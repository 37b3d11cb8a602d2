package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"pontiapp/attention-service/internal/models"
	"pontiapp/attention-service/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

const offsetConsumer = "realtime"

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const ticketColumns = `ticket_id, display_name, document_id, career, period, gender, email,
	service_name, position_id, state, transfer_reason, finish_description,
	created_at, created_date, request_id, called_at, waited_until, start_at, finished_at`

func scanTicket(row pgx.Row) (models.Ticket, error) {
	var ticket models.Ticket
	var career, period, gender, email, reason, description sql.NullString
	var requestID sql.NullString
	var calledAt, waitedUntil, startAt, finishedAt sql.NullTime
	err := row.Scan(
		&ticket.TicketID, &ticket.DisplayName, &ticket.DocumentID, &career, &period, &gender, &email,
		&ticket.ServiceName, &ticket.PositionID, &ticket.State, &reason, &description,
		&ticket.CreatedAt, &ticket.CreatedDate, &requestID, &calledAt, &waitedUntil, &startAt, &finishedAt,
	)
	if err != nil {
		return models.Ticket{}, err
	}
	ticket.Career = career.String
	ticket.Period = period.String
	ticket.Gender = gender.String
	ticket.Email = email.String
	ticket.TransferReason = reason.String
	ticket.FinishDescription = description.String
	ticket.RequestID = requestID.String
	ticket.CalledAt = nullTimePtr(calledAt)
	ticket.WaitedUntil = nullTimePtr(waitedUntil)
	ticket.StartAt = nullTimePtr(startAt)
	ticket.FinishedAt = nullTimePtr(finishedAt)
	return ticket, nil
}

func (s *Store) RegisterTicket(ctx context.Context, input store.RegisterTicketInput) (models.Ticket, bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	existing, found, err := findTicketByRequestID(ctx, tx, input.RequestID)
	if err != nil {
		return models.Ticket{}, false, err
	}
	if found {
		if err = tx.Commit(ctx); err != nil {
			return models.Ticket{}, false, err
		}
		return existing, false, nil
	}

	if err = ensurePositionExists(ctx, tx, input.PositionID); err != nil {
		return models.Ticket{}, false, err
	}

	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	var insertedID string
	err = tx.QueryRow(ctx, `
		INSERT INTO tickets (
			ticket_id, request_id, display_name, document_id, career, period, gender, email,
			service_name, position_id, state, created_at, created_date
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (request_id) DO NOTHING
		RETURNING ticket_id
	`, uuid.NewString(), input.RequestID, input.DisplayName, input.DocumentID,
		nullIfEmpty(input.Career), nullIfEmpty(input.Period), nullIfEmpty(input.Gender), nullIfEmpty(input.Email),
		input.ServiceName, input.PositionID, models.StatePending, createdAt, models.DateBucket(createdAt)).Scan(&insertedID)
	if errors.Is(err, pgx.ErrNoRows) {
		// A concurrent register with the same request_id won the insert.
		existing, found, ferr := findTicketByRequestID(ctx, tx, input.RequestID)
		if ferr != nil {
			err = ferr
			return models.Ticket{}, false, err
		}
		if !found {
			err = store.ErrTicketNotFound
			return models.Ticket{}, false, err
		}
		if err = tx.Commit(ctx); err != nil {
			return models.Ticket{}, false, err
		}
		return existing, false, nil
	}
	if err != nil {
		return models.Ticket{}, false, err
	}

	ticket, err := getTicket(ctx, tx, insertedID)
	if err != nil {
		return models.Ticket{}, false, err
	}

	if err = insertOutboxEvent(ctx, tx, "ticket.pending", ticket); err != nil {
		return models.Ticket{}, false, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, false, err
	}
	return ticket, true, nil
}

func (s *Store) GetTicket(ctx context.Context, ticketID string) (models.Ticket, bool, error) {
	ticket, err := getTicket(ctx, s.pool, ticketID)
	if err != nil {
		if errors.Is(err, store.ErrTicketNotFound) {
			return models.Ticket{}, false, store.ErrTicketNotFound
		}
		return models.Ticket{}, false, err
	}
	return ticket, true, nil
}

func (s *Store) CallTicket(ctx context.Context, input store.TicketActionInput) (models.Ticket, error) {
	return s.applyAction(ctx, input, "call", func(ctx context.Context, tx pgx.Tx, ticket models.Ticket) (models.Ticket, error) {
		available, err := positionAvailable(ctx, tx, input.PositionID)
		if err != nil {
			return models.Ticket{}, err
		}
		if !available {
			return models.Ticket{}, store.ErrPositionUnavailable
		}
		_, err = tx.Exec(ctx, `
			UPDATE tickets SET state = $1, called_at = $2 WHERE ticket_id = $3
		`, models.StateCalling, input.OccurredAt, ticket.TicketID)
		if err != nil {
			return models.Ticket{}, err
		}
		return getTicket(ctx, tx, ticket.TicketID)
	})
}

func (s *Store) AttendTicket(ctx context.Context, input store.TicketActionInput) (models.Ticket, error) {
	return s.applyAction(ctx, input, "attend", func(ctx context.Context, tx pgx.Tx, ticket models.Ticket) (models.Ticket, error) {
		// One attending ticket per position: claim the position row first.
		tag, err := tx.Exec(ctx, `
			UPDATE attention_positions
			SET current_ticket_id = $1
			WHERE position_id = $2 AND current_ticket_id IS NULL
		`, ticket.TicketID, input.PositionID)
		if err != nil {
			return models.Ticket{}, err
		}
		if tag.RowsAffected() == 0 {
			return models.Ticket{}, store.ErrPositionBusy
		}
		_, err = tx.Exec(ctx, `
			UPDATE tickets SET state = $1, waited_until = $2, start_at = $2 WHERE ticket_id = $3
		`, models.StateAttending, input.OccurredAt, ticket.TicketID)
		if err != nil {
			return models.Ticket{}, err
		}
		return getTicket(ctx, tx, ticket.TicketID)
	})
}

func (s *Store) CancelTicket(ctx context.Context, input store.TicketActionInput) (models.Ticket, error) {
	return s.applyAction(ctx, input, "cancel", func(ctx context.Context, tx pgx.Tx, ticket models.Ticket) (models.Ticket, error) {
		_, err := tx.Exec(ctx, `
			UPDATE tickets SET state = $1, finished_at = $2 WHERE ticket_id = $3
		`, models.StateCancelled, input.OccurredAt, ticket.TicketID)
		if err != nil {
			return models.Ticket{}, err
		}
		if err = releasePosition(ctx, tx, ticket.PositionID, ticket.TicketID); err != nil {
			return models.Ticket{}, err
		}
		return getTicket(ctx, tx, ticket.TicketID)
	})
}

func (s *Store) TransferTicket(ctx context.Context, input store.TicketActionInput) (models.Ticket, error) {
	return s.applyAction(ctx, input, "transfer", func(ctx context.Context, tx pgx.Tx, ticket models.Ticket) (models.Ticket, error) {
		if err := ensurePositionExists(ctx, tx, input.TargetPositionID); err != nil {
			return models.Ticket{}, err
		}
		_, err := tx.Exec(ctx, `
			UPDATE tickets
			SET state = $1, position_id = $2, transfer_reason = $3,
				called_at = NULL, waited_until = NULL, start_at = NULL
			WHERE ticket_id = $4
		`, models.StateTransferred, input.TargetPositionID, input.Reason, ticket.TicketID)
		if err != nil {
			return models.Ticket{}, err
		}
		if err = releasePosition(ctx, tx, ticket.PositionID, ticket.TicketID); err != nil {
			return models.Ticket{}, err
		}
		return getTicket(ctx, tx, ticket.TicketID)
	})
}

func (s *Store) FinishTicket(ctx context.Context, input store.TicketActionInput) (models.Ticket, error) {
	return s.applyAction(ctx, input, "finish", func(ctx context.Context, tx pgx.Tx, ticket models.Ticket) (models.Ticket, error) {
		_, err := tx.Exec(ctx, `
			UPDATE tickets SET state = $1, finish_description = $2, finished_at = $3 WHERE ticket_id = $4
		`, models.StateCompleted, input.Description, input.OccurredAt, ticket.TicketID)
		if err != nil {
			return models.Ticket{}, err
		}
		if err = releasePosition(ctx, tx, ticket.PositionID, ticket.TicketID); err != nil {
			return models.Ticket{}, err
		}
		return getTicket(ctx, tx, ticket.TicketID)
	})
}

type actionFn func(ctx context.Context, tx pgx.Tx, ticket models.Ticket) (models.Ticket, error)

func (s *Store) applyAction(ctx context.Context, input store.TicketActionInput, action string, apply actionFn) (models.Ticket, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	ticket, err := lockTicket(ctx, tx, input.TicketID)
	if err != nil {
		return models.Ticket{}, err
	}
	if !store.ValidTransition(action, ticket.State) {
		err = store.ErrInvalidState
		return models.Ticket{}, err
	}
	if input.PositionID != "" && ticket.PositionID != input.PositionID {
		err = store.ErrPositionMismatch
		return models.Ticket{}, err
	}

	updated, err := apply(ctx, tx, ticket)
	if err != nil {
		return models.Ticket{}, err
	}

	if err = insertOutboxEvent(ctx, tx, "ticket."+updated.State, updated); err != nil {
		return models.Ticket{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, err
	}
	return updated, nil
}

func (s *Store) SnapshotTickets(ctx context.Context, filter store.SnapshotFilter) ([]models.Ticket, error) {
	states := []string{models.StateTransferred, models.StateAttending}
	if filter.IncludeState != "" {
		states = append(states, filter.IncludeState)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets
		WHERE position_id = $1 AND created_date = $2 AND state = ANY($3)
		ORDER BY created_at ASC
	`, filter.PositionID, filter.Date, states)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickets []models.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, ticket)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tickets, nil
}

func (s *Store) GetActiveTicket(ctx context.Context, positionID string) (models.Ticket, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets
		WHERE position_id = $1 AND state = $2
		ORDER BY start_at DESC
		LIMIT 1
	`, positionID, models.StateAttending)
	ticket, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Ticket{}, false, nil
		}
		return models.Ticket{}, false, err
	}
	return ticket, true, nil
}

func (s *Store) ListPositions(ctx context.Context, businessUnit string) ([]models.AttentionPosition, error) {
	query := `
		SELECT position_id, name, short_name, business_unit, available, background, current_ticket_id
		FROM attention_positions
	`
	args := []interface{}{}
	if businessUnit != "" {
		query += " WHERE business_unit = $1"
		args = append(args, businessUnit)
	}
	query += " ORDER BY short_name ASC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []models.AttentionPosition
	for rows.Next() {
		var position models.AttentionPosition
		var background sql.NullString
		var current sql.NullString
		if err := rows.Scan(&position.PositionID, &position.Name, &position.ShortName, &position.BusinessUnit, &position.Available, &background, &current); err != nil {
			return nil, err
		}
		position.Background = background.String
		position.Current = nullStringPtr(current)
		positions = append(positions, position)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return positions, nil
}

func (s *Store) UpdatePositionAvailability(ctx context.Context, positionID string, available bool) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE attention_positions SET available = $1 WHERE position_id = $2
	`, available, positionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrPositionNotFound
	}
	return nil
}

func (s *Store) ListOutboxEvents(ctx context.Context, offset store.OutboxOffset, limit int) ([]store.OutboxEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT event_id, type, payload_json, created_at
		FROM ticket_outbox
		WHERE (created_at, event_id) > ($1, $2)
		ORDER BY created_at ASC, event_id ASC
		LIMIT $3
	`, offset.LastEventTime, offset.LastEventID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []store.OutboxEvent
	for rows.Next() {
		var event store.OutboxEvent
		if err := rows.Scan(&event.EventID, &event.Type, &event.Payload, &event.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func (s *Store) GetOffset(ctx context.Context) (store.OutboxOffset, error) {
	var offset store.OutboxOffset
	var lastTime sql.NullTime
	var lastID sql.NullString
	row := s.pool.QueryRow(ctx, `
		SELECT last_event_time, last_event_id FROM realtime_offsets WHERE consumer = $1
	`, offsetConsumer)
	if err := row.Scan(&lastTime, &lastID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.OutboxOffset{}, nil
		}
		return store.OutboxOffset{}, err
	}
	if lastTime.Valid {
		offset.LastEventTime = lastTime.Time
	}
	offset.LastEventID = lastID.String
	return offset, nil
}

func (s *Store) UpdateOffset(ctx context.Context, offset store.OutboxOffset) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO realtime_offsets (consumer, last_event_time, last_event_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (consumer) DO UPDATE SET last_event_time = $2, last_event_id = $3
	`, offsetConsumer, offset.LastEventTime, offset.LastEventID)
	return err
}

func (s *Store) CleanupOutbox(ctx context.Context, before time.Time) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM ticket_outbox WHERE created_at < $1`, before)
	return err
}

func (s *Store) Login(ctx context.Context, email, password string, expiresAt time.Time) (store.Session, error) {
	var userID string
	var passwordHash string
	row := s.pool.QueryRow(ctx, `
		SELECT user_id, password_hash FROM users WHERE lower(email) = lower($1) AND active = TRUE
	`, email)
	if err := row.Scan(&userID, &passwordHash); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Session{}, store.ErrBadCredentials
		}
		return store.Session{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(password)); err != nil {
		return store.Session{}, store.ErrBadCredentials
	}

	session := store.Session{
		SessionID: uuid.NewString(),
		UserID:    userID,
		Email:     strings.ToLower(email),
		ExpiresAt: expiresAt,
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (session_id, user_id, expires_at) VALUES ($1, $2, $3)
	`, session.SessionID, session.UserID, session.ExpiresAt)
	if err != nil {
		return store.Session{}, err
	}
	return session, nil
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (store.Session, error) {
	var session store.Session
	row := s.pool.QueryRow(ctx, `
		SELECT s.session_id, s.user_id, u.email, s.expires_at
		FROM sessions s
		JOIN users u ON u.user_id = s.user_id
		WHERE s.session_id = $1 AND s.expires_at > now()
	`, sessionID)
	if err := row.Scan(&session.SessionID, &session.UserID, &session.Email, &session.ExpiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Session{}, store.ErrSessionNotFound
		}
		return store.Session{}, err
	}
	return session, nil
}

func (s *Store) GetAccess(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT position_id FROM user_positions WHERE user_id = $1
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []string
	for rows.Next() {
		var positionID string
		if err := rows.Scan(&positionID); err != nil {
			return nil, err
		}
		positions = append(positions, positionID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return positions, nil
}

type queryer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getTicket(ctx context.Context, q queryer, ticketID string) (models.Ticket, error) {
	row := q.QueryRow(ctx, `
		SELECT `+ticketColumns+` FROM tickets WHERE ticket_id = $1
	`, ticketID)
	ticket, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Ticket{}, store.ErrTicketNotFound
		}
		return models.Ticket{}, err
	}
	return ticket, nil
}

func lockTicket(ctx context.Context, tx pgx.Tx, ticketID string) (models.Ticket, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+ticketColumns+` FROM tickets WHERE ticket_id = $1 FOR UPDATE
	`, ticketID)
	ticket, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Ticket{}, store.ErrTicketNotFound
		}
		return models.Ticket{}, err
	}
	return ticket, nil
}

func findTicketByRequestID(ctx context.Context, tx pgx.Tx, requestID string) (models.Ticket, bool, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+ticketColumns+` FROM tickets WHERE request_id = $1
	`, requestID)
	ticket, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Ticket{}, false, nil
		}
		return models.Ticket{}, false, err
	}
	return ticket, true, nil
}

func ensurePositionExists(ctx context.Context, tx pgx.Tx, positionID string) error {
	var exists bool
	row := tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM attention_positions WHERE position_id = $1)
	`, positionID)
	if err := row.Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return store.ErrPositionNotFound
	}
	return nil
}

func positionAvailable(ctx context.Context, tx pgx.Tx, positionID string) (bool, error) {
	var available bool
	row := tx.QueryRow(ctx, `
		SELECT available FROM attention_positions WHERE position_id = $1
	`, positionID)
	if err := row.Scan(&available); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, store.ErrPositionNotFound
		}
		return false, err
	}
	return available, nil
}

func releasePosition(ctx context.Context, tx pgx.Tx, positionID, ticketID string) error {
	_, err := tx.Exec(ctx, `
		UPDATE attention_positions
		SET current_ticket_id = NULL
		WHERE position_id = $1 AND current_ticket_id = $2
	`, positionID, ticketID)
	return err
}

func insertOutboxEvent(ctx context.Context, tx pgx.Tx, eventType string, ticket models.Ticket) error {
	payload, err := json.Marshal(ticket)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO ticket_outbox (event_id, type, payload_json, created_at)
		VALUES ($1, $2, $3, now())
	`, uuid.NewString(), eventType, payload)
	return err
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}

func nullTimePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	t := value.Time
	return &t
}

func nullStringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	v := value.String
	return &v
}
