package console

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"pontiapp/attention-service/internal/models"
)

// Lifecycle is what the console needs from the backend: the five ticket
// transitions, fire-and-forget with no retries.
type Lifecycle interface {
	Call(ctx context.Context, ticketID string) (models.Ticket, error)
	Attend(ctx context.Context, ticketID string) (models.Ticket, error)
	Cancel(ctx context.Context, ticketID string) (models.Ticket, error)
	Transfer(ctx context.Context, ticketID, targetPositionID, reason string) (models.Ticket, error)
	Finish(ctx context.Context, ticketID, description string) (models.Ticket, error)
}

// RemoteError is a rejection from the backend, carrying its error envelope.
type RemoteError struct {
	Status  int
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote rejection %d %s: %s", e.Status, e.Code, e.Message)
}

// Client talks to the attention-service HTTP API for one position.
type Client struct {
	baseURL    string
	positionID string
	sessionID  string
	httpClient *http.Client
}

func NewClient(baseURL, positionID, sessionID string) *Client {
	return &Client{
		baseURL:    baseURL,
		positionID: positionID,
		sessionID:  sessionID,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) Call(ctx context.Context, ticketID string) (models.Ticket, error) {
	return c.action(ctx, ticketID, "call", map[string]string{"position_id": c.positionID})
}

func (c *Client) Attend(ctx context.Context, ticketID string) (models.Ticket, error) {
	return c.action(ctx, ticketID, "attend", map[string]string{"position_id": c.positionID})
}

func (c *Client) Cancel(ctx context.Context, ticketID string) (models.Ticket, error) {
	return c.action(ctx, ticketID, "cancel", map[string]string{"position_id": c.positionID})
}

func (c *Client) Transfer(ctx context.Context, ticketID, targetPositionID, reason string) (models.Ticket, error) {
	return c.action(ctx, ticketID, "transfer", map[string]string{
		"position_id":        c.positionID,
		"target_position_id": targetPositionID,
		"reason":             reason,
	})
}

func (c *Client) Finish(ctx context.Context, ticketID, description string) (models.Ticket, error) {
	return c.action(ctx, ticketID, "finish", map[string]string{
		"position_id": c.positionID,
		"description": description,
	})
}

// Snapshot bootstraps or refreshes the projection for the position.
func (c *Client) Snapshot(ctx context.Context, date, state string) ([]models.Ticket, error) {
	query := url.Values{}
	query.Set("position_id", c.positionID)
	if date != "" {
		query.Set("date", date)
	}
	if state != "" {
		query.Set("state", state)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tickets/snapshot?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.sessionID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeRemoteError(resp)
	}

	var tickets []models.Ticket
	if err := json.NewDecoder(resp.Body).Decode(&tickets); err != nil {
		return nil, err
	}
	return tickets, nil
}

func (c *Client) action(ctx context.Context, ticketID, action string, body map[string]string) (models.Ticket, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return models.Ticket{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/tickets/"+ticketID+"/"+action, bytes.NewReader(payload))
	if err != nil {
		return models.Ticket{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.sessionID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.Ticket{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.Ticket{}, decodeRemoteError(resp)
	}

	var ticket models.Ticket
	if err := json.NewDecoder(resp.Body).Decode(&ticket); err != nil {
		return models.Ticket{}, err
	}
	return ticket, nil
}

func decodeRemoteError(resp *http.Response) error {
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil || envelope.Error.Code == "" {
		return &RemoteError{Status: resp.StatusCode, Code: "unknown", Message: resp.Status}
	}
	return &RemoteError{Status: resp.StatusCode, Code: envelope.Error.Code, Message: envelope.Error.Message}
}
