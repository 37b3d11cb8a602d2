package console

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"pontiapp/attention-service/internal/models"
)

func TestClientTransferSendsTargetAndReason(t *testing.T) {
	var gotPath string
	var gotBody map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(models.Ticket{TicketID: "t9", State: models.StateTransferred})
	}))
	defer server.Close()

	client := NewClient(server.URL, "p1", "session-1")
	ticket, err := client.Transfer(context.Background(), "t9", "p2", "sala llena")
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if ticket.State != models.StateTransferred {
		t.Fatalf("unexpected state %s", ticket.State)
	}
	if gotPath != "/api/tickets/t9/transfer" {
		t.Fatalf("unexpected path %s", gotPath)
	}
	if gotBody["position_id"] != "p1" || gotBody["target_position_id"] != "p2" || gotBody["reason"] != "sala llena" {
		t.Fatalf("unexpected body %v", gotBody)
	}
}

func TestClientDecodesRemoteRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"request_id": "",
			"error":      map[string]string{"code": "invalid_state", "message": "ticket state does not allow this action"},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "p1", "session-1")
	_, err := client.Call(context.Background(), "t1")
	if err == nil {
		t.Fatalf("expected error")
	}
	var remoteErr *RemoteError
	if !errors.As(err, &remoteErr) {
		t.Fatalf("expected RemoteError, got %T", err)
	}
	if remoteErr.Status != http.StatusConflict || remoteErr.Code != "invalid_state" {
		t.Fatalf("unexpected remote error: %+v", remoteErr)
	}
}

func TestClientSnapshotQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		if query.Get("position_id") != "p1" || query.Get("date") != "08/31/2026" || query.Get("state") != models.StatePending {
			t.Fatalf("unexpected query %v", query)
		}
		if r.Header.Get("Authorization") != "Bearer session-1" {
			t.Fatalf("missing session header")
		}
		_ = json.NewEncoder(w).Encode([]models.Ticket{{TicketID: "t1", State: models.StatePending}})
	}))
	defer server.Close()

	client := NewClient(server.URL, "p1", "session-1")
	tickets, err := client.Snapshot(context.Background(), "08/31/2026", models.StatePending)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(tickets) != 1 || tickets[0].TicketID != "t1" {
		t.Fatalf("unexpected snapshot %v", tickets)
	}
}
