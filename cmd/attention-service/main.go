package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"pontiapp/attention-service/internal/config"
	"pontiapp/attention-service/internal/httpapi"
	"pontiapp/attention-service/internal/hub"
	"pontiapp/attention-service/internal/store/postgres"
	"pontiapp/attention-service/internal/telemetry"

	"github.com/google/uuid"
	"github.com/igm/sockjs-go/sockjs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type eventEnvelope struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

const zeroUUID = "00000000-0000-0000-0000-000000000000"

func main() {
	cfg := config.Load()
	shutdownTelemetry := telemetry.Setup(telemetry.Config{
		ServiceName: "attention-service",
		Endpoint:    cfg.OTLPEndpoint,
		Insecure:    cfg.OTLPInsecure,
		SampleRatio: cfg.TraceSampleRatio,
	})
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer pool.Close()

	st := postgres.NewStore(pool)
	handler := httpapi.NewHandler(st, httpapi.Options{SessionTTL: cfg.SessionTTL})
	h := hub.New()
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		IPPerMinute: cfg.RateLimitPerMinute,
		IPBurst:     cfg.RateLimitBurst,
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", handler.Routes())

	sockjsHandler := sockjs.NewHandler("/realtime", sockjs.DefaultOptions, func(session sockjs.Session) {
		req := session.Request()
		sessionID := sessionIDFromRequest(req)
		if sessionID == "" {
			_ = session.Close(4001, "missing session")
			return
		}
		authSession, err := st.GetSession(context.Background(), sessionID)
		if err != nil {
			_ = session.Close(4002, "invalid session")
			return
		}
		positions, err := st.GetAccess(context.Background(), authSession.UserID)
		if err != nil {
			_ = session.Close(4003, "access lookup failed")
			return
		}

		client := &hub.Client{ID: uuid.NewString(), Send: make(chan []byte, 16)}
		h.Register(client)
		defer h.Unregister(client)

		go func() {
			for msg := range client.Send {
				_ = session.Send(string(msg))
			}
		}()

		for {
			msg, err := session.Recv()
			if err != nil {
				return
			}
			parsed, ok := hub.ParseSubscribe([]byte(msg))
			if !ok {
				continue
			}
			if parsed.Action == "unsubscribe" {
				h.UpdateSubscription(client, hub.Subscription{})
				continue
			}
			if len(positions) > 0 && !contains(positions, parsed.PositionID) {
				_ = session.Close(4003, "access denied")
				return
			}
			h.UpdateSubscription(client, hub.Subscription{
				PositionID: parsed.PositionID,
				Date:       parsed.Date,
			})
		}
	})
	mux.Handle("/realtime/", sockjsHandler)

	chain := otelhttp.NewHandler(
		httpapi.LoggingMiddleware(limiter.Middleware(httpapi.AuthMiddleware(st, mux))),
		"attention-service",
	)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      chain,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("attention-service listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	go runOutboxPoller(st, h, cfg)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

func runOutboxPoller(st *postgres.Store, h *hub.Hub, cfg config.Config) {
	offset, err := st.GetOffset(context.Background())
	if err != nil {
		log.Printf("load offset error: %v", err)
	}
	if offset.LastEventTime.IsZero() {
		offset.LastEventTime = time.Unix(0, 0).UTC()
	}
	if offset.LastEventID == "" {
		offset.LastEventID = zeroUUID
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = time.Second
	}

	var running int32
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		if !atomic.CompareAndSwapInt32(&running, 0, 1) {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		events, err := st.ListOutboxEvents(ctx, offset, cfg.PollBatchSize)
		cancel()
		if err != nil {
			log.Printf("list outbox error: %v", err)
			atomic.StoreInt32(&running, 0)
			continue
		}
		for _, event := range events {
			offset.LastEventTime = event.CreatedAt
			offset.LastEventID = event.EventID
			meta := extractMeta(event.Payload)
			envelope, _ := json.Marshal(eventEnvelope{Type: event.Type, Payload: event.Payload, CreatedAt: event.CreatedAt})
			h.Broadcast(envelope, meta)
		}
		if len(events) > 0 {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := st.UpdateOffset(ctx, offset); err != nil {
				log.Printf("update offset error: %v", err)
			}
			if cfg.OutboxRetention > 0 {
				if err := st.CleanupOutbox(ctx, time.Now().UTC().Add(-cfg.OutboxRetention)); err != nil {
					log.Printf("cleanup outbox error: %v", err)
				}
			}
			cancel()
		}
		atomic.StoreInt32(&running, 0)
	}
}

func extractMeta(payload []byte) hub.Subscription {
	var data struct {
		PositionID  string `json:"position_id"`
		CreatedDate string `json:"created_date"`
	}
	if err := json.Unmarshal(payload, &data); err != nil {
		return hub.Subscription{}
	}
	return hub.Subscription{PositionID: data.PositionID, Date: data.CreatedDate}
}

func sessionIDFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	if token := bearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	return strings.TrimSpace(r.URL.Query().Get("session_id"))
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return ""
	}
	if strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return parts[1]
}

func contains(values []string, value string) bool {
	for _, item := range values {
		if item == value {
			return true
		}
	}
	return false
}
