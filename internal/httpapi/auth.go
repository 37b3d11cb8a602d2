package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"pontiapp/attention-service/internal/store"
)

type authContextKey struct{}

type authInfo struct {
	Session   store.Session
	Positions []string
}

func AuthMiddleware(st store.TicketStore, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicEndpoint(r) {
			next.ServeHTTP(w, r)
			return
		}
		sessionID := sessionIDFromRequest(r)
		if sessionID == "" {
			writeError(w, "", http.StatusUnauthorized, "unauthorized", "missing session")
			return
		}
		session, err := st.GetSession(r.Context(), sessionID)
		if err != nil {
			if errors.Is(err, store.ErrSessionNotFound) {
				writeError(w, "", http.StatusUnauthorized, "unauthorized", "invalid session")
				return
			}
			writeError(w, "", http.StatusInternalServerError, "internal_error", "internal server error")
			return
		}
		positions, err := st.GetAccess(r.Context(), session.UserID)
		if err != nil {
			writeError(w, "", http.StatusInternalServerError, "internal_error", "access lookup failed")
			return
		}
		ctx := context.WithValue(r.Context(), authContextKey{}, authInfo{Session: session, Positions: positions})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func accessFromContext(ctx context.Context) (authInfo, bool) {
	value := ctx.Value(authContextKey{})
	if value == nil {
		return authInfo{}, false
	}
	info, ok := value.(authInfo)
	if !ok {
		return authInfo{}, false
	}
	return info, true
}

// An empty position list grants access everywhere (admin sessions).
func requirePositionAccess(w http.ResponseWriter, r *http.Request, positionID string) bool {
	info, ok := accessFromContext(r.Context())
	if !ok {
		writeError(w, "", http.StatusUnauthorized, "unauthorized", "missing session")
		return false
	}
	if len(info.Positions) == 0 {
		return true
	}
	if !contains(info.Positions, positionID) {
		writeError(w, "", http.StatusForbidden, "access_denied", "position access denied")
		return false
	}
	return true
}

func contains(values []string, value string) bool {
	for _, item := range values {
		if item == value {
			return true
		}
	}
	return false
}

func sessionIDFromRequest(r *http.Request) string {
	if token := bearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	return strings.TrimSpace(r.Header.Get("X-Session-ID"))
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

func isPublicEndpoint(r *http.Request) bool {
	// The realtime transport authenticates its own sessions on connect.
	if strings.HasPrefix(r.URL.Path, "/realtime") {
		return true
	}
	switch r.URL.Path {
	case "/healthz", "/metrics", "/api/login":
		return true
	case "/api/tickets":
		// Registration kiosk posts without a session.
		return r.Method == http.MethodPost
	case "/api/positions":
		return r.Method == http.MethodGet
	default:
		return r.Method == http.MethodOptions
	}
}
