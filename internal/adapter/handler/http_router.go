package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const requestIDHeader = "X-Request-ID"

type ctxKey int

const requestIDKey ctxKey = iota

var timeNow = time.Now

type authedHandlerFunc func(w http.ResponseWriter, r *http.Request, actorID int64)

// Routes registers every endpoint on a fresh mux. Each request gets at most
// timeout to finish when timeout is positive.
func (h *HTTPHandler) Routes(timeout time.Duration) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.HealthCheck)

	mux.HandleFunc("POST /api/register", h.Register)
	mux.HandleFunc("POST /api/login", h.Login)
	mux.HandleFunc("GET /api/me", h.authenticated(h.Me))

	mux.HandleFunc("GET /api/products", h.ListProducts)
	mux.HandleFunc("GET /api/products/{id}", h.GetProduct)

	mux.HandleFunc("POST /api/orders", h.authenticated(h.PlaceOrder))
	mux.HandleFunc("GET /api/orders", h.authenticated(h.MyOrders))

	mux.HandleFunc("POST /api/admin/products", h.authenticated(h.AddProduct))
	mux.HandleFunc("PUT /api/admin/products/{id}/stock", h.authenticated(h.UpdateStock))
	mux.HandleFunc("DELETE /api/admin/products/{id}", h.authenticated(h.DeleteProduct))
	mux.HandleFunc("GET /api/admin/users", h.authenticated(h.ListUsers))
	mux.HandleFunc("PUT /api/admin/users/{id}/role", h.authenticated(h.SetUserRole))
	mux.HandleFunc("POST /api/admin/users/{id}/toggle-block", h.authenticated(h.ToggleBlock))
	mux.HandleFunc("GET /api/admin/sales", h.authenticated(h.Sales))
	mux.HandleFunc("GET /api/admin/orders", h.authenticated(h.RecentOrders))

	return h.withRequestID(h.withTimeout(timeout, mux))
}

// authenticated resolves the bearer token to a user ID. Role and blocked
// state are checked by the services against the stored user.
func (h *HTTPHandler) authenticated(next authedHandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing bearer token"})
			return
		}

		actorID, err := h.tokens.Parse(token)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid token"})
			return
		}
		next(w, r, actorID)
	}
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (h *HTTPHandler) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))

		h.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", id),
		)
	})
}

func (h *HTTPHandler) withTimeout(timeout time.Duration, next http.Handler) http.Handler {
	if timeout <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
