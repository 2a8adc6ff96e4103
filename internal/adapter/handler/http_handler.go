package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/shop/internal/core/domain"
	"github.com/rl1809/shop/internal/core/service"
)

const idempotencyHeader = "Idempotency-Key"

// TokenIssuer signs and verifies bearer tokens carrying a user ID.
type TokenIssuer interface {
	Issue(userID int64) (string, error)
	Parse(token string) (int64, error)
}

type HTTPHandler struct {
	orders   *service.OrderService
	catalog  *service.CatalogService
	accounts *service.AccountService
	reports  *service.ReportService
	tokens   TokenIssuer
	logger   *zap.Logger
}

func NewHTTPHandler(
	orders *service.OrderService,
	catalog *service.CatalogService,
	accounts *service.AccountService,
	reports *service.ReportService,
	tokens TokenIssuer,
	logger *zap.Logger,
) *HTTPHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPHandler{
		orders:   orders,
		catalog:  catalog,
		accounts: accounts,
		reports:  reports,
		tokens:   tokens,
		logger:   logger,
	}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

type placeOrderHTTPRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type placeOrderHTTPResponse struct {
	OrderID int64 `json:"order_id"`
}

type addProductRequest struct {
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
	Stock int             `json:"stock"`
}

type stockRequest struct {
	Stock *int `json:"stock"`
}

type roleRequest struct {
	Role string `json:"role"`
}

type errorResponse struct {
	Error     string `json:"error"`
	Available *int   `json:"available,omitempty"`
	OrderID   int64  `json:"order_id,omitempty"`
}

func (h *HTTPHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.accounts.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (h *HTTPHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.accounts.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	token, err := h.tokens.Issue(user.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: token, User: user})
}

func (h *HTTPHandler) Me(w http.ResponseWriter, r *http.Request, actorID int64) {
	user, err := h.accounts.Me(r.Context(), actorID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *HTTPHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.ListProducts(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (h *HTTPHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	product, err := h.catalog.GetProduct(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (h *HTTPHandler) PlaceOrder(w http.ResponseWriter, r *http.Request, actorID int64) {
	var req placeOrderHTTPRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	orderID, err := h.orders.PlaceOrder(r.Context(), service.PlaceOrderRequest{
		RequestID: strings.TrimSpace(r.Header.Get(idempotencyHeader)),
		UserID:    actorID,
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
	})
	if errors.Is(err, domain.ErrDuplicateRequest) {
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), OrderID: orderID})
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, placeOrderHTTPResponse{OrderID: orderID})
}

func (h *HTTPHandler) MyOrders(w http.ResponseWriter, r *http.Request, actorID int64) {
	orders, err := h.orders.OrdersForUser(r.Context(), actorID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *HTTPHandler) AddProduct(w http.ResponseWriter, r *http.Request, actorID int64) {
	var req addProductRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	product, err := h.catalog.AddProduct(r.Context(), actorID, req.Name, req.Price, req.Stock)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, product)
}

func (h *HTTPHandler) UpdateStock(w http.ResponseWriter, r *http.Request, actorID int64) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req stockRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Stock == nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "stock is required"})
		return
	}

	if err := h.catalog.UpdateStock(r.Context(), actorID, id, *req.Stock); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) DeleteProduct(w http.ResponseWriter, r *http.Request, actorID int64) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.catalog.DeleteProduct(r.Context(), actorID, id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) ListUsers(w http.ResponseWriter, r *http.Request, actorID int64) {
	users, err := h.accounts.ListUsers(r.Context(), actorID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *HTTPHandler) SetUserRole(w http.ResponseWriter, r *http.Request, actorID int64) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req roleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.accounts.SetUserRole(r.Context(), actorID, id, req.Role); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) ToggleBlock(w http.ResponseWriter, r *http.Request, actorID int64) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	user, err := h.accounts.ToggleBlock(r.Context(), actorID, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *HTTPHandler) Sales(w http.ResponseWriter, r *http.Request, actorID int64) {
	sales, err := h.reports.SalesLastSevenDays(r.Context(), actorID, timeNow())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sales)
}

func (h *HTTPHandler) RecentOrders(w http.ResponseWriter, r *http.Request, actorID int64) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid limit"})
			return
		}
		limit = n
	}

	orders, err := h.reports.RecentOrders(r.Context(), actorID, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := httpStatus(err)
	resp := errorResponse{Error: err.Error()}

	var stockErr *domain.InsufficientStockError
	if errors.As(err, &stockErr) {
		available := stockErr.Available
		resp.Available = &available
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", requestIDFrom(r.Context())),
			zap.Error(err),
		)
		resp.Error = "internal error"
	}
	writeJSON(w, status, resp)
}

func httpStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrInvalidRole),
		errors.Is(err, domain.ErrInvalidProduct):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrDuplicateEmail),
		errors.Is(err, domain.ErrDuplicateRequest),
		errors.Is(err, domain.ErrProductInUse):
		return http.StatusConflict
	case errors.Is(err, domain.ErrAccountBlocked),
		errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid id"})
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
