package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/rl1809/order-pipeline/internal/core/domain"
	"github.com/rl1809/order-pipeline/internal/core/service"
)

const (
	headerUserID         = "X-User-ID"
	headerUserEmail      = "X-User-Email"
	headerIdempotencyKey = "Idempotency-Key"

	maxBodyBytes = 1 << 20
)

type HTTPHandler struct {
	orderService   *service.OrderService
	productService *service.ProductService
	logger         *zap.Logger
}

type PlaceOrderHTTPRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type UpdateStatusHTTPRequest struct {
	Status string `json:"status"`
}

type ProductHTTPRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Price       int64  `json:"price"`
	Quantity    int    `json:"quantity"`
	SKU         string `json:"sku"`
	ImageURL    string `json:"imageUrl"`
}

type ProductPatchHTTPRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Category    *string `json:"category"`
	Price       *int64  `json:"price"`
	Quantity    *int    `json:"quantity"`
	SKU         *string `json:"sku"`
	ImageURL    *string `json:"imageUrl"`
}

type ProductResponse struct {
	ID          string    `json:"productId"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Price       int64     `json:"price"`
	Quantity    int       `json:"quantity"`
	SKU         string    `json:"sku"`
	ImageURL    string    `json:"imageUrl,omitempty"`
	LowStock    bool      `json:"lowStock"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type OrderResponse struct {
	ID          string             `json:"orderId"`
	UserID      string             `json:"userId"`
	UserEmail   string             `json:"userEmail"`
	Items       []domain.OrderItem `json:"items"`
	TotalAmount int64              `json:"totalAmount"`
	Status      string             `json:"status"`
	CreatedAt   time.Time          `json:"createdAt"`
	UpdatedAt   time.Time          `json:"updatedAt"`
}

type PageResponse[T any] struct {
	Items     []T    `json:"items"`
	NextToken string `json:"nextToken,omitempty"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	Available *int   `json:"available,omitempty"`
	Requested *int   `json:"requested,omitempty"`
}

func NewHTTPHandler(orderService *service.OrderService, productService *service.ProductService, logger *zap.Logger) *HTTPHandler {
	return &HTTPHandler{orderService: orderService, productService: productService, logger: logger}
}

// Routes mounts the API on a chi router. Extra handlers (metrics) may be
// mounted by the caller.
func (h *HTTPHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.HealthCheck)

	r.Route("/api/orders", func(r chi.Router) {
		r.Post("/", h.PlaceOrder)
		r.Get("/", h.ListOrders)
		r.Get("/{id}", h.GetOrder)
		r.Patch("/{id}/status", h.UpdateOrderStatus)
	})

	r.Route("/api/products", func(r chi.Router) {
		r.Post("/", h.CreateProduct)
		r.Get("/", h.ListProducts)
		r.Get("/low-stock", h.LowStockProducts)
		r.Get("/{id}", h.GetProduct)
		r.Patch("/{id}", h.UpdateProduct)
		r.Delete("/{id}", h.DeleteProduct)
	})
	return r
}

func (h *HTTPHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req PlaceOrderHTTPRequest
	if !h.decode(w, r, &req) {
		return
	}

	order, err := h.orderService.PlaceOrder(r.Context(), service.PlaceOrderInput{
		RequestID: r.Header.Get(headerIdempotencyKey),
		UserID:    r.Header.Get(headerUserID),
		UserEmail: r.Header.Get(headerUserEmail),
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(order))
}

func (h *HTTPHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orderService.GetOrder(r.Context(), chi.URLParam(r, "id"), r.Header.Get(headerUserID))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *HTTPHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, ok := parseLimit(w, q.Get("limit"))
	if !ok {
		return
	}

	page, err := h.orderService.ListOrders(r.Context(), r.Header.Get(headerUserID), domain.OrderFilter{
		Status:   domain.OrderStatus(q.Get("status")),
		PageSize: limit,
		Cursor:   q.Get("nextToken"),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := PageResponse[OrderResponse]{Items: make([]OrderResponse, 0, len(page.Items)), NextToken: page.Cursor}
	for i := range page.Items {
		resp.Items = append(resp.Items, toOrderResponse(&page.Items[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *HTTPHandler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateStatusHTTPRequest
	if !h.decode(w, r, &req) {
		return
	}

	order, err := h.orderService.UpdateStatus(r.Context(), chi.URLParam(r, "id"), domain.OrderStatus(req.Status))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *HTTPHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req ProductHTTPRequest
	if !h.decode(w, r, &req) {
		return
	}

	product, err := h.productService.CreateProduct(r.Context(), domain.NewProduct{
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		Price:       req.Price,
		Quantity:    req.Quantity,
		SKU:         req.SKU,
		ImageURL:    req.ImageURL,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.toProductResponse(product))
}

func (h *HTTPHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.productService.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toProductResponse(product))
}

func (h *HTTPHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req ProductPatchHTTPRequest
	if !h.decode(w, r, &req) {
		return
	}

	product, err := h.productService.UpdateProduct(r.Context(), chi.URLParam(r, "id"), domain.ProductPatch{
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		Price:       req.Price,
		Quantity:    req.Quantity,
		SKU:         req.SKU,
		ImageURL:    req.ImageURL,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toProductResponse(product))
}

func (h *HTTPHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.productService.DeleteProduct(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, ok := parseLimit(w, q.Get("limit"))
	if !ok {
		return
	}

	page, err := h.productService.ListProducts(r.Context(), domain.ProductFilter{
		Category: q.Get("category"),
		Search:   q.Get("search"),
		PageSize: limit,
		Cursor:   q.Get("nextToken"),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := PageResponse[ProductResponse]{Items: make([]ProductResponse, 0, len(page.Items)), NextToken: page.Cursor}
	for i := range page.Items {
		resp.Items = append(resp.Items, h.toProductResponse(&page.Items[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *HTTPHandler) LowStockProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.productService.LowStockProducts(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	items := make([]ProductResponse, 0, len(products))
	for i := range products {
		items = append(items, h.toProductResponse(&products[i]))
	}
	writeJSON(w, http.StatusOK, PageResponse[ProductResponse]{Items: items})
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return false
	}
	return true
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var stockErr *domain.InsufficientStockError
	switch {
	case errors.As(err, &stockErr):
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:     "insufficient stock",
			Available: &stockErr.Available,
			Requested: &stockErr.Requested,
		})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "not found"})
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrInvalidTransition):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrDuplicateRequest):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: "duplicate request"})
	case errors.Is(err, domain.ErrAlreadyExists):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: "already exists"})
	default:
		h.logger.Error("http_request_failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}

func (h *HTTPHandler) toProductResponse(p *domain.Product) ProductResponse {
	return ProductResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Category:    p.Category,
		Price:       p.Price,
		Quantity:    p.Quantity,
		SKU:         p.SKU,
		ImageURL:    p.ImageURL,
		LowStock:    p.LowStock(h.productService.LowStockThreshold()),
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func toOrderResponse(o *domain.Order) OrderResponse {
	return OrderResponse{
		ID:          o.ID,
		UserID:      o.UserID,
		UserEmail:   o.UserEmail,
		Items:       o.Items,
		TotalAmount: o.TotalAmount,
		Status:      string(o.Status),
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
	}
}

func parseLimit(w http.ResponseWriter, raw string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "limit must be a positive integer"})
		return 0, false
	}
	return n, true
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
