package service

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/rl1809/order-pipeline/internal/core/domain"
	"github.com/rl1809/order-pipeline/internal/port"
)

const (
	useCasePlaceOrder   = "order.place"
	useCaseGetOrder     = "order.get"
	useCaseListOrders   = "order.list"
	useCaseUpdateStatus = "order.update_status"
)

type PlaceOrderInput struct {
	// RequestID is an optional client idempotency key.
	RequestID string
	UserID    string
	UserEmail string
	ProductID string
	Quantity  int
}

// OrderService coordinates a placement across the inventory ledger, the order
// store and the confirmation queue. The three writes are not atomic; a failure
// after the decrement is logged as inventory_order_divergence and not compensated.
type OrderService struct {
	products  port.ProductRepository
	orders    port.OrderRepository
	publisher port.MessagePublisher
	opts      options
}

func NewOrderService(products port.ProductRepository, orders port.OrderRepository, publisher port.MessagePublisher, opts ...Option) *OrderService {
	return &OrderService{
		products:  products,
		orders:    orders,
		publisher: publisher,
		opts:      newOptions(opts),
	}
}

func (s *OrderService) PlaceOrder(ctx context.Context, in PlaceOrderInput) (_ *domain.Order, err error) {
	ctx, uc := s.opts.begin(ctx, useCasePlaceOrder, "PlaceOrder",
		attribute.String("order.user_id", in.UserID),
		attribute.String("order.product_id", in.ProductID),
		attribute.Int("order.quantity", in.Quantity),
	)
	uc.with(zap.String("user_id", in.UserID), zap.String("product_id", in.ProductID), zap.Int("quantity", in.Quantity))
	defer func() { uc.done(err) }()

	if err := validatePlaceOrder(&in); err != nil {
		return nil, err
	}

	var decremented bool
	if s.opts.idempotency != nil && in.RequestID != "" {
		requestKey := in.UserID + ":" + in.RequestID
		claimed, claimErr := s.opts.idempotency.Claim(ctx, requestKey)
		if claimErr != nil {
			return nil, domain.Transient("claim request id", claimErr)
		}
		if !claimed {
			return nil, domain.ErrDuplicateRequest
		}
		// A request that failed before the decrement had no side effect and may be retried.
		defer func() {
			if err == nil || decremented {
				return
			}
			if relErr := s.opts.idempotency.Release(context.WithoutCancel(ctx), requestKey); relErr != nil {
				uc.log.Warn("idempotency_release_failed", zap.String("request_id", in.RequestID), zap.Error(relErr))
			}
		}()
	}

	product, err := s.products.Get(ctx, in.ProductID)
	if err != nil {
		return nil, err
	}

	updated, err := s.products.DecreaseQuantity(ctx, product.ID, in.Quantity)
	if err != nil {
		return nil, err
	}
	decremented = true

	if updated.LowStock(s.opts.lowStockThreshold) {
		uc.log.Warn("product_low_stock",
			zap.String("product_id", updated.ID),
			zap.Int("quantity", updated.Quantity),
			zap.Int("threshold", s.opts.lowStockThreshold),
		)
	}

	items := []domain.OrderItem{domain.NewOrderItem(*product, in.Quantity)}
	order, err := s.orders.Create(ctx, in.UserID, in.UserEmail, items, domain.TotalAmount(items))
	if err != nil {
		s.divergence(uc, "order_create", in, "", err)
		return nil, domain.Transient("create order", err)
	}
	uc.with(zap.String("order_id", order.ID))

	msg := domain.NewConfirmationMessage(order)
	body, err := msg.Encode()
	if err != nil {
		s.divergence(uc, "publish", in, order.ID, err)
		return nil, fmt.Errorf("encode confirmation: %w", err)
	}
	if _, err := s.publisher.Publish(ctx, body, msg.Attributes()); err != nil {
		s.divergence(uc, "publish", in, order.ID, err)
		return nil, domain.Transient("publish confirmation", err)
	}

	return order, nil
}

// divergence records a placement that decremented stock but did not complete.
func (s *OrderService) divergence(uc *useCase, step string, in PlaceOrderInput, orderID string, err error) {
	s.opts.metrics.CountDivergence(step)
	uc.log.Error("inventory_order_divergence",
		zap.String("step", step),
		zap.String("product_id", in.ProductID),
		zap.Int("quantity", in.Quantity),
		zap.String("user_id", in.UserID),
		zap.String("order_id", orderID),
		zap.Error(err),
	)
}

// GetOrder reports ErrNotFound both for absent orders and for orders owned by someone else.
func (s *OrderService) GetOrder(ctx context.Context, id, userID string) (_ *domain.Order, err error) {
	ctx, uc := s.opts.begin(ctx, useCaseGetOrder, "GetOrder", attribute.String("order.id", id))
	uc.with(zap.String("order_id", id), zap.String("user_id", userID))
	defer func() { uc.done(err) }()

	if id == "" || userID == "" {
		return nil, domain.Validation("order id and user id are required")
	}
	return s.orders.GetForOwner(ctx, id, userID)
}

func (s *OrderService) ListOrders(ctx context.Context, userID string, filter domain.OrderFilter) (_ domain.OrderPage, err error) {
	ctx, uc := s.opts.begin(ctx, useCaseListOrders, "ListOrders", attribute.String("order.user_id", userID))
	uc.with(zap.String("user_id", userID), zap.String("status", string(filter.Status)))
	defer func() { uc.done(err) }()

	if userID == "" {
		return domain.OrderPage{}, domain.Validation("user id is required")
	}
	if err := validateOrderFilter(filter); err != nil {
		return domain.OrderPage{}, err
	}
	return s.orders.ListForOwner(ctx, userID, filter)
}

// UpdateStatus moves an order forward along the status graph.
func (s *OrderService) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) (_ *domain.Order, err error) {
	ctx, uc := s.opts.begin(ctx, useCaseUpdateStatus, "UpdateStatus",
		attribute.String("order.id", id),
		attribute.String("order.status", string(status)),
	)
	uc.with(zap.String("order_id", id), zap.String("status", string(status)))
	defer func() { uc.done(err) }()

	if !status.Valid() {
		return nil, domain.Validation(fmt.Sprintf("unknown order status %q", status))
	}

	current, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !current.Status.CanTransitionTo(status) {
		return nil, fmt.Errorf("%w: %s to %s", domain.ErrInvalidTransition, current.Status, status)
	}
	return s.orders.TransitionStatus(ctx, id, current.Status, status)
}

func (s *OrderService) ConfirmOrder(ctx context.Context, id string) (*domain.Order, error) {
	return s.UpdateStatus(ctx, id, domain.OrderStatusConfirmed)
}
