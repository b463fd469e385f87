// Package handler exposes the order engine over HTTP with gin.
package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/xenking/order-engine/internal/domain/cancellation"
	"github.com/xenking/order-engine/internal/domain/cart"
	"github.com/xenking/order-engine/internal/domain/checkout"
	"github.com/xenking/order-engine/internal/domain/coupon"
	"github.com/xenking/order-engine/internal/domain/order"
	"github.com/xenking/order-engine/internal/domain/product"
	"github.com/xenking/order-engine/internal/telemetry"
)

// Services are the domain entry points the handlers delegate to.
type Services struct {
	Checkout      *checkout.Service
	Orders        *order.Service
	Cancellations *cancellation.Workflow
	Coupons       *coupon.Ledger
	Carts         *cart.Service
	Products      ProductReader
}

// ProductReader looks up catalog entries.
type ProductReader interface {
	GetByID(ctx context.Context, id string) (*product.Product, error)
}

// Handler adapts HTTP requests to domain calls and domain errors to HTTP
// responses.
type Handler struct {
	checkout      *checkout.Service
	orders        *order.Service
	cancellations *cancellation.Workflow
	coupons       *coupon.Ledger
	carts         *cart.Service
	products      ProductReader
	metrics       *telemetry.Metrics
}

// New creates a Handler. A nil metrics records nothing.
func New(s Services, metrics *telemetry.Metrics) *Handler {
	if metrics == nil {
		metrics = telemetry.Noop()
	}
	return &Handler{
		checkout:      s.Checkout,
		orders:        s.Orders,
		cancellations: s.Cancellations,
		coupons:       s.Coupons,
		carts:         s.Carts,
		products:      s.Products,
		metrics:       metrics,
	}
}

// Register mounts the API routes on r. Every route runs behind
// sec.Authenticate; operations decide themselves whether an identity is
// required.
func (h *Handler) Register(r gin.IRouter, sec *Security) {
	api := r.Group("/api", sec.Authenticate())

	api.POST("/orders", h.CreateOrder)
	api.GET("/orders/:id", h.GetOrder)
	api.GET("/orders/:id/history", h.OrderHistory)
	api.POST("/orders/:id/status", h.UpdateOrderStatus)
	api.POST("/orders/:id/cancel", h.CancelOrder)
	api.POST("/orders/:id/cancellation-requests", h.RequestCancellation)
	api.GET("/orders/:id/cancellation-requests", h.ListCancellationRequests)
	api.POST("/cancellation-requests/:id/resolve", h.ResolveCancellationRequest)

	api.GET("/products/:id", h.GetProduct)
	api.POST("/coupons/validate", h.ValidateCoupon)

	api.GET("/cart", h.GetCart)
	api.PUT("/cart/items", h.SetCartItem)
	api.DELETE("/cart/items/:productId", h.RemoveCartItem)
	api.POST("/cart/merge", h.MergeCart)
}
