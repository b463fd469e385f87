package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xenking/order-engine/internal/domain/cart"
	"github.com/xenking/order-engine/internal/domain/checkout"
	"github.com/xenking/order-engine/internal/domain/order"
)

// CreateOrder checks out the caller's cart, or the session cart named by
// sessionId.
func (h *Handler) CreateOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ctx := c.Request.Context()

	var owner string
	if sid := strings.TrimSpace(req.SessionID); sid != "" {
		owner = cart.SessionOwner(sid)
	}
	o, err := h.checkout.Checkout(ctx, checkout.Request{
		Actor:           actorOf(c),
		CartOwner:       owner,
		ShippingAddress: req.ShippingAddress,
		Card:            req.Payment.card(),
		CouponCode:      req.CouponCode,
	})
	if err != nil {
		status, body := mapError(err)
		if status < http.StatusInternalServerError {
			h.metrics.CheckoutFailed(ctx, body.Code)
		}
		fail(c, err)
		return
	}
	h.metrics.OrderCreated(ctx, o.Payable().InexactFloat64(), o.CouponCode != "")
	c.JSON(http.StatusCreated, toOrder(o))
}

func (h *Handler) GetOrder(c *gin.Context) {
	o, err := h.orders.Get(c.Request.Context(), c.Param("id"), actorOf(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrder(o))
}

// OrderHistory returns the status audit trail, oldest first.
func (h *Handler) OrderHistory(c *gin.Context) {
	events, err := h.orders.History(c.Request.Context(), c.Param("id"), actorOf(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": toEvents(events)})
}

// UpdateOrderStatus applies an administrative status transition.
func (h *Handler) UpdateOrderStatus(c *gin.Context) {
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	to, err := order.ParseStatus(req.Status)
	if err != nil {
		fail(c, err)
		return
	}
	actor := actorOf(c)
	ctx := c.Request.Context()

	before, err := h.orders.Get(ctx, c.Param("id"), actor)
	if err != nil {
		fail(c, err)
		return
	}
	o, err := h.orders.Transition(ctx, before.ID, order.Change{
		To:             to,
		ActorID:        actor.ID,
		TrackingNumber: req.TrackingNumber,
		Note:           req.Note,
	}, actor)
	if err != nil {
		fail(c, err)
		return
	}
	h.metrics.Transition(ctx, before.Status.String(), o.Status.String())
	c.JSON(http.StatusOK, toOrder(o))
}

// CancelOrder cancels a PENDING or CONFIRMED order on behalf of its owner or
// an administrator.
func (h *Handler) CancelOrder(c *gin.Context) {
	var req cancelOrderRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}
	ctx := c.Request.Context()
	o, err := h.cancellations.Cancel(ctx, c.Param("id"), actorOf(c), req.Note)
	if err != nil {
		fail(c, err)
		return
	}
	h.metrics.Cancellation(ctx, "direct")
	c.JSON(http.StatusOK, toOrder(o))
}
