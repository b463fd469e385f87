package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xenking/order-engine/internal/domain/auth"
)

func (h *Handler) GetCart(c *gin.Context) {
	owner, err := cartOwner(c)
	if err != nil {
		fail(c, err)
		return
	}
	lines, err := h.carts.Lines(c.Request.Context(), owner)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toCart(lines))
}

// SetCartItem sets the quantity of a product in the cart.
func (h *Handler) SetCartItem(c *gin.Context) {
	var req setCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	owner, err := cartOwner(c)
	if err != nil {
		fail(c, err)
		return
	}
	ctx := c.Request.Context()
	if err := h.carts.SetQuantity(ctx, owner, req.ProductID, req.Quantity); err != nil {
		fail(c, err)
		return
	}
	lines, err := h.carts.Lines(ctx, owner)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toCart(lines))
}

func (h *Handler) RemoveCartItem(c *gin.Context) {
	owner, err := cartOwner(c)
	if err != nil {
		fail(c, err)
		return
	}
	if err := h.carts.Remove(c.Request.Context(), owner, c.Param("productId")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// MergeCart moves the anonymous session cart into the signed-in user's cart.
func (h *Handler) MergeCart(c *gin.Context) {
	actor := actorOf(c)
	if actor.IsZero() {
		fail(c, auth.ErrUnauthenticated)
		return
	}
	sid := strings.TrimSpace(c.GetHeader(HeaderSessionID))
	if sid == "" {
		abort(c, http.StatusBadRequest, "bad_request", HeaderSessionID+" header required")
		return
	}
	ctx := c.Request.Context()
	if err := h.carts.MergeSession(ctx, sid, actor.ID); err != nil {
		fail(c, err)
		return
	}
	lines, err := h.carts.Lines(ctx, actor.ID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toCart(lines))
}
