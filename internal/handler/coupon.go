package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/errors"
)

// ValidateCoupon reports the discount a code would grant on a subtotal
// without redeeming it. Anonymous callers skip the per-user check.
func (h *Handler) ValidateCoupon(c *gin.Context) {
	var req validateCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.Subtotal.IsNegative() {
		badRequest(c, errors.New("subtotal must not be negative"))
		return
	}
	d, err := h.coupons.Validate(c.Request.Context(), req.Code, actorOf(c).ID, req.Subtotal)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toDiscount(d))
}
