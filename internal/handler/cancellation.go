package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xenking/order-engine/internal/domain/cancellation"
)

// RequestCancellation files a cancellation request for the caller's order.
func (h *Handler) RequestCancellation(c *gin.Context) {
	var req cancellationRequestBody
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	r, err := h.cancellations.RequestCancellation(ctx, c.Param("id"), actorOf(c), req.Reason)
	if err != nil {
		fail(c, err)
		return
	}
	h.metrics.Cancellation(ctx, "requested")
	c.JSON(http.StatusCreated, toCancellation(r))
}

func (h *Handler) ListCancellationRequests(c *gin.Context) {
	reqs, err := h.cancellations.List(c.Request.Context(), c.Param("id"), actorOf(c))
	if err != nil {
		fail(c, err)
		return
	}
	out := make([]cancellationResponse, len(reqs))
	for i := range reqs {
		out[i] = toCancellation(&reqs[i])
	}
	c.JSON(http.StatusOK, gin.H{"requests": out})
}

// ResolveCancellationRequest approves or rejects a pending request.
func (h *Handler) ResolveCancellationRequest(c *gin.Context) {
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	d, err := cancellation.ParseDecision(req.Decision)
	if err != nil {
		fail(c, err)
		return
	}
	ctx := c.Request.Context()
	r, err := h.cancellations.Resolve(ctx, c.Param("id"), d, actorOf(c), req.Note)
	if err != nil {
		fail(c, err)
		return
	}
	h.metrics.Cancellation(ctx, string(r.Status))
	c.JSON(http.StatusOK, toCancellation(r))
}
