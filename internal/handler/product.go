package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetProduct returns a catalog entry with its remaining stock.
func (h *Handler) GetProduct(c *gin.Context) {
	p, err := h.products.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toProduct(p))
}
