package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/order-engine/internal/domain/auth"
	"github.com/xenking/order-engine/internal/domain/cancellation"
	"github.com/xenking/order-engine/internal/domain/cart"
	"github.com/xenking/order-engine/internal/domain/checkout"
	"github.com/xenking/order-engine/internal/domain/coupon"
	"github.com/xenking/order-engine/internal/domain/order"
	"github.com/xenking/order-engine/internal/domain/payment"
	"github.com/xenking/order-engine/internal/domain/product"
	"github.com/xenking/order-engine/internal/domain/tx"
)

// Error is the body of every failed response. Code is stable and meant for
// clients to branch on.
type Error struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

func abort(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, Error{Code: code, Message: msg})
}

func badRequest(c *gin.Context, err error) {
	abort(c, http.StatusBadRequest, "bad_request", err.Error())
}

var couponCodes = []struct {
	err  error
	code string
}{
	{coupon.ErrNotFound, "coupon_not_found"},
	{coupon.ErrInactive, "coupon_inactive"},
	{coupon.ErrNotYetValid, "coupon_not_yet_valid"},
	{coupon.ErrExpired, "coupon_expired"},
	{coupon.ErrUsageLimitReached, "coupon_usage_limit_reached"},
	{coupon.ErrBelowMinimumPurchase, "coupon_below_minimum_purchase"},
	{coupon.ErrAlreadyUsedByUser, "coupon_already_used"},
}

// mapError translates a domain error into a status and body. Unknown errors
// become an opaque 500.
func mapError(err error) (int, Error) {
	var (
		validation   *order.ValidationError
		cardErr      *payment.FieldError
		quantity     *product.InvalidQuantityError
		missing      *product.ProductNotFoundError
		insufficient *product.InsufficientStockError
		transition   *order.InvalidTransitionError
	)
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, Error{
			Code:    "validation_error",
			Message: validation.Error(),
			Details: map[string]any{"field": validation.Field},
		}
	case errors.As(err, &cardErr):
		return http.StatusBadRequest, Error{
			Code:    "invalid_card",
			Message: cardErr.Error(),
			Details: map[string]any{"field": cardErr.Field},
		}
	case errors.As(err, &quantity):
		return http.StatusBadRequest, Error{
			Code:    "invalid_quantity",
			Message: quantity.Error(),
			Details: map[string]any{"productId": quantity.ProductID},
		}
	case errors.Is(err, checkout.ErrEmptyCart):
		return http.StatusBadRequest, Error{Code: "empty_cart", Message: err.Error()}
	case errors.Is(err, cart.ErrEmptyOwner):
		return http.StatusBadRequest, Error{Code: "cart_owner_required", Message: err.Error()}
	case errors.Is(err, order.ErrUnknownStatus),
		errors.Is(err, cancellation.ErrUnknownDecision),
		errors.Is(err, cancellation.ErrReasonRequired):
		return http.StatusBadRequest, Error{Code: "validation_error", Message: err.Error()}

	case errors.Is(err, auth.ErrUnauthenticated):
		return http.StatusUnauthorized, Error{Code: "unauthenticated", Message: err.Error()}
	case errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden, Error{Code: "forbidden", Message: err.Error()}

	case errors.Is(err, order.ErrNotFound):
		return http.StatusNotFound, Error{Code: "order_not_found", Message: err.Error()}
	case errors.Is(err, cancellation.ErrNotFound):
		return http.StatusNotFound, Error{Code: "cancellation_request_not_found", Message: err.Error()}
	case errors.Is(err, product.ErrNotFound):
		return http.StatusNotFound, Error{Code: "product_not_found", Message: err.Error()}

	case errors.As(err, &missing):
		return http.StatusUnprocessableEntity, Error{
			Code:    "product_not_found",
			Message: missing.Error(),
			Details: map[string]any{"productId": missing.ProductID},
		}
	case errors.As(err, &insufficient):
		return http.StatusConflict, Error{
			Code:    "insufficient_stock",
			Message: insufficient.Error(),
			Details: map[string]any{
				"productId": insufficient.ProductID,
				"available": insufficient.Available,
				"requested": insufficient.Requested,
			},
		}
	case errors.As(err, &transition):
		return http.StatusConflict, Error{
			Code:    "invalid_transition",
			Message: transition.Error(),
			Details: map[string]any{"from": transition.From, "to": transition.To},
		}
	case errors.Is(err, order.ErrTrackingNumberRequired):
		return http.StatusUnprocessableEntity, Error{Code: "tracking_number_required", Message: err.Error()}
	case errors.Is(err, order.ErrNotCancellable):
		return http.StatusConflict, Error{Code: "not_cancellable", Message: err.Error()}
	case errors.Is(err, cancellation.ErrRequestAlreadyPending):
		return http.StatusConflict, Error{Code: "cancellation_already_pending", Message: err.Error()}
	case errors.Is(err, cancellation.ErrRequestNotPending):
		return http.StatusConflict, Error{Code: "cancellation_not_pending", Message: err.Error()}
	case errors.Is(err, payment.ErrDeclined):
		return http.StatusUnprocessableEntity, Error{Code: "payment_declined", Message: err.Error()}

	case errors.Is(err, tx.ErrRetryable):
		return http.StatusServiceUnavailable, Error{
			Code:      "retryable",
			Message:   "the request conflicted with a concurrent one, retry it",
			Retryable: true,
		}
	}
	for _, cc := range couponCodes {
		if errors.Is(err, cc.err) {
			return http.StatusUnprocessableEntity, Error{Code: cc.code, Message: cc.err.Error()}
		}
	}
	return http.StatusInternalServerError, Error{Code: "internal", Message: "internal server error"}
}

// fail writes the response for err. Server-side failures are logged here
// and nowhere else.
func fail(c *gin.Context, err error) {
	status, body := mapError(err)
	if status >= http.StatusInternalServerError {
		lg := zctx.From(c.Request.Context())
		if status == http.StatusServiceUnavailable {
			lg.Warn("Retryable failure", zap.String("route", c.FullPath()), zap.Error(err))
			c.Header("Retry-After", "1")
		} else {
			lg.Error("Request failed", zap.String("route", c.FullPath()), zap.Error(err))
		}
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, body)
}
