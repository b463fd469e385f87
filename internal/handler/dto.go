package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/order-engine/internal/domain/cancellation"
	"github.com/xenking/order-engine/internal/domain/cart"
	"github.com/xenking/order-engine/internal/domain/coupon"
	"github.com/xenking/order-engine/internal/domain/order"
	"github.com/xenking/order-engine/internal/domain/payment"
	"github.com/xenking/order-engine/internal/domain/product"
)

// Money is serialized as a decimal string, e.g. "950.00".

type paymentDetails struct {
	CardHolder string `json:"cardHolder"`
	CardNumber string `json:"cardNumber"`
	Expiry     string `json:"expiry"`
	CVV        string `json:"cvv"`
}

func (p paymentDetails) card() payment.Card {
	return payment.Card{Holder: p.CardHolder, Number: p.CardNumber, Expiry: p.Expiry, CVV: p.CVV}
}

type createOrderRequest struct {
	ShippingAddress order.ShippingAddress `json:"shippingAddress"`
	Payment         paymentDetails        `json:"payment"`
	CouponCode      string                `json:"couponCode"`
	// SessionID checks out the anonymous cart of that session instead of
	// the caller's own cart.
	SessionID string `json:"sessionId"`
}

type updateStatusRequest struct {
	Status         string `json:"status" binding:"required"`
	TrackingNumber string `json:"trackingNumber"`
	Note           string `json:"note"`
}

type cancelOrderRequest struct {
	Note string `json:"note"`
}

type cancellationRequestBody struct {
	Reason string `json:"reason"`
}

type resolveRequest struct {
	Decision string `json:"decision" binding:"required"`
	Note     string `json:"note"`
}

type validateCouponRequest struct {
	Code     string          `json:"code" binding:"required"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

type setCartItemRequest struct {
	ProductID string `json:"productId" binding:"required"`
	Quantity  int    `json:"quantity"`
}

type orderLine struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Price     string `json:"price"`
	Quantity  int    `json:"quantity"`
	Subtotal  string `json:"subtotal"`
}

type orderResponse struct {
	ID              string                `json:"id"`
	UserID          string                `json:"userId"`
	Status          order.Status          `json:"status"`
	Total           string                `json:"total"`
	Discount        string                `json:"discount"`
	Payable         string                `json:"payable"`
	CouponCode      string                `json:"couponCode,omitempty"`
	TrackingNumber  string                `json:"trackingNumber,omitempty"`
	ShippingAddress order.ShippingAddress `json:"shippingAddress"`
	Items           []orderLine           `json:"items"`
	CreatedAt       time.Time             `json:"createdAt"`
	UpdatedAt       time.Time             `json:"updatedAt"`
	ConfirmedAt     *time.Time            `json:"confirmedAt,omitempty"`
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func toOrder(o *order.Order) orderResponse {
	items := make([]orderLine, len(o.Lines))
	for i, l := range o.Lines {
		items[i] = orderLine{
			ProductID: l.ProductID,
			Name:      l.Name,
			Price:     money(l.Price),
			Quantity:  l.Quantity,
			Subtotal:  money(l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))),
		}
	}
	return orderResponse{
		ID:              o.ID,
		UserID:          o.UserID,
		Status:          o.Status,
		Total:           money(o.Total),
		Discount:        money(o.Discount),
		Payable:         money(o.Payable()),
		CouponCode:      o.CouponCode,
		TrackingNumber:  o.TrackingNumber,
		ShippingAddress: o.ShippingAddress,
		Items:           items,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
		ConfirmedAt:     o.ConfirmedAt,
	}
}

type eventResponse struct {
	ID        string       `json:"id"`
	ActorID   string       `json:"actorId"`
	OldStatus order.Status `json:"oldStatus,omitempty"`
	NewStatus order.Status `json:"newStatus"`
	Note      string       `json:"note,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
}

func toEvents(events []order.Event) []eventResponse {
	out := make([]eventResponse, len(events))
	for i, e := range events {
		out[i] = eventResponse{
			ID:        e.ID,
			ActorID:   e.ActorID,
			OldStatus: e.OldStatus,
			NewStatus: e.NewStatus,
			Note:      e.Note,
			CreatedAt: e.CreatedAt,
		}
	}
	return out
}

type cancellationResponse struct {
	ID          string              `json:"id"`
	OrderID     string              `json:"orderId"`
	UserID      string              `json:"userId"`
	Reason      string              `json:"reason"`
	Status      cancellation.Status `json:"status"`
	AdminID     string              `json:"adminId,omitempty"`
	AdminNote   string              `json:"adminNote,omitempty"`
	CreatedAt   time.Time           `json:"createdAt"`
	ProcessedAt *time.Time          `json:"processedAt,omitempty"`
}

func toCancellation(r *cancellation.Request) cancellationResponse {
	return cancellationResponse{
		ID:          r.ID,
		OrderID:     r.OrderID,
		UserID:      r.UserID,
		Reason:      r.Reason,
		Status:      r.Status,
		AdminID:     r.AdminID,
		AdminNote:   r.AdminNote,
		CreatedAt:   r.CreatedAt,
		ProcessedAt: r.ProcessedAt,
	}
}

type discountResponse struct {
	Code        string `json:"code"`
	Discount    string `json:"discount"`
	Description string `json:"description,omitempty"`
}

func toDiscount(d *coupon.Discount) discountResponse {
	return discountResponse{Code: d.Code, Discount: money(d.Amount), Description: d.Description}
}

type cartLine struct {
	ProductID string    `json:"productId"`
	Quantity  int       `json:"quantity"`
	AddedAt   time.Time `json:"addedAt"`
}

type cartResponse struct {
	Items []cartLine `json:"items"`
}

func toCart(lines []cart.Line) cartResponse {
	items := make([]cartLine, len(lines))
	for i, l := range lines {
		items[i] = cartLine{ProductID: l.ProductID, Quantity: l.Quantity, AddedAt: l.AddedAt}
	}
	return cartResponse{Items: items}
}

type productResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Price     string `json:"price"`
	Stock     int    `json:"stock"`
	Available bool   `json:"available"`
}

func toProduct(p *product.Product) productResponse {
	return productResponse{
		ID:        p.ID,
		Name:      p.Name,
		Price:     money(p.Price),
		Stock:     p.Stock,
		Available: p.IsActive(),
	}
}
