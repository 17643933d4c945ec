package domain

import (
	"time"
)

type OrderStatus string
type PaymentMethod string
type PaymentStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusPrinting  OrderStatus = "printing"
	OrderStatusShipping  OrderStatus = "shipping"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

const (
	PaymentMethodGateway PaymentMethod = "gateway"
	PaymentMethodWallet  PaymentMethod = "wallet"
)

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// Order is the checkout aggregate: the order row plus its line items.
// TotalAmount is computed from the items once at creation and never
// recomputed afterwards. Amounts are integer minor currency units.
type Order struct {
	ID                string        `json:"id" db:"id"`
	UserID            string        `json:"user_id" db:"user_id"`
	OrderNumber       string        `json:"order_number" db:"order_number"`
	TotalAmount       int64         `json:"total_amount" db:"total_amount"`
	Currency          string        `json:"currency" db:"currency"`
	Status            OrderStatus   `json:"status" db:"status"`
	PaymentMethod     PaymentMethod `json:"payment_method,omitempty" db:"payment_method"`
	PaymentStatus     PaymentStatus `json:"payment_status" db:"payment_status"`
	ExternalOrderCode *string       `json:"external_order_code,omitempty" db:"external_order_code"`
	FailureReason     *string       `json:"failure_reason,omitempty" db:"failure_reason"`
	Note              *string       `json:"note,omitempty" db:"note"`
	Items             []OrderItem   `json:"items,omitempty"`
	CompletedAt       *time.Time    `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt         time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at" db:"updated_at"`
}

type OrderItem struct {
	ID        string `json:"id" db:"id"`
	OrderID   string `json:"order_id" db:"order_id"`
	ProductID string `json:"product_id" db:"product_id"`
	DesignID  *string `json:"design_id,omitempty" db:"design_id"`
	UnitPrice int64  `json:"unit_price" db:"unit_price"`
	Quantity  int32  `json:"quantity" db:"quantity"`
}

// Subtotal returns the line total for the item.
func (i OrderItem) Subtotal() int64 {
	return i.UnitPrice * int64(i.Quantity)
}

// Payable reports whether the order can still enter a payment flow.
func (o *Order) Payable() bool {
	return o.PaymentStatus == PaymentStatusPending && o.Status == OrderStatusPending
}

// Cancellable reports whether the order may still be cancelled.
// Once printing has started the order is committed to production.
func (o *Order) Cancellable() bool {
	return o.Status == OrderStatusPending || o.Status == OrderStatusConfirmed
}

// fulfilmentNext maps each fulfilment status to its allowed successor.
// Payment state is never part of this chain; it is guarded separately.
var fulfilmentNext = map[OrderStatus]OrderStatus{
	OrderStatusConfirmed: OrderStatusPrinting,
	OrderStatusPrinting:  OrderStatusShipping,
	OrderStatusShipping:  OrderStatusCompleted,
}

// CanAdvanceFulfilment reports whether an order can move from its current
// fulfilment status to next. Only paid orders move along the chain.
func (o *Order) CanAdvanceFulfilment(next OrderStatus) bool {
	if o.PaymentStatus != PaymentStatusPaid {
		return false
	}
	return fulfilmentNext[o.Status] == next
}

// CreateOrderRequest is the checkout payload. Items are materialized
// from the cart by the catalog service, never taken from the client.
type CreateOrderRequest struct {
	CartID string  `json:"cart_id" validate:"required"`
	Note   *string `json:"note,omitempty" validate:"omitempty,max=500"`
}

type UpdateOrderStatusRequest struct {
	Status OrderStatus `json:"status" validate:"required,oneof=printing shipping completed"`
}

type CheckoutLinkResponse struct {
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
	CheckoutURL string `json:"checkout_url"`
	ExternalRef string `json:"external_ref"`
}
