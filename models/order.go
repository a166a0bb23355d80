package models

import (
	"strings"
	"time"
)

// OrderStatus is the closed set of sub-order statuses the client knows about
type OrderStatus string

const (
	OrderPendingAcceptance OrderStatus = "pending_acceptance"
	OrderAccepted          OrderStatus = "accepted"
	OrderPaid              OrderStatus = "paid"
	OrderPreparing         OrderStatus = "preparing"
	OrderOutForDelivery    OrderStatus = "out_for_delivery"
	OrderDelivered         OrderStatus = "delivered"
	OrderCompleted         OrderStatus = "completed"
	OrderCancelled         OrderStatus = "cancelled"
	OrderRejected          OrderStatus = "rejected"
	OrderUnknown           OrderStatus = "unknown"
)

var knownOrderStatuses = map[OrderStatus]bool{
	OrderPendingAcceptance: true,
	OrderAccepted:          true,
	OrderPaid:              true,
	OrderPreparing:         true,
	OrderOutForDelivery:    true,
	OrderDelivered:         true,
	OrderCompleted:         true,
	OrderCancelled:         true,
	OrderRejected:          true,
}

// ParseOrderStatus lower-cases the server value; unrecognised values map to OrderUnknown
func ParseOrderStatus(raw string) OrderStatus {
	s := OrderStatus(strings.ToLower(raw))
	if knownOrderStatuses[s] {
		return s
	}
	return OrderUnknown
}

// Store is the summary of a fulfilling store embedded in orders and disputes
type Store struct {
	ID   uint64 `json:"id"`
	Name string `json:"name"`
	Logo string `json:"logo,omitempty"`
}

// SubOrder is the part of an order fulfilled by a single store
type SubOrder struct {
	ID        uint64    `json:"id"`
	StoreID   uint64    `json:"store_id"`
	Store     *Store    `json:"store,omitempty"`
	Status    string    `json:"status"`
	Total     float64   `json:"total"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NormalizedStatus is the status string as compared by the tab rules
func (s SubOrder) NormalizedStatus() string {
	return strings.ToLower(s.Status)
}

// Order is a customer order spanning one or more stores
type Order struct {
	ID          uint64     `json:"id"`
	OrderNumber string     `json:"order_number"`
	TotalAmount float64    `json:"total_amount"`
	CreatedAt   time.Time  `json:"created_at"`
	SubOrders   []SubOrder `json:"sub_orders"`
}

// Page is one page of a paginated API collection
type Page[T any] struct {
	Data        []T `json:"data"`
	CurrentPage int `json:"current_page"`
	LastPage    int `json:"last_page"`
	Total       int `json:"total"`
}

// HasMore reports whether another page can be requested
func (p Page[T]) HasMore() bool {
	return p.CurrentPage < p.LastPage
}
