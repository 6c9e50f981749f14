package models

import "time"

const CollectionOrders = "orders"

// Order statuses
const (
	OrderStatusPending               = "Pending"
	OrderStatusAccepted              = "Accepted"
	OrderStatusRejected              = "Rejected"
	OrderStatusShipped               = "Shipped"
	OrderStatusDelivered             = "Delivered"
	OrderStatusCancellationRequested = "Cancellation Requested"
)

// OrderStatuses are the values an admin may set.
var OrderStatuses = []string{
	OrderStatusPending,
	OrderStatusAccepted,
	OrderStatusRejected,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancellationRequested,
}

type Order struct {
	ID              string          `json:"id"`
	UserID          string          `json:"userId"`
	CustomerName    string          `json:"customerName"`
	Email           string          `json:"email,omitempty"`
	Total           float64         `json:"total"`
	Subtotal        float64         `json:"subtotal"`
	Shipping        float64         `json:"shipping"`
	Fees            []Fee           `json:"fees,omitempty"`
	Status          string          `json:"status"`
	Date            time.Time       `json:"date"`
	Items           []OrderItem     `json:"items"`
	ShippingAddress ShippingAddress `json:"shippingAddress"`
}

type Fee struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

type OrderItem struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

type ShippingAddress struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Address   string `json:"address"`
	City      string `json:"city"`
	State     string `json:"state"`
	Zip       string `json:"zip"`
	Phone     string `json:"phone"`
}

// ShortID is the id prefix shown to customers.
func (o Order) ShortID() string {
	if len(o.ID) > 7 {
		return o.ID[:7]
	}
	return o.ID
}

// Cancellable reports whether a cancellation may still be requested.
func (o Order) Cancellable() bool {
	return o.Status == OrderStatusPending || o.Status == OrderStatusAccepted
}
