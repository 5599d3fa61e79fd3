package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/checkout-saga/internal/model"
)

// CreateOrderRequest описывает тело запроса на оформление заказа.
type CreateOrderRequest struct {
	CartID int64 `json:"cart_id" validate:"gt=0"`
}

// AddCartItemRequest описывает тело запроса на добавление товара в корзину.
type AddCartItemRequest struct {
	SKU      string `json:"sku" validate:"required,max=64"`
	Quantity int    `json:"quantity" validate:"gt=0"`
}

// UpdateOrderStatusRequest описывает тело запроса администратора на смену статуса заказа.
type UpdateOrderStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=PENDING PAID SHIPPED CANCELLED"`
}

type OrderItem struct {
	SKU             string          `json:"sku"`
	ProductName     string          `json:"product_name"`
	Quantity        int             `json:"quantity"`
	PriceAtPurchase decimal.Decimal `json:"price_at_purchase"`
}

type Payment struct {
	ID            int64           `json:"id"`
	Amount        decimal.Decimal `json:"amount"`
	Status        string          `json:"status"`
	TransactionID *int64          `json:"transaction_id,omitempty"`
}

// Order описывает заказ вместе с позициями, оплатой и состоянием саги.
type Order struct {
	ID            int64           `json:"id"`
	UserID        int64           `json:"user_id"`
	Status        string          `json:"status"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Items         []OrderItem     `json:"items"`
	Payment       *Payment        `json:"payment,omitempty"`
	SagaStep      string          `json:"saga_step,omitempty"`
	FailureReason string          `json:"failure_reason,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type CartItem struct {
	SKU         string          `json:"sku"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// Cart описывает корзину пользователя с итоговой суммой.
type Cart struct {
	ID     int64           `json:"id"`
	UserID int64           `json:"user_id"`
	Items  []CartItem      `json:"items"`
	Total  decimal.Decimal `json:"total"`
}

// FromOrder преобразует доменный заказ в тело ответа.
func FromOrder(o *model.Order) Order {
	resp := Order{
		ID:            o.ID,
		UserID:        o.UserID,
		Status:        string(o.Status),
		TotalAmount:   o.TotalAmount,
		Items:         make([]OrderItem, 0, len(o.Items)),
		SagaStep:      string(o.SagaStep),
		FailureReason: o.FailureReason,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
	for _, it := range o.Items {
		resp.Items = append(resp.Items, OrderItem{
			SKU:             it.SKU,
			ProductName:     it.ProductName,
			Quantity:        it.Quantity,
			PriceAtPurchase: it.PriceAtPurchase,
		})
	}
	if p := o.Payment; p != nil {
		resp.Payment = &Payment{ID: p.ID, Amount: p.Amount, Status: string(p.Status), TransactionID: p.TransactionID}
	}
	return resp
}

// FromCart преобразует доменную корзину в тело ответа.
func FromCart(c *model.Cart) Cart {
	resp := Cart{
		ID:     c.ID,
		UserID: c.UserID,
		Items:  make([]CartItem, 0, len(c.Items)),
		Total:  c.Total(),
	}
	for _, it := range c.Items {
		resp.Items = append(resp.Items, CartItem{
			SKU:         it.SKU,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
		})
	}
	return resp
}
