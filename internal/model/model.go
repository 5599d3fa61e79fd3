// Package model содержит доменные сущности сервисов магазина, склада и кошелька.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus описывает статус оплаты заказа.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentStatusSuccess PaymentStatus = "SUCCESS"
	PaymentStatusFailed  PaymentStatus = "FAILED"
)

// SagaStep описывает последний сохранённый шаг саги оформления заказа.
type SagaStep string

const (
	SagaStepCreated     SagaStep = "CREATED"
	SagaStepReserving   SagaStep = "RESERVING"
	SagaStepCharging    SagaStep = "CHARGING"
	SagaStepCompleted   SagaStep = "COMPLETED"
	SagaStepCompensated SagaStep = "COMPENSATED"
)

// Finished сообщает, завершена ли сага (успешно или с компенсацией).
func (s SagaStep) Finished() bool {
	return s == SagaStepCompleted || s == SagaStepCompensated
}

// Order описывает заказ пользователя вместе с позициями и оплатой.
type Order struct {
	ID            int64
	UserID        int64
	Status        OrderStatus
	TotalAmount   decimal.Decimal
	Items         []OrderItem
	Payment       *Payment
	SagaStep      SagaStep
	ReservedItems int
	FailureReason string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// OrderItem описывает позицию заказа. Название и цена фиксируются в момент покупки.
type OrderItem struct {
	ID              int64
	SKU             string
	ProductName     string
	Quantity        int
	PriceAtPurchase decimal.Decimal
}

// Subtotal возвращает стоимость позиции.
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.PriceAtPurchase.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// TotalQuantity возвращает суммарное количество товаров в заказе.
func (o *Order) TotalQuantity() int {
	n := 0
	for _, it := range o.Items {
		n += it.Quantity
	}
	return n
}

// Payment описывает оплату заказа из кошелька пользователя.
type Payment struct {
	ID            int64
	OrderID       int64
	Amount        decimal.Decimal
	Status        PaymentStatus
	TransactionID *int64
	CreatedAt     time.Time
}

// Cart содержит товары, которые пользователь собирается заказать.
type Cart struct {
	ID        int64
	UserID    int64
	Items     []CartItem
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CartItem описывает позицию корзины со снимком названия и цены товара.
type CartItem struct {
	ID          int64
	SKU         string
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
}

// Total возвращает сумму корзины.
func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, it := range c.Items {
		total = total.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total
}

// Product описывает товар и его остаток на складе.
type Product struct {
	ID            int64
	SKU           string
	Name          string
	Price         decimal.Decimal
	StockQuantity int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Wallet описывает кошелёк пользователя. Баланс никогда не бывает отрицательным.
type Wallet struct {
	ID         int64
	UserID     int64
	Balance    decimal.Decimal
	WalletType string
	WalletName string
	CreatedAt  time.Time
}

// TransactionType описывает тип записи в журнале кошелька.
type TransactionType string

const (
	TransactionDeposit  TransactionType = "DEPOSIT"
	TransactionWithdraw TransactionType = "WITHDRAW"
)

// Transaction описывает неизменяемую запись журнала кошелька.
type Transaction struct {
	ID        int64
	WalletID  int64
	Type      TransactionType
	Amount    decimal.Decimal
	Reference string
	Timestamp time.Time
}
