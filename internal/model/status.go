package model

import "fmt"

// OrderStatus описывает статус заказа.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusPaid      OrderStatus = "PAID"
	OrderStatusShipped   OrderStatus = "SHIPPED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// validNext содержит единственную таблицу допустимых переходов статуса заказа.
var validNext = map[OrderStatus]map[OrderStatus]bool{
	OrderStatusPending:   {OrderStatusPaid: true, OrderStatusCancelled: true},
	OrderStatusPaid:      {OrderStatusShipped: true, OrderStatusCancelled: true},
	OrderStatusShipped:   {},
	OrderStatusCancelled: {},
}

// Valid сообщает, является ли статус известным.
func (s OrderStatus) Valid() bool {
	_, ok := validNext[s]
	return ok
}

// CanTransition сообщает, допустим ли переход из from в to.
func CanTransition(from, to OrderStatus) bool {
	return validNext[from][to]
}

// Transition переводит заказ в новый статус или возвращает ErrInvalidTransition.
func (o *Order) Transition(to OrderStatus) error {
	if !CanTransition(o.Status, to) {
		return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidTransition, o.Status, to)
	}
	o.Status = to
	return nil
}
