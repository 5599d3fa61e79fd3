package model

import "errors"

var (
	// ErrValidation возвращается при некорректных входных данных.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound возвращается, если корзина, заказ, кошелёк или товар не найдены.
	ErrNotFound = errors.New("not found")
	// ErrForbidden возвращается, если вызывающий не владеет ресурсом.
	ErrForbidden = errors.New("forbidden")
	// ErrEmptyCart возвращается при попытке оформить пустую корзину.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrInsufficientStock возвращается, если товара на складе недостаточно.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrInsufficientFunds возвращается, если на кошельке недостаточно средств.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrInvalidTransition возвращается при недопустимой смене статуса заказа.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrConcurrentUpdate возвращается, если заказ изменился с момента чтения и запись отклонена.
	ErrConcurrentUpdate = errors.New("order changed concurrently")
	// ErrUpstreamUnavailable означает, что зависимость недоступна (размыкатель открыт или попытки исчерпаны).
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// ErrorCode возвращает код доменной ошибки для ответа клиенту.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "VALIDATION_ERROR"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrForbidden):
		return "FORBIDDEN"
	case errors.Is(err, ErrEmptyCart):
		return "EMPTY_CART"
	case errors.Is(err, ErrInsufficientStock):
		return "INSUFFICIENT_STOCK"
	case errors.Is(err, ErrInsufficientFunds):
		return "INSUFFICIENT_FUNDS"
	case errors.Is(err, ErrInvalidTransition):
		return "INVALID_TRANSITION"
	case errors.Is(err, ErrConcurrentUpdate):
		return "CONFLICT"
	case errors.Is(err, ErrUpstreamUnavailable):
		return "UPSTREAM_UNAVAILABLE"
	default:
		return "INTERNAL_ERROR"
	}
}
