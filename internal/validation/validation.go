// Package validation содержит функции валидации входных данных.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/checkout-saga/internal/model"
)

// AmountScale задаёт число знаков после запятой в денежных колонках NUMERIC(19, 2).
const AmountScale = 2

// maxAmount ограничивает целую часть суммы семнадцатью знаками.
var maxAmount = decimal.New(1, 17)

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	// decimal.Decimal проверяется по строковому представлению
	validate.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.String()
		}
		return nil
	}, decimal.Decimal{})

	_ = validate.RegisterValidation("dpositive", validatePositiveDecimal)
}

func validatePositiveDecimal(fl validator.FieldLevel) bool {
	d, err := decimal.NewFromString(fl.Field().String())
	if err != nil {
		return false
	}
	return PositiveAmount(d) == nil
}

// Struct проверяет структуру по тегам validate. Ошибка оборачивает model.ErrValidation.
func Struct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fmt.Sprintf("%s (%s)", strings.ToLower(fe.Field()), fe.Tag()))
		}
		return fmt.Errorf("%w: invalid %s", model.ErrValidation, strings.Join(fields, ", "))
	}
	return fmt.Errorf("%w: %v", model.ErrValidation, err)
}

// IsValidSKU проверяет артикул товара: непустой, до 64 печатных ASCII-символов без пробелов и слэшей.
func IsValidSKU(sku string) bool {
	return validate.Var(sku, "required,max=64,printascii,excludesall= /") == nil
}

// PositiveAmount проверяет, что сумма больше нуля, содержит не больше двух знаков после запятой
// и помещается в денежную колонку. Такая сумма хранится без округления.
func PositiveAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive, got %s", model.ErrValidation, amount)
	}
	if !amount.Round(AmountScale).Equal(amount) {
		return fmt.Errorf("%w: amount must have at most %d decimal places, got %s", model.ErrValidation, AmountScale, amount)
	}
	if amount.GreaterThanOrEqual(maxAmount) {
		return fmt.Errorf("%w: amount is too large, got %s", model.ErrValidation, amount)
	}
	return nil
}

// PositiveQuantity проверяет, что количество больше нуля.
func PositiveQuantity(qty int) error {
	if qty <= 0 {
		return fmt.Errorf("%w: quantity must be positive, got %d", model.ErrValidation, qty)
	}
	return nil
}
