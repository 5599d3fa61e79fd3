package validation

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/checkout-saga/internal/model"
)

type amountRequest struct {
	Amount decimal.Decimal `validate:"dpositive"`
	Name   string          `validate:"max=5"`
}

func TestStruct(t *testing.T) {
	tests := []struct {
		name  string
		req   amountRequest
		valid bool
	}{
		{
			name:  "positive amount",
			req:   amountRequest{Amount: decimal.RequireFromString("0.01")},
			valid: true,
		},
		{
			name:  "zero amount",
			req:   amountRequest{Amount: decimal.Zero},
			valid: false,
		},
		{
			name:  "negative amount",
			req:   amountRequest{Amount: decimal.NewFromInt(-5)},
			valid: false,
		},
		{
			name:  "name too long",
			req:   amountRequest{Amount: decimal.NewFromInt(1), Name: "abcdef"},
			valid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Struct(tt.req)
			if tt.valid && err != nil {
				t.Fatalf("Struct(%+v) unexpected error: %v", tt.req, err)
			}
			if !tt.valid {
				if err == nil {
					t.Fatalf("Struct(%+v) expected error", tt.req)
				}
				if !errors.Is(err, model.ErrValidation) {
					t.Fatalf("expected ErrValidation, got %v", err)
				}
			}
		})
	}
}

func TestIsValidSKU(t *testing.T) {
	tests := []struct {
		sku   string
		valid bool
	}{
		{"LAPTOP001", true},
		{"book-42_x", true},
		{"", false},
		{"with space", false},
		{"a/b", false},
		{"привет", false},
	}

	for _, tt := range tests {
		if got := IsValidSKU(tt.sku); got != tt.valid {
			t.Fatalf("IsValidSKU(%q) = %v, want %v", tt.sku, got, tt.valid)
		}
	}
}

func TestPositiveChecks(t *testing.T) {
	if err := PositiveAmount(decimal.NewFromInt(1)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := PositiveAmount(decimal.Zero); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if err := PositiveQuantity(0); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if err := PositiveQuantity(3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPositiveAmount_Precision(t *testing.T) {
	tests := []struct {
		amount string
		valid  bool
	}{
		{amount: "5.00", valid: true},
		{amount: "5.000", valid: true},
		{amount: "0.01", valid: true},
		{amount: "99999999999999999.99", valid: true},
		{amount: "5.005", valid: false},
		{amount: "0.001", valid: false},
		{amount: "100000000000000000", valid: false},
	}

	for _, tt := range tests {
		err := PositiveAmount(decimal.RequireFromString(tt.amount))
		if tt.valid && err != nil {
			t.Fatalf("PositiveAmount(%s): unexpected error: %v", tt.amount, err)
		}
		if !tt.valid && !errors.Is(err, model.ErrValidation) {
			t.Fatalf("PositiveAmount(%s): expected ErrValidation, got %v", tt.amount, err)
		}
	}

	if err := Struct(amountRequest{Amount: decimal.RequireFromString("5.005")}); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected ErrValidation for sub-cent amount, got %v", err)
	}
}
