package main

import (
	"fmt"
	"strconv"
)

type Order struct {
	ID       int
	Quantity int
	Unit     float64
}

// Subtotal is the order price before any discount.
func (o Order) Subtotal() float64 {
	return float64(o.Quantity) * o.Unit
}

func loadOrders() []Order {
	return []Order{
		{ID: 1, Quantity: 3, Unit: 9.99},
		{ID: 2, Quantity: 12, Unit: 1.25},
		{ID: 3, Quantity: 1, Unit: 199.00},
	}
}

func price(o Order) float64 {
	subtotal := o.Subtotal()
	return subtotal - discount(subtotal, o.Quantity)
}

// discount grows with quantity, capped at 15%.
func discount(subtotal float64, quantity int) float64 {
	rate := float64(quantity) / 100
	if rate > 0.15 {
		rate = 0.15
	}
	return subtotal * rate
}

// parseAmount converts a decimal string to a float, turning the panic from
// mustParse into an error.
func parseAmount(s string) (amount float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("recovered: %v", r)
		}
	}()
	return mustParse(s), nil
}

func mustParse(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		panic(fmt.Sprintf("bad amount %q", s))
	}
	return f
}
