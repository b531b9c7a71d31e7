package domain

import (
	"fmt"
	"math"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Money is an amount in paise, the smallest INR unit. Keeping a distinct type
// makes accidental mixing of rupee floats and paise integers a compile error.
type Money int64

// RupeesToPaise converts a decimal rupee amount to paise, rounding to the
// nearest paisa. Gateway responses and legacy order views speak rupees.
func RupeesToPaise(rupees float64) Money {
	return Money(math.Round(rupees * 100))
}

// Rupees returns the decimal rupee value. Display and gateway boundaries only.
func (m Money) Rupees() float64 {
	return float64(m) / 100
}

// Paise returns the raw paise value for gateway payloads that expect minor units.
func (m Money) Paise() int64 {
	return int64(m)
}

var inrPrinter = message.NewPrinter(language.MustParse("en-IN"))

// Display formats the amount as an Indian-grouped rupee string, e.g. ₹1,23,456.50.
func (m Money) Display() string {
	return inrPrinter.Sprintf("₹%.2f", m.Rupees())
}

// String implements fmt.Stringer for logs; paise with an explicit unit suffix.
func (m Money) String() string {
	return fmt.Sprintf("%dp", int64(m))
}
