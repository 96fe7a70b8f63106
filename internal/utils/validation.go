package utils

import (
	"math"
	"regexp"
)

// Kenyan mobile numbers: optional +, country code 254, then a Safaricom
// (7...) or Airtel-style (1...) subscriber number of 8 more digits.
var phoneNumberPattern = regexp.MustCompile(`^(?:\+?254)(?:1|7)\d{8}$`)

// ValidatePhoneNumber reports whether phone is an acceptable M-Pesa number.
func ValidatePhoneNumber(phone string) bool {
	return phoneNumberPattern.MatchString(phone)
}

// ValidAmount reports whether amount is a positive finite number.
func ValidAmount(amount float64) bool {
	return amount > 0 && !math.IsInf(amount, 0) && !math.IsNaN(amount)
}
