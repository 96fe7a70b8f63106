package utils_test

import (
	"math"
	"testing"

	"github.com/example/pesabridge/internal/utils"
)

func TestValidatePhoneNumber(t *testing.T) {
	cases := []struct {
		phone string
		want  bool
	}{
		{"+254712345678", true},
		{"254712345678", true},
		{"+254112345678", true},
		{"254198765432", true},
		{"0712345678", false},
		{"712345678", false},
		{"25471234567", false},
		{"2547123456789", false},
		{"+254812345678", false},
		{"+1254712345678", false},
		{"", false},
		{"not-a-number", false},
	}

	for _, tc := range cases {
		if got := utils.ValidatePhoneNumber(tc.phone); got != tc.want {
			t.Errorf("ValidatePhoneNumber(%q) = %v, want %v", tc.phone, got, tc.want)
		}
	}
}

func TestValidAmount(t *testing.T) {
	cases := []struct {
		amount float64
		want   bool
	}{
		{10, true},
		{0.5, true},
		{0, false},
		{-5, false},
		{math.Inf(1), false},
		{math.NaN(), false},
	}

	for _, tc := range cases {
		if got := utils.ValidAmount(tc.amount); got != tc.want {
			t.Errorf("ValidAmount(%v) = %v, want %v", tc.amount, got, tc.want)
		}
	}
}
