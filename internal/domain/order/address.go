package order

import (
	"fmt"
	"strings"
)

// ShippingAddress is the delivery address captured at checkout. It is stored
// with the order and never changes afterwards.
type ShippingAddress struct {
	FullName   string `json:"fullName"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
	Phone      string `json:"phone"`
}

// ValidationError reports a malformed input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Validate checks that the required fields are present and plausible.
func (a ShippingAddress) Validate() error {
	required := []struct {
		field, value string
	}{
		{"fullName", a.FullName},
		{"line1", a.Line1},
		{"city", a.City},
		{"postalCode", a.PostalCode},
		{"country", a.Country},
		{"phone", a.Phone},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return &ValidationError{Field: r.field, Reason: "required"}
		}
	}
	if c := strings.TrimSpace(a.Country); len(c) != 2 {
		return &ValidationError{Field: "country", Reason: "must be a two-letter country code"}
	}
	digits := 0
	for _, r := range a.Phone {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '+' || r == ' ' || r == '-' || r == '(' || r == ')':
		default:
			return &ValidationError{Field: "phone", Reason: "unexpected character"}
		}
	}
	if digits < 7 || digits > 15 {
		return &ValidationError{Field: "phone", Reason: "must contain 7 to 15 digits"}
	}
	return nil
}
