// Package payment authorizes card payments. Only the card format is checked;
// no processor is contacted.
package payment

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
)

// ErrDeclined is returned when the card cannot be charged.
var ErrDeclined = errors.New("payment declined")

// Card holds the card fields entered at checkout.
type Card struct {
	Holder string
	Number string
	// Expiry is formatted as MM/YY.
	Expiry string
	CVV    string
}

// FieldError reports a malformed card field.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("invalid card %s: %s", e.Field, e.Reason)
}

// Authorizer authorizes a card payment.
type Authorizer interface {
	Authorize(ctx context.Context, card Card) error
}

// FormatAuthorizer accepts every well-formed, unexpired card.
type FormatAuthorizer struct {
	now func() time.Time
}

// NewFormatAuthorizer creates a FormatAuthorizer.
func NewFormatAuthorizer() *FormatAuthorizer {
	return &FormatAuthorizer{now: time.Now}
}

var _ Authorizer = (*FormatAuthorizer)(nil)

// Authorize validates the card fields and returns a *FieldError for the first
// malformed one.
func (a *FormatAuthorizer) Authorize(_ context.Context, card Card) error {
	return Validate(card, a.now())
}

// Validate checks holder, number (13 to 19 digits passing the Luhn check),
// expiry (MM/YY, not before the month of now) and CVV (3 or 4 digits).
func Validate(card Card, now time.Time) error {
	if strings.TrimSpace(card.Holder) == "" {
		return &FieldError{Field: "holder", Reason: "required"}
	}

	number := strings.NewReplacer(" ", "", "-", "").Replace(card.Number)
	if len(number) < 13 || len(number) > 19 || !isDigits(number) {
		return &FieldError{Field: "number", Reason: "must contain 13 to 19 digits"}
	}
	if !luhn(number) {
		return &FieldError{Field: "number", Reason: "checksum mismatch"}
	}

	month, year, ok := parseExpiry(card.Expiry)
	if !ok {
		return &FieldError{Field: "expiry", Reason: "must be MM/YY"}
	}
	// Cards are valid through the last day of the expiry month.
	expires := time.Date(year, time.Month(month)+1, 1, 0, 0, 0, 0, time.UTC)
	if !now.UTC().Before(expires) {
		return &FieldError{Field: "expiry", Reason: "card expired"}
	}

	if (len(card.CVV) != 3 && len(card.CVV) != 4) || !isDigits(card.CVV) {
		return &FieldError{Field: "cvv", Reason: "must contain 3 or 4 digits"}
	}
	return nil
}

func parseExpiry(s string) (month, year int, ok bool) {
	mm, yy, found := strings.Cut(strings.TrimSpace(s), "/")
	if !found || len(mm) != 2 || len(yy) != 2 {
		return 0, 0, false
	}
	month, err := strconv.Atoi(mm)
	if err != nil || month < 1 || month > 12 {
		return 0, 0, false
	}
	year, err = strconv.Atoi(yy)
	if err != nil {
		return 0, 0, false
	}
	return month, 2000 + year, true
}

func isDigits(s string) bool {
	for i := range len(s) {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}

func luhn(number string) bool {
	sum := 0
	double := false
	for i := len(number) - 1; i >= 0; i-- {
		d := int(number[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}
