// Package payment charges voters through a mobile-money gateway and reports
// a payment reference on success.
package payment

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrPaymentCancelled means the voter declined or abandoned the charge.
	// It must stay distinguishable from ErrPaymentFailed.
	ErrPaymentCancelled = errors.New("payment cancelled")
	// ErrPaymentFailed covers gateway rejections, reversals and transport errors.
	ErrPaymentFailed = errors.New("payment failed")
	ErrInvalidPhone  = errors.New("invalid phone number")
	ErrInvalidAmount = errors.New("invalid amount")
)

// Gateway charges a mobile-money wallet and blocks until the charge reaches a
// terminal state.
type Gateway interface {
	Charge(ctx context.Context, req ChargeRequest) (Receipt, error)
}

// Reference is the gateway's opaque receipt identifier.
type Reference string

func (r Reference) String() string {
	return string(r)
}

// Amount is a price in major currency units. One unit buys one vote.
type Amount struct {
	decimal.Decimal
}

func NewAmount(d decimal.Decimal) (Amount, error) {
	if !d.IsPositive() || !d.IsInteger() {
		return Amount{}, ErrInvalidAmount
	}
	return Amount{d}, nil
}

// MinorUnits is the amount in the currency's smallest unit (pesewas for GHS).
func (a Amount) MinorUnits() int64 {
	return a.Shift(2).IntPart()
}

// Votes is the budget the amount buys.
func (a Amount) Votes() int {
	return int(a.IntPart())
}

// Provider is a mobile-money network code as the gateway names it.
type Provider string

const (
	ProviderMTN        Provider = "mtn"
	ProviderTelecel    Provider = "vod"
	ProviderAirtelTigo Provider = "atl"
)

// ChargeRequest is one mobile-money charge.
type ChargeRequest struct {
	Phone    string
	Amount   Amount
	Email    string
	Currency string
}

// Receipt is the successful outcome of a charge.
type Receipt struct {
	Reference Reference
	Amount    Amount
	Provider  Provider
}

var ghanaPhone = regexp.MustCompile(`^(\+233|0)[2-9]\d{8}$`)

// ValidatePhone accepts local (0XXXXXXXXX) and international (+233XXXXXXXXX)
// Ghana numbers.
func ValidatePhone(phone string) error {
	if !ghanaPhone.MatchString(strings.TrimSpace(phone)) {
		return ErrInvalidPhone
	}
	return nil
}

// localNumber rewrites +233XXXXXXXXX to 0XXXXXXXXX.
func localNumber(phone string) string {
	phone = strings.TrimSpace(phone)
	if rest, ok := strings.CutPrefix(phone, "+233"); ok {
		return "0" + rest
	}
	return phone
}

// ProviderFor derives the network from the number prefix. Unknown prefixes
// default to MTN, the largest network.
func ProviderFor(phone string) Provider {
	local := localNumber(phone)
	if len(local) < 3 {
		return ProviderMTN
	}
	switch local[:3] {
	case "020", "050":
		return ProviderTelecel
	case "026", "027", "056", "057":
		return ProviderAirtelTigo
	default:
		return ProviderMTN
	}
}

// DefaultEmail is the contact address sent when the voter supplies none.
func DefaultEmail(phone string) string {
	return strings.TrimSpace(phone) + "@voting.com"
}
