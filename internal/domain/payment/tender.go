package payment

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// TenderKind enumerates the ways a transaction can be paid.
type TenderKind string

const (
	KindCash         TenderKind = "cash"
	KindCard         TenderKind = "card"
	KindBankTransfer TenderKind = "bank_transfer"
	KindCrypto       TenderKind = "crypto"
)

// TenderKinds lists every kind in reporting order.
var TenderKinds = []TenderKind{KindCash, KindCard, KindBankTransfer, KindCrypto}

// Sentinel errors for tenders.
var (
	ErrUnknownTender    = errors.New("unknown tender kind")
	ErrInvalidTender    = errors.New("invalid tender details")
	ErrNegativeTendered = errors.New("tendered amount must not be negative")
)

// ParseTenderKind validates a tender kind name.
func ParseTenderKind(s string) (TenderKind, error) {
	for _, k := range TenderKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", errors.Wrapf(ErrUnknownTender, "%q", s)
}

// Tender is the sealed set of payment methods: Cash, Card, BankTransfer and
// Crypto. Code that branches on a tender switches over these four types.
type Tender interface {
	Kind() TenderKind
	tender()
}

// Cash is paid over the counter. Tendered is what the customer handed over;
// zero means the exact amount.
type Cash struct {
	Tendered decimal.Decimal
}

// Card is a card payment authorized by an external terminal.
type Card struct {
	Brand    string
	Last4    string
	AuthCode string
}

// BankTransfer is paid by bank transfer identified by Reference.
type BankTransfer struct {
	Reference string
}

// Crypto is paid on chain; TxHash identifies the transfer.
type Crypto struct {
	Network string
	TxHash  string
}

func (Cash) Kind() TenderKind         { return KindCash }
func (Card) Kind() TenderKind         { return KindCard }
func (BankTransfer) Kind() TenderKind { return KindBankTransfer }
func (Crypto) Kind() TenderKind       { return KindCrypto }

func (Cash) tender()         {}
func (Card) tender()         {}
func (BankTransfer) tender() {}
func (Crypto) tender()       {}

// ValidateTender checks the details carried by t.
func ValidateTender(t Tender) error {
	switch t := t.(type) {
	case Cash:
		if t.Tendered.IsNegative() {
			return ErrNegativeTendered
		}
	case Card:
		if t.Last4 != "" && len(t.Last4) != 4 {
			return errors.Wrap(ErrInvalidTender, "card last4 must have 4 digits")
		}
	case BankTransfer:
		if t.Reference == "" {
			return errors.Wrap(ErrInvalidTender, "bank transfer reference required")
		}
	case Crypto:
		if t.Network == "" {
			return errors.Wrap(ErrInvalidTender, "crypto network required")
		}
	case nil:
		return ErrUnknownTender
	default:
		return errors.Wrapf(ErrUnknownTender, "%T", t)
	}
	return nil
}
