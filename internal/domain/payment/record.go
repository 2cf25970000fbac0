package payment

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// TenderRecord is the flat form of a Tender used by storage and transport.
type TenderRecord struct {
	Kind      TenderKind       `json:"kind"`
	Tendered  *decimal.Decimal `json:"tendered,omitempty"`
	Brand     string           `json:"brand,omitempty"`
	Last4     string           `json:"last4,omitempty"`
	AuthCode  string           `json:"auth_code,omitempty"`
	Reference string           `json:"reference,omitempty"`
	Network   string           `json:"network,omitempty"`
	TxHash    string           `json:"tx_hash,omitempty"`
}

// RecordOf flattens t.
func RecordOf(t Tender) TenderRecord {
	switch t := t.(type) {
	case Cash:
		r := TenderRecord{Kind: KindCash}
		if !t.Tendered.IsZero() {
			v := t.Tendered
			r.Tendered = &v
		}
		return r
	case Card:
		return TenderRecord{Kind: KindCard, Brand: t.Brand, Last4: t.Last4, AuthCode: t.AuthCode}
	case BankTransfer:
		return TenderRecord{Kind: KindBankTransfer, Reference: t.Reference}
	case Crypto:
		return TenderRecord{Kind: KindCrypto, Network: t.Network, TxHash: t.TxHash}
	}
	return TenderRecord{}
}

// Tender rebuilds the tender described by r.
func (r TenderRecord) Tender() (Tender, error) {
	switch r.Kind {
	case KindCash:
		c := Cash{}
		if r.Tendered != nil {
			c.Tendered = *r.Tendered
		}
		return c, nil
	case KindCard:
		return Card{Brand: r.Brand, Last4: r.Last4, AuthCode: r.AuthCode}, nil
	case KindBankTransfer:
		return BankTransfer{Reference: r.Reference}, nil
	case KindCrypto:
		return Crypto{Network: r.Network, TxHash: r.TxHash}, nil
	}
	return nil, errors.Wrapf(ErrUnknownTender, "%q", r.Kind)
}
